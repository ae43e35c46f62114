package modal

import (
	"regexp"
	"strings"

	"orasim/internal/metrics"
)

// Call is a matched statement.
type Call struct {
	// Line is the trimmed input without a trailing ';'.
	Line string
	// Upper is Line upper-cased.
	Upper string
	// Groups holds regex submatches from the original-case Line. Groups[0]
	// is the whole match.
	Groups []string
}

// Matcher tests a normalized line.
type Matcher func(line, upper string) ([]string, bool)

// Exact matches when the whitespace-collapsed line equals one of words.
func Exact(words ...string) Matcher {
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[collapse(strings.ToUpper(w))] = true
	}
	return func(_, upper string) ([]string, bool) {
		c := collapse(upper)
		return []string{c}, set[c]
	}
}

// Prefix matches when the whitespace-collapsed line starts with p.
func Prefix(p string) Matcher {
	p = collapse(strings.ToUpper(p))
	return func(_, upper string) ([]string, bool) {
		c := collapse(upper)
		return []string{c}, strings.HasPrefix(c, p)
	}
}

// Regex matches case-insensitively against the whole line.
func Regex(expr string) Matcher {
	re := regexp.MustCompile("(?i)" + expr)
	return func(line, _ string) ([]string, bool) {
		m := re.FindStringSubmatch(line)
		return m, m != nil
	}
}

// Func wraps an arbitrary predicate over the upper-cased line.
func Func(f func(upper string) bool) Matcher {
	return func(_, upper string) ([]string, bool) {
		return nil, f(upper)
	}
}

func collapse(s string) string { return strings.Join(strings.Fields(s), " ") }

// Rule pairs a matcher with its responder.
type Rule struct {
	Match  Matcher
	Action func(c Call)
}

// Tool is a sub-shell driven by an ordered pattern table. The first matching
// rule wins, so specific statements must precede general ones.
type Tool struct {
	Name   string
	Prompt func() string
	Rules  []Rule

	// Unknown handles unmatched non-empty input. The tool stays active.
	Unknown func(c Call)
	// OnExit runs after the tool's frame has been popped.
	OnExit func()
	// ExitWords end the tool. Defaults to EXIT and QUIT.
	ExitWords []string
}

// Enter pushes the tool onto the stack.
func (t *Tool) Enter(s *Stack) {
	exits := t.ExitWords
	if len(exits) == 0 {
		exits = []string{"EXIT", "QUIT"}
	}
	var f *Frame
	f = &Frame{
		Name:   t.Name,
		Prompt: t.Prompt,
		OnExit: t.OnExit,
		Handle: func(raw string) {
			c, ok := Normalize(raw)
			if !ok {
				return
			}
			for _, w := range exits {
				if c.Upper == w {
					if s.Top() == f {
						s.Pop()
					}
					return
				}
			}
			t.Dispatch(c)
		},
	}
	s.Push(f)
	metrics.RecordModalEnter(t.Name)
}

// Dispatch runs the first matching rule, or Unknown.
func (t *Tool) Dispatch(c Call) {
	for _, r := range t.Rules {
		if groups, ok := r.Match(c.Line, c.Upper); ok {
			c.Groups = groups
			r.Action(c)
			return
		}
	}
	if t.Unknown != nil {
		t.Unknown(c)
	}
}

// Normalize trims the line and drops one trailing ';'. It reports false for
// an empty statement.
func Normalize(raw string) (Call, bool) {
	line := strings.TrimSpace(raw)
	line = strings.TrimSpace(strings.TrimSuffix(line, ";"))
	if line == "" {
		return Call{}, false
	}
	return Call{Line: line, Upper: strings.ToUpper(line)}, true
}
