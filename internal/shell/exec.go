package shell

import (
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/kballard/go-shellquote"

	"orasim/internal/env"
	"orasim/internal/logging"
	"orasim/internal/metrics"
	"orasim/internal/modal"
)

// maxScriptDepth bounds script files that run other script files.
const maxScriptDepth = 16

// Submit processes one line of input to completion.
func (s *Session) Submit(line string) {
	start := time.Now()
	defer func() { metrics.ObserveLine(time.Since(start)) }()

	top := s.Modal.Top()
	if strings.TrimSpace(line) != "" && (top == nil || !top.NoHistory) {
		s.History.Append(line)
	}
	if top != nil {
		s.guard("modal "+top.Name, func() { top.Handle(line) })
		return
	}
	s.Exec(line)
}

// Exec parses and runs a shell command line without touching history.
// Handlers use it to run nested command lines (sudo, SQL*Plus HOST).
func (s *Session) Exec(line string) {
	tokens, err := lex(line)
	if err == nil {
		var chain []*pipeline
		chain, err = parse(tokens)
		if err == nil {
			s.runChain(chain, 0)
			return
		}
	}
	s.Error(err.Error())
	s.failed = true
	s.Env.SetStatus(2)
}

// Run dispatches an already tokenized command with the current redirections.
func (s *Session) Run(args []string) {
	if len(args) == 0 {
		return
	}
	s.dispatch(args)
}

// Failed reports whether the last pipeline wrote to standard error.
func (s *Session) Failed() bool { return s.failed }

// Fail marks the running command failed without printing anything, as grep
// does when nothing matches.
func (s *Session) Fail() { s.failed = true }

// guard runs fn and turns a handler panic into a logged no-op.
func (s *Session) guard(what string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logging.Get(logging.CategoryDispatch).Error("%s panicked: %v", what, r)
		}
	}()
	fn()
}

// token is either an operator or a run of raw (still quoted) text.
type token struct {
	op   string
	text string
}

// operators in match order: longer forms first.
var operators = []string{"2>&1", "2>>", "&>", "2>", ">>", "<<", "&&", "||", ">", "<", "|", ";", "&"}

// lex splits a line on unquoted operators and drops a trailing comment.
func lex(line string) ([]token, error) {
	var tokens []token
	var text strings.Builder
	emit := func() {
		if strings.TrimSpace(text.String()) != "" {
			tokens = append(tokens, token{text: text.String()})
		}
		text.Reset()
	}
	wordStart := func(i int) bool {
		return i == 0 || line[i-1] == ' ' || line[i-1] == '\t' || strings.ContainsRune(";&|<>", rune(line[i-1]))
	}

	var quote byte
	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case quote != 0:
			if c == '\\' && quote == '"' && i+1 < len(line) {
				text.WriteByte(c)
				i++
				c = line[i]
			} else if c == quote {
				quote = 0
			}
			text.WriteByte(c)
			continue
		case c == '\\' && i+1 < len(line):
			text.WriteByte(c)
			i++
			text.WriteByte(line[i])
			continue
		case c == '\'' || c == '"':
			quote = c
			text.WriteByte(c)
			continue
		case c == '#' && wordStart(i):
			emit()
			return tokens, nil
		}

		matched := ""
		for _, op := range operators {
			if strings.HasPrefix(line[i:], op) {
				if op[0] == '2' && !wordStart(i) {
					continue
				}
				matched = op
				break
			}
		}
		if matched == "" {
			text.WriteByte(c)
			continue
		}
		emit()
		tokens = append(tokens, token{op: matched})
		i += len(matched) - 1
	}
	if quote != 0 {
		return nil, fmt.Errorf("-bash: unexpected EOF while looking for matching `%c'", quote)
	}
	emit()
	return tokens, nil
}

type redirect struct {
	op     string
	target string
}

type command struct {
	text      string
	redirects []redirect

	heredoc       string
	heredocQuoted bool
	heredocLines  []string
	collected     bool
}

type pipeline struct {
	cmds []*command
	// next is the separator that follows: ";", "&&", "||", "&" or "".
	next string
}

func syntaxError(tok string) error {
	return fmt.Errorf("-bash: syntax error near unexpected token `%s'", tok)
}

// parse groups tokens into pipelines of commands.
func parse(tokens []token) ([]*pipeline, error) {
	var chain []*pipeline
	cur := &command{}
	pl := &pipeline{}
	empty := func(c *command) bool {
		return strings.TrimSpace(c.text) == "" && len(c.redirects) == 0 && c.heredoc == ""
	}

	for i := 0; i < len(tokens); i++ {
		t := tokens[i]
		switch t.op {
		case "":
			cur.text += " " + t.text
		case "|":
			if empty(cur) {
				return nil, syntaxError("|")
			}
			pl.cmds = append(pl.cmds, cur)
			cur = &command{}
		case ";", "&&", "||", "&":
			if empty(cur) {
				if len(pl.cmds) > 0 || t.op != ";" || len(chain) == 0 {
					return nil, syntaxError(t.op)
				}
				continue
			}
			pl.cmds = append(pl.cmds, cur)
			pl.next = t.op
			chain = append(chain, pl)
			cur, pl = &command{}, &pipeline{}
		case "2>&1":
			cur.redirects = append(cur.redirects, redirect{op: t.op})
		default:
			if i+1 >= len(tokens) || tokens[i+1].op != "" {
				next := "newline"
				if i+1 < len(tokens) {
					next = tokens[i+1].op
				}
				return nil, syntaxError(next)
			}
			i++
			word, rest := splitFirst(tokens[i].text)
			cur.text += " " + rest
			if t.op == "<<" {
				word = strings.TrimPrefix(word, "-")
				unquoted := strings.Trim(word, `'"`)
				cur.heredocQuoted = unquoted != word
				cur.heredoc = unquoted
				continue
			}
			cur.redirects = append(cur.redirects, redirect{op: t.op, target: word})
		}
	}
	if !empty(cur) {
		pl.cmds = append(pl.cmds, cur)
	} else if len(pl.cmds) > 0 {
		return nil, syntaxError("newline")
	}
	if len(pl.cmds) > 0 {
		chain = append(chain, pl)
	}
	return chain, nil
}

// splitFirst returns the first quote-aware word of raw and the remainder.
func splitFirst(raw string) (string, string) {
	raw = strings.TrimLeft(raw, " \t")
	var quote byte
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '\\':
			i++
		case c == '\'' || c == '"':
			quote = c
		case c == ' ' || c == '\t':
			return raw[:i], raw[i:]
		}
	}
	return raw, ""
}

func (s *Session) runChain(chain []*pipeline, from int) {
	for i := from; i < len(chain); i++ {
		if i > 0 {
			switch chain[i-1].next {
			case "&&":
				if s.failed {
					continue
				}
			case "||":
				if !s.failed {
					continue
				}
			}
		}
		pl := chain[i]
		for _, cmd := range pl.cmds {
			if cmd.heredoc != "" && !cmd.collected {
				s.collectHeredoc(chain, i, cmd)
				return
			}
		}
		s.runPipeline(pl)
	}
}

// collectHeredoc reads lines up to the delimiter, then resumes the chain at
// the pipeline that needed them.
func (s *Session) collectHeredoc(chain []*pipeline, at int, cmd *command) {
	modal.Collect(s.Modal, "> ", cmd.heredoc, func(lines []string) {
		if !cmd.heredocQuoted {
			for i, l := range lines {
				lines[i] = s.Env.Expand(l)
			}
		}
		cmd.heredocLines = lines
		cmd.collected = true
		s.runChain(chain, at)
	})
}

func (s *Session) runPipeline(pl *pipeline) {
	s.failed, s.missing = false, false
	var input []string
	piped := false
	for i, cmd := range pl.cmds {
		capture := i < len(pl.cmds)-1
		input = s.runCommand(cmd, input, piped, capture)
		piped = true
	}
	s.Env.SetStatus(s.status())
}

// status is the exit code of the pipeline that just ran: 127 for an
// unknown command, 1 for any other failure.
func (s *Session) status() int {
	switch {
	case s.missing:
		return 127
	case s.failed:
		return 1
	}
	return 0
}

// runCommand expands and runs one command. When capture is set its standard
// output is returned instead of written.
func (s *Session) runCommand(cmd *command, stdin []string, piped, capture bool) []string {
	savedOut, savedErr, savedIn, savedHas := s.stdout, s.stderr, s.stdin, s.hasIn
	defer func() {
		s.stdout, s.stderr, s.stdin, s.hasIn = savedOut, savedErr, savedIn, savedHas
	}()

	argv := s.words(cmd.text)
	s.stdin, s.hasIn = stdin, piped
	if cmd.heredoc != "" {
		s.stdin, s.hasIn = cmd.heredocLines, true
	}

	var outFile, errFile *redirect
	var outSink, errSink *sink
	if capture {
		outSink = &sink{}
	}
	mergeErr := false
	for i := range cmd.redirects {
		r := &cmd.redirects[i]
		switch r.op {
		case ">", ">>":
			outFile = r
		case "2>", "2>>":
			errFile = r
		case "&>":
			outFile = r
			mergeErr = true
		case "2>&1":
			mergeErr = true
		case "<":
			target := s.word(r.target)
			content, ok := s.FS.ReadFile(target)
			if !ok {
				s.Errorf("-bash: %s: No such file or directory", target)
				return nil
			}
			s.stdin, s.hasIn = splitContent(content), true
		}
	}
	if outFile != nil {
		outSink = &sink{discard: s.word(outFile.target) == "/dev/null"}
	}
	if errFile != nil {
		errSink = &sink{discard: s.word(errFile.target) == "/dev/null"}
	}
	if mergeErr {
		errSink = outSink
	}
	if outSink != nil {
		s.stdout = outSink
	}
	if errSink != nil {
		s.stderr = errSink
	}

	if len(argv) > 0 {
		s.dispatch(argv)
	}

	// Restore the terminal before reporting redirection failures.
	s.stdout, s.stderr = savedOut, savedErr
	if outFile != nil {
		s.flush(outFile, outSink)
	}
	if errFile != nil && errSink != outSink {
		s.flush(errFile, errSink)
	}
	if capture && outFile == nil {
		return outSink.lines
	}
	return nil
}

// flush writes a redirection sink to its target file.
func (s *Session) flush(r *redirect, out *sink) {
	if out.discard {
		return
	}
	target := s.word(r.target)
	if s.FS.IsDirectory(target) {
		s.Errorf("-bash: %s: Is a directory", target)
		return
	}
	content := ""
	if len(out.lines) > 0 {
		content = strings.Join(out.lines, "\n") + "\n"
	}
	var ok bool
	if (r.op == ">>" || r.op == "2>>") && s.FS.IsFile(target) {
		ok = s.FS.AppendToFile(target, content)
	} else {
		ok = s.FS.WriteFile(target, content)
	}
	if !ok {
		s.Errorf("-bash: %s: No such file or directory", target)
	}
}

// dispatch resolves argv[0] and runs the handler.
func (s *Session) dispatch(argv []string) {
	assigns := 0
	for _, a := range argv {
		if _, _, ok := env.ParseAssignment(a); !ok {
			break
		}
		assigns++
	}
	if assigns == len(argv) {
		for _, a := range argv {
			name, value, _ := env.ParseAssignment(a)
			s.Env.Set(name, value)
		}
		return
	}
	if assigns > 0 {
		restore := s.setTemporary(argv[:assigns])
		defer restore()
		argv = argv[assigns:]
	}

	name := argv[0]
	h, ok := s.resolve(name)
	if !ok {
		return
	}
	metrics.RecordCommand(path.Base(name), true)
	logging.AuditCommandRun(s.ID, s.Env.User(), name, len(argv)-1)
	logging.DispatchDebug("run %s argc=%d user=%s", name, len(argv)-1, s.Env.User())

	saved := s.invoked
	s.invoked = name
	defer func() { s.invoked = saved }()
	s.guard(name, func() { h(s, argv) })
}

// resolve finds the handler for a command word, printing the bash error when
// there is none.
func (s *Session) resolve(name string) (Handler, bool) {
	if !strings.Contains(name, "/") {
		if h, ok := s.Registry.Lookup(name); ok {
			return h, true
		}
		s.notFound(name)
		return nil, false
	}

	node := s.FS.Lookup(name)
	switch {
	case node == nil:
		s.Errorf("-bash: %s: No such file or directory", name)
		return nil, false
	case node.IsDir():
		s.Errorf("-bash: %s: Is a directory", name)
		return nil, false
	}
	if h, ok := s.Registry.LookupScript(path.Base(name)); ok {
		return h, true
	}
	return s.runScript, true
}

func (s *Session) notFound(name string) {
	metrics.RecordCommand(name, false)
	logging.Audit(logging.AuditEvent{
		Type:      logging.AuditUnknown,
		SessionID: s.ID,
		Fields:    map[string]interface{}{"command": name},
	})
	s.missing = true
	s.Errorf("-bash: %s: command not found", name)
}

// runScript executes a plain file line by line.
func (s *Session) runScript(_ *Session, args []string) {
	content, _ := s.FS.ReadFile(args[0])
	if s.scriptDepth >= maxScriptDepth {
		s.Errorf("-bash: %s: maximum nesting depth exceeded", args[0])
		return
	}
	s.scriptDepth++
	defer func() { s.scriptDepth-- }()
	for _, line := range splitContent(content) {
		if strings.HasPrefix(line, "#!") {
			continue
		}
		s.Exec(line)
	}
}

// setTemporary applies NAME=value prefixes and returns a func undoing them.
func (s *Session) setTemporary(assigns []string) func() {
	type prior struct {
		name, value string
		had         bool
	}
	var saved []prior
	for _, a := range assigns {
		name, value, _ := env.ParseAssignment(a)
		old, had := s.Env.Get(name)
		saved = append(saved, prior{name, old, had})
		s.Env.Set(name, value)
	}
	return func() {
		for i := len(saved) - 1; i >= 0; i-- {
			p := saved[i]
			if p.had {
				s.Env.Set(p.name, p.value)
			} else {
				s.Env.Unset(p.name)
			}
		}
	}
}

// Glob characters inside quotes are swapped for private-use runes until after
// globbing so that quoted patterns stay literal.
const (
	quotedStar  = "\uE000"
	quotedQuery = "\uE001"
)

var (
	protectGlob = strings.NewReplacer("*", quotedStar, "?", quotedQuery)
	restoreGlob = strings.NewReplacer(quotedStar, "*", quotedQuery, "?")
)

// words expands variables, splits on shell quoting rules and expands globs.
func (s *Session) words(raw string) []string {
	expanded := s.expand(raw)
	fields, err := shellquote.Split(expanded)
	if err != nil {
		fields = strings.Fields(expanded)
	}
	var out []string
	for _, f := range fields {
		if strings.ContainsAny(f, "*?") {
			for _, m := range s.glob(f) {
				out = append(out, restoreGlob.Replace(m))
			}
			continue
		}
		out = append(out, restoreGlob.Replace(f))
	}
	return out
}

// word expands a single redirection target.
func (s *Session) word(raw string) string {
	w := s.words(raw)
	if len(w) == 0 {
		return ""
	}
	return w[0]
}

// expand substitutes variables and ~ outside single quotes.
func (s *Session) expand(raw string) string {
	var out, run strings.Builder
	var quote byte
	flush := func() {
		text := run.String()
		run.Reset()
		switch quote {
		case 0:
			b := out.String()
			atStart := len(b) == 0 || b[len(b)-1] == ' ' || b[len(b)-1] == '\t'
			out.WriteString(s.Env.Expand(s.expandTilde(text, atStart)))
		case '"':
			out.WriteString(protectGlob.Replace(s.Env.Expand(text)))
		default:
			out.WriteString(protectGlob.Replace(text))
		}
	}
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		switch {
		case c == '\\' && quote != '\'' && i+1 < len(raw):
			flush()
			i++
			switch raw[i] {
			case '*', '?':
				out.WriteString(protectGlob.Replace(raw[i : i+1]))
			default:
				out.WriteByte('\\')
				out.WriteByte(raw[i])
			}
		case quote == 0 && (c == '\'' || c == '"'):
			flush()
			out.WriteByte(c)
			quote = c
		case quote != 0 && c == quote:
			flush()
			out.WriteByte(c)
			quote = 0
		default:
			run.WriteByte(c)
		}
	}
	flush()
	return out.String()
}

func (s *Session) expandTilde(text string, atStart bool) string {
	if !strings.Contains(text, "~") {
		return text
	}
	home := s.Env.Home()
	var b strings.Builder
	for i := 0; i < len(text); i++ {
		c := text[i]
		start := (i == 0 && atStart) || (i > 0 && (text[i-1] == ' ' || text[i-1] == '\t'))
		end := i+1 == len(text) || text[i+1] == '/' || text[i+1] == ' ' || text[i+1] == '\t'
		if c == '~' && start && end {
			b.WriteString(home)
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

// glob matches the last path segment of pattern against the directory it
// names. Unmatched patterns are returned unchanged.
func (s *Session) glob(pattern string) []string {
	dir, base := path.Split(pattern)
	if strings.ContainsAny(dir, "*?") {
		return []string{pattern}
	}
	lookup := dir
	if lookup == "" {
		lookup = "."
	}
	entries, ok := s.FS.Ls(lookup)
	if !ok {
		return []string{pattern}
	}
	var matches []string
	for _, e := range entries {
		if strings.HasPrefix(e.Name, ".") && !strings.HasPrefix(base, ".") {
			continue
		}
		if ok, err := path.Match(base, e.Name); err == nil && ok {
			matches = append(matches, dir+e.Name)
		}
	}
	if len(matches) == 0 {
		return []string{pattern}
	}
	sort.Strings(matches)
	return matches
}

// splitContent turns file content into lines without a trailing empty line.
func splitContent(content string) []string {
	if content == "" {
		return nil
	}
	return strings.Split(strings.TrimSuffix(content, "\n"), "\n")
}

// SplitLines is splitContent for handlers.
func SplitLines(content string) []string { return splitContent(content) }

// ErrNoInput is returned by Input when there is neither stdin nor a file.
var ErrNoInput = errors.New("no input")

// Input returns standard input lines, or the lines of the named files when
// any are given. Missing files are reported as prefix: name: No such file or
// directory.
func (s *Session) Input(prefix string, files []string) ([]string, error) {
	if len(files) == 0 {
		if in, ok := s.Stdin(); ok {
			return in, nil
		}
		return nil, ErrNoInput
	}
	var lines []string
	for _, f := range files {
		switch {
		case s.FS.IsDirectory(f):
			s.Errorf("%s: %s: Is a directory", prefix, f)
		case !s.FS.IsFile(f):
			s.Errorf("%s: %s: No such file or directory", prefix, f)
		default:
			content, _ := s.FS.ReadFile(f)
			lines = append(lines, splitContent(content)...)
		}
	}
	return lines, nil
}
