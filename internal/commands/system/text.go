package system

import (
	"fmt"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"orasim/internal/shell"
)

func cmdGrep(s *shell.Session, args []string) {
	fs := shell.NewFlags("grep")
	ignoreCase := fs.BoolP("ignore-case", "i", false, "")
	invert := fs.BoolP("invert-match", "v", false, "")
	count := fs.BoolP("count", "c", false, "")
	number := fs.BoolP("line-number", "n", false, "")
	extended := fs.BoolP("extended-regexp", "E", false, "")
	fixed := fs.BoolP("fixed-strings", "F", false, "")
	word := fs.BoolP("word-regexp", "w", false, "")
	recursive := fs.BoolP("recursive", "r", false, "")
	quiet := fs.BoolP("quiet", "q", false, "")
	listFiles := fs.BoolP("files-with-matches", "l", false, "")
	noName := fs.BoolP("no-filename", "h", false, "")
	operands, ok := s.ParseFlags(fs, args)
	if !ok {
		return
	}
	if len(operands) == 0 {
		s.Error("Usage: grep [OPTION]... PATTERNS [FILE]...")
		s.Error("Try 'grep --help' for more information.")
		return
	}

	expr := operands[0]
	switch {
	case *fixed:
		expr = regexp.QuoteMeta(expr)
	case !*extended:
		expr = basicToExtended(expr)
	}
	if *word {
		expr = `\b(?:` + expr + `)\b`
	}
	if *ignoreCase {
		expr = "(?i)" + expr
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		s.Error("grep: Unmatched ( or \\(")
		return
	}

	type source struct {
		name  string
		lines []string
	}
	var sources []source
	files := operands[1:]
	if len(files) == 0 {
		in, _ := s.Stdin()
		sources = append(sources, source{name: "(standard input)", lines: in})
	}
	for _, f := range files {
		n := s.FS.Lookup(f)
		switch {
		case n == nil:
			s.Errorf("grep: %s: No such file or directory", f)
		case n.IsDir() && *recursive:
			walkFiles(s, f, func(p, content string) {
				sources = append(sources, source{name: p, lines: shell.SplitLines(content)})
			})
		case n.IsDir():
			s.Errorf("grep: %s: Is a directory", f)
		default:
			sources = append(sources, source{name: f, lines: shell.SplitLines(n.Content)})
		}
	}
	prefix := (len(files) > 1 || *recursive) && !*noName

	matched := false
	for _, src := range sources {
		hits := 0
		for i, line := range src.lines {
			if re.MatchString(line) == *invert {
				continue
			}
			hits++
			matched = true
			if *count || *quiet || *listFiles {
				continue
			}
			out := line
			if *number {
				out = strconv.Itoa(i+1) + ":" + out
			}
			if prefix {
				out = src.name + ":" + out
			}
			s.Println(out)
		}
		switch {
		case *quiet:
		case *listFiles:
			if hits > 0 {
				s.Println(src.name)
			}
		case *count:
			if prefix {
				s.Printf("%s:%d", src.name, hits)
			} else {
				s.Println(strconv.Itoa(hits))
			}
		}
	}
	if !matched {
		// No output, but the status still reads as failure for && and ||.
		s.Fail()
	}
}

// basicToExtended converts a POSIX basic regular expression: unescaped
// + ? | ( ) { } are literals and their escaped forms are operators.
func basicToExtended(bre string) string {
	var b strings.Builder
	for i := 0; i < len(bre); i++ {
		c := bre[i]
		if c == '\\' && i+1 < len(bre) {
			next := bre[i+1]
			i++
			if strings.IndexByte("+?|(){}", next) >= 0 {
				b.WriteByte(next)
				continue
			}
			b.WriteByte('\\')
			b.WriteByte(next)
			continue
		}
		if strings.IndexByte("+?|(){}", c) >= 0 {
			b.WriteByte('\\')
		}
		b.WriteByte(c)
	}
	return b.String()
}

// walkFiles visits every file below dir in listing order.
func walkFiles(s *shell.Session, dir string, fn func(p, content string)) {
	entries, ok := s.FS.Ls(dir)
	if !ok {
		return
	}
	for _, e := range entries {
		p := path.Join(dir, e.Name)
		if e.IsDir() {
			walkFiles(s, p, fn)
			continue
		}
		fn(p, e.Content)
	}
}

// lineCount rewrites the historic -N shorthand as -n N.
func lineCount(args []string) []string {
	out := make([]string, 0, len(args)+1)
	for i, a := range args {
		if i > 0 && len(a) > 1 && a[0] == '-' {
			if _, err := strconv.Atoi(a[1:]); err == nil {
				out = append(out, "-n", a[1:])
				continue
			}
		}
		out = append(out, a)
	}
	return out
}

func cmdHead(s *shell.Session, args []string) {
	fs := shell.NewFlags("head")
	n := fs.IntP("lines", "n", 10, "")
	files, ok := s.ParseFlags(fs, lineCount(args))
	if !ok {
		return
	}
	lines, err := s.Input("head", files)
	if err != nil {
		return
	}
	if *n < len(lines) {
		lines = lines[:max(*n, 0)]
	}
	for _, l := range lines {
		s.Println(l)
	}
}

func cmdTail(s *shell.Session, args []string) {
	fs := shell.NewFlags("tail")
	n := fs.StringP("lines", "n", "10", "")
	fs.BoolP("follow", "f", false, "")
	files, ok := s.ParseFlags(fs, lineCount(args))
	if !ok {
		return
	}
	lines, err := s.Input("tail", files)
	if err != nil {
		return
	}
	if from, ok := strings.CutPrefix(*n, "+"); ok {
		start, err := strconv.Atoi(from)
		if err != nil {
			s.Errorf("tail: invalid number of lines: '%s'", *n)
			return
		}
		if start > 0 {
			start--
		}
		if start < len(lines) {
			lines = lines[start:]
		} else {
			lines = nil
		}
	} else {
		count, err := strconv.Atoi(*n)
		if err != nil {
			s.Errorf("tail: invalid number of lines: '%s'", *n)
			return
		}
		if count < len(lines) {
			lines = lines[len(lines)-max(count, 0):]
		}
	}
	for _, l := range lines {
		s.Println(l)
	}
}

func cmdWc(s *shell.Session, args []string) {
	fs := shell.NewFlags("wc")
	onlyLines := fs.BoolP("lines", "l", false, "")
	onlyWords := fs.BoolP("words", "w", false, "")
	onlyBytes := fs.BoolP("bytes", "c", false, "")
	files, ok := s.ParseFlags(fs, args)
	if !ok {
		return
	}
	all := !*onlyLines && !*onlyWords && !*onlyBytes

	counts := func(lines []string) []int {
		var l, w, c int
		for _, line := range lines {
			l++
			w += len(strings.Fields(line))
			c += len(line) + 1
		}
		var out []int
		if all || *onlyLines {
			out = append(out, l)
		}
		if all || *onlyWords {
			out = append(out, w)
		}
		if all || *onlyBytes {
			out = append(out, c)
		}
		return out
	}
	render := func(vals []int, width int, name string) string {
		parts := make([]string, len(vals))
		for i, v := range vals {
			parts[i] = fmt.Sprintf("%*d", width, v)
		}
		line := strings.Join(parts, " ")
		if name != "" {
			line += " " + name
		}
		return line
	}

	if len(files) == 0 {
		in, _ := s.Stdin()
		vals := counts(in)
		width := 7
		if len(vals) == 1 {
			width = 0
		}
		s.Println(render(vals, width, ""))
		return
	}
	type result struct {
		name string
		vals []int
	}
	var results []result
	total := make([]int, 0, 3)
	for _, f := range files {
		content, ok := s.FS.ReadFile(f)
		if !ok {
			s.Errorf("wc: %s: No such file or directory", f)
			continue
		}
		vals := counts(shell.SplitLines(content))
		if len(total) == 0 {
			total = make([]int, len(vals))
		}
		for i, v := range vals {
			total[i] += v
		}
		results = append(results, result{f, vals})
	}
	if len(results) > 1 {
		results = append(results, result{"total", total})
	}
	width := 1
	for _, r := range results {
		for _, v := range r.vals {
			width = max(width, len(strconv.Itoa(v)))
		}
	}
	for _, r := range results {
		s.Println(render(r.vals, width, r.name))
	}
}

func cmdSort(s *shell.Session, args []string) {
	fs := shell.NewFlags("sort")
	reverse := fs.BoolP("reverse", "r", false, "")
	numeric := fs.BoolP("numeric-sort", "n", false, "")
	unique := fs.BoolP("unique", "u", false, "")
	fold := fs.BoolP("ignore-case", "f", false, "")
	key := fs.IntP("key", "k", 0, "")
	sep := fs.StringP("field-separator", "t", "", "")
	files, ok := s.ParseFlags(fs, args)
	if !ok {
		return
	}
	lines, err := s.Input("sort", files)
	if err != nil {
		return
	}
	sortKey := func(line string) string {
		if *key <= 0 {
			return line
		}
		var fields []string
		if *sep != "" {
			fields = strings.Split(line, *sep)
		} else {
			fields = strings.Fields(line)
		}
		if *key > len(fields) {
			return ""
		}
		return strings.Join(fields[*key-1:], " ")
	}
	less := func(a, b string) bool {
		ka, kb := sortKey(a), sortKey(b)
		if *numeric {
			na, _ := strconv.ParseFloat(leadingNumber(ka), 64)
			nb, _ := strconv.ParseFloat(leadingNumber(kb), 64)
			if na != nb {
				return na < nb
			}
		}
		if *fold {
			ka, kb = strings.ToLower(ka), strings.ToLower(kb)
		}
		return ka < kb
	}
	sorted := append([]string(nil), lines...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if *reverse {
			return less(sorted[j], sorted[i])
		}
		return less(sorted[i], sorted[j])
	})
	var prev *string
	for i := range sorted {
		if *unique && prev != nil && *prev == sorted[i] {
			continue
		}
		s.Println(sorted[i])
		prev = &sorted[i]
	}
}

func leadingNumber(s string) string {
	s = strings.TrimSpace(s)
	end := 0
	for end < len(s) && (s[end] == '-' && end == 0 || s[end] == '.' || s[end] >= '0' && s[end] <= '9') {
		end++
	}
	return s[:end]
}

func cmdUniq(s *shell.Session, args []string) {
	fs := shell.NewFlags("uniq")
	count := fs.BoolP("count", "c", false, "")
	dupes := fs.BoolP("repeated", "d", false, "")
	files, ok := s.ParseFlags(fs, args)
	if !ok {
		return
	}
	lines, err := s.Input("uniq", files)
	if err != nil {
		return
	}
	for i := 0; i < len(lines); {
		j := i + 1
		for j < len(lines) && lines[j] == lines[i] {
			j++
		}
		n := j - i
		switch {
		case *dupes && n < 2:
		case *count:
			s.Printf("%7d %s", n, lines[i])
		default:
			s.Println(lines[i])
		}
		i = j
	}
}
