package system

import (
	"path"
	"strings"

	"orasim/internal/env"
	"orasim/internal/shell"
)

func cmdEnv(s *shell.Session, args []string) {
	// env NAME=value ... command runs command with the assignments applied.
	rest := args[1:]
	for len(rest) > 0 {
		if _, _, ok := env.ParseAssignment(rest[0]); !ok {
			break
		}
		rest = rest[1:]
	}
	if len(rest) > 0 {
		s.Run(args[1:])
		return
	}
	assigned := args[1:]
	for _, kv := range s.Env.Environ() {
		name := kv[:strings.IndexByte(kv, '=')]
		if overridden(assigned, name) {
			continue
		}
		s.Println(kv)
	}
	for _, a := range assigned {
		s.Println(a)
	}
}

func overridden(assigns []string, name string) bool {
	for _, a := range assigns {
		if n, _, _ := env.ParseAssignment(a); n == name {
			return true
		}
	}
	return false
}

func cmdPrintenv(s *shell.Session, args []string) {
	if len(args) == 1 {
		for _, kv := range s.Env.Environ() {
			s.Println(kv)
		}
		return
	}
	missing := false
	for _, name := range args[1:] {
		v, ok := s.Env.Get(name)
		if !ok {
			missing = true
			continue
		}
		s.Println(v)
	}
	if missing {
		s.Fail()
	}
}

func cmdSet(s *shell.Session, args []string) {
	if len(args) > 1 {
		// Shell options are accepted and ignored.
		return
	}
	for _, kv := range s.Env.Environ() {
		i := strings.IndexByte(kv, '=')
		s.Println(kv[:i+1] + quoteValue(kv[i+1:]))
	}
}

// quoteValue renders a value the way set does, quoting when needed.
func quoteValue(v string) string {
	if v != "" && !strings.ContainsAny(v, " \t'\"$;&|<>()*?") {
		return v
	}
	return "'" + strings.ReplaceAll(v, "'", `'\''`) + "'"
}

func cmdUnset(s *shell.Session, args []string) {
	for _, name := range args[1:] {
		if name == "-v" || name == "-f" {
			continue
		}
		s.Env.Unset(name)
	}
}

func cmdExport(s *shell.Session, args []string) {
	if len(args) == 1 || args[1] == "-p" {
		for _, kv := range s.Env.Environ() {
			i := strings.IndexByte(kv, '=')
			s.Printf(`declare -x %s="%s"`, kv[:i], kv[i+1:])
		}
		return
	}
	for _, a := range args[1:] {
		if name, value, ok := env.ParseAssignment(a); ok {
			s.Env.Export(name, value)
			continue
		}
		if strings.Contains(a, "=") || strings.HasPrefix(a, "-") {
			s.Errorf("-bash: export: `%s': not a valid identifier", a)
			continue
		}
		// export NAME keeps an existing value and creates an empty one.
		if _, ok := s.Env.Get(a); !ok {
			s.Env.Export(a, "")
		}
	}
}

// cmdSource runs a script in the current shell: assignments land in the
// environment and other lines are executed as commands.
func cmdSource(s *shell.Session, args []string) {
	if len(args) < 2 {
		s.Errorf("-bash: %s: filename argument required", args[0])
		s.Errorf("%s: usage: %s filename [arguments]", args[0], args[0])
		return
	}
	file := args[1]
	if !strings.Contains(file, "/") && !s.FS.IsFile(file) {
		// bash searches PATH for a bare name.
		if found := Which(s, file); found != "" {
			file = found
		}
	}
	content, ok := s.FS.ReadFile(file)
	if !ok {
		s.Errorf("-bash: %s: No such file or directory", file)
		return
	}
	if h, ok := s.Registry.Script(path.Base(file)); ok {
		h(s, append([]string{file}, args[2:]...))
		return
	}
	var cmds []string
	script := strings.Builder{}
	for _, line := range shell.SplitLines(content) {
		trimmed := strings.TrimSpace(line)
		switch {
		case trimmed == "", strings.HasPrefix(trimmed, "#"):
		case isAssignment(trimmed):
			script.WriteString(trimmed)
			script.WriteByte('\n')
		case structural(trimmed):
			// if/fi blocks around sourcing ~/.bashrc are skipped.
		default:
			cmds = append(cmds, trimmed)
		}
	}
	s.Env.Source(script.String())
	for _, c := range cmds {
		s.Exec(c)
	}
}

func isAssignment(line string) bool {
	line = strings.TrimPrefix(line, "export ")
	_, _, ok := env.ParseAssignment(line)
	return ok
}

func structural(line string) bool {
	first := strings.Fields(line)[0]
	switch first {
	case "if", "then", "else", "elif", "fi", "for", "do", "done", "while", "case", "esac", ".", "source", "alias", "umask", "ulimit":
		return true
	}
	return strings.HasPrefix(first, "[")
}
