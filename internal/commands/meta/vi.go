package meta

import (
	"path"
	"strings"

	"orasim/internal/logging"
	"orasim/internal/modal"
	"orasim/internal/shell"
)

// editor is a line-mode vi: every line typed is appended to the buffer and
// lines starting with ':' are ex commands.
type editor struct {
	s        *shell.Session
	name     string
	lines    []string
	modified bool
	frame    *modal.Frame
}

func cmdVi(s *shell.Session, args []string) {
	e := &editor{s: s}
	if len(args) > 1 {
		e.name = args[1]
		p := s.FS.Abs(e.name)
		switch {
		case s.FS.IsDirectory(p):
			s.Printf("%q is a directory", e.name)
			return
		case s.FS.IsFile(p):
			content, _ := s.FS.ReadFile(p)
			e.lines = shell.SplitLines(content)
			s.Printf("%q %dL, %dB", e.name, len(e.lines), len(content))
		default:
			s.Printf("%q [New]", e.name)
		}
	}
	e.frame = &modal.Frame{
		Name:      "vi",
		Prompt:    func() string { return "-- INSERT -- " },
		Handle:    e.handle,
		NoHistory: true,
	}
	s.Modal.Push(e.frame)
	logging.FSDebug("vi %s (%d lines)", e.name, len(e.lines))

	in, ok := s.Stdin()
	if !ok {
		return
	}
	s.Println("Vim: Warning: Input is not from a terminal")
	for _, line := range in {
		if s.Modal.Top() != e.frame {
			return
		}
		e.handle(line)
	}
	e.quit()
}

func (e *editor) handle(line string) {
	cmd, ok := strings.CutPrefix(line, ":")
	if !ok {
		e.lines = append(e.lines, line)
		e.modified = true
		return
	}
	cmd = strings.TrimSpace(cmd)
	verb, arg, _ := strings.Cut(cmd, " ")
	arg = strings.TrimSpace(arg)
	switch verb {
	case "w", "w!":
		e.write(arg)
	case "wq", "wq!", "x", "x!":
		if e.write(arg) {
			e.quit()
		}
	case "q":
		if e.modified {
			e.s.Println("E37: No write since last change (add ! to override)")
			return
		}
		e.quit()
	case "q!":
		e.quit()
	case "%d":
		if len(e.lines) > 0 {
			e.lines = nil
			e.modified = true
			e.s.Println("--No lines in buffer--")
		}
	case "p", "%p", "%print":
		for i, l := range e.lines {
			e.s.Printf("%3d %s", i+1, l)
		}
	case "set", "syntax", "":
	default:
		e.s.Printf("E492: Not an editor command: %s", cmd)
	}
}

// write saves the buffer to name, or to the file being edited.
func (e *editor) write(name string) bool {
	s := e.s
	if name == "" {
		name = e.name
	}
	if name == "" {
		s.Println("E32: No file name")
		return false
	}
	p := s.FS.Abs(name)
	if !s.FS.IsDirectory(path.Dir(p)) || s.FS.IsDirectory(p) {
		s.Printf("%q E212: Can't open file for writing", name)
		return false
	}
	content := ""
	if len(e.lines) > 0 {
		content = strings.Join(e.lines, "\n") + "\n"
	}
	isNew := !s.FS.IsFile(p)
	s.FS.WriteFile(p, content)
	if e.name == "" {
		e.name = name
	}
	e.modified = false
	tag := ""
	if isNew {
		tag = " [New]"
	}
	s.Printf("%q%s %dL, %dB written", name, tag, len(e.lines), len(content))
	logging.FS("vi wrote %s (%d bytes)", p, len(content))
	return true
}

func (e *editor) quit() {
	if e.s.Modal.Top() == e.frame {
		e.s.Modal.Pop()
	}
}
