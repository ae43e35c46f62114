package system

import (
	"orasim/internal/diff"
	"orasim/internal/shell"
)

// cmdDiff compares two files. Like GNU diff it fails when they differ so
// "diff a b && echo same" behaves.
func cmdDiff(s *shell.Session, args []string) {
	fs := shell.NewFlags("diff")
	unified := fs.BoolP("unified", "u", false, "")
	brief := fs.BoolP("brief", "q", false, "")
	files, ok := s.ParseFlags(fs, args)
	if !ok {
		return
	}
	switch {
	case len(files) < 2:
		s.Errorf("diff: missing operand after '%s'", lastOr(files, "diff"))
		s.Error("diff: Try 'diff --help' for more information.")
		return
	case len(files) > 2:
		s.Errorf("diff: extra operand '%s'", files[2])
		s.Error("diff: Try 'diff --help' for more information.")
		return
	}

	var sides [2]diff.File
	for i, name := range files {
		f, ok := readSide(s, name)
		if !ok {
			return
		}
		sides[i] = f
	}
	if diff.Equal(sides[0].Lines, sides[1].Lines) {
		return
	}
	s.Fail()

	switch {
	case *brief:
		s.Printf("Files %s and %s differ", files[0], files[1])
	case *unified:
		lines, err := diff.Unified(sides[0], sides[1], diff.DefaultContext)
		if err != nil {
			s.Errorf("diff: %v", err)
			return
		}
		s.Print(lines...)
	default:
		s.Print(diff.Normal(sides[0].Lines, sides[1].Lines)...)
	}
}

// readSide loads one operand; "-" is standard input.
func readSide(s *shell.Session, name string) (diff.File, bool) {
	if name == "-" {
		in, _ := s.Stdin()
		return diff.File{Name: name, Modified: s.Clock(), Lines: in}, true
	}
	p := s.FS.Abs(name)
	node := s.FS.Lookup(p)
	switch {
	case node == nil:
		s.Errorf("diff: %s: No such file or directory", name)
		return diff.File{}, false
	case node.IsDir():
		s.Errorf("diff: %s: Is a directory", name)
		return diff.File{}, false
	}
	return diff.File{Name: name, Modified: node.Modified, Lines: shell.SplitLines(node.Content)}, true
}

func lastOr(list []string, fallback string) string {
	if len(list) == 0 {
		return fallback
	}
	return list[len(list)-1]
}
