// Package meta holds the commands that belong to the simulator rather than
// to the simulated host: the command reference, the progress tracker, the
// line editor, reboot and the game.
package meta

import (
	"strings"

	"orasim/internal/logging"
	"orasim/internal/shell"
)

const kernelRelease = "5.14.0-427.13.1.el9_4.x86_64"

// Table returns the meta commands.
func Table() shell.Table {
	return shell.Table{
		"help":        cmdHelp,
		"oracle-help": cmdOracleHelp,
		"ocp":         cmdOcp,
		"vi":          cmdVi,
		"vim":         cmdVi,
		"reboot":      cmdReboot,
		"tictactoe":   cmdTictactoe,
	}
}

// Register adds the meta table to r.
func Register(r *shell.Registry) {
	r.RegisterTable(Table())
}

func cmdHelp(s *shell.Session, args []string) {
	if len(args) > 1 {
		info := Find(args[1])
		if info == nil {
			s.Errorf("-bash: help: no help topics match `%s'.  Try `help help' or `man -k %s' or `info %s'.", args[1], args[1], args[1])
			return
		}
		printCommand(s, info)
		return
	}
	s.Println("Simulated RHEL 9 host with Oracle Database 19c.")
	s.Println("Type 'help <command>' for usage and 'ocp' to see your progress.")
	for c := CategoryFiles; c <= CategoryTraining; c++ {
		s.Println("")
		s.Println(c.String() + ":")
		for _, info := range ByCategory(c) {
			printRow(s, info)
		}
	}
	var other []string
	for _, name := range s.Registry.Names() {
		if !documented(name) {
			other = append(other, name)
		}
	}
	if len(other) > 0 {
		s.Println("")
		s.Println("Other commands:")
		s.Println("  " + strings.Join(other, " "))
	}
}

func printRow(s *shell.Session, info CommandInfo) {
	name := info.Name
	if len(info.Aliases) > 0 {
		name += ", " + strings.Join(info.Aliases, ", ")
	}
	s.Printf("  %-20s %s", name, info.Description)
}

func printCommand(s *shell.Session, info *CommandInfo) {
	s.Printf("%s: %s", info.Name, info.Usage)
	s.Printf("    %s.", info.Description)
	if len(info.Aliases) > 0 {
		s.Printf("    See also: %s", strings.Join(info.Aliases, ", "))
	}
}

func cmdOracleHelp(s *shell.Session, args []string) {
	if len(args) > 1 {
		if info := Find(args[1]); info != nil && info.Category == CategoryOracle {
			printCommand(s, info)
			return
		}
		s.Errorf("oracle-help: %s is not an Oracle tool", args[1])
		return
	}
	s.Println("Oracle Database 19c tools (in $ORACLE_HOME/bin once the software is installed):")
	for _, info := range ByCategory(CategoryOracle) {
		printRow(s, info)
	}
	s.Println("")
	s.Println("Installation path:")
	p := s.Oracle.CalculateProgress(s.FS)
	for i, t := range p.Tasks {
		s.Printf("  %2d. %s", i+1, t.Label)
	}
	s.Println("")
	s.Println("Run 'ocp --hint-detail' for the commands of the next step.")
}

func cmdReboot(s *shell.Session, _ []string) {
	if s.Env.User() != "root" {
		s.Error("Failed to set wall message, ignoring: Interactive authentication required.")
		s.Error("Failed to reboot system via logind: Interactive authentication required.")
		s.Error("Failed to start reboot.target: Interactive authentication required.")
		s.Error("See system logs and 'systemctl status reboot.target' for details.")
		return
	}
	now := s.Clock()
	s.Println("")
	s.Printf("Broadcast message from root@%s on pts/0 (%s):", s.FS.Hostname(), now.Format("Mon 2006-01-02 15:04:05 MST"))
	s.Println("")
	s.Println("The system will reboot now!")
	s.Println("")
	logging.Boot("reboot requested in session %s", s.ID)
	s.Reboot()
	s.ClearScreen()
	s.Println("")
	s.Println("Red Hat Enterprise Linux 9.4 (Plow)")
	s.Printf("Kernel %s on an x86_64", kernelRelease)
	s.Println("")
	s.Printf("Last login: %s from 10.0.2.2", now.Format("Mon Jan _2 15:04:05 2006"))
}

// bar renders a fixed-width progress bar.
func bar(pct, width int) string {
	filled := pct * width / 100
	return "[" + strings.Repeat("#", filled) + strings.Repeat("-", width-filled) + "]"
}

func cmdOcp(s *shell.Session, args []string) {
	fs := shell.NewFlags("ocp")
	hint := fs.Bool("hint", false, "show the next step")
	detail := fs.Bool("hint-detail", false, "show the next step with its commands")
	if _, ok := s.ParseFlags(fs, args); !ok {
		return
	}
	if *hint || *detail {
		printHint(s, *detail)
		return
	}
	p := s.Oracle.CalculateProgress(s.FS)
	s.Printf("Oracle Database 19c installation: %d of %d checkpoints complete", p.Completed, p.Total)
	s.Printf("%s %d%%", bar(p.Percentage, 40), p.Percentage)
	s.Println("")
	for _, t := range p.Tasks {
		mark := " "
		if t.Done {
			mark = "x"
		}
		s.Printf("  [%s] %s", mark, t.Label)
	}
	if p.Completed < p.Total {
		s.Println("")
		s.Println("Run 'ocp --hint' for the next step.")
	}
}

func printHint(s *shell.Session, detail bool) {
	h := s.Oracle.NextTask(s.FS)
	if h == nil {
		s.Println("All checkpoints are complete. The installation is finished.")
		return
	}
	s.Printf("Next step: %s", h.Label)
	s.Printf("  %s", h.Description)
	if !detail {
		s.Println("Run 'ocp --hint-detail' to see the commands.")
		return
	}
	s.Println("")
	s.Println("Commands:")
	for _, c := range h.Commands {
		s.Printf("  $ %s", c)
	}
}
