package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"orasim/internal/logging"
	"orasim/internal/shell"
)

var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Run the host as a line-mode shell on this terminal",
	Long: `Runs the simulated host with readline editing: arrow keys walk the
command history, Tab completes command names and password prompts are not
echoed. Input may also be piped in, one command per line.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runShell(cmd.InOrStdin(), cmd.OutOrStdout())
	},
}

// lineWriter prints session output through readline so the prompt is
// redrawn correctly.
type lineWriter struct {
	out io.Writer
}

func (w *lineWriter) WriteLine(text string) { fmt.Fprintln(w.out, text) }

func (w *lineWriter) Clear() { fmt.Fprint(w.out, "\x1b[H\x1b[2J") }

func isTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// runShell reads lines until the user logs out or input ends.
func runShell(in io.Reader, out io.Writer) error {
	w := &lineWriter{out: out}
	h, err := openHost(w)
	if err != nil {
		return err
	}
	defer h.Close()
	s := h.session

	tty := isTerminal(in)
	rl, err := readline.NewEx(&readline.Config{
		Prompt:                 s.Prompt(),
		AutoComplete:           readline.NewPrefixCompleter(readline.PcItemDynamic(commandNames(s))),
		InterruptPrompt:        "^C",
		DisableAutoSaveHistory: true,
		Stdin:                  io.NopCloser(in),
		Stdout:                 out,
		Stderr:                 out,
		FuncIsTerminal:         func() bool { return tty },
	})
	if err != nil {
		return fmt.Errorf("failed to start line editor: %w", err)
	}
	defer rl.Close()
	w.out = rl.Stdout()

	for _, line := range s.History.Lines() {
		rl.SaveHistory(line)
	}
	logging.Boot("line-mode shell started (tty=%v)", tty)

	for !s.Done() {
		masked := s.Masked()
		var line string
		if masked && tty {
			var pw []byte
			pw, err = rl.ReadPassword(s.Prompt())
			line = string(pw)
		} else {
			rl.SetPrompt(s.Prompt())
			line, err = rl.Readline()
		}
		switch {
		case errors.Is(err, readline.ErrInterrupt):
			continue
		case errors.Is(err, io.EOF):
			return nil
		case err != nil:
			return err
		}

		s.Submit(line)
		if !masked && strings.TrimSpace(line) != "" {
			rl.SaveHistory(line)
		}
	}
	return nil
}

// commandNames completes the first word against the registry.
func commandNames(s *shell.Session) func(string) []string {
	return func(string) []string {
		return s.Registry.Names()
	}
}
