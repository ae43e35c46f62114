package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"orasim/internal/logging"
)

var (
	progressMarkdown bool
	progressHint     bool
	resetAll         bool
)

var progressCmd = &cobra.Command{
	Use:   "progress",
	Short: "Show the installation checkpoints of the local host",
	RunE:  runProgress,
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reboot the local host, discarding Oracle state and history",
	Long: `Reboots the local host: the Oracle state and the command history are
discarded and the filesystem is kept, exactly like 'reboot' inside the shell.
With --all the filesystem is reset to a fresh install as well.`,
	RunE: runReset,
}

func init() {
	progressCmd.Flags().BoolVar(&progressMarkdown, "markdown", false, "Render the checkpoint table as markdown")
	progressCmd.Flags().BoolVar(&progressHint, "hint", false, "Show the commands for the next step")
	resetCmd.Flags().BoolVar(&resetAll, "all", false, "Also reset the filesystem")
}

func runProgress(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	h, err := openHost(&lineWriter{out: out})
	if err != nil {
		return err
	}
	defer h.Close()
	s := h.session

	if !progressMarkdown {
		if progressHint {
			s.Exec("ocp --hint-detail")
		} else {
			s.Exec("ocp")
		}
		return nil
	}

	md := s.Oracle.CalculateProgress(s.FS).Markdown()
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(terminalWidth()),
	)
	if err != nil {
		logging.Get(logging.CategoryBoot).Warn("markdown renderer unavailable: %v", err)
		fmt.Fprint(out, md)
		return nil
	}
	rendered, err := r.Render(md)
	if err != nil {
		return fmt.Errorf("failed to render progress: %w", err)
	}
	fmt.Fprint(out, rendered)
	return nil
}

func terminalWidth() int {
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		return w
	}
	return 80
}

func runReset(cmd *cobra.Command, args []string) error {
	h, err := openHost(nil)
	if err != nil {
		return err
	}
	defer h.Close()

	out := cmd.OutOrStdout()
	if resetAll {
		h.session.ResetAll()
		fmt.Fprintln(out, "Host reset: filesystem, Oracle state and history discarded.")
		return nil
	}
	h.session.Reboot()
	fmt.Fprintln(out, "Host rebooted: Oracle state and history discarded, files kept.")
	return nil
}
