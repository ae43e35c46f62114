// Command orasim runs the RHEL 9 / Oracle Database 19c training host.
//
// With no arguments it opens the full-screen console when attached to a
// terminal and falls back to the line-mode shell otherwise.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"orasim/cmd/orasim/console"
	"orasim/internal/config"
	"orasim/internal/logging"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

var (
	// Global flags
	configPath string
	workspace  string
	storeFlag  string
	verbose    bool

	// cfg is loaded by the root PersistentPreRunE.
	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "orasim",
	Short: "Practice an Oracle Database 19c install on a simulated RHEL 9 host",
	Long: `orasim simulates a RHEL 9 server as a shell: a virtual filesystem,
accounts, packages, services and the Oracle 19c tooling (runInstaller, netca,
dbca, sqlplus, rman, lsnrctl and friends).

Nothing touches the real machine. State is kept in a small database in the
workspace, so the host survives restarts until you reset it.

Run 'ocp' inside the shell to see which installation checkpoints are done.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return loadConfig()
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Sync()
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd())) {
			return runConsole()
		}
		return runShell(cmd.InOrStdin(), cmd.OutOrStdout())
	},
}

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Open the full-screen console",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runConsole()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the orasim version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "orasim %s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default: <workspace>/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "Workspace directory (default: ~/.orasim)")
	rootCmd.PersistentFlags().StringVar(&storeFlag, "store", "", "Store driver override: sqlite or memory")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging to the workspace log file")

	rootCmd.AddCommand(tuiCmd)
	rootCmd.AddCommand(shellCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(progressCmd)
	rootCmd.AddCommand(resetCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig reads the config file and applies flag overrides on top.
func loadConfig() error {
	path := configPath
	if path == "" {
		if workspace != "" {
			path = filepath.Join(workspace, "config.yaml")
		} else {
			path = config.DefaultPath()
		}
	}
	configPath = path

	loaded, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if workspace != "" {
		loaded.Workspace = workspace
	}
	if storeFlag != "" {
		loaded.Store.Driver = storeFlag
	}
	if verbose {
		loaded.Logging.DebugMode = true
		loaded.Logging.Level = "debug"
	}
	if err := loaded.Validate(); err != nil {
		return err
	}
	if loaded.Logging.DebugMode && loaded.Logging.File == "" {
		loaded.Logging.File = loaded.LogFile()
	}
	if err := logging.Initialize(loaded.Logging); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	cfg = loaded
	logging.Boot("config loaded from %s (workspace %s)", path, cfg.Workspace)
	return nil
}

func runConsole() error {
	h, err := openHost(nil)
	if err != nil {
		return err
	}
	defer h.Close()
	return console.Run(h.session)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
