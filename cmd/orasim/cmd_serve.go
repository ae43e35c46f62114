package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"orasim/internal/commands"
	"orasim/internal/store"
	"orasim/internal/web"
)

var listenAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the browser terminal",
	Long: `Starts an HTTP server with a browser terminal. Every browser gets its
own simulated host, kept in the workspace store under a session cookie.

The config file is watched while the server runs; logging changes apply
immediately and other changes apply to new sessions.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVarP(&listenAddr, "listen", "l", "", "Listen address (default from config: 127.0.0.1:8080)")
}

func runServe(cmd *cobra.Command, args []string) error {
	if listenAddr != "" {
		cfg.Web.Listen = listenAddr
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	bs, err := store.Open(cfg.Store.Driver, cfg.StorePath())
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer bs.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	watch := ""
	if _, err := os.Stat(filepath.Dir(configPath)); err == nil {
		watch = configPath
	}
	srv := web.New(web.Options{
		Config:     cfg,
		Store:      bs,
		Registry:   commands.NewRegistry(),
		ConfigPath: watch,
	})

	fmt.Fprintf(cmd.OutOrStdout(), "orasim: browser terminal on http://%s (Ctrl+C to stop)\n", cfg.Web.Listen)
	return srv.Run(ctx)
}
