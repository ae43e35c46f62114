// Package commands assembles the command registry every front-end uses.
package commands

import (
	"orasim/internal/commands/meta"
	"orasim/internal/commands/oracle"
	"orasim/internal/commands/system"
	"orasim/internal/shell"
)

// NewRegistry returns a registry holding the system, Oracle and meta
// commands.
func NewRegistry() *shell.Registry {
	r := shell.NewRegistry()
	system.Register(r)
	oracle.Register(r)
	meta.Register(r)
	return r
}
