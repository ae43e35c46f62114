package commands

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"orasim/internal/commands/meta"
)

func TestCatalogedCommandsAreRegistered(t *testing.T) {
	r := NewRegistry()
	for _, info := range meta.Catalog {
		for _, name := range append([]string{info.Name}, info.Aliases...) {
			_, ok := r.Lookup(name)
			assert.True(t, ok, "%s is documented but not registered", name)
		}
	}
}

func TestRegistryLookup(t *testing.T) {
	r := NewRegistry()
	for _, name := range []string{"sqlplus", "rman", "lsnrctl", "runInstaller", "ocp", "vi", "ls"} {
		_, ok := r.Lookup(name)
		assert.True(t, ok, name)
	}
	_, ok := r.Lookup("nosuchcommand")
	assert.False(t, ok)
}
