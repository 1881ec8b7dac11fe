package serve

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCommand_RegistersExpectedFlags(t *testing.T) {
	cmd := Command()
	require.Equal(t, "serve", cmd.Name)

	names := make(map[string]bool)
	for _, f := range cmd.Flags {
		for _, n := range f.Names() {
			names[n] = true
		}
	}
	for _, want := range []string{"db-path", "openrouter-api-key", "default-max-results", "backup-interval-hours"} {
		require.Truef(t, names[want], "expected flag %q to be registered", want)
	}
}
