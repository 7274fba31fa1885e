package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "autotrade", cmd.Use)
	assert.NotNil(t, cmd.RunE)
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	for _, name := range []string{"run", "sessions", "notify-test", "history", "setup"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			assert.Equal(t, name, sub.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	tests := []struct {
		name      string
		shorthand string
		def       string
	}{
		{name: "config", shorthand: "c", def: "config.yaml"},
		{name: "cookies", shorthand: "d", def: ""},
		{name: "no-cookies", shorthand: "n", def: "false"},
		{name: "no-login-check", shorthand: "l", def: "false"},
		{name: "force-login", shorthand: "f", def: "false"},
		{name: "refresh-period", shorthand: "r", def: "0s"},
		{name: "debug", def: "false"},
		{name: "env-file", def: ".env"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := cmd.PersistentFlags().Lookup(tt.name)
			require.NotNil(t, f)
			assert.Equal(t, tt.shorthand, f.Shorthand)
			assert.Equal(t, tt.def, f.DefValue)
		})
	}
}

func TestContradictoryFlagsAreRejected(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetArgs([]string{"history", "--force-login", "--no-login-check"})
	cmd.SetOut(&bytes.Buffer{})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mutually exclusive")
}
