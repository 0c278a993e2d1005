package cli

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/weft/internal/config"
	"github.com/roach88/weft/internal/engine"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "weft", cmd.Use)
	assert.Contains(t, cmd.Long, "operation logs")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	for _, name := range []string{"init", "edit", "import", "export", "replay", "frontier", "inspect", "test"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err, "command %s should exist", name)
			assert.Equal(t, name, sub.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	configFlag := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, configFlag)
	assert.Equal(t, "c", configFlag.Shorthand)
}

func TestInvalidFormat(t *testing.T) {
	_, err := execute(t, "replay", "--db", emptyDB(t), "--format", "yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid format "yaml"`)
}

func TestBadConfigIsCommandError(t *testing.T) {
	cfg := writeFile(t, filepath.Join(t.TempDir(), "weft.cue"), `log_level: "loud"`)
	_, err := execute(t, "replay", "--config", cfg, "--db", emptyDB(t))
	require.Error(t, err)
	assert.Equal(t, ExitUsage, ExitCode(err))
	assert.Contains(t, err.Error(), "failed to load config")
}

func TestDatabasePath(t *testing.T) {
	cfg := config.Default()
	assert.Equal(t, "weft.db", databasePath("", cfg))
	assert.Equal(t, "x.db", databasePath("x.db", cfg))
}

func TestClientIDs(t *testing.T) {
	cfg := config.Default()
	_, random := clientIDs(cfg).(engine.RandomClientIDs)
	assert.True(t, random)

	cfg.ClientID = 9
	assert.Equal(t, engine.StaticClientID(9), clientIDs(cfg))
}
