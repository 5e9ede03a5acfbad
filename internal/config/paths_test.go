package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigDir(t *testing.T) {
	home := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", home)

	dir, err := ConfigDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, AppName), dir)

	assert.Equal(t, filepath.Join(home, AppName, StateFileName), DefaultStatePath())
	assert.Equal(t, filepath.Join(home, AppName, "logs", LogFileName), DefaultLogPath())
}

func TestEnsureParentDir(t *testing.T) {
	target := filepath.Join(t.TempDir(), "a", "b", "state.json")

	require.NoError(t, EnsureParentDir(target))

	info, err := os.Stat(filepath.Dir(target))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.False(t, FileExists(target))

	require.NoError(t, os.WriteFile(target, []byte("{}"), 0600))
	assert.True(t, FileExists(target))
}
