package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigPathReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("CONFIG_PATH=config/peer.yaml\n"), 0o600))
	chdir(t, dir)
	t.Setenv("CONFIG_PATH", "")
	require.NoError(t, os.Unsetenv("CONFIG_PATH"))

	assert.Equal(t, "config/peer.yaml", configPath(""))
	assert.Equal(t, "override.yaml", configPath("override.yaml"))
}

func TestConfigPathPrefersEnvironment(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("CONFIG_PATH=from-file.yaml\n"), 0o600))
	chdir(t, dir)
	t.Setenv("CONFIG_PATH", "from-env.yaml")

	assert.Equal(t, "from-env.yaml", configPath(""))
}

// chdir changes the working directory for the duration of the test
// (equivalent of testing.T.Chdir, which requires Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
}
