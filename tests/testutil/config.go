package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/systmms/apikeyper/internal/config"
)

// NewTestSettings returns settings for an isolated store: a sqlite file in
// t.TempDir() and the in-memory backend, so tests never touch the real
// keyring or the user's database.
func NewTestSettings(t *testing.T) *config.Settings {
	t.Helper()

	s := config.DefaultSettings()
	s.Database.Path = filepath.Join(t.TempDir(), config.DefaultDBFileName)
	s.Backend.Type = "memory"
	return s
}

// WriteTestConfig writes yamlContent to a config file in a temp dir and
// returns its path.
func WriteTestConfig(t *testing.T, yamlContent string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yamlContent), 0600))
	return path
}
