package testutil

import (
	"os"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// AssertNoSecretLeak verifies that none of the given secrets appear in output.
//
// Example usage:
//
//	data, _ := os.ReadFile(exportPath)
//	AssertNoSecretLeak(t, string(data), []string{"sk-live-123", "ghp_abc"})
func AssertNoSecretLeak(t *testing.T, output string, secrets []string) {
	t.Helper()

	for _, secret := range secrets {
		if secret == "" {
			continue
		}
		assert.NotContains(t, output, secret, "Secret %q leaked into output", secret)
	}
}

// AssertFileContainsAll verifies that a file contains every substring.
func AssertFileContainsAll(t *testing.T, path string, substrings []string) {
	t.Helper()

	data, err := os.ReadFile(path)
	require.NoError(t, err, "Failed to read file %s", path)

	content := string(data)
	for _, substr := range substrings {
		assert.Contains(t, content, substr, "File %s should contain %q", path, substr)
	}
}

// AssertFileMode verifies the permission bits of a file. Skipped on
// Windows, where Unix permission bits are not meaningful.
func AssertFileMode(t *testing.T, path string, want os.FileMode) {
	t.Helper()

	if runtime.GOOS == "windows" {
		return
	}
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, want, info.Mode().Perm(), "unexpected mode for %s", path)
}
