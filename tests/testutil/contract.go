// Package testutil provides testing utilities and helpers for apikeyper tests.
//
// This file implements the backend contract test framework that checks
// every backend.Backend variant behaves the same way for the operations the
// key manager relies on.
package testutil

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/systmms/apikeyper/pkg/backend"
)

// BackendTestCase defines a backend under test.
type BackendTestCase struct {
	// Name is a descriptive name for this test case (usually the backend name)
	Name string

	// Backend is the implementation to test. It should start empty.
	Backend backend.Backend

	// SkipConcurrency skips the concurrency test if true
	SkipConcurrency bool
}

// RunBackendContractTests runs all contract tests for a backend:
//   - Name() returns a consistent value
//   - Store then Retrieve round-trips the value
//   - Store overwrites
//   - Retrieve of a missing key-id is absent, not an error
//   - Delete removes and is idempotent
//   - Concurrent Store/Retrieve on distinct key-ids is safe
//
// Example usage:
//
//	testutil.RunBackendContractTests(t, testutil.BackendTestCase{
//	    Name:    "memory",
//	    Backend: backends.NewMemoryBackend(),
//	})
func RunBackendContractTests(t *testing.T, tc BackendTestCase) {
	t.Helper()

	require.NotNil(t, tc.Backend, "Backend cannot be nil")
	require.NotEmpty(t, tc.Name, "Test case name cannot be empty")

	t.Run("Name", func(t *testing.T) {
		testBackendName(t, tc)
	})
	t.Run("RoundTrip", func(t *testing.T) {
		testBackendRoundTrip(t, tc)
	})
	t.Run("Overwrite", func(t *testing.T) {
		testBackendOverwrite(t, tc)
	})
	t.Run("Missing", func(t *testing.T) {
		testBackendMissing(t, tc)
	})
	t.Run("Delete", func(t *testing.T) {
		testBackendDelete(t, tc)
	})
	if !tc.SkipConcurrency {
		t.Run("Concurrency", func(t *testing.T) {
			testBackendConcurrency(t, tc)
		})
	}
}

func contractContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func testBackendName(t *testing.T, tc BackendTestCase) {
	t.Helper()

	name := tc.Backend.Name()
	assert.NotEmpty(t, name)
	assert.Equal(t, name, tc.Backend.Name(), "Name() must return consistent value")
	assert.Regexp(t, `^[a-z][a-z0-9._-]*$`, name)
}

func testBackendRoundTrip(t *testing.T, tc BackendTestCase) {
	t.Helper()
	ctx := contractContext(t)

	values := map[string]string{
		"contract:roundtrip-plain":   "sk-test-123",
		"contract:roundtrip-unicode": "clé-🔑-値",
		"contract:roundtrip-spaces":  "  padded value  ",
	}
	for keyID, value := range values {
		require.NoError(t, tc.Backend.Store(ctx, keyID, value))

		got, found, err := tc.Backend.Retrieve(ctx, keyID)
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, value, got)

		require.NoError(t, tc.Backend.Delete(ctx, keyID))
	}
}

func testBackendOverwrite(t *testing.T, tc BackendTestCase) {
	t.Helper()
	ctx := contractContext(t)
	keyID := "contract:overwrite"

	require.NoError(t, tc.Backend.Store(ctx, keyID, "first"))
	require.NoError(t, tc.Backend.Store(ctx, keyID, "second"))

	got, found, err := tc.Backend.Retrieve(ctx, keyID)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "second", got)

	require.NoError(t, tc.Backend.Delete(ctx, keyID))
}

func testBackendMissing(t *testing.T, tc BackendTestCase) {
	t.Helper()
	ctx := contractContext(t)

	keyID := "contract:missing-" + time.Now().Format("20060102150405")
	got, found, err := tc.Backend.Retrieve(ctx, keyID)
	assert.NoError(t, err, "Retrieve() of a missing key-id must not fail")
	assert.False(t, found)
	assert.Empty(t, got)
}

func testBackendDelete(t *testing.T, tc BackendTestCase) {
	t.Helper()
	ctx := contractContext(t)
	keyID := "contract:delete"

	require.NoError(t, tc.Backend.Store(ctx, keyID, "to-delete"))
	require.NoError(t, tc.Backend.Delete(ctx, keyID))

	_, found, err := tc.Backend.Retrieve(ctx, keyID)
	require.NoError(t, err)
	assert.False(t, found)

	assert.NoError(t, tc.Backend.Delete(ctx, keyID), "Delete() of a missing key-id must succeed")
}

func testBackendConcurrency(t *testing.T, tc BackendTestCase) {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping concurrency test in short mode")
	}
	ctx := contractContext(t)

	const concurrency = 20
	var wg sync.WaitGroup
	errs := make(chan error, concurrency)

	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()

			keyID := fmt.Sprintf("contract:concurrent-%d", id)
			value := fmt.Sprintf("value-%d", id)
			if err := tc.Backend.Store(ctx, keyID, value); err != nil {
				errs <- fmt.Errorf("goroutine %d: Store failed: %w", id, err)
				return
			}
			got, found, err := tc.Backend.Retrieve(ctx, keyID)
			if err != nil || !found || got != value {
				errs <- fmt.Errorf("goroutine %d: Retrieve got (%q, %v, %v)", id, got, found, err)
				return
			}
			if err := tc.Backend.Delete(ctx, keyID); err != nil {
				errs <- fmt.Errorf("goroutine %d: Delete failed: %w", id, err)
			}
		}(i)
	}

	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}
}
