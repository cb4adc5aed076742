package backends_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systmms/apikeyper/internal/backends"
	"github.com/systmms/apikeyper/pkg/backend"
	"github.com/systmms/apikeyper/tests/fakes"
	"github.com/systmms/apikeyper/tests/testutil"
)

func newFakeAzureBackend(t *testing.T, prefix string) (*backends.AzureKeyVaultBackend, *fakes.FakeAzureKeyVaultClient) {
	t.Helper()

	fake := fakes.NewFakeAzureKeyVaultClient()
	b, err := backends.NewAzureKeyVaultBackend(
		backends.AzureOptions{VaultURL: "https://fake.vault.azure.net/", Prefix: prefix},
		backends.WithAzureKeyVaultClient(fake))
	require.NoError(t, err)
	return b, fake
}

func TestAzureKeyVaultBackend_Contract(t *testing.T) {
	t.Parallel()

	b, _ := newFakeAzureBackend(t, "")
	testutil.RunBackendContractTests(t, testutil.BackendTestCase{
		Name:    "azure-keyvault",
		Backend: b,
	})
}

func TestAzureKeyVaultBackend_SecretName(t *testing.T) {
	t.Parallel()

	b, _ := newFakeAzureBackend(t, "")
	assert.Equal(t, "apikeyper-cb1c6d7073fabd8a", b.SecretName("apikeyper:cb1c6d7073fabd8a"))
	assert.Equal(t, "my-ns-0011", b.SecretName("my_ns:0011"))

	b, _ = newFakeAzureBackend(t, "team-")
	assert.Equal(t, "team-apikeyper-1", b.SecretName("apikeyper:1"))
}

func TestAzureKeyVaultBackend_StoreTagsSecret(t *testing.T) {
	t.Parallel()
	b, fake := newFakeAzureBackend(t, "")

	require.NoError(t, b.Store(context.Background(), "apikeyper:1", "v"))
	require.Contains(t, fake.Tags, "apikeyper-1")
	assert.Equal(t, "apikeyper", *fake.Tags["apikeyper-1"]["managed-by"])
}

func TestAzureKeyVaultBackend_PurgeProtection(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	b, fake := newFakeAzureBackend(t, "")
	fake.PurgeProtected = true

	require.NoError(t, b.Store(ctx, "apikeyper:1", "v"))
	require.NoError(t, b.Delete(ctx, "apikeyper:1"), "a purge failure does not fail the delete")

	_, found, err := b.Retrieve(ctx, "apikeyper:1")
	require.NoError(t, err)
	assert.False(t, found)

	err = b.Store(ctx, "apikeyper:1", "again")
	var opErr *backend.OperationError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, "store", opErr.Op)
}

func TestAzureKeyVaultBackend_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		status  int
		wantErr string
	}{
		{"probe_not_found_is_ok", 0, ""},
		{"forbidden", http.StatusForbidden, "authentication/authorization failed"},
		{"unauthorized", http.StatusUnauthorized, "authentication/authorization failed"},
		{"server_error", http.StatusServiceUnavailable, "not reachable"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			b, fake := newFakeAzureBackend(t, "")
			fake.StatusCode = tt.status

			err := b.Validate(context.Background())
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, backend.IsUnavailable(err))
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestAzureKeyVaultBackend_OperationErrors(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	b, fake := newFakeAzureBackend(t, "")
	fake.StatusCode = http.StatusInternalServerError

	_, _, err := b.Retrieve(ctx, "apikeyper:1")
	assert.Error(t, err)
	assert.Error(t, b.Store(ctx, "apikeyper:1", "v"))
	assert.Error(t, b.Delete(ctx, "apikeyper:1"))
}
