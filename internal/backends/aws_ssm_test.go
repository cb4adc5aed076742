package backends_test

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/systmms/apikeyper/internal/backends"
	"github.com/systmms/apikeyper/pkg/backend"
	"github.com/systmms/apikeyper/tests/fakes"
	"github.com/systmms/apikeyper/tests/testutil"
)

func newFakeSSMBackend(t *testing.T, prefix string) (*backends.AWSSSMBackend, *fakes.FakeSSMClient) {
	t.Helper()

	fake := fakes.NewFakeSSMClient()
	b, err := backends.NewAWSSSMBackend(context.Background(),
		backends.AWSOptions{Prefix: prefix},
		backends.WithSSMClient(fake))
	require.NoError(t, err)
	return b, fake
}

func TestAWSSSMBackend_Contract(t *testing.T) {
	t.Parallel()

	b, _ := newFakeSSMBackend(t, "")
	testutil.RunBackendContractTests(t, testutil.BackendTestCase{
		Name:    "aws-ssm",
		Backend: b,
	})
}

func TestAWSSSMBackend_ParameterName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		prefix string
		want   string
	}{
		{"", "/apikeyper/cb1c6d7073fabd8a"},
		{"team", "/team/apikeyper/cb1c6d7073fabd8a"},
		{"/team/dev/", "/team/dev/apikeyper/cb1c6d7073fabd8a"},
	}
	for _, tt := range tests {
		b, _ := newFakeSSMBackend(t, tt.prefix)
		assert.Equal(t, tt.want, b.ParameterName("apikeyper:cb1c6d7073fabd8a"), "prefix %q", tt.prefix)
	}
}

func TestAWSSSMBackend_StoresSecureString(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	b, fake := newFakeSSMBackend(t, "")

	require.NoError(t, b.Store(ctx, "apikeyper:1", "first"))
	require.NoError(t, b.Store(ctx, "apikeyper:1", "second"))

	assert.Equal(t, "second", fake.Parameters["/apikeyper/1"])
	assert.Equal(t, types.ParameterTypeSecureString, fake.Types["/apikeyper/1"])
}

func TestAWSSSMBackend_Errors(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	b, fake := newFakeSSMBackend(t, "")

	fake.Errors["/apikeyper/x"] = errors.New("AccessDeniedException: not allowed")

	_, _, err := b.Retrieve(ctx, "apikeyper:x")
	var opErr *backend.OperationError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, "retrieve", opErr.Op)
	assert.Contains(t, err.Error(), "authentication/authorization failed")

	require.Error(t, b.Store(ctx, "apikeyper:x", "v"))
	require.Error(t, b.Delete(ctx, "apikeyper:x"))

	require.NoError(t, b.Delete(ctx, "apikeyper:never-stored"))
}

func TestAWSSSMBackend_Validate(t *testing.T) {
	t.Parallel()
	b, fake := newFakeSSMBackend(t, "")

	require.NoError(t, b.Validate(context.Background()))

	fake.DescribeErr = errors.New("UnauthorizedOperation")
	err := b.Validate(context.Background())
	require.Error(t, err)
	assert.True(t, backend.IsUnavailable(err))
	assert.Contains(t, err.Error(), "authentication")
}
