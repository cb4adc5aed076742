package backends

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azsecrets"

	"github.com/systmms/apikeyper/pkg/backend"
)

// AzureKeyVaultBackendName is the configured type and reported name of the
// Azure backend.
const AzureKeyVaultBackendName = "azure-keyvault"

const azureProbeSecret = "apikeyper-probe"

// AzureKeyVaultClientAPI is the subset of *azsecrets.Client the backend uses.
type AzureKeyVaultClientAPI interface {
	GetSecret(ctx context.Context, name string, version string, options *azsecrets.GetSecretOptions) (azsecrets.GetSecretResponse, error)
	SetSecret(ctx context.Context, name string, parameters azsecrets.SetSecretParameters, options *azsecrets.SetSecretOptions) (azsecrets.SetSecretResponse, error)
	DeleteSecret(ctx context.Context, name string, options *azsecrets.DeleteSecretOptions) (azsecrets.DeleteSecretResponse, error)
	PurgeDeletedSecret(ctx context.Context, name string, options *azsecrets.PurgeDeletedSecretOptions) (azsecrets.PurgeDeletedSecretResponse, error)
}

// AzureOptions holds connection settings for Key Vault.
type AzureOptions struct {
	VaultURL string
	Prefix   string
}

// AzureKeyVaultBackend stores each key-id as a Key Vault secret.
type AzureKeyVaultBackend struct {
	client AzureKeyVaultClientAPI
	prefix string
}

// AzureOption is a functional option for configuring the Azure backend
type AzureOption func(*AzureKeyVaultBackend)

// WithAzureKeyVaultClient sets a custom Key Vault client (for testing)
func WithAzureKeyVaultClient(client AzureKeyVaultClientAPI) AzureOption {
	return func(b *AzureKeyVaultBackend) {
		b.client = client
	}
}

// NewAzureKeyVaultBackend authenticates with the default Azure credential
// chain (environment, managed identity, Azure CLI) unless a client was
// injected.
func NewAzureKeyVaultBackend(opts AzureOptions, options ...AzureOption) (*AzureKeyVaultBackend, error) {
	b := &AzureKeyVaultBackend{prefix: opts.Prefix}
	for _, opt := range options {
		opt(b)
	}
	if b.client != nil {
		return b, nil
	}

	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, &backend.UnavailableError{
			Backend: AzureKeyVaultBackendName,
			Reason:  "no Azure credentials available",
			Err:     err,
		}
	}

	client, err := azsecrets.NewClient(opts.VaultURL, cred, nil)
	if err != nil {
		return nil, &backend.UnavailableError{
			Backend: AzureKeyVaultBackendName,
			Reason:  "failed to create Key Vault client",
			Err:     err,
		}
	}
	b.client = client
	return b, nil
}

func (b *AzureKeyVaultBackend) Name() string {
	return AzureKeyVaultBackendName
}

// SecretName maps a key-id to a Key Vault secret name, which allows only
// letters, digits and '-'.
func (b *AzureKeyVaultBackend) SecretName(keyID string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-':
			return r
		default:
			return '-'
		}
	}, b.prefix+keyID)
}

func (b *AzureKeyVaultBackend) Store(ctx context.Context, keyID, value string) error {
	_, err := b.client.SetSecret(ctx, b.SecretName(keyID), azsecrets.SetSecretParameters{
		Value:       to.Ptr(value),
		ContentType: to.Ptr("text/plain"),
		Tags:        map[string]*string{"managed-by": to.Ptr("apikeyper")},
	}, nil)
	if err != nil {
		return b.opError("store", keyID, err)
	}
	return nil
}

func (b *AzureKeyVaultBackend) Retrieve(ctx context.Context, keyID string) (string, bool, error) {
	resp, err := b.client.GetSecret(ctx, b.SecretName(keyID), "", nil)
	if isAzureNotFound(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, b.opError("retrieve", keyID, err)
	}
	if resp.Value == nil {
		return "", true, nil
	}
	return *resp.Value, true, nil
}

// Delete soft-deletes the secret and then tries to purge it so the name
// can be reused. Vaults with purge protection keep the name reserved until
// the retention period ends, so a purge failure is not an error.
func (b *AzureKeyVaultBackend) Delete(ctx context.Context, keyID string) error {
	name := b.SecretName(keyID)
	_, err := b.client.DeleteSecret(ctx, name, nil)
	if isAzureNotFound(err) {
		return nil
	}
	if err != nil {
		return b.opError("delete", keyID, err)
	}
	_, _ = b.client.PurgeDeletedSecret(ctx, name, nil)
	return nil
}

// Validate reads a probe secret. A 404 proves the vault is reachable and
// the caller is authorized.
func (b *AzureKeyVaultBackend) Validate(ctx context.Context) error {
	_, err := b.client.GetSecret(ctx, azureProbeSecret, "", nil)
	if err == nil || isAzureNotFound(err) {
		return nil
	}
	reason := "Key Vault is not reachable"
	if code := azureStatusCode(err); code == http.StatusUnauthorized || code == http.StatusForbidden {
		reason = "Azure authentication/authorization failed"
	}
	return &backend.UnavailableError{Backend: AzureKeyVaultBackendName, Reason: reason, Err: err}
}

func (b *AzureKeyVaultBackend) opError(op, keyID string, err error) error {
	return &backend.OperationError{Backend: AzureKeyVaultBackendName, Op: op, KeyID: keyID, Err: err}
}

func azureStatusCode(err error) int {
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		return respErr.StatusCode
	}
	return 0
}

func isAzureNotFound(err error) bool {
	if err == nil {
		return false
	}
	return azureStatusCode(err) == http.StatusNotFound || strings.Contains(err.Error(), "SecretNotFound")
}
