package fakes

import (
	"context"
	"net/http"
	"net/url"
	"sync"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azsecrets"
)

// FakeAzureKeyVaultClient is an in-memory Key Vault with soft delete.
type FakeAzureKeyVaultClient struct {
	mu sync.Mutex

	Secrets map[string]string
	Tags    map[string]map[string]*string
	// SoftDeleted holds names deleted but not yet purged
	SoftDeleted map[string]bool
	// PurgeProtected makes PurgeDeletedSecret fail
	PurgeProtected bool
	// StatusCode, when non-zero, fails every call with that HTTP status
	StatusCode int
}

func NewFakeAzureKeyVaultClient() *FakeAzureKeyVaultClient {
	return &FakeAzureKeyVaultClient{
		Secrets:     make(map[string]string),
		Tags:        make(map[string]map[string]*string),
		SoftDeleted: make(map[string]bool),
	}
}

// AzureResponseError builds the error the SDK returns for an HTTP status.
func AzureResponseError(statusCode int, code string) error {
	req := &http.Request{Method: http.MethodGet, URL: &url.URL{Scheme: "https", Host: "fake.vault.azure.net", Path: "/secrets"}}
	return &azcore.ResponseError{
		ErrorCode:   code,
		StatusCode:  statusCode,
		RawResponse: &http.Response{StatusCode: statusCode, Status: http.StatusText(statusCode), Request: req, Body: http.NoBody},
	}
}

func (f *FakeAzureKeyVaultClient) failure() error {
	if f.StatusCode == 0 {
		return nil
	}
	return AzureResponseError(f.StatusCode, http.StatusText(f.StatusCode))
}

func (f *FakeAzureKeyVaultClient) GetSecret(ctx context.Context, name string, version string, options *azsecrets.GetSecretOptions) (azsecrets.GetSecretResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.failure(); err != nil {
		return azsecrets.GetSecretResponse{}, err
	}
	value, ok := f.Secrets[name]
	if !ok {
		return azsecrets.GetSecretResponse{}, AzureResponseError(http.StatusNotFound, "SecretNotFound")
	}
	v := value
	return azsecrets.GetSecretResponse{Secret: azsecrets.Secret{Value: &v}}, nil
}

func (f *FakeAzureKeyVaultClient) SetSecret(ctx context.Context, name string, parameters azsecrets.SetSecretParameters, options *azsecrets.SetSecretOptions) (azsecrets.SetSecretResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.failure(); err != nil {
		return azsecrets.SetSecretResponse{}, err
	}
	if f.SoftDeleted[name] {
		return azsecrets.SetSecretResponse{}, AzureResponseError(http.StatusConflict, "Conflict")
	}
	f.Secrets[name] = *parameters.Value
	f.Tags[name] = parameters.Tags
	return azsecrets.SetSecretResponse{}, nil
}

func (f *FakeAzureKeyVaultClient) DeleteSecret(ctx context.Context, name string, options *azsecrets.DeleteSecretOptions) (azsecrets.DeleteSecretResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.failure(); err != nil {
		return azsecrets.DeleteSecretResponse{}, err
	}
	if _, ok := f.Secrets[name]; !ok {
		return azsecrets.DeleteSecretResponse{}, AzureResponseError(http.StatusNotFound, "SecretNotFound")
	}
	delete(f.Secrets, name)
	f.SoftDeleted[name] = true
	return azsecrets.DeleteSecretResponse{}, nil
}

func (f *FakeAzureKeyVaultClient) PurgeDeletedSecret(ctx context.Context, name string, options *azsecrets.PurgeDeletedSecretOptions) (azsecrets.PurgeDeletedSecretResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.PurgeProtected {
		return azsecrets.PurgeDeletedSecretResponse{}, AzureResponseError(http.StatusForbidden, "ForbiddenByPolicy")
	}
	delete(f.SoftDeleted, name)
	return azsecrets.PurgeDeletedSecretResponse{}, nil
}
