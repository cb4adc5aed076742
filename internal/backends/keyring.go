package backends

import (
	"context"
	"errors"
	"strings"

	"github.com/systmms/apikeyper/internal/backends/contracts"
	"github.com/systmms/apikeyper/pkg/backend"
	"github.com/zalando/go-keyring"
)

const (
	// KeyringBackendName is the configured type and reported name of the OS keyring backend.
	KeyringBackendName = "keyring"

	probeAccount = "apikeyper-probe"
)

// systemKeyring talks to the platform credential store through go-keyring.
type systemKeyring struct{}

func (systemKeyring) Get(service, account string) (string, error) {
	return keyring.Get(service, account)
}

func (systemKeyring) Set(service, account, secret string) error {
	return keyring.Set(service, account, secret)
}

func (systemKeyring) Delete(service, account string) error {
	return keyring.Delete(service, account)
}

// KeyringBackend stores secrets in the OS credential store (macOS Keychain,
// Secret Service on Linux, Windows Credential Manager). Every entry lives
// under one service name with the key-id as the account.
type KeyringBackend struct {
	service string
	client  contracts.KeyringClient
}

// KeyringOption configures a KeyringBackend.
type KeyringOption func(*KeyringBackend)

// WithKeyringClient sets a custom keyring client (for testing)
func WithKeyringClient(client contracts.KeyringClient) KeyringOption {
	return func(kb *KeyringBackend) {
		kb.client = client
	}
}

// NewKeyringBackend creates a keyring backend and probes the credential
// store once. An unreachable store yields a *backend.UnavailableError.
func NewKeyringBackend(service string, opts ...KeyringOption) (*KeyringBackend, error) {
	kb := &KeyringBackend{
		service: service,
		client:  systemKeyring{},
	}
	for _, opt := range opts {
		opt(kb)
	}

	if err := kb.probe(); err != nil {
		return nil, err
	}
	return kb, nil
}

// Name returns the backend name
func (kb *KeyringBackend) Name() string {
	return KeyringBackendName
}

// Store writes value under keyID, overwriting any previous value.
func (kb *KeyringBackend) Store(ctx context.Context, keyID, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := kb.client.Set(kb.service, keyID, value); err != nil {
		return &backend.OperationError{Backend: KeyringBackendName, Op: "store", KeyID: keyID, Err: err}
	}
	return nil
}

// Retrieve reads the value stored under keyID. A missing entry is reported
// as found=false with a nil error.
func (kb *KeyringBackend) Retrieve(ctx context.Context, keyID string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	value, err := kb.client.Get(kb.service, keyID)
	if err != nil {
		if isKeyringNotFound(err) {
			return "", false, nil
		}
		return "", false, &backend.OperationError{Backend: KeyringBackendName, Op: "retrieve", KeyID: keyID, Err: err}
	}
	return value, true, nil
}

// Delete removes keyID. Deleting an absent entry succeeds.
func (kb *KeyringBackend) Delete(ctx context.Context, keyID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := kb.client.Delete(kb.service, keyID); err != nil {
		if isKeyringNotFound(err) {
			return nil
		}
		return &backend.OperationError{Backend: KeyringBackendName, Op: "delete", KeyID: keyID, Err: err}
	}
	return nil
}

// Validate re-runs the availability probe.
func (kb *KeyringBackend) Validate(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return kb.probe()
}

func (kb *KeyringBackend) probe() error {
	_, err := kb.client.Get(kb.service, probeAccount)
	if err == nil || isKeyringNotFound(err) {
		return nil
	}

	reason := "credential store is not reachable"
	if errors.Is(err, keyring.ErrUnsupportedPlatform) {
		reason = "credential store is not supported on this platform"
	}
	return &backend.UnavailableError{Backend: KeyringBackendName, Reason: reason, Err: err}
}

// isKeyringNotFound also matches stores that report a missing item only by message.
func isKeyringNotFound(err error) bool {
	if errors.Is(err, keyring.ErrNotFound) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "could not be found") || strings.Contains(msg, "item not found")
}
