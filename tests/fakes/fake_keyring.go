package fakes

import (
	"errors"
	"sync"

	"github.com/zalando/go-keyring"
)

// ErrFakeKeyringLocked mimics a credential store that refuses access.
var ErrFakeKeyringLocked = errors.New("fake keyring: collection is locked")

// FakeKeyringClient is a test double for contracts.KeyringClient.
type FakeKeyringClient struct {
	mu sync.Mutex

	// Secrets maps service -> account -> value
	Secrets map[string]map[string]string

	// GetErr, SetErr and DeleteErr override normal behavior when set
	GetErr    error
	SetErr    error
	DeleteErr error

	// Calls counts invocations per method name
	Calls map[string]int
}

// NewFakeKeyringClient creates an empty, reachable fake keyring.
func NewFakeKeyringClient() *FakeKeyringClient {
	return &FakeKeyringClient{
		Secrets: make(map[string]map[string]string),
		Calls:   make(map[string]int),
	}
}

// Get returns keyring.ErrNotFound for missing entries, like the real store.
func (f *FakeKeyringClient) Get(service, account string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls["Get"]++

	if f.GetErr != nil {
		return "", f.GetErr
	}
	if value, ok := f.Secrets[service][account]; ok {
		return value, nil
	}
	return "", keyring.ErrNotFound
}

func (f *FakeKeyringClient) Set(service, account, secret string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls["Set"]++

	if f.SetErr != nil {
		return f.SetErr
	}
	if f.Secrets[service] == nil {
		f.Secrets[service] = make(map[string]string)
	}
	f.Secrets[service][account] = secret
	return nil
}

func (f *FakeKeyringClient) Delete(service, account string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls["Delete"]++

	if f.DeleteErr != nil {
		return f.DeleteErr
	}
	if _, ok := f.Secrets[service][account]; !ok {
		return keyring.ErrNotFound
	}
	delete(f.Secrets[service], account)
	return nil
}

// Count returns the number of entries stored for service.
func (f *FakeKeyringClient) Count(service string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Secrets[service])
}
