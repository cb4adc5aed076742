package fakes

import (
	"context"
	"sync"
)

// FakeBackend is an in-memory backend.Backend with per-operation error
// injection. Unlike the memory backend it keeps plain strings so tests can
// inspect and tamper with Entries directly.
type FakeBackend struct {
	mu sync.Mutex

	// Entries maps key-id -> value
	Entries map[string]string

	// StoreErr, RetrieveErr and DeleteErr are returned by the matching
	// operation when set. DeleteErrFor fails Delete for one key-id only.
	StoreErr     error
	RetrieveErr  error
	DeleteErr    error
	DeleteErrFor map[string]error

	// ValidateErr is returned by Validate if set
	ValidateErr error
}

// NewFakeBackend returns an empty fake backend.
func NewFakeBackend() *FakeBackend {
	return &FakeBackend{
		Entries:      make(map[string]string),
		DeleteErrFor: make(map[string]error),
	}
}

func (f *FakeBackend) Name() string {
	return "fake"
}

func (f *FakeBackend) Store(ctx context.Context, keyID, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.StoreErr != nil {
		return f.StoreErr
	}
	f.Entries[keyID] = value
	return nil
}

func (f *FakeBackend) Retrieve(ctx context.Context, keyID string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.RetrieveErr != nil {
		return "", false, f.RetrieveErr
	}
	value, ok := f.Entries[keyID]
	return value, ok, nil
}

func (f *FakeBackend) Delete(ctx context.Context, keyID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.DeleteErr != nil {
		return f.DeleteErr
	}
	if err, ok := f.DeleteErrFor[keyID]; ok {
		return err
	}
	delete(f.Entries, keyID)
	return nil
}

func (f *FakeBackend) Validate(ctx context.Context) error {
	return f.ValidateErr
}

// Has reports whether keyID has an entry.
func (f *FakeBackend) Has(keyID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.Entries[keyID]
	return ok
}

// Len returns the number of entries.
func (f *FakeBackend) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Entries)
}
