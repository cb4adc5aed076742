package backends

import (
	"context"
	"fmt"
	"sync"

	"github.com/systmms/apikeyper/internal/secure"
	"github.com/systmms/apikeyper/pkg/backend"
)

// MemoryBackendName is the configured type and reported name of the in-process backend.
const MemoryBackendName = "memory"

// MemoryBackend keeps secrets in process memory, sealed with memguard.
// Contents are lost when the process exits.
type MemoryBackend struct {
	mu      sync.RWMutex
	entries map[string]*secure.Value
}

// NewMemoryBackend returns an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{entries: make(map[string]*secure.Value)}
}

// Name returns the backend name
func (mb *MemoryBackend) Name() string {
	return MemoryBackendName
}

func (mb *MemoryBackend) Store(ctx context.Context, keyID, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	sealed := secure.Seal(value)

	mb.mu.Lock()
	defer mb.mu.Unlock()
	if old, ok := mb.entries[keyID]; ok {
		old.Wipe()
	}
	mb.entries[keyID] = sealed
	return nil
}

func (mb *MemoryBackend) Retrieve(ctx context.Context, keyID string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}

	// Held across Reveal so a concurrent Store cannot wipe the value mid-read.
	mb.mu.RLock()
	defer mb.mu.RUnlock()
	sealed, ok := mb.entries[keyID]
	if !ok {
		return "", false, nil
	}

	value, err := sealed.Reveal()
	if err != nil {
		return "", false, &backend.OperationError{
			Backend: MemoryBackendName,
			Op:      "retrieve",
			KeyID:   keyID,
			Err:     fmt.Errorf("failed to open sealed value: %w", err),
		}
	}
	return value, true, nil
}

func (mb *MemoryBackend) Delete(ctx context.Context, keyID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	mb.mu.Lock()
	defer mb.mu.Unlock()
	if sealed, ok := mb.entries[keyID]; ok {
		sealed.Wipe()
		delete(mb.entries, keyID)
	}
	return nil
}

// ClearAll wipes and drops every entry.
func (mb *MemoryBackend) ClearAll() {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	for keyID, sealed := range mb.entries {
		sealed.Wipe()
		delete(mb.entries, keyID)
	}
}

// Len returns the number of stored entries.
func (mb *MemoryBackend) Len() int {
	mb.mu.RLock()
	defer mb.mu.RUnlock()
	return len(mb.entries)
}
