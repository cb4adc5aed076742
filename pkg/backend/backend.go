package backend

import "context"

// Backend stores secret values keyed by an opaque key-id.
type Backend interface {
	// Name returns the backend type name (e.g. "keyring", "memory")
	Name() string

	// Store writes value under keyID, replacing any existing value.
	Store(ctx context.Context, keyID, value string) error

	// Retrieve returns the value stored under keyID. A missing entry is
	// reported as found == false with a nil error.
	Retrieve(ctx context.Context, keyID string) (value string, found bool, err error)

	// Delete removes the entry for keyID. Deleting a missing entry is not an
	// error.
	Delete(ctx context.Context, keyID string) error
}

// Clearer is implemented by backends that can drop every entry at once.
type Clearer interface {
	ClearAll()
}

// Validator is implemented by backends that can check their connectivity.
type Validator interface {
	Validate(ctx context.Context) error
}
