// Package contracts defines interfaces for backend client abstractions.
// These interfaces enable dependency injection for testing.
package contracts

// KeyringClient abstracts OS credential store operations for testing.
// Implementations must return keyring.ErrNotFound from go-keyring when an
// entry is absent so backends can tell "missing" from "broken".
type KeyringClient interface {
	// Get returns the secret stored under service/account.
	Get(service, account string) (string, error)

	// Set stores secret under service/account, replacing any previous value.
	Set(service, account, secret string) error

	// Delete removes the entry for service/account.
	Delete(service, account string) error
}
