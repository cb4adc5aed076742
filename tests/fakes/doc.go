// Package fakes provides test doubles for the client interfaces behind
// apikeyper's secret backends.
//
// Fakes are written by hand, not generated, so tests keep precise control
// over error injection and can inspect what a backend wrote.
//
// Usage:
//
//	fake := fakes.NewFakeKeyringClient()
//	kb, err := backends.NewKeyringBackend("apikeyper", backends.WithKeyringClient(fake))
//	// exercise kb, then inspect fake.Secrets
package fakes
