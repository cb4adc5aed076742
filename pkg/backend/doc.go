// Package backend defines the storage abstraction for secret values in apikeyper.
//
// apikeyper never writes a secret into its metadata database. The metadata row
// only carries a key-id (see package keyid), and the value itself lives in a
// Backend addressed by that key-id:
//
//	┌──────────────────────────┐        ┌──────────────────────────┐
//	│  metadata store (SQL)    │  key   │  Backend                 │
//	│  service | key_name | …  ├───────►│  key-id → secret value   │
//	└──────────────────────────┘        └──────────────────────────┘
//
// # Contract
//
// All implementations share the same semantics:
//   - Store overwrites an existing entry unconditionally
//   - Retrieve reports absence with found=false, never with an error
//   - Delete of a missing key-id succeeds silently
//
// Construction failures caused by a missing host integration (no Secret
// Service on the session bus, unsupported platform) are reported as
// *UnavailableError so that callers can fall back to another backend. Any
// other failure during an operation is an *OperationError.
//
// # Optional capabilities
//
// Backends may additionally implement Clearer (wipe every entry, test only)
// and Validator (connectivity check used by `apikeyper doctor`).
package backend
