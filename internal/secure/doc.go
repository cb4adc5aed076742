// Package secure keeps secret values encrypted while they sit in process
// memory.
//
// It wraps the memguard library: every value is sealed into a
// memguard.Enclave (XSalsa20Poly1305 under a key held in guarded, mlocked
// pages) and only decrypted for the duration of a Reveal call.
//
// The in-memory backend stores every secret as a *Value so that a core dump
// of a long-running test or fallback session does not contain plaintext API
// keys.
//
// # Platform Behavior
//
// Memory locking depends on RLIMIT_MEMLOCK on Linux. When mlock is not
// permitted memguard degrades to ordinary memory; encryption still applies.
//
// It does NOT protect against an attacker with access to the running process.
package secure
