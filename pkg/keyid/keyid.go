// Package keyid derives the opaque identifiers used to address secrets
// inside a backend.
//
// A key-id is a pure function of (namespace, service, key name, profile):
//
//	apikeyper:3f5a9c0e1b2d4f67
//
// The namespace prefix is kept in clear text so entries can be grouped in the
// credential store UI; everything else is hashed so the identifier has a fixed
// length and a character set every backend accepts.
package keyid

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/google/uuid"
)

// DigestLength is the number of hex characters of the SHA-256 digest kept in
// a key-id.
const DigestLength = 16

// Separator joins the canonical components and the namespace prefix.
const Separator = ":"

// Derive returns the key-id for the given logical secret. The profile
// component is only included when non-empty. Empty service or key names are
// accepted as literal empty components.
func Derive(namespace, service, keyName, profile string) string {
	parts := []string{namespace, service, keyName}
	if profile != "" {
		parts = append(parts, profile)
	}

	sum := sha256.Sum256([]byte(strings.Join(parts, Separator)))
	return namespace + Separator + hex.EncodeToString(sum[:])[:DigestLength]
}

// NewKeyName generates a fresh key name of the form <service>_key_<8 hex>.
// It is used when a caller does not care about naming, so that repeated adds
// create new rows instead of overwriting each other.
func NewKeyName(service string) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return service + "_key_" + id[:8]
}
