package secure

import (
	"errors"
	"sync"

	"github.com/awnumar/memguard"
)

// ErrWiped is returned by Reveal after Wipe has been called.
var ErrWiped = errors.New("secure value has been wiped")

// Value is a secret string sealed in an encrypted enclave.
type Value struct {
	mu      sync.RWMutex
	enclave *memguard.Enclave
	empty   bool
	wiped   bool
}

// Seal copies s into a new enclave. The plaintext copy used to build the
// enclave is zeroed by memguard.
func Seal(s string) *Value {
	if s == "" {
		// memguard refuses zero-length enclaves
		return &Value{empty: true}
	}
	return &Value{enclave: memguard.NewEnclave([]byte(s))}
}

// Reveal decrypts the value. The returned string is an ordinary Go string
// and is not protected any more.
func (v *Value) Reveal() (string, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	if v.wiped {
		return "", ErrWiped
	}
	if v.empty {
		return "", nil
	}

	locked, err := v.enclave.Open()
	if err != nil {
		return "", err
	}
	defer locked.Destroy()

	return string(locked.Bytes()), nil
}

// Wipe drops the enclave. It is safe to call more than once.
func (v *Value) Wipe() {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.enclave = nil
	v.wiped = true
}

// Purge destroys every memguard buffer and rotates the enclave key. Call it
// on process exit; values sealed before the purge can no longer be opened.
func Purge() {
	memguard.Purge()
}
