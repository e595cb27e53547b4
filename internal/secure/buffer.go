// Package secure keeps credential material encrypted while it is resident
// in this process. A credential lives in plaintext only for the moment it
// is written to the vault or emitted on the protocol channel.
package secure

import (
	"errors"
	"sync"

	"github.com/awnumar/memguard"
)

// ErrNoSecret reports an Open on a buffer that never held material or was
// already destroyed.
var ErrNoSecret = errors.New("secure: buffer holds no secret")

// TokenBuffer holds one secret inside a memguard enclave: encrypted at
// rest in memory, mlocked against swap, wiped on destroy.
type TokenBuffer struct {
	enclave *memguard.Enclave
	mu      sync.RWMutex

	// destroyed allows idempotent Destroy calls and blocks use-after-destroy
	destroyed bool
}

// NewTokenBuffer seals the given bytes into a protected region. The input
// slice is consumed by memguard and must not be reused by the caller.
// Empty input yields a buffer whose Open fails with ErrNoSecret; memguard
// rejects zero-length regions.
func NewTokenBuffer(data []byte) *TokenBuffer {
	if len(data) == 0 {
		return &TokenBuffer{}
	}
	return &TokenBuffer{enclave: memguard.NewEnclave(data)}
}

// NewTokenBufferFromString seals a secret string.
func NewTokenBufferFromString(s string) *TokenBuffer {
	return NewTokenBuffer([]byte(s))
}

// Open decrypts the secret into a locked buffer. The caller must call
// Destroy on the returned buffer as soon as the plaintext has been used:
//
//	locked, err := buf.Open()
//	if err != nil {
//	    return err
//	}
//	defer locked.Destroy()
//	emit(locked.String())
func (b *TokenBuffer) Open() (*memguard.LockedBuffer, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.destroyed || b.enclave == nil {
		return nil, ErrNoSecret
	}
	return b.enclave.Open()
}

// Destroy marks the buffer unusable. Idempotent. The enclave ciphertext
// needs no explicit wipe; call Purge at process exit for full cleanup.
func (b *TokenBuffer) Destroy() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.destroyed {
		return
	}
	b.enclave = nil
	b.destroyed = true
}

// Purge wipes all memguard state. Deferred once from main.
func Purge() {
	memguard.Purge()
}
