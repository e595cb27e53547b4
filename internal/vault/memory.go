package vault

import (
	"context"
	"sync"

	gserrors "github.com/systmms/gitshift/internal/errors"
)

// Memory is an in-process Vault used by tests and the hermetic "memory"
// backend. Safe for concurrent use.
type Memory struct {
	mu      sync.RWMutex
	secrets map[string][]byte

	// FailPuts makes every Put fail, for exercising abort paths.
	FailPuts bool
}

// NewMemory creates an empty in-memory vault.
func NewMemory() *Memory {
	return &Memory{secrets: make(map[string][]byte)}
}

func (m *Memory) Put(ctx context.Context, key string, secret []byte) error {
	if m.FailPuts {
		return gserrors.VaultError{Op: "put", Key: key, Err: context.Canceled}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]byte, len(secret))
	copy(cp, secret)
	m.secrets[key] = cp
	return nil
}

func (m *Memory) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	secret, ok := m.secrets[key]
	if !ok {
		return nil, gserrors.NotFoundError{Kind: "secret", Name: key}
	}
	cp := make([]byte, len(secret))
	copy(cp, secret)
	return cp, nil
}

func (m *Memory) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.secrets[key]; !ok {
		return gserrors.NotFoundError{Kind: "secret", Name: key}
	}
	delete(m.secrets, key)
	return nil
}

// Len reports the number of stored secrets.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.secrets)
}
