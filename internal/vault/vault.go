// Package vault abstracts the secret store that holds account credentials.
//
// The default backend is the OS keychain; remote backends exist for
// headless hosts. All backends expose the same narrow put/get/delete
// contract keyed by account nickname, so resolution logic never knows
// which store it is talking to.
package vault

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	gserrors "github.com/systmms/gitshift/internal/errors"
	"github.com/systmms/gitshift/internal/logging"
	"github.com/systmms/gitshift/internal/store"
)

// Vault stores one opaque secret blob per key. Operations are atomic from
// the caller's perspective; Get and Delete report a missing key as
// NotFoundError.
type Vault interface {
	Put(ctx context.Context, key string, secret []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// Payload is the blob stored per account: the token and, when the
// provider issued one, its expiry. It never appears outside the vault.
type Payload struct {
	Token     string     `json:"token"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Expired reports whether the payload carries an expiry in the past.
// Payloads without expiry (PATs, passwords) never expire.
func (p Payload) Expired(now time.Time) bool {
	return p.ExpiresAt != nil && now.After(*p.ExpiresAt)
}

// Encode serializes the payload for storage.
func (p Payload) Encode() ([]byte, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encoding vault payload: %w", err)
	}
	return data, nil
}

// DecodePayload parses a stored blob. Blobs written by older versions are
// plain token strings; those are accepted as payloads without expiry.
func DecodePayload(data []byte) (Payload, error) {
	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		if len(data) > 0 && data[0] != '{' {
			return Payload{Token: string(data)}, nil
		}
		return Payload{}, fmt.Errorf("decoding vault payload: %w", err)
	}
	return p, nil
}

// Open builds the vault backend selected by the state file. An empty
// backend means the OS keychain.
func Open(settings store.VaultSettings, logger *logging.Logger) (Vault, error) {
	switch settings.Backend {
	case "", "keyring":
		return newKeyringVault(logger), nil
	case "memory":
		// In-process store for tests and throwaway setups. Nothing survives
		// the invocation, which also means every `get` fails to find a
		// secret; it exists so the rest of the stack can run hermetically.
		return NewMemory(), nil
	case "aws":
		return newAWSVault(settings.Options, logger)
	case "azure":
		return newAzureVault(settings.Options, logger)
	case "gcp":
		return newGCPVault(settings.Options, logger)
	default:
		return nil, gserrors.ConfigError{
			Field:      "vault.backend",
			Value:      settings.Backend,
			Message:    "unknown vault backend",
			Suggestion: "Use one of: keyring, aws, azure, gcp",
		}
	}
}

// sanitizeKey maps an account nickname onto the character set every
// remote backend accepts (alphanumerics and dashes).
func sanitizeKey(key string) string {
	var b strings.Builder
	b.Grow(len(key))
	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	return b.String()
}
