package vault

import (
	"context"
	"errors"
	"os"
	"runtime"

	"github.com/zalando/go-keyring"

	gserrors "github.com/systmms/gitshift/internal/errors"
	"github.com/systmms/gitshift/internal/logging"
)

// serviceName namespaces every entry this tool writes, so account keys
// cannot collide with unrelated secrets in the user's keychain.
const serviceName = "gitshift"

// keyringVault stores secrets in the OS credential store: macOS Keychain,
// Linux Secret Service, Windows Credential Manager.
type keyringVault struct {
	logger *logging.Logger
}

func newKeyringVault(logger *logging.Logger) *keyringVault {
	if headless() {
		logger.Warn("no desktop session detected; the OS keychain may be unavailable (consider the aws/azure/gcp vault backend)")
	}
	return &keyringVault{logger: logger}
}

func (v *keyringVault) Put(ctx context.Context, key string, secret []byte) error {
	if err := keyring.Set(serviceName, key, string(secret)); err != nil {
		return gserrors.VaultError{Op: "put", Key: key, Err: err}
	}
	return nil
}

func (v *keyringVault) Get(ctx context.Context, key string) ([]byte, error) {
	secret, err := keyring.Get(serviceName, key)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil, gserrors.NotFoundError{Kind: "secret", Name: key}
		}
		return nil, gserrors.VaultError{Op: "get", Key: key, Err: err}
	}
	return []byte(secret), nil
}

func (v *keyringVault) Delete(ctx context.Context, key string) error {
	if err := keyring.Delete(serviceName, key); err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return gserrors.NotFoundError{Kind: "secret", Name: key}
		}
		return gserrors.VaultError{Op: "delete", Key: key, Err: err}
	}
	return nil
}

// headless reports whether this looks like an environment without a
// usable secret-service UI. Only advisory; the keyring call itself is
// the source of truth.
func headless() bool {
	if runtime.GOOS != "linux" {
		return false
	}
	if os.Getenv("CI") != "" {
		return true
	}
	return os.Getenv("DISPLAY") == "" && os.Getenv("WAYLAND_DISPLAY") == ""
}
