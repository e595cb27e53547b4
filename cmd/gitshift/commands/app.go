// Package commands contains the cobra command tree.
package commands

import (
	"github.com/systmms/gitshift/internal/deviceflow"
	"github.com/systmms/gitshift/internal/logging"
	"github.com/systmms/gitshift/internal/store"
	"github.com/systmms/gitshift/internal/vault"
	"github.com/systmms/gitshift/pkg/exec"
)

// App carries the state shared by every command. main fills it in
// PersistentPreRun once the global flags are parsed.
type App struct {
	ConfigPath     string
	Logger         *logging.Logger
	NonInteractive bool

	// OAuthClientID overrides the built-in GitHub App client ID.
	OAuthClientID string

	// Executor runs external commands (git). Nil means the real one.
	Executor exec.CommandExecutor
}

// CommandExecutor returns the configured executor or the production one.
func (a *App) CommandExecutor() exec.CommandExecutor {
	if a.Executor != nil {
		return a.Executor
	}
	return exec.DefaultExecutor()
}

// OpenStore returns the account store at the configured path, falling
// back to the per-user default location.
func (a *App) OpenStore() (*store.Store, error) {
	path := a.ConfigPath
	if path == "" {
		var err error
		path, err = store.DefaultPath()
		if err != nil {
			return nil, err
		}
	}
	return store.New(path, a.Logger), nil
}

// OpenVault opens the secret backend named in the state file.
func (a *App) OpenVault(settings store.VaultSettings) (vault.Vault, error) {
	return vault.Open(settings, a.Logger)
}

// NewDeviceFlow returns a device-flow client against GitHub.
func (a *App) NewDeviceFlow() *deviceflow.Client {
	return deviceflow.New(deviceflow.Config{ClientID: a.OAuthClientID}, a.Logger)
}
