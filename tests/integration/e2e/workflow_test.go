// Package e2e exercises full account workflows across the store, the
// resolver, the vault and the credential protocol handler.
package e2e

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gserrors "github.com/systmms/gitshift/internal/errors"
	"github.com/systmms/gitshift/internal/helper"
	"github.com/systmms/gitshift/internal/logging"
	"github.com/systmms/gitshift/internal/store"
	"github.com/systmms/gitshift/internal/vault"
)

type world struct {
	store   *store.Store
	vault   *vault.Memory
	handler *helper.Handler
	workDir string
}

func newWorld(t *testing.T) *world {
	t.Helper()

	logger := logging.NewWithWriter(os.Stderr, false, true)
	w := &world{
		store: store.New(filepath.Join(t.TempDir(), "config.yaml"), logger),
		vault: vault.NewMemory(),
	}
	w.handler = &helper.Handler{
		Accounts: w.store,
		Logger:   logger,
		OpenVault: func(store.VaultSettings) (vault.Vault, error) {
			return w.vault, nil
		},
		WorkDir: func() (string, error) { return w.workDir, nil },
	}
	return w
}

func (w *world) addAccount(t *testing.T, nickname, username, token string) {
	t.Helper()
	payload := vault.Payload{Token: token}
	blob, err := payload.Encode()
	require.NoError(t, err)
	// vault first, metadata second: the protocol a real add follows
	require.NoError(t, w.vault.Put(context.Background(), nickname, blob))
	require.NoError(t, w.store.Update(func(file *store.File) error {
		file.UpsertAccount(store.Account{
			Nickname: nickname,
			Host:     "github.com",
			Username: username,
			Auth:     store.AuthToken,
		})
		return nil
	}))
}

func (w *world) bind(t *testing.T, dir, nickname string) {
	t.Helper()
	require.NoError(t, w.store.Update(func(file *store.File) error {
		file.SetRule(dir, nickname)
		return nil
	}))
}

func (w *world) get(t *testing.T, dir string) (string, error) {
	t.Helper()
	w.workDir = dir
	var out bytes.Buffer
	err := w.handler.Get(context.Background(),
		strings.NewReader("protocol=https\nhost=github.com\n\n"), &out)
	return out.String(), err
}

func TestAccountSwitchingWorkflow(t *testing.T) {
	t.Parallel()

	w := newWorld(t)
	w.addAccount(t, "personal", "octocat", "ghp_personal")
	w.addAccount(t, "work", "octo-work", "ghp_work")
	w.bind(t, "/home/me/src", "personal")
	w.bind(t, "/home/me/src/corp", "work")

	// the deeper binding wins inside the corp tree
	out, err := w.get(t, "/home/me/src/corp/infra")
	require.NoError(t, err)
	assert.Equal(t, "username=octo-work\npassword=ghp_work\n", out)

	// sibling directories fall back to the broader binding
	out, err = w.get(t, "/home/me/src/oss/tool")
	require.NoError(t, err)
	assert.Equal(t, "username=octocat\npassword=ghp_personal\n", out)

	// outside every binding the first-added account is the default
	out, err = w.get(t, "/tmp/scratch")
	require.NoError(t, err)
	assert.Contains(t, out, "password=ghp_personal")
}

func TestOverrideWorkflow(t *testing.T) {
	t.Parallel()

	w := newWorld(t)
	w.addAccount(t, "personal", "octocat", "ghp_personal")
	w.addAccount(t, "work", "octo-work", "ghp_work")
	w.bind(t, "/home/me/src/corp", "work")

	w.handler.Override = "personal"
	out, err := w.get(t, "/home/me/src/corp")
	require.NoError(t, err)
	assert.Contains(t, out, "password=ghp_personal")

	w.handler.Override = ""
	out, err = w.get(t, "/home/me/src/corp")
	require.NoError(t, err)
	assert.Contains(t, out, "password=ghp_work")
}

func TestRemovalWorkflow(t *testing.T) {
	t.Parallel()

	w := newWorld(t)
	w.addAccount(t, "personal", "octocat", "ghp_personal")
	w.addAccount(t, "work", "octo-work", "ghp_work")
	w.bind(t, "/home/me/src/corp", "work")

	require.NoError(t, w.store.Update(func(file *store.File) error {
		file.RemoveAccount("work")
		return nil
	}))
	require.NoError(t, w.vault.Delete(context.Background(), "work"))

	// the rule died with the account; resolution falls through to default
	out, err := w.get(t, "/home/me/src/corp")
	require.NoError(t, err)
	assert.Contains(t, out, "password=ghp_personal")

	snap, err := w.store.Load()
	require.NoError(t, err)
	assert.Empty(t, snap.Rules)
}

func TestMissingSecretFailsCleanly(t *testing.T) {
	t.Parallel()

	w := newWorld(t)
	w.addAccount(t, "work", "octo-work", "ghp_work")
	require.NoError(t, w.vault.Delete(context.Background(), "work"))

	out, err := w.get(t, "/anywhere")
	assert.True(t, gserrors.IsNotFound(err))
	assert.Empty(t, out)
}
