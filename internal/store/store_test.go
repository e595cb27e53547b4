package store

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gserrors "github.com/systmms/gitshift/internal/errors"
	"github.com/systmms/gitshift/internal/logging"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	return New(path, logging.NewWithWriter(os.Stderr, false, true))
}

func TestLoadMissingFileIsEmptyState(t *testing.T) {
	t.Parallel()

	f, err := testStore(t).Load()
	require.NoError(t, err)
	assert.Empty(t, f.Accounts)
	assert.Empty(t, f.Rules)
	assert.Empty(t, f.DefaultAccount)
}

func TestUpdateRoundTrip(t *testing.T) {
	t.Parallel()

	s := testStore(t)
	err := s.Update(func(f *File) error {
		f.UpsertAccount(Account{Nickname: "work", Host: "github.com", Username: "octo-work", Auth: AuthOAuth})
		f.SetRule("/home/me/src/corp", "work")
		return nil
	})
	require.NoError(t, err)

	f, err := s.Load()
	require.NoError(t, err)
	require.Len(t, f.Accounts, 1)
	assert.Equal(t, "work", f.Accounts[0].Nickname)
	assert.Equal(t, AuthOAuth, f.Accounts[0].Auth)
	assert.Equal(t, "work", f.DefaultAccount)
	require.Len(t, f.Rules, 1)
	assert.Equal(t, uint64(1), f.Rules[0].Seq)
}

func TestUpsertReplacesWholeRecordInPlace(t *testing.T) {
	t.Parallel()

	f := &File{}
	f.UpsertAccount(Account{Nickname: "work", Username: "old", Auth: AuthToken})
	f.UpsertAccount(Account{Nickname: "personal", Username: "p", Auth: AuthOAuth})
	f.UpsertAccount(Account{Nickname: "work", Username: "new", Auth: AuthOAuth})

	require.Len(t, f.Accounts, 2)
	// insertion order preserved, record fully replaced
	assert.Equal(t, "work", f.Accounts[0].Nickname)
	assert.Equal(t, "new", f.Accounts[0].Username)
	assert.Equal(t, AuthOAuth, f.Accounts[0].Auth)
	assert.Equal(t, "work", f.DefaultAccount)
}

func TestRemoveAccountCascades(t *testing.T) {
	t.Parallel()

	f := &File{}
	f.UpsertAccount(Account{Nickname: "work", Auth: AuthOAuth})
	f.UpsertAccount(Account{Nickname: "personal", Auth: AuthToken})
	f.SetRule("/a", "work")
	f.SetRule("/b", "personal")
	f.SetRule("/a/b", "work")

	assert.True(t, f.RemoveAccount("work"))

	require.Len(t, f.Accounts, 1)
	assert.Equal(t, "personal", f.Accounts[0].Nickname)
	require.Len(t, f.Rules, 1)
	assert.Equal(t, "/b", f.Rules[0].Prefix)
	assert.Empty(t, f.DefaultAccount, "default pointer cleared with the account")

	assert.False(t, f.RemoveAccount("work"), "second removal reports not found")
}

func TestSetRuleOverwriteGetsNewSeq(t *testing.T) {
	t.Parallel()

	f := &File{}
	f.SetRule("/a", "work")
	f.SetRule("/b", "personal")
	f.SetRule("/a", "personal")

	require.Len(t, f.Rules, 2)
	assert.Equal(t, "personal", f.Rules[0].Account)
	assert.Equal(t, uint64(3), f.Rules[0].Seq, "rebinding an existing prefix wins later ties")
}

func TestValidateRejectsBadState(t *testing.T) {
	t.Parallel()

	s := testStore(t)
	require.NoError(t, os.WriteFile(s.Path(), []byte(
		"accounts:\n  - nickname: work\n    auth: carrier-pigeon\n"), 0o600))

	_, err := s.Load()
	require.Error(t, err)
	var cfgErr gserrors.ConfigError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	t.Parallel()

	s := testStore(t)
	require.NoError(t, os.WriteFile(s.Path(), []byte("accounts: [unclosed"), 0o600))

	_, err := s.Load()
	var cfgErr gserrors.ConfigError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestConcurrentUpdatesLoseNoWrites(t *testing.T) {
	t.Parallel()

	s := testStore(t)
	const writers = 8

	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			errs <- s.Update(func(f *File) error {
				f.SetRule(filepath.Join("/proj", string(rune('a'+n))), "work")
				return nil
			})
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	f, err := s.Load()
	require.NoError(t, err)
	assert.Len(t, f.Rules, writers, "every concurrent rule write survived")

	seen := map[uint64]bool{}
	for _, r := range f.Rules {
		assert.False(t, seen[r.Seq], "sequence numbers are unique")
		seen[r.Seq] = true
	}
}

func TestConcurrentReadersDuringWrite(t *testing.T) {
	t.Parallel()

	s := testStore(t)
	require.NoError(t, s.Update(func(f *File) error {
		f.UpsertAccount(Account{Nickname: "work", Auth: AuthToken})
		return nil
	}))

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				f, err := s.Load()
				if assert.NoError(t, err) {
					// snapshot is always consistent: the account exists fully or the file errored
					_, ok := f.Account("work")
					assert.True(t, ok)
				}
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for j := 0; j < 10; j++ {
			assert.NoError(t, s.Update(func(f *File) error {
				f.SetRule("/spin", "work")
				return nil
			}))
		}
	}()
	wg.Wait()
}

func TestDefaultPathHonorsEnv(t *testing.T) {
	t.Setenv("GITSHIFT_CONFIG", "/tmp/custom.yaml")
	p, err := DefaultPath()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/custom.yaml", p)
}
