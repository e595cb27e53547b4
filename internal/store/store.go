// Package store persists the account and directory-rule metadata.
//
// Only public metadata lives here. Secret material is held exclusively by
// the vault (internal/vault); the two are joined by the account nickname.
package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"gopkg.in/yaml.v3"

	gserrors "github.com/systmms/gitshift/internal/errors"
	"github.com/systmms/gitshift/internal/logging"
)

// AuthKind describes how an account authenticates.
type AuthKind string

const (
	// AuthOAuth is a device-flow token; refreshable by re-running the flow.
	AuthOAuth AuthKind = "oauth"
	// AuthToken is an operator-supplied personal access token.
	AuthToken AuthKind = "token"
	// AuthPassword is a static password. Never refreshed.
	AuthPassword AuthKind = "password"
)

// Valid reports whether k is a known auth kind.
func (k AuthKind) Valid() bool {
	switch k {
	case AuthOAuth, AuthToken, AuthPassword:
		return true
	}
	return false
}

// Refreshable reports whether an expired credential of this kind may be
// re-acquired without operator-entered secrets.
func (k AuthKind) Refreshable() bool {
	return k == AuthOAuth
}

// Account holds the public half of a registered identity.
type Account struct {
	Nickname string   `yaml:"nickname"`
	Host     string   `yaml:"host"`
	Username string   `yaml:"username"`
	Auth     AuthKind `yaml:"auth"`
}

// Rule binds a directory prefix to an account nickname. Seq is a
// monotonic write counter used only to break specificity ties; it is
// never shown to the user.
type Rule struct {
	Prefix  string `yaml:"prefix"`
	Account string `yaml:"account"`
	Seq     uint64 `yaml:"seq"`
}

// VaultSettings selects and configures the secret vault backend.
type VaultSettings struct {
	Backend string            `yaml:"backend,omitempty"`
	Options map[string]string `yaml:"options,omitempty"`
}

// File is the full on-disk state. Accounts are a sequence so listing
// preserves the order they were added in.
type File struct {
	DefaultAccount string        `yaml:"default_account,omitempty"`
	Vault          VaultSettings `yaml:"vault,omitempty"`
	Accounts       []Account     `yaml:"accounts,omitempty"`
	Rules          []Rule        `yaml:"rules,omitempty"`
}

// Account returns the account with the given nickname.
func (f *File) Account(nickname string) (Account, bool) {
	for _, a := range f.Accounts {
		if a.Nickname == nickname {
			return a, true
		}
	}
	return Account{}, false
}

// UpsertAccount adds an account or fully replaces an existing record with
// the same nickname. Replacement keeps the original list position so the
// insertion order the user remembers stays intact. The first account ever
// added becomes the default.
func (f *File) UpsertAccount(a Account) {
	for i := range f.Accounts {
		if f.Accounts[i].Nickname == a.Nickname {
			f.Accounts[i] = a
			return
		}
	}
	f.Accounts = append(f.Accounts, a)
	if f.DefaultAccount == "" {
		f.DefaultAccount = a.Nickname
	}
}

// RemoveAccount deletes an account and cascades: every rule pointing at it
// goes too, and the default pointer is cleared if it referenced it. The
// vault entry is the caller's job (the store never touches secrets).
func (f *File) RemoveAccount(nickname string) bool {
	found := false
	kept := f.Accounts[:0]
	for _, a := range f.Accounts {
		if a.Nickname == nickname {
			found = true
			continue
		}
		kept = append(kept, a)
	}
	f.Accounts = kept

	if !found {
		return false
	}

	rules := f.Rules[:0]
	for _, r := range f.Rules {
		if r.Account != nickname {
			rules = append(rules, r)
		}
	}
	f.Rules = rules

	if f.DefaultAccount == nickname {
		f.DefaultAccount = ""
	}
	return true
}

// SetRule binds prefix to an account, overwriting any rule with the same
// prefix. Every write gets a fresh sequence number, so re-binding an
// existing prefix also wins later ties.
func (f *File) SetRule(prefix, nickname string) {
	seq := f.nextSeq()
	for i := range f.Rules {
		if f.Rules[i].Prefix == prefix {
			f.Rules[i].Account = nickname
			f.Rules[i].Seq = seq
			return
		}
	}
	f.Rules = append(f.Rules, Rule{Prefix: prefix, Account: nickname, Seq: seq})
}

func (f *File) nextSeq() uint64 {
	var max uint64
	for _, r := range f.Rules {
		if r.Seq > max {
			max = r.Seq
		}
	}
	return max + 1
}

func (f *File) validate() error {
	seen := make(map[string]bool, len(f.Accounts))
	for _, a := range f.Accounts {
		if a.Nickname == "" {
			return gserrors.ConfigError{
				Field:      "accounts",
				Message:    "account with empty nickname",
				Suggestion: "Remove the broken entry from the state file",
			}
		}
		if seen[a.Nickname] {
			return gserrors.ConfigError{
				Field:      "accounts",
				Value:      a.Nickname,
				Message:    "duplicate account nickname",
				Suggestion: "Keep one entry per nickname; secrets are keyed by it",
			}
		}
		seen[a.Nickname] = true
		if !a.Auth.Valid() {
			return gserrors.ConfigError{
				Field:      "auth",
				Value:      string(a.Auth),
				Message:    "unknown auth kind",
				Suggestion: "Use one of: oauth, token, password",
			}
		}
	}
	return nil
}

// Lock acquisition polls until the holder releases, with a deadline so a
// wedged process cannot hang every git operation forever.
const (
	lockRetryDelay = 25 * time.Millisecond
	lockTimeout    = 10 * time.Second
)

// Store reads and writes the state file with cross-process locking.
// Concurrent helper invocations (parallel submodule fetches) may read
// while an add/use/remove holds the exclusive lock.
type Store struct {
	path   string
	logger *logging.Logger
}

// New creates a store over the given state file path.
func New(path string, logger *logging.Logger) *Store {
	return &Store{path: path, logger: logger}
}

// Path returns the state file location.
func (s *Store) Path() string {
	return s.path
}

// DefaultPath returns $GITSHIFT_CONFIG if set, otherwise the per-user
// config directory.
func DefaultPath() (string, error) {
	if p := os.Getenv("GITSHIFT_CONFIG"); p != "" {
		return p, nil
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("determining config directory: %w", err)
	}
	return filepath.Join(base, "gitshift", "config.yaml"), nil
}

// Load returns a consistent snapshot of the state file. A missing file is
// an empty state, not an error.
func (s *Store) Load() (*File, error) {
	lock := flock.New(s.lockPath())
	if err := s.acquire(lock, false); err != nil {
		return nil, err
	}
	defer lock.Unlock()

	return s.read()
}

// Update runs fn inside the exclusive lock: read, mutate, write
// atomically. The lock is released on every exit path; a write failure
// leaves the previous file intact.
func (s *Store) Update(fn func(*File) error) error {
	lock := flock.New(s.lockPath())
	if err := s.acquire(lock, true); err != nil {
		return err
	}
	defer lock.Unlock()

	f, err := s.read()
	if err != nil {
		return err
	}
	if err := fn(f); err != nil {
		return err
	}
	return s.write(f)
}

func (s *Store) lockPath() string {
	return s.path + ".lock"
}

func (s *Store) acquire(lock *flock.Flock, exclusive bool) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), lockTimeout)
	defer cancel()

	var (
		ok  bool
		err error
	)
	if exclusive {
		ok, err = lock.TryLockContext(ctx, lockRetryDelay)
	} else {
		ok, err = lock.TryRLockContext(ctx, lockRetryDelay)
	}
	if err != nil {
		return gserrors.LockError{Path: s.path, Err: err}
	}
	if !ok {
		return gserrors.LockError{
			Path: s.path,
			Err:  fmt.Errorf("still held after %s", lockTimeout),
		}
	}
	return nil
}

func (s *Store) read() (*File, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return &File{}, nil
		}
		return nil, gserrors.UserError{
			Message:    "Failed to read state file",
			Details:    err.Error(),
			Suggestion: "Check permissions on " + s.path,
			Err:        err,
		}
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, gserrors.ConfigError{
			Message:    "invalid YAML in state file " + s.path,
			Suggestion: "Fix the file by hand or delete it and re-add your accounts",
		}
	}
	if err := f.validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// write lands the file atomically: temp file in the same directory, fsync,
// rename. Readers never observe a partially written record.
func (s *Store) write(f *File) error {
	data, err := yaml.Marshal(f)
	if err != nil {
		return fmt.Errorf("encoding state: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".config-*.yaml")
	if err != nil {
		return fmt.Errorf("creating temp state file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing state: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("syncing state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp state file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("restricting state file mode: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replacing state file: %w", err)
	}
	return nil
}
