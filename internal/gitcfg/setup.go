// Package gitcfg wires the helper into the user's global Git
// configuration.
package gitcfg

import (
	"context"
	"fmt"
	"strings"

	gserrors "github.com/systmms/gitshift/internal/errors"
	"github.com/systmms/gitshift/internal/logging"
	"github.com/systmms/gitshift/pkg/exec"
)

// Configurator edits the global credential.helper entries.
type Configurator struct {
	executor exec.CommandExecutor
	logger   *logging.Logger
}

// New creates a configurator using the given executor. Pass
// exec.DefaultExecutor() outside tests.
func New(executor exec.CommandExecutor, logger *logging.Logger) *Configurator {
	return &Configurator{executor: executor, logger: logger}
}

// Install registers exePath as the sole credential helper. The empty
// helper entry first resets Git's helper list so system-level helpers
// cannot answer before ours; the exe path is quoted to survive spaces.
func (c *Configurator) Install(ctx context.Context, exePath string) error {
	// unset-all fails when no entry exists, which is fine on first run
	if _, stderr, err := c.executor.Execute(ctx, "git", "config", "--global", "--unset-all", "credential.helper"); err != nil {
		c.logger.Debug("unset-all credential.helper: %v (%s)", err, strings.TrimSpace(string(stderr)))
	}

	steps := [][]string{
		{"config", "--global", "--add", "credential.helper", ""},
		{"config", "--global", "--add", "credential.helper", fmt.Sprintf("!%q", exePath)},
	}
	for _, args := range steps {
		if _, stderr, err := c.executor.Execute(ctx, "git", args...); err != nil {
			return gserrors.UserError{
				Message:    "Failed to update global Git configuration",
				Details:    strings.TrimSpace(string(stderr)),
				Suggestion: "Check that git is installed and ~/.gitconfig is writable",
				Err:        err,
			}
		}
	}

	c.logger.Info("Registered %s as the global credential helper", exePath)
	return nil
}

// Uninstall removes every credential.helper entry referencing exePath,
// leaving unrelated helpers in place.
func (c *Configurator) Uninstall(ctx context.Context, exePath string) error {
	pattern := regexpQuote(exePath)
	_, stderr, err := c.executor.Execute(ctx, "git", "config", "--global", "--unset-all", "credential.helper", pattern)
	if err != nil {
		trimmed := strings.TrimSpace(string(stderr))
		if trimmed == "" {
			// exit 5 means no matching entry; nothing to remove
			c.logger.Debug("no credential.helper entry matched %s", exePath)
			return nil
		}
		return gserrors.UserError{
			Message:    "Failed to update global Git configuration",
			Details:    trimmed,
			Suggestion: "Check that git is installed and ~/.gitconfig is writable",
			Err:        err,
		}
	}
	c.logger.Info("Removed %s from the global credential helpers", exePath)
	return nil
}

// regexpQuote escapes exePath for git config's value-pattern argument,
// which is an ERE matched against existing values.
func regexpQuote(s string) string {
	var b strings.Builder
	for _, r := range s {
		if strings.ContainsRune(`\.+*?()|[]{}^$`, r) {
			b.WriteRune('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
