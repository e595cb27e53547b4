// Package execenv runs a child command with the account override set in
// its environment. The override lives only in the child's process tree,
// so concurrent shells with different overrides never see each other.
package execenv

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"

	gserrors "github.com/systmms/gitshift/internal/errors"
	"github.com/systmms/gitshift/internal/helper"
	"github.com/systmms/gitshift/internal/logging"
)

// Executor runs commands under a single-use account override.
type Executor struct {
	logger *logging.Logger
}

// New creates an executor.
func New(logger *logging.Logger) *Executor {
	return &Executor{logger: logger}
}

// Options configures one run.
type Options struct {
	Command    []string // command and arguments to run
	Account    string   // nickname exported as the override
	WorkingDir string   // working directory for the child, empty for inherit
}

// Run executes the command with the override applied and returns the
// child's exit code. A non-zero child exit is not an error here; callers
// propagate the code so Git and scripts behave as if the command ran
// directly.
func (e *Executor) Run(ctx context.Context, options Options) (int, error) {
	if len(options.Command) == 0 {
		return 0, gserrors.UserError{
			Message:    "No command specified",
			Suggestion: "Provide a command after -- (e.g., gitshift with work -- git push)",
		}
	}

	cmdName := options.Command[0]
	if _, err := exec.LookPath(cmdName); err != nil {
		return 0, gserrors.UserError{
			Message:    fmt.Sprintf("Command '%s' not found", cmdName),
			Suggestion: "Check the command name and your PATH",
			Err:        err,
		}
	}

	cmd := exec.CommandContext(ctx, cmdName, options.Command[1:]...)
	cmd.Env = buildEnvironment(os.Environ(), options.Account)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Stdin = os.Stdin
	if options.WorkingDir != "" {
		cmd.Dir = options.WorkingDir
	}

	e.logger.Debug("Running command with account %q: %s", options.Account, strings.Join(options.Command, " "))

	if err := cmd.Run(); err != nil {
		if exitError, ok := err.(*exec.ExitError); ok {
			return exitError.ExitCode(), nil
		}
		return 0, fmt.Errorf("running %s: %w", cmdName, err)
	}
	return 0, nil
}

// buildEnvironment returns base with the override variable set, replacing
// any inherited value so nested invocations see exactly one account.
func buildEnvironment(base []string, account string) []string {
	envMap := make(map[string]string, len(base)+1)
	for _, env := range base {
		key, value, found := strings.Cut(env, "=")
		if found {
			envMap[key] = value
		}
	}
	envMap[helper.EnvOverride] = account

	result := make([]string, 0, len(envMap))
	for key, value := range envMap {
		result = append(result, fmt.Sprintf("%s=%s", key, value))
	}
	sort.Strings(result)
	return result
}
