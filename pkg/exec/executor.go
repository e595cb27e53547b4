// Package exec abstracts external command execution so callers that
// shell out to git can be tested without a real binary.
package exec

import (
	"bytes"
	"context"
	"os/exec"
)

// CommandExecutor runs a command and captures both output streams.
type CommandExecutor interface {
	Execute(ctx context.Context, name string, args ...string) (stdout []byte, stderr []byte, err error)
}

// RealCommandExecutor is the production implementation backed by os/exec.
type RealCommandExecutor struct{}

// Execute runs the command and returns captured stdout and stderr.
func (r *RealCommandExecutor) Execute(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

// DefaultExecutor returns the standard production executor.
func DefaultExecutor() CommandExecutor {
	return &RealCommandExecutor{}
}
