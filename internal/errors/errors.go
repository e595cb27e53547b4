package errors

import (
	"errors"
	"fmt"
	"strings"
)

// UserError represents an error that should be shown to the user with helpful context
type UserError struct {
	Message    string
	Suggestion string
	Details    string
	Err        error
}

func (e UserError) Error() string {
	var parts []string

	if e.Message != "" {
		parts = append(parts, e.Message)
	} else if e.Err != nil {
		parts = append(parts, e.Err.Error())
	}

	if e.Details != "" {
		parts = append(parts, "\n  Details: "+e.Details)
	}

	if e.Suggestion != "" {
		parts = append(parts, "\n  💡 Try: "+e.Suggestion)
	}

	return strings.Join(parts, "")
}

func (e UserError) Unwrap() error {
	return e.Err
}

// ConfigError represents a problem in the gitshift state file
type ConfigError struct {
	Field      string
	Value      interface{}
	Message    string
	Suggestion string
}

func (e ConfigError) Error() string {
	msg := "Configuration error"
	if e.Field != "" {
		msg += fmt.Sprintf(" in field '%s'", e.Field)
	}
	if e.Value != nil {
		msg += fmt.Sprintf(" (value: %v)", e.Value)
	}
	msg += ": " + e.Message

	if e.Suggestion != "" {
		msg += "\n  💡 " + e.Suggestion
	}

	return msg
}

// NotFoundError reports an absent account, directory rule or vault secret.
// Recoverable: callers surface it as "no matching account" rather than a
// failure of the machinery.
type NotFoundError struct {
	Kind string // "account", "rule", "secret"
	Name string
}

func (e NotFoundError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("no matching %s", e.Kind)
	}
	return fmt.Sprintf("%s '%s' not found", e.Kind, e.Name)
}

// IsNotFound reports whether err (or anything it wraps) is a NotFoundError.
func IsNotFound(err error) bool {
	var nf NotFoundError
	return errors.As(err, &nf)
}

// VaultError reports a failure of the OS secret store or a remote vault
// backend. Fatal for the current operation; never retried against a
// plaintext fallback.
type VaultError struct {
	Op  string // "put", "get", "delete"
	Key string
	Err error
}

func (e VaultError) Error() string {
	return fmt.Sprintf("vault %s for '%s' failed: %v", e.Op, e.Key, e.Err)
}

func (e VaultError) Unwrap() error {
	return e.Err
}

// AuthReason classifies terminal device-flow outcomes.
type AuthReason string

const (
	AuthDenied  AuthReason = "denied"
	AuthExpired AuthReason = "expired"
	AuthTimeout AuthReason = "timeout"
)

// AuthError reports a terminal non-success of the device authorization
// flow, or an expired credential that cannot be refreshed.
type AuthError struct {
	Reason AuthReason
	Detail string
}

func (e AuthError) Error() string {
	msg := "authorization failed"
	switch e.Reason {
	case AuthDenied:
		msg = "authorization was denied"
	case AuthExpired:
		msg = "authorization expired"
	case AuthTimeout:
		msg = "timed out waiting for authorization"
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

// ProtocolError reports malformed input on the git credential-helper
// channel. Git treats any unparsable stdout as a failed lookup, so this
// error may only ever be written to stderr.
type ProtocolError struct {
	Message string
}

func (e ProtocolError) Error() string {
	return "credential protocol error: " + e.Message
}

// LockError reports that the state-file lock could not be acquired within
// the bounded retry budget.
type LockError struct {
	Path string
	Err  error
}

func (e LockError) Error() string {
	return fmt.Sprintf("could not lock state file %s: %v", e.Path, e.Err)
}

func (e LockError) Unwrap() error {
	return e.Err
}
