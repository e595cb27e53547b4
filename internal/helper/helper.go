// Package helper implements the git credential-helper protocol.
//
// Git execs this process with a verb (get/store/erase) and a line-oriented
// key=value request on stdin. Stdout is reserved for the credential
// answer: one unparsable line there and Git fails the whole lookup, so
// every diagnostic goes through the stderr logger.
package helper

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/systmms/gitshift/internal/deviceflow"
	gserrors "github.com/systmms/gitshift/internal/errors"
	"github.com/systmms/gitshift/internal/logging"
	"github.com/systmms/gitshift/internal/resolve"
	"github.com/systmms/gitshift/internal/secure"
	"github.com/systmms/gitshift/internal/store"
	"github.com/systmms/gitshift/internal/vault"
)

// EnvOverride names the environment variable carrying the single-use
// account override. `with` sets it for one child process tree; it is
// never written to persistent state.
const EnvOverride = "GITSHIFT_ACCOUNT"

// Request is the parsed credential request Git sends on stdin.
type Request struct {
	Protocol string
	Host     string
	Path     string
	Username string
}

// ParseRequest reads key=value lines up to a blank line or EOF. Unknown
// keys are ignored per the protocol; a non-empty line without '=' is
// malformed input.
func ParseRequest(r io.Reader) (*Request, error) {
	req := &Request{}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			break
		}
		key, value, found := strings.Cut(line, "=")
		if !found {
			return nil, gserrors.ProtocolError{Message: fmt.Sprintf("line %q is not key=value", line)}
		}
		value = strings.TrimSpace(value)
		switch strings.TrimSpace(key) {
		case "protocol":
			req.Protocol = value
		case "host":
			req.Host = value
		case "path":
			req.Path = value
		case "username":
			req.Username = value
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, gserrors.ProtocolError{Message: err.Error()}
	}
	return req, nil
}

// Handler serves one credential request. Each invocation is short-lived
// and single-threaded; cross-process coordination happens in the store
// locks and the vault, not here.
type Handler struct {
	Accounts  *store.Store
	Flow      *deviceflow.Client
	Logger    *logging.Logger
	OpenVault func(store.VaultSettings) (vault.Vault, error)

	// Override is the single-invocation account selection, already read
	// from EnvOverride by the command layer. Empty means none.
	Override string

	// WorkDir supplies the invoking repository's directory.
	WorkDir func() (string, error)

	// Now is the refresh-decision clock; nil means time.Now.
	Now func() time.Time
}

func (h *Handler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

// Get resolves the account for this request and emits the credential.
// On any failure nothing is written to out: Git must see either a full
// answer or silence, never a guessed or empty credential.
func (h *Handler) Get(ctx context.Context, in io.Reader, out io.Writer) error {
	req, err := ParseRequest(in)
	if err != nil {
		return err
	}
	if req.Host == "" {
		return gserrors.ProtocolError{Message: "request is missing the host key"}
	}

	snap, err := h.Accounts.Load()
	if err != nil {
		return err
	}

	dir, err := h.WorkDir()
	if err != nil {
		return fmt.Errorf("determining working directory: %w", err)
	}

	resolver := resolve.New(h.Logger,
		resolve.Override(h.Override),
		resolve.Rules(snap.Rules),
		resolve.Default(snap.DefaultAccount),
	)
	nickname, source, ok := resolver.Resolve(dir)
	if !ok {
		return gserrors.NotFoundError{Kind: "account"}
	}

	acct, ok := snap.Account(nickname)
	if !ok {
		return gserrors.NotFoundError{Kind: "account", Name: nickname}
	}
	h.Logger.Debug("request for %s://%s resolved to account %q via %s", req.Protocol, req.Host, nickname, source)
	if acct.Host != "" && !strings.EqualFold(acct.Host, req.Host) {
		h.Logger.Debug("account %q is registered for host %s, request came for %s", nickname, acct.Host, req.Host)
	}

	v, err := h.OpenVault(snap.Vault)
	if err != nil {
		return err
	}

	blob, err := v.Get(ctx, nickname)
	if err != nil {
		return err
	}
	payload, err := vault.DecodePayload(blob)
	if err != nil {
		return err
	}

	if payload.Expired(h.now()) {
		if !acct.Auth.Refreshable() {
			return gserrors.AuthError{
				Reason: gserrors.AuthExpired,
				Detail: fmt.Sprintf("credential for %q expired and %s credentials cannot be refreshed automatically; run 'gitshift add %s'", nickname, acct.Auth, nickname),
			}
		}
		payload, err = h.refresh(ctx, v, acct)
		if err != nil {
			return err
		}
	}

	token := secure.NewTokenBufferFromString(payload.Token)
	defer token.Destroy()
	locked, err := token.Open()
	if err != nil {
		return fmt.Errorf("unsealing credential: %w", err)
	}
	defer locked.Destroy()

	// Assembled in full before a single write so a late failure cannot
	// leave a partial answer on the protocol channel.
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "username=%s\n", acct.Username)
	fmt.Fprintf(&buf, "password=%s\n", locked.String())
	if _, err := out.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("writing credential response: %w", err)
	}
	return nil
}

// refresh re-runs the device flow for an expired OAuth credential. Git
// keeps stderr attached to the terminal, so the user code is visible even
// mid-fetch. The vault write happens before anything else sees the token;
// a failed write aborts the whole get.
func (h *Handler) refresh(ctx context.Context, v vault.Vault, acct store.Account) (vault.Payload, error) {
	h.Logger.Warn("stored credential for %q expired, re-running device authorization", acct.Nickname)

	auth, err := h.Flow.Start(ctx)
	if err != nil {
		return vault.Payload{}, err
	}
	h.Logger.Plain("")
	h.Logger.Plain("  Visit %s and enter the code: %s", auth.VerificationURI, auth.UserCode)
	h.Logger.Plain("")

	tok, err := h.Flow.Wait(ctx, auth)
	if err != nil {
		return vault.Payload{}, err
	}

	payload := vault.Payload{Token: tok}
	blob, err := payload.Encode()
	if err != nil {
		return vault.Payload{}, err
	}
	if err := v.Put(ctx, acct.Nickname, blob); err != nil {
		return vault.Payload{}, err
	}
	h.Logger.Info("credential for %q refreshed", acct.Nickname)
	return payload, nil
}

// Store is the protocol verb Git issues after a successful network
// operation. Accounts here are operator-managed, so it only drains stdin
// and succeeds; it must never block or corrupt the explicit store.
func (h *Handler) Store(in io.Reader) error {
	_, err := io.Copy(io.Discard, in)
	return err
}

// Erase mirrors Store: Git issues it on authentication failure, but
// account removal is an explicit operator action.
func (h *Handler) Erase(in io.Reader) error {
	_, err := io.Copy(io.Discard, in)
	return err
}
