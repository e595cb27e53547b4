package commands

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/pkg/browser"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	gserrors "github.com/systmms/gitshift/internal/errors"
	"github.com/systmms/gitshift/internal/secure"
	"github.com/systmms/gitshift/internal/store"
	"github.com/systmms/gitshift/internal/vault"
)

func NewAddCommand(app *App) *cobra.Command {
	var (
		host     string
		authKind string
		username string
	)

	cmd := &cobra.Command{
		Use:   "add <nickname>",
		Short: "Register an account",
		Long: `Register or overwrite an account under a nickname.

With --auth oauth (the default) this runs the GitHub device flow: a user
code is shown, the verification page opens in your browser, and the
resulting token is stored. With --auth token or --auth password you are
prompted for the secret with echo disabled.

The secret goes into the OS vault first; the account record is only
written once the vault accepted it. The first account you add becomes
the default.

Examples:
  gitshift add work
  gitshift add personal --auth token --username octocat
  gitshift add legacy --auth password --host git.corp.example`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			nickname := args[0]
			kind := store.AuthKind(authKind)
			if !kind.Valid() {
				return gserrors.UserError{
					Message:    fmt.Sprintf("Unknown auth kind '%s'", authKind),
					Suggestion: "Use one of: oauth, token, password",
				}
			}

			st, err := app.OpenStore()
			if err != nil {
				return err
			}
			snap, err := st.Load()
			if err != nil {
				return err
			}
			v, err := app.OpenVault(snap.Vault)
			if err != nil {
				return err
			}

			var token *secure.TokenBuffer
			switch kind {
			case store.AuthOAuth:
				token, username, err = runDeviceFlow(cmd, app, username)
			default:
				token, err = promptSecret(app, nickname, kind)
			}
			if err != nil {
				return err
			}
			defer token.Destroy()

			if username == "" {
				return gserrors.UserError{
					Message:    "Username is required",
					Suggestion: "Pass --username <login> for token and password accounts",
				}
			}

			locked, err := token.Open()
			if err != nil {
				return fmt.Errorf("unsealing credential: %w", err)
			}
			payload := vault.Payload{Token: locked.String()}
			blob, err := payload.Encode()
			locked.Destroy()
			if err != nil {
				return err
			}
			if err := v.Put(cmd.Context(), nickname, blob); err != nil {
				return err
			}

			if err := st.Update(func(file *store.File) error {
				file.UpsertAccount(store.Account{
					Nickname: nickname,
					Host:     host,
					Username: username,
					Auth:     kind,
				})
				return nil
			}); err != nil {
				return err
			}

			app.Logger.Info("Account %q registered for %s", nickname, username)
			return nil
		},
	}

	cmd.Flags().StringVar(&host, "host", "github.com", "Host the account belongs to")
	cmd.Flags().StringVar(&authKind, "auth", "oauth", "Credential kind: oauth, token or password")
	cmd.Flags().StringVar(&username, "username", "", "Account login (resolved automatically for oauth)")

	return cmd
}

// runDeviceFlow walks the device authorization and returns the token and
// the resolved login. The browser open is best effort; the printed URI is
// the contract.
func runDeviceFlow(cmd *cobra.Command, app *App, username string) (*secure.TokenBuffer, string, error) {
	flow := app.NewDeviceFlow()
	auth, err := flow.Start(cmd.Context())
	if err != nil {
		return nil, "", err
	}

	app.Logger.Plain("")
	app.Logger.Plain("  Visit %s and enter the code: %s", auth.VerificationURI, auth.UserCode)
	app.Logger.Plain("")
	if !app.NonInteractive {
		if err := browser.OpenURL(auth.VerificationURI); err != nil {
			app.Logger.Debug("could not open browser: %v", err)
		}
	}

	tok, err := flow.Wait(cmd.Context(), auth)
	if err != nil {
		return nil, "", err
	}

	if username == "" {
		username, err = flow.Username(cmd.Context(), tok)
		if err != nil {
			return nil, "", err
		}
	}
	return secure.NewTokenBufferFromString(tok), username, nil
}

// promptSecret reads the secret without echo from the terminal, or a
// single line from stdin when not attached to one.
func promptSecret(app *App, nickname string, kind store.AuthKind) (*secure.TokenBuffer, error) {
	fd := int(os.Stdin.Fd())
	if !app.NonInteractive && term.IsTerminal(fd) {
		fmt.Fprintf(os.Stderr, "Enter %s for %q: ", kind, nickname)
		raw, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return nil, fmt.Errorf("reading secret: %w", err)
		}
		if len(raw) == 0 {
			return nil, gserrors.UserError{
				Message:    "Empty secret",
				Suggestion: "Paste the token or password when prompted",
			}
		}
		return secure.NewTokenBuffer(raw), nil
	}

	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return nil, gserrors.UserError{
			Message:    "No secret provided on stdin",
			Suggestion: "Pipe the token in, e.g. echo $TOKEN | gitshift add ci --auth token --username bot --non-interactive",
			Err:        err,
		}
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return nil, gserrors.UserError{
			Message:    "Empty secret",
			Suggestion: "Pipe a non-empty token on stdin",
		}
	}
	return secure.NewTokenBufferFromString(line), nil
}
