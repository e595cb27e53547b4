package commands

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/systmms/gitshift/internal/helper"
)

// newHandler wires the protocol handler for one helper invocation. The
// override comes from the environment so `with` reaches across the git
// process boundary.
func newHandler(app *App) (*helper.Handler, error) {
	st, err := app.OpenStore()
	if err != nil {
		return nil, err
	}
	return &helper.Handler{
		Accounts:  st,
		Flow:      app.NewDeviceFlow(),
		Logger:    app.Logger,
		OpenVault: app.OpenVault,
		Override:  os.Getenv(helper.EnvOverride),
		WorkDir:   os.Getwd,
	}, nil
}

// NewGetCommand is the credential-helper lookup verb. Git execs it with
// the request on stdin; the verbs are hidden because users never call
// them directly.
func NewGetCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:    "get",
		Short:  "Credential helper verb (invoked by Git)",
		Hidden: true,
		Args:   cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := newHandler(app)
			if err != nil {
				return err
			}
			return h.Get(cmd.Context(), os.Stdin, os.Stdout)
		},
	}
}

// NewStoreCommand accepts and discards Git's store verb. Accounts are
// managed explicitly, never from Git's post-success callback.
func NewStoreCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:    "store",
		Short:  "Credential helper verb (invoked by Git)",
		Hidden: true,
		Args:   cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := newHandler(app)
			if err != nil {
				return err
			}
			return h.Store(os.Stdin)
		},
	}
}

// NewEraseCommand accepts and discards Git's erase verb.
func NewEraseCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:    "erase",
		Short:  "Credential helper verb (invoked by Git)",
		Hidden: true,
		Args:   cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := newHandler(app)
			if err != nil {
				return err
			}
			return h.Erase(os.Stdin)
		},
	}
}
