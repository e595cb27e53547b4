package commands

import (
	"github.com/spf13/cobra"

	gserrors "github.com/systmms/gitshift/internal/errors"
	"github.com/systmms/gitshift/internal/store"
)

func NewRemoveCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remove <nickname>",
		Short: "Remove an account",
		Long: `Remove an account and everything that references it: its directory
rules, the default-account pointer if it was the default, and the vault
entry holding its secret.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			nickname := args[0]

			st, err := app.OpenStore()
			if err != nil {
				return err
			}

			var settings store.VaultSettings
			if err := st.Update(func(file *store.File) error {
				if _, ok := file.Account(nickname); !ok {
					return gserrors.NotFoundError{Kind: "account", Name: nickname}
				}
				settings = file.Vault
				file.RemoveAccount(nickname)
				return nil
			}); err != nil {
				return err
			}

			v, err := app.OpenVault(settings)
			if err != nil {
				return err
			}
			if err := v.Delete(cmd.Context(), nickname); err != nil && !gserrors.IsNotFound(err) {
				// metadata is already gone; report but do not resurrect
				app.Logger.Warn("Could not delete the vault entry for %q: %v", nickname, err)
			}

			app.Logger.Info("Account %q removed", nickname)
			return nil
		},
	}
	return cmd
}
