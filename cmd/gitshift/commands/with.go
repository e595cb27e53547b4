package commands

import (
	"os"

	"github.com/spf13/cobra"

	gserrors "github.com/systmms/gitshift/internal/errors"
	"github.com/systmms/gitshift/internal/execenv"
	"github.com/systmms/gitshift/internal/secure"
)

func NewWithCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "with <nickname> -- <command> [args...]",
		Short: "Run a command as a specific account",
		Long: `Run a command with the account override exported into its
environment. Every credential request the command (and its children)
triggers resolves to the named account, regardless of directory rules.
The override dies with the process tree; nothing is written to disk.

Examples:
  gitshift with personal -- git push
  gitshift with work -- git clone https://github.com/corp/infra.git`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			nickname := args[0]

			st, err := app.OpenStore()
			if err != nil {
				return err
			}
			snap, err := st.Load()
			if err != nil {
				return err
			}
			if _, ok := snap.Account(nickname); !ok {
				return gserrors.NotFoundError{Kind: "account", Name: nickname}
			}

			code, err := execenv.New(app.Logger).Run(cmd.Context(), execenv.Options{
				Command: args[1:],
				Account: nickname,
			})
			if err != nil {
				return err
			}
			if code != 0 {
				// exiting here bypasses main's deferred cleanup
				secure.Purge()
				os.Exit(code)
			}
			return nil
		},
	}
	return cmd
}
