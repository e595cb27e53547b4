package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	gserrors "github.com/systmms/gitshift/internal/errors"
	"github.com/systmms/gitshift/internal/resolve"
	"github.com/systmms/gitshift/internal/store"
)

func NewUseCommand(app *App) *cobra.Command {
	var (
		path       string
		setDefault bool
	)

	cmd := &cobra.Command{
		Use:   "use <nickname>",
		Short: "Bind a directory to an account",
		Long: `Bind a directory (the current one unless --path is given) to an
account. Credential requests from that directory and everything below it
resolve to the account; a deeper binding always wins, and rebinding the
same directory replaces the old entry.

With --default the account becomes the fallback for directories no rule
covers, and no directory rule is written.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			nickname := args[0]

			st, err := app.OpenStore()
			if err != nil {
				return err
			}

			dir := path
			if !setDefault {
				if dir == "" {
					dir, err = os.Getwd()
					if err != nil {
						return fmt.Errorf("determining working directory: %w", err)
					}
				}
				// rules match against absolute working directories, so a
				// relative prefix must be anchored at bind time
				dir, err = filepath.Abs(dir)
				if err != nil {
					return fmt.Errorf("resolving path %q: %w", path, err)
				}
			}

			if err := st.Update(func(file *store.File) error {
				if _, ok := file.Account(nickname); !ok {
					return gserrors.NotFoundError{Kind: "account", Name: nickname}
				}
				if setDefault {
					file.DefaultAccount = nickname
					return nil
				}
				file.SetRule(resolve.Normalize(dir), nickname)
				return nil
			}); err != nil {
				return err
			}

			if setDefault {
				app.Logger.Info("Default account is now %q", nickname)
			} else {
				app.Logger.Info("%s now resolves to %q", resolve.Normalize(dir), nickname)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&path, "path", "", "Directory to bind instead of the current one")
	cmd.Flags().BoolVar(&setDefault, "default", false, "Set the fallback account instead of a directory rule")

	return cmd
}
