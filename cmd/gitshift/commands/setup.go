package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	gserrors "github.com/systmms/gitshift/internal/errors"
	"github.com/systmms/gitshift/internal/gitcfg"
	"github.com/systmms/gitshift/internal/store"
)

func NewSetupCommand(app *App) *cobra.Command {
	var (
		vaultBackend string
		vaultOptions []string
		uninstall    bool
	)

	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Register the credential helper with Git",
		Long: `Rewrite the global credential.helper so Git asks this binary for
credentials. Any previously configured helpers are cleared first; an
empty entry is added so system-wide helpers cannot answer before this
one. Safe to run repeatedly.

Optionally selects the vault backend holding the secrets:

  gitshift setup --vault keyring
  gitshift setup --vault aws --vault-option region=eu-central-1
  gitshift setup --vault azure --vault-option vault_url=https://v.vault.azure.net
  gitshift setup --vault gcp --vault-option project_id=my-project`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			exePath, err := os.Executable()
			if err != nil {
				return fmt.Errorf("locating own executable: %w", err)
			}

			cfg := gitcfg.New(app.CommandExecutor(), app.Logger)
			if uninstall {
				return cfg.Uninstall(cmd.Context(), exePath)
			}
			if err := cfg.Install(cmd.Context(), exePath); err != nil {
				return err
			}

			if vaultBackend == "" && len(vaultOptions) == 0 {
				return nil
			}

			options := make(map[string]string, len(vaultOptions))
			for _, opt := range vaultOptions {
				key, value, found := strings.Cut(opt, "=")
				if !found {
					return gserrors.UserError{
						Message:    fmt.Sprintf("Invalid vault option '%s'", opt),
						Suggestion: "Use --vault-option key=value",
					}
				}
				options[key] = value
			}

			st, err := app.OpenStore()
			if err != nil {
				return err
			}
			switch vaultBackend {
			case "", "keyring", "memory", "aws", "azure", "gcp":
			default:
				return gserrors.ConfigError{
					Field:      "vault.backend",
					Value:      vaultBackend,
					Message:    "unknown vault backend",
					Suggestion: "Use one of: keyring, aws, azure, gcp",
				}
			}

			if err := st.Update(func(file *store.File) error {
				if vaultBackend != "" {
					file.Vault.Backend = vaultBackend
				}
				if len(options) > 0 {
					file.Vault.Options = options
				}
				return nil
			}); err != nil {
				return err
			}
			if vaultBackend != "" {
				app.Logger.Info("Vault backend set to %q", vaultBackend)
			} else {
				app.Logger.Info("Vault options updated")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&vaultBackend, "vault", "", "Secret vault backend: keyring, aws, azure or gcp")
	cmd.Flags().StringArrayVar(&vaultOptions, "vault-option", nil, "Backend option as key=value (repeatable)")
	cmd.Flags().BoolVar(&uninstall, "uninstall", false, "Remove this binary from the credential helpers")

	return cmd
}
