package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/systmms/gitshift/cmd/gitshift/commands"
	"github.com/systmms/gitshift/internal/logging"
	"github.com/systmms/gitshift/internal/secure"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	defer secure.Purge()
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configFile     string
		noColor        bool
		debug          bool
		nonInteractive bool
		clientID       string
	)

	app := &commands.App{}

	rootCmd := &cobra.Command{
		Use:   "gitshift",
		Short: "Per-directory Git account switching",
		Long: `gitshift is a Git credential helper that picks the right account for
the repository you are in. Register accounts once, bind directories to
them, and every git fetch or push authenticates as the account the
directory calls for.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			app.ConfigPath = configFile
			app.Logger = logging.New(debug, noColor)
			app.NonInteractive = nonInteractive
			app.OAuthClientID = clientID
		},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "State file path (default: the per-user config directory)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&nonInteractive, "non-interactive", false, "Never prompt or open a browser")
	rootCmd.PersistentFlags().StringVar(&clientID, "client-id", "", "Override the OAuth app client ID")

	rootCmd.AddCommand(
		commands.NewSetupCommand(app),
		commands.NewAddCommand(app),
		commands.NewRemoveCommand(app),
		commands.NewUseCommand(app),
		commands.NewListCommand(app),
		commands.NewWithCommand(app),
		commands.NewGetCommand(app),
		commands.NewStoreCommand(app),
		commands.NewEraseCommand(app),
	)

	return rootCmd.Execute()
}
