package commands

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/systmms/gitshift/internal/store"
)

func NewListCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Show accounts and directory rules",
		Long: `Show the registered accounts in the order they were added, with the
default marked, followed by the directory rules. Secret material is
never printed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := app.OpenStore()
			if err != nil {
				return err
			}
			snap, err := st.Load()
			if err != nil {
				return err
			}

			if len(snap.Accounts) == 0 {
				fmt.Println("No accounts registered. Run 'gitshift add <nickname>' to add one.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NICKNAME\tUSERNAME\tHOST\tAUTH\t")
			for _, acct := range snap.Accounts {
				marker := ""
				if acct.Nickname == snap.DefaultAccount {
					marker = "(default)"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", acct.Nickname, acct.Username, acct.Host, acct.Auth, marker)
			}
			if err := w.Flush(); err != nil {
				return err
			}

			if len(snap.Rules) == 0 {
				return nil
			}

			rules := append([]store.Rule(nil), snap.Rules...)
			sort.Slice(rules, func(i, j int) bool { return rules[i].Prefix < rules[j].Prefix })

			fmt.Println()
			w = tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "DIRECTORY\tACCOUNT")
			for _, r := range rules {
				fmt.Fprintf(w, "%s\t%s\n", r.Prefix, r.Account)
			}
			return w.Flush()
		},
	}
	return cmd
}
