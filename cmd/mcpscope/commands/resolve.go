package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mcpscope/mcpscope/internal/resolver"
)

var resolveShowDiffs bool

var clientsCmd = &cobra.Command{
	Use:   "clients",
	Short: "List registered clients",
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := newEngine(false)
		if err != nil {
			return err
		}
		defer eng.Close()
		return printJSON(eng.Clients())
	},
}

var resolveCmd = &cobra.Command{
	Use:   "resolve <client>",
	Short: "Show a client's effective configuration across all scopes",
	Long: `Resolve merges a client's scope files by priority
(project > local > user > global) and prints the winning entry for each
server name, its source scope, and any conflicts between scopes.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := newEngine(false)
		if err != nil {
			return err
		}
		defer eng.Close()

		resolved, err := eng.Resolve(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if err := printJSON(resolved); err != nil {
			return err
		}

		if resolveShowDiffs {
			for _, conflict := range resolved.Conflicts {
				fmt.Printf("\nconflict %q (active: %s)\n", conflict.ServerName, conflict.ActiveEntry.Scope)
				for scope, diff := range resolver.ConflictDiffs(conflict) {
					fmt.Printf("--- %s vs active ---\n%s\n", scope, diff)
				}
			}
		}
		return nil
	},
}

func init() {
	resolveCmd.Flags().BoolVar(&resolveShowDiffs, "diffs", false, "Print per-scope diffs for each conflict")
}
