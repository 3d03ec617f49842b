package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mcpscope/mcpscope/pkg/types"
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "List, restore and prune configuration snapshots",
}

var backupListCmd = &cobra.Command{
	Use:   "list <client> <scope>",
	Short: "List snapshots for one client scope, newest first",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		scope, ok := types.ParseScope(args[1])
		if !ok {
			return fmt.Errorf("invalid scope %q", args[1])
		}
		eng, err := newEngine(false)
		if err != nil {
			return err
		}
		defer eng.Close()

		backups, err := eng.ListBackups(cmd.Context(), args[0], scope)
		if err != nil {
			return err
		}
		return printJSON(backups)
	},
}

var backupRestoreCmd = &cobra.Command{
	Use:   "restore <backup-id>",
	Short: "Restore a snapshot over its client's scope file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := newEngine(false)
		if err != nil {
			return err
		}
		defer eng.Close()

		restored, err := eng.RestoreBackup(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(restored)
	},
}

var backupPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Remove expired snapshots per the retention policy",
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := newEngine(false)
		if err != nil {
			return err
		}
		defer eng.Close()

		removed, err := eng.PruneBackups(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("removed %d snapshots\n", removed)
		return nil
	},
}

func init() {
	backupCmd.AddCommand(backupListCmd)
	backupCmd.AddCommand(backupRestoreCmd)
	backupCmd.AddCommand(backupPruneCmd)
}
