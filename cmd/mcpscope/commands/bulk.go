package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mcpscope/mcpscope/pkg/types"
)

// Shared bulk flags
var (
	bulkSource    string
	bulkTargets   []string
	bulkServers   []string
	bulkScope     string
	bulkOverwrite bool
	bulkForce     bool
)

func bulkFlags(cmd *cobra.Command, withSource bool) {
	if withSource {
		cmd.Flags().StringVar(&bulkSource, "from", "", "Source client whose resolved view supplies entries")
		cmd.Flags().BoolVar(&bulkOverwrite, "overwrite", false, "Replace differing entries already present on targets")
	}
	cmd.Flags().StringSliceVar(&bulkTargets, "to", nil, "Target clients")
	cmd.Flags().StringSliceVar(&bulkServers, "servers", nil, "Server names")
	cmd.Flags().StringVar(&bulkScope, "scope", "", "Target scope (default user)")
	cmd.Flags().BoolVar(&bulkForce, "force", false, "Write even when the pre-write backup fails")
}

func runBulk(cmd *cobra.Command, op types.BulkOperation) error {
	eng, err := newEngine(false)
	if err != nil {
		return err
	}
	defer eng.Close()

	req := types.BulkRequest{
		Operation: op,
		Source:    bulkSource,
		Targets:   bulkTargets,
		Servers:   bulkServers,
		Options: types.BulkOptions{
			OverwriteExisting: bulkOverwrite,
			TargetScope:       types.Scope(bulkScope),
			Force:             bulkForce,
		},
	}
	result, err := eng.RunBulk(cmd.Context(), req)
	if err != nil {
		return err
	}
	if err := printJSON(result); err != nil {
		return err
	}
	if result.Summary.Failed > 0 {
		return fmt.Errorf("%d of %d items failed", result.Summary.Failed, result.Summary.Total)
	}
	return nil
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Sync a source client's resolved servers onto target clients",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBulk(cmd, types.BulkSync)
	},
}

var copyCmd = &cobra.Command{
	Use:   "copy",
	Short: "Copy named servers from a source client onto target clients",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBulk(cmd, types.BulkCopy)
	},
}

var removeCmd = &cobra.Command{
	Use:   "remove",
	Short: "Remove named servers from target clients",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBulk(cmd, types.BulkRemove)
	},
}

var testCmd = &cobra.Command{
	Use:   "test",
	Short: "Verify named servers are configured on target clients",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBulk(cmd, types.BulkTest)
	},
}

func init() {
	bulkFlags(syncCmd, true)
	bulkFlags(copyCmd, true)
	bulkFlags(removeCmd, false)
	bulkFlags(testCmd, false)
}
