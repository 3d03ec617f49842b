// Package commands provides the CLI commands for mcpscope.
package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/mcpscope/mcpscope/internal/config"
	"github.com/mcpscope/mcpscope/internal/engine"
	"github.com/mcpscope/mcpscope/internal/logging"
	"github.com/mcpscope/mcpscope/internal/registry"
)

var (
	// Version information set at build time
	Version   = "0.1.0"
	BuildTime = "dev"
)

// Global flags
var (
	registryPath string
	backupDir    string
	logLevel     string
	printLogs    bool
)

var rootCmd = &cobra.Command{
	Use:   "mcpscope",
	Short: "mcpscope - MCP server configuration across clients and scopes",
	Long: `mcpscope manages MCP server entries across the configuration files
of multiple AI client applications. Each client reads up to four scope
files (global, user, local, project); mcpscope resolves them by
priority, detects conflicts, synchronizes entries between clients, and
snapshots every file before writing it.

Run 'mcpscope resolve <client>' to inspect a client's effective
configuration, or 'mcpscope serve' to start the HTTP API.`,
	Version: Version,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// A .env next to the invocation may carry MCPSCOPE_* settings.
		_ = godotenv.Load()

		out := os.Stderr
		logging.Init(logging.Config{
			Level:  logging.ParseLevel(logLevel),
			Output: out,
			Pretty: printLogs,
		})
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&registryPath, "registry", "", "Client registry YAML (default ~/.config/mcpscope/clients.yaml)")
	rootCmd.PersistentFlags().StringVar(&backupDir, "backup-dir", "", "Backup root directory (default ~/.config/mcpscope/.backups)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "INFO", "Log level (DEBUG|INFO|WARN|ERROR)")
	rootCmd.PersistentFlags().BoolVar(&printLogs, "print-logs", false, "Pretty-print logs to stderr")

	rootCmd.SetVersionTemplate(fmt.Sprintf("mcpscope %s (%s)\n", Version, BuildTime))

	rootCmd.AddCommand(clientsCmd)
	rootCmd.AddCommand(resolveCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(copyCmd)
	rootCmd.AddCommand(removeCmd)
	rootCmd.AddCommand(testCmd)
	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(serveCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// loadSettings layers config files, environment and flags, with flags
// winning.
func loadSettings() (*config.Settings, error) {
	cwd, _ := os.Getwd()
	s, err := config.Load(cwd)
	if err != nil {
		return nil, err
	}
	if registryPath != "" {
		s.Registry = registryPath
	}
	if backupDir != "" {
		s.BackupDir = backupDir
	}
	return s, nil
}

// newEngine builds an engine from the configured registry. One-shot
// commands disable watching; watch and serve keep it on.
func newEngine(watch bool) (*engine.Engine, error) {
	settings, err := loadSettings()
	if err != nil {
		return nil, err
	}
	reg, err := registry.LoadFile(settings.Registry)
	if err != nil {
		return nil, err
	}
	return engine.New(reg, engine.Config{
		BackupDir:    settings.BackupDir,
		Debounce:     settings.Debounce(),
		DisableWatch: !watch,
	})
}

// printJSON writes v to stdout as indented JSON.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
