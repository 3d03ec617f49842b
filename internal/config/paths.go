// Package config provides settings loading and path management for the
// engine and CLI.
package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// Paths contains the standard paths for mcpscope data.
type Paths struct {
	Data   string // ~/.local/share/mcpscope
	Config string // ~/.config/mcpscope
	State  string // ~/.local/state/mcpscope
}

// GetPaths returns the standard paths for mcpscope data.
func GetPaths() *Paths {
	return &Paths{
		Data:   filepath.Join(getEnvOrDefault("XDG_DATA_HOME", defaultDataHome()), "mcpscope"),
		Config: filepath.Join(getEnvOrDefault("XDG_CONFIG_HOME", defaultConfigHome()), "mcpscope"),
		State:  filepath.Join(getEnvOrDefault("XDG_STATE_HOME", defaultStateHome()), "mcpscope"),
	}
}

// EnsurePaths creates all required directories.
func (p *Paths) EnsurePaths() error {
	for _, dir := range []string{p.Data, p.Config, p.State} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return nil
}

// BackupPath returns the default backup root. It lives under the config
// directory, never next to the watched client files.
func (p *Paths) BackupPath() string {
	return filepath.Join(p.Config, ".backups")
}

// RegistryPath returns the default client registry file.
func (p *Paths) RegistryPath() string {
	return filepath.Join(p.Config, "clients.yaml")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func defaultDataHome() string {
	if runtime.GOOS == "windows" {
		return os.Getenv("APPDATA")
	}
	return filepath.Join(os.Getenv("HOME"), ".local", "share")
}

func defaultConfigHome() string {
	if runtime.GOOS == "windows" {
		return os.Getenv("APPDATA")
	}
	return filepath.Join(os.Getenv("HOME"), ".config")
}

func defaultStateHome() string {
	if runtime.GOOS == "windows" {
		return os.Getenv("APPDATA")
	}
	return filepath.Join(os.Getenv("HOME"), ".local", "state")
}
