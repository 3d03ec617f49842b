package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"time"

	"github.com/tidwall/jsonc"
)

// Settings is the tool-level configuration: where the client registry
// and backups live and how the engine behaves. It never contains client
// scope files themselves; those are described by the registry.
type Settings struct {
	// Registry is the client registry YAML path.
	Registry string `json:"registry,omitempty"`
	// BackupDir is the backup root directory.
	BackupDir string `json:"backupDir,omitempty"`
	// Port is the HTTP API port.
	Port int `json:"port,omitempty"`
	// LogLevel is the minimum log level.
	LogLevel string `json:"logLevel,omitempty"`
	// DebounceMs is the watcher settle window in milliseconds.
	DebounceMs int `json:"debounceMs,omitempty"`
}

// Debounce returns the configured settle window.
func (s *Settings) Debounce() time.Duration {
	return time.Duration(s.DebounceMs) * time.Millisecond
}

// Load assembles settings from files and environment (priority order):
//  1. Global config (~/.config/mcpscope/mcpscope.json or .jsonc)
//  2. Project config (<directory>/.mcpscope.json)
//  3. MCPSCOPE_CONFIG file
//  4. MCPSCOPE_* environment variables
func Load(directory string) (*Settings, error) {
	paths := GetPaths()
	s := &Settings{
		Registry:  paths.RegistryPath(),
		BackupDir: paths.BackupPath(),
	}

	loadOnce := func(path string) error {
		return loadFile(path, s)
	}

	_ = loadOnce(filepath.Join(paths.Config, "mcpscope.json"))
	_ = loadOnce(filepath.Join(paths.Config, "mcpscope.jsonc"))

	if directory != "" {
		_ = loadOnce(filepath.Join(directory, ".mcpscope.json"))
	}

	if override := os.Getenv("MCPSCOPE_CONFIG"); override != "" {
		if err := loadOnce(override); err != nil {
			return nil, fmt.Errorf("load %s: %w", override, err)
		}
	}

	applyEnvOverrides(s)
	return s, nil
}

// loadFile merges one settings file into s. Missing files are skipped by
// the caller; malformed present files are errors there only when
// explicitly requested.
func loadFile(path string, s *Settings) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	data = jsonc.ToJSON(data)
	data = interpolate(data)

	var file Settings
	if err := json.Unmarshal(data, &file); err != nil {
		return err
	}
	merge(s, &file)
	return nil
}

// interpolate replaces {env:VAR} placeholders with environment values.
func interpolate(data []byte) []byte {
	pattern := regexp.MustCompile(`\{env:([^}]+)\}`)
	return pattern.ReplaceAllFunc(data, func(match []byte) []byte {
		name := pattern.FindSubmatch(match)[1]
		return []byte(os.Getenv(string(name)))
	})
}

func merge(dst, src *Settings) {
	if src.Registry != "" {
		dst.Registry = src.Registry
	}
	if src.BackupDir != "" {
		dst.BackupDir = src.BackupDir
	}
	if src.Port != 0 {
		dst.Port = src.Port
	}
	if src.LogLevel != "" {
		dst.LogLevel = src.LogLevel
	}
	if src.DebounceMs != 0 {
		dst.DebounceMs = src.DebounceMs
	}
}

func applyEnvOverrides(s *Settings) {
	if v := os.Getenv("MCPSCOPE_REGISTRY"); v != "" {
		s.Registry = v
	}
	if v := os.Getenv("MCPSCOPE_BACKUP_DIR"); v != "" {
		s.BackupDir = v
	}
	if v := os.Getenv("MCPSCOPE_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			s.Port = port
		}
	}
	if v := os.Getenv("MCPSCOPE_LOG_LEVEL"); v != "" {
		s.LogLevel = v
	}
	if v := os.Getenv("MCPSCOPE_DEBOUNCE_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			s.DebounceMs = ms
		}
	}
}
