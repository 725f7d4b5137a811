// Package config loads the operator-facing configuration for nts: the state
// root, default working directory, and journal tuning knobs, merged from
// defaults, a global user file, a project file, and CLI overrides.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tailscale/hujson"
)

var (
	ErrConfigFileNotFound = errors.New("config file not found")
	ErrConfigFileRead     = errors.New("cannot read config file")
	ErrConfigInvalid      = errors.New("invalid config file")
	ErrStateRootEmpty     = errors.New("state_root cannot be empty")
)

// Config holds all configuration options.
type Config struct {
	StateRoot         string `json:"state_root"`
	DefaultWorkingDir string `json:"default_working_dir,omitempty"`
	BusyTimeoutMs     int    `json:"busy_timeout_ms,omitempty"`
}

// Sources tracks which config files were loaded.
type Sources struct {
	Global  string
	Project string
}

// ConfigFileName is the default project config file name.
const ConfigFileName = ".nts.json"

// DefaultConfig returns the built-in defaults, used before any file is merged.
func DefaultConfig() Config {
	home, err := os.UserHomeDir()
	stateRoot := ".nts"

	if err == nil {
		stateRoot = filepath.Join(home, ".nts")
	}

	return Config{
		StateRoot:     stateRoot,
		BusyTimeoutMs: 10000,
	}
}

// getGlobalConfigPath returns $XDG_CONFIG_HOME/nts/config.json if set,
// otherwise ~/.config/nts/config.json. Returns "" if no home can be found.
func getGlobalConfigPath(env []string) string {
	for _, e := range env {
		if after, ok := strings.CutPrefix(e, "XDG_CONFIG_HOME="); ok {
			return filepath.Join(after, "nts", "config.json")
		}
	}

	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "nts", "config.json")
	}

	home, err := os.UserHomeDir()
	if err == nil {
		return filepath.Join(home, ".config", "nts", "config.json")
	}

	return ""
}

// Load loads configuration with the following precedence (highest wins):
//  1. Defaults
//  2. Global user config
//  3. Project config file (.nts.json) at workDir, if present
//  4. Explicit config file at configPath, if non-empty
//  5. CLI overrides (cliOverrides.StateRoot, applied if hasStateRootOverride)
//
// NTS_STATE_ROOT, if set in env, overrides everything below CLI overrides.
func Load(workDir, configPath string, cliOverrides Config, hasStateRootOverride bool, env []string) (Config, Sources, error) {
	cfg := DefaultConfig()

	var sources Sources

	globalCfg, globalPath, err := loadGlobalConfig(env)
	if err != nil {
		return Config{}, Sources{}, err
	}

	sources.Global = globalPath
	cfg = mergeConfig(cfg, globalCfg)

	projectCfg, projectPath, err := loadProjectConfig(workDir, configPath)
	if err != nil {
		return Config{}, Sources{}, err
	}

	sources.Project = projectPath
	cfg = mergeConfig(cfg, projectCfg)

	if stateRoot := envLookup(env, "NTS_STATE_ROOT"); stateRoot != "" {
		cfg.StateRoot = stateRoot
	} else if v := os.Getenv("NTS_STATE_ROOT"); v != "" {
		cfg.StateRoot = v
	}

	if hasStateRootOverride {
		cfg.StateRoot = cliOverrides.StateRoot
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, Sources{}, err
	}

	return cfg, sources, nil
}

func envLookup(env []string, key string) string {
	prefix := key + "="
	for _, e := range env {
		if after, ok := strings.CutPrefix(e, prefix); ok {
			return after
		}
	}

	return ""
}

func loadGlobalConfig(env []string) (Config, string, error) {
	path := getGlobalConfigPath(env)
	if path == "" {
		return Config{}, "", nil
	}

	cfg, explicitEmpty, loaded, err := loadConfigFile(path, false)
	if err != nil {
		return Config{}, "", err
	}

	if !loaded {
		return Config{}, "", nil
	}

	if explicitEmpty["state_root"] {
		return Config{}, "", fmt.Errorf("%w %s: %w", ErrConfigInvalid, path, ErrStateRootEmpty)
	}

	return cfg, path, nil
}

func loadProjectConfig(workDir, configPath string) (Config, string, error) {
	var cfgFile string

	var mustExist bool

	if configPath != "" {
		cfgFile = configPath
		if !filepath.IsAbs(cfgFile) {
			cfgFile = filepath.Join(workDir, cfgFile)
		}

		mustExist = true

		if _, err := os.Stat(cfgFile); err != nil {
			return Config{}, "", fmt.Errorf("%w: %s", ErrConfigFileNotFound, configPath)
		}
	} else {
		cfgFile = filepath.Join(workDir, ConfigFileName)
		mustExist = false
	}

	cfg, explicitEmpty, loaded, err := loadConfigFile(cfgFile, mustExist)
	if err != nil {
		return Config{}, "", err
	}

	if !loaded {
		return Config{}, "", nil
	}

	if explicitEmpty["state_root"] {
		return Config{}, "", fmt.Errorf("%w %s: %w", ErrConfigInvalid, cfgFile, ErrStateRootEmpty)
	}

	return cfg, cfgFile, nil
}

// loadConfigFile loads and parses one JSONC config file. If mustExist is
// false, a missing file returns a zero Config with loaded=false rather than
// an error.
func loadConfigFile(path string, mustExist bool) (Config, map[string]bool, bool, error) {
	data, err := os.ReadFile(path) //nolint:gosec
	if err != nil {
		if os.IsNotExist(err) && !mustExist {
			return Config{}, nil, false, nil
		}

		if mustExist {
			return Config{}, nil, false, fmt.Errorf("%w: %s", ErrConfigFileRead, path)
		}

		return Config{}, nil, false, nil
	}

	cfg, explicitEmpty, err := parseConfig(data)
	if err != nil {
		return Config{}, nil, false, fmt.Errorf("%w %s: %w", ErrConfigInvalid, path, err)
	}

	return cfg, explicitEmpty, true, nil
}

func parseConfig(data []byte) (Config, map[string]bool, error) {
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Config{}, nil, fmt.Errorf("invalid JSONC: %w", err)
	}

	var cfg Config

	if err := json.Unmarshal(standardized, &cfg); err != nil {
		return Config{}, nil, fmt.Errorf("invalid JSON: %w", err)
	}

	var raw map[string]any

	_ = json.Unmarshal(standardized, &raw)

	explicitEmpty := make(map[string]bool)

	if val, exists := raw["state_root"]; exists {
		if str, ok := val.(string); ok && str == "" {
			explicitEmpty["state_root"] = true
		}
	}

	return cfg, explicitEmpty, nil
}

func mergeConfig(base, overlay Config) Config {
	if overlay.StateRoot != "" {
		base.StateRoot = overlay.StateRoot
	}

	if overlay.DefaultWorkingDir != "" {
		base.DefaultWorkingDir = overlay.DefaultWorkingDir
	}

	if overlay.BusyTimeoutMs != 0 {
		base.BusyTimeoutMs = overlay.BusyTimeoutMs
	}

	return base
}

func validateConfig(cfg Config) error {
	if cfg.StateRoot == "" {
		return ErrStateRootEmpty
	}

	return nil
}

// Format returns cfg as formatted JSON, for `nts config`.
func Format(cfg Config) (string, error) {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to format config: %w", err)
	}

	return string(data), nil
}
