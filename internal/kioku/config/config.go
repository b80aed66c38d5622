// Package config loads Kioku's settings from an optional YAML file and
// KIOKU_* environment overrides.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/bdobrica/Kioku/common/environment"
)

// Storage backends.
const (
	BackendDir    = "dir"
	BackendSQLite = "sqlite"
)

// EnvPrefix prefixes every override variable.
const EnvPrefix = "KIOKU_"

// Config is the full runtime configuration.
type Config struct {
	DataDir    string `yaml:"data_dir"`
	Backend    string `yaml:"backend"`
	SQLitePath string `yaml:"sqlite_path,omitempty"`
	Workspace  string `yaml:"workspace"`
	ModulesDir string `yaml:"modules_dir,omitempty"`

	MaxEntries           int    `yaml:"max_entries"`
	InteractionThreshold int    `yaml:"interaction_threshold"`
	ModuleStrengthLimit  int    `yaml:"module_strength_limit"`
	RepetitionThreshold  int    `yaml:"repetition_threshold"`
	HelperTarget         string `yaml:"helper_target"`

	CompactInterval  time.Duration `yaml:"compact_interval"`
	CompactMinLength int           `yaml:"compact_min_length"`
	WatchModules     bool          `yaml:"watch_modules"`

	HTTPAddr  string `yaml:"http_addr,omitempty"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		DataDir:              "data",
		Backend:              BackendDir,
		Workspace:            ".",
		MaxEntries:           200,
		InteractionThreshold: 20,
		ModuleStrengthLimit:  5,
		RepetitionThreshold:  3,
		HelperTarget:         "main.py",
		CompactInterval:      time.Hour,
		CompactMinLength:     30,
		WatchModules:         true,
		LogLevel:             "info",
		LogFormat:            "text",
	}
}

// Load reads path (skipped when empty), applies environment overrides and
// validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: %w", err)
		}
		if err := decode(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: %s: %w", path, err)
		}
	}
	cfg.ApplyEnv(environment.New(EnvPrefix))
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decode(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// ApplyEnv overrides fields from set, non-empty variables.
func (c *Config) ApplyEnv(env environment.Env) {
	c.DataDir = env.StringOr("DATA_DIR", c.DataDir)
	c.Backend = env.StringOr("BACKEND", c.Backend)
	c.SQLitePath = env.StringOr("SQLITE_PATH", c.SQLitePath)
	c.Workspace = env.StringOr("WORKSPACE", c.Workspace)
	c.ModulesDir = env.StringOr("MODULES_DIR", c.ModulesDir)
	c.MaxEntries = env.IntOr("MAX_ENTRIES", c.MaxEntries)
	c.InteractionThreshold = env.IntOr("INTERACTION_THRESHOLD", c.InteractionThreshold)
	c.ModuleStrengthLimit = env.IntOr("MODULE_STRENGTH_LIMIT", c.ModuleStrengthLimit)
	c.RepetitionThreshold = env.IntOr("REPETITION_THRESHOLD", c.RepetitionThreshold)
	c.HelperTarget = env.StringOr("HELPER_TARGET", c.HelperTarget)
	c.CompactInterval = env.DurationOr("COMPACT_INTERVAL", c.CompactInterval)
	c.CompactMinLength = env.IntOr("COMPACT_MIN_LENGTH", c.CompactMinLength)
	c.WatchModules = env.BoolOr("WATCH_MODULES", c.WatchModules)
	c.HTTPAddr = env.StringOr("HTTP_ADDR", c.HTTPAddr)
	c.LogLevel = env.StringOr("LOG_LEVEL", c.LogLevel)
	c.LogFormat = env.StringOr("LOG_FORMAT", c.LogFormat)
}

// Validate reports every invalid field at once.
func (c Config) Validate() error {
	var errs []error
	if c.DataDir == "" {
		errs = append(errs, errors.New("data_dir must not be empty"))
	}
	if c.Backend != BackendDir && c.Backend != BackendSQLite {
		errs = append(errs, fmt.Errorf("backend must be %q or %q, got %q", BackendDir, BackendSQLite, c.Backend))
	}
	if c.Workspace == "" {
		errs = append(errs, errors.New("workspace must not be empty"))
	}
	for name, v := range map[string]int{
		"max_entries":           c.MaxEntries,
		"interaction_threshold": c.InteractionThreshold,
		"module_strength_limit": c.ModuleStrengthLimit,
		"repetition_threshold":  c.RepetitionThreshold,
	} {
		if v < 1 {
			errs = append(errs, fmt.Errorf("%s must be at least 1, got %d", name, v))
		}
	}
	if c.HelperTarget == "" {
		errs = append(errs, errors.New("helper_target must not be empty"))
	}
	if c.CompactInterval <= 0 {
		errs = append(errs, fmt.Errorf("compact_interval must be positive, got %s", c.CompactInterval))
	}
	if c.CompactMinLength < 1 {
		errs = append(errs, fmt.Errorf("compact_min_length must be at least 1, got %d", c.CompactMinLength))
	}
	if !slices.Contains([]string{"debug", "info", "warn", "error"}, c.LogLevel) {
		errs = append(errs, fmt.Errorf("log_level %q is not one of debug, info, warn, error", c.LogLevel))
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("log_format must be text or json, got %q", c.LogFormat))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// DatabasePath is the SQLite file, defaulting to <data_dir>/kioku.db.
func (c Config) DatabasePath() string {
	if c.SQLitePath != "" {
		return c.SQLitePath
	}
	return filepath.Join(c.DataDir, "kioku.db")
}

// ModulesPath is the descriptor directory, defaulting to
// <data_dir>/modules.
func (c Config) ModulesPath() string {
	if c.ModulesDir != "" {
		return c.ModulesDir
	}
	return filepath.Join(c.DataDir, "modules")
}
