package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigPath is the config file read when --config is not given.
const DefaultConfigPath = "config.yaml"

// ErrSavesDirNotFound is returned by Validate when the saves directory is missing.
var ErrSavesDirNotFound = errors.New("saves directory not found")

// Config holds all anchorkeeper configuration.
type Config struct {
	// Directory holding the save files (watched non-recursively)
	SavesDirectory string `yaml:"saves_directory"`

	// SQLite file holding the anchor baseline
	DatabasePath string `yaml:"database_path"`

	// Only files with this suffix are processed
	SaveExtension string `yaml:"save_extension"`

	// Quiet period before a changed file is processed
	DebounceInterval string `yaml:"debounce_interval"`

	// Process every existing save file once at startup
	ScanOnStart bool `yaml:"scan_on_start"`

	Anchor  AnchorConfig  `yaml:"anchor"`
	Backup  BackupConfig  `yaml:"backup"`
	Logging LoggingConfig `yaml:"logging"`
}

// AnchorConfig selects which vessels are anchors.
type AnchorConfig struct {
	PartName   string `yaml:"part_name"`
	VesselType string `yaml:"vessel_type"`
}

// BackupConfig configures save file snapshots taken before a rewrite.
type BackupConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Directory string `yaml:"directory"`
	Keep      int    `yaml:"keep"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
	File   string `yaml:"file"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		SavesDirectory:   filepath.Join("~", "KSP", "saves"),
		DatabasePath:     "anchors.db",
		SaveExtension:    ".sfs",
		DebounceInterval: "1s",

		Anchor: AnchorConfig{
			PartName:   "Stamp-O-Tron Ground Anchor",
			VesselType: "DeployedGroundPart",
		},

		Backup: BackupConfig{
			Enabled:   false,
			Directory: "backups",
			Keep:      10,
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads configuration from a YAML file.
// A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if dir := os.Getenv("ANCHORKEEPER_SAVES_DIR"); dir != "" {
		c.SavesDirectory = dir
	}
	if path := os.Getenv("ANCHORKEEPER_DB"); path != "" {
		c.DatabasePath = path
	}
}

// ExpandPaths resolves a leading ~ in every path setting.
func (c *Config) ExpandPaths() error {
	var err error
	if c.SavesDirectory, err = ExpandHome(c.SavesDirectory); err != nil {
		return err
	}
	if c.DatabasePath, err = ExpandHome(c.DatabasePath); err != nil {
		return err
	}
	if c.Backup.Directory, err = ExpandHome(c.Backup.Directory); err != nil {
		return err
	}
	return nil
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") && !strings.HasPrefix(path, `~\`) {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, path[1:]), nil
}

// GetDebounceInterval returns the debounce interval as a duration.
func (c *Config) GetDebounceInterval() time.Duration {
	d, err := time.ParseDuration(c.DebounceInterval)
	if err != nil || d <= 0 {
		return time.Second
	}
	return d
}

// Validate validates the configuration.
// The saves directory must already exist; nothing is created on the user's behalf.
func (c *Config) Validate() error {
	info, err := os.Stat(c.SavesDirectory)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrSavesDirNotFound, c.SavesDirectory)
		}
		return fmt.Errorf("failed to stat saves directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("saves directory is not a directory: %s", c.SavesDirectory)
	}

	if c.SaveExtension == "" {
		return fmt.Errorf("save_extension must not be empty")
	}
	if c.DatabasePath == "" {
		return fmt.Errorf("database_path must not be empty")
	}
	if c.Anchor.PartName == "" || c.Anchor.VesselType == "" {
		return fmt.Errorf("anchor.part_name and anchor.vessel_type are required")
	}
	if c.Backup.Enabled && c.Backup.Keep < 0 {
		return fmt.Errorf("backup.keep must be >= 0, got %d", c.Backup.Keep)
	}

	return nil
}
