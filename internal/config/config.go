package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// DefaultConfigFilename is looked up in the user's home directory.
const DefaultConfigFilename = ".dsd.yaml"

// validate is the shared validator instance.
var validate = validator.New()

// Config holds the YAML configuration for dsd.
type Config struct {
	StorePath      string        `yaml:"store_path" validate:"required"`                   // Rule document location
	StoreBackend   string        `yaml:"store_backend" validate:"oneof=file sqlite"`       // Rule document backend
	LogLevel       string        `yaml:"log_level" validate:"oneof=debug info warn error"` // Logging level
	LogFile        string        `yaml:"log_file,omitempty"`                               // Rotated log file; stderr if empty
	Exclude        []string      `yaml:"exclude,omitempty"`                                // Glob patterns never mirrored
	DryRun         bool          `yaml:"dry_run"`                                          // If true, don't touch targets
	Daemonize      bool          `yaml:"daemonize"`                                        // If true, detach from the terminal
	Debounce       time.Duration `yaml:"debounce" validate:"gte=0"`                        // Quiet period before saving rules
	NoticeDuration time.Duration `yaml:"notice_duration" validate:"gte=0"`                 // How long notices stay visible
	Notifications  bool          `yaml:"notifications"`                                    // If true, send desktop notifications
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		StorePath:      filepath.Join("~", ".dsd", "store.json"),
		StoreBackend:   "file",
		LogLevel:       "info",
		Debounce:       time.Second,
		NoticeDuration: 5 * time.Second,
	}
}

// DefaultPath returns ~/.dsd.yaml, or the bare filename if the home
// directory cannot be determined.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return DefaultConfigFilename
	}
	return filepath.Join(home, DefaultConfigFilename)
}

// Load reads the configuration file at path on top of the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := Default()
	if err = yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes cfg back to path as YAML.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal YAML: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
