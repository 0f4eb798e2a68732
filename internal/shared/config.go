package shared

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// Environment variables consulted when a credential is not supplied via
// flag or config file.
const (
	EnvSourceKey = "SUBSHIFT_FROM_KEY"
	EnvTargetKey = "SUBSHIFT_TO_KEY"
)

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Accounts  AccountsConfig  `toml:"accounts"`
	Migration MigrationConfig `toml:"migration"`
	Limits    LimitsConfig    `toml:"limits"`
}

// AccountsConfig contains the two billing-account API keys.
type AccountsConfig struct {
	From string `toml:"from"`
	To   string `toml:"to"`
}

// MigrationConfig contains migration behavior settings.
type MigrationConfig struct {
	// DelayHours is the minimum window, in hours, between copying a
	// subscription and its first possible charge in the target account.
	DelayHours float64 `toml:"delay_hours"`
	// PauseSource controls whether collection is paused on each source
	// subscription after its copy succeeds.
	PauseSource bool `toml:"pause_source"`
}

// LimitsConfig overrides the per-credential-mode rate class. Zero values
// keep the mode defaults.
type LimitsConfig struct {
	MaxRunning   int     `toml:"max_running"`
	PerSecond    float64 `toml:"per_second"`
	ListPageSize int     `toml:"list_page_size"`
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return &config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%w: %s already exists", ErrInvalidInput, path)
	}
	if err := os.WriteFile(path, exampleConf, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// ResolveKey picks a credential from, in order of preference, an explicit
// flag value, the environment, and the config file.
func ResolveKey(flagValue, envName, fileValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	if v := os.Getenv(envName); v != "" {
		return v, nil
	}
	if fileValue != "" {
		return fileValue, nil
	}
	return "", fmt.Errorf("%w: set a flag, %s, or config.toml", ErrMissingCredentials, envName)
}
