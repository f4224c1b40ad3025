package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Loader handles configuration loading
type Loader struct {
	configPath string
}

// NewLoader creates a new config loader
func NewLoader(configPath string) *Loader {
	return &Loader{
		configPath: configPath,
	}
}

// Path returns the effective config file path.
func (l *Loader) Path() (string, error) {
	if l.configPath != "" {
		return l.configPath, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".cartbot", "cartbot.json"), nil
}

// Load loads the configuration from file, applying environment overrides.
func (l *Loader) Load() (*Config, error) {
	configPath, err := l.Path()
	if err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("json")

	// Environment overrides, e.g. CARTBOT_AI_API_KEY
	v.SetEnvPrefix("CARTBOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		// No file: defaults plus env only
		if err := v.Unmarshal(cfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config: %w", err)
		}
		applyEnvOverrides(cfg)
		return cfg, nil
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	applyEnvOverrides(cfg)

	return cfg, nil
}

// applyEnvOverrides covers the keys AutomaticEnv cannot see because they are
// absent from the config file (viper only binds keys it has read).
func applyEnvOverrides(cfg *Config) {
	if key := os.Getenv("CARTBOT_AI_API_KEY"); key != "" {
		cfg.AI.APIKey = key
	}
	if provider := os.Getenv("CARTBOT_AI_PROVIDER"); provider != "" {
		cfg.AI.Provider = provider
	}
	if path := os.Getenv("CARTBOT_DATABASE_PATH"); path != "" {
		cfg.Database.Path = path
	}
}

// Save writes the configuration to the loader's path.
func (l *Loader) Save(cfg *Config) error {
	configPath, err := l.Path()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(configPath, []byte(cfg.String()), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
