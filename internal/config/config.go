package config

import (
	"encoding/json"
	"fmt"
	"time"
)

// Config represents the main cartbot configuration
type Config struct {
	// Server holds the HTTP/websocket gateway settings
	Server ServerConfig `json:"server" mapstructure:"server"`

	// Database holds the SQLite store settings
	Database DatabaseConfig `json:"database" mapstructure:"database"`

	// AI holds the inference provider settings
	AI AIConfig `json:"ai" mapstructure:"ai"`

	// Agent holds the turn-controller settings
	Agent AgentConfig `json:"agent" mapstructure:"agent"`

	// Session holds cart-session lifecycle settings
	Session SessionConfig `json:"session" mapstructure:"session"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`
}

// ServerConfig holds gateway server configuration
type ServerConfig struct {
	Host string `json:"host" mapstructure:"host"`
	Port int    `json:"port" mapstructure:"port"`
}

// DatabaseConfig holds SQLite configuration
type DatabaseConfig struct {
	Path string `json:"path" mapstructure:"path"`
}

// AIConfig holds inference provider configuration
type AIConfig struct {
	Provider        string  `json:"provider" mapstructure:"provider"` // anthropic, openai
	APIKey          string  `json:"api_key" mapstructure:"api_key"`
	Model           string  `json:"model" mapstructure:"model"`
	ExtractionModel string  `json:"extraction_model" mapstructure:"extraction_model"`
	Temperature     float64 `json:"temperature" mapstructure:"temperature"`
	MaxTokens       int     `json:"max_tokens" mapstructure:"max_tokens"`
}

// AgentConfig holds turn-controller configuration
type AgentConfig struct {
	SystemPrompt  string `json:"system_prompt" mapstructure:"system_prompt"`
	MaxRounds     int    `json:"max_rounds" mapstructure:"max_rounds"`
	MaxRetries    int    `json:"max_retries" mapstructure:"max_retries"`
	TimeoutSecs   int    `json:"timeout_secs" mapstructure:"timeout_secs"`
	DefaultUserID string `json:"default_user_id" mapstructure:"default_user_id"`
}

// SessionConfig holds cart-session lifecycle configuration
type SessionConfig struct {
	TTLHours      int    `json:"ttl_hours" mapstructure:"ttl_hours"`
	SweepSchedule string `json:"sweep_schedule" mapstructure:"sweep_schedule"` // cron expression
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `json:"level" mapstructure:"level"`
	File   string `json:"file" mapstructure:"file"`
	Pretty bool   `json:"pretty" mapstructure:"pretty"`
}

// TTL returns the cart-session time-to-live as a duration.
func (s SessionConfig) TTL() time.Duration {
	return time.Duration(s.TTLHours) * time.Hour
}

// InferenceTimeout returns the per-call inference timeout as a duration.
func (a AgentConfig) InferenceTimeout() time.Duration {
	return time.Duration(a.TimeoutSecs) * time.Second
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8000,
		},
		Database: DatabaseConfig{
			Path: "cartbot.db",
		},
		AI: AIConfig{
			Provider:    "openai",
			Model:       "gpt-4o",
			Temperature: 0,
			MaxTokens:   4096,
		},
		Agent: AgentConfig{
			MaxRounds:     10,
			MaxRetries:    2,
			TimeoutSecs:   30,
			DefaultUserID: "user123",
		},
		Session: SessionConfig{
			TTLHours:      24,
			SweepSchedule: "0 * * * *",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Pretty: true,
		},
	}
}

// String returns a JSON representation of the config
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database path is required")
	}

	if c.AI.Provider != "anthropic" && c.AI.Provider != "openai" {
		return fmt.Errorf("invalid AI provider %s (must be: anthropic, openai)", c.AI.Provider)
	}
	if c.AI.APIKey == "" {
		return fmt.Errorf("AI api_key is required")
	}
	if c.AI.Model == "" {
		return fmt.Errorf("AI model is required")
	}
	if c.AI.Temperature < 0 || c.AI.Temperature > 1 {
		return fmt.Errorf("AI temperature must be between 0 and 1")
	}

	if c.Agent.MaxRounds <= 0 {
		return fmt.Errorf("agent max_rounds must be positive")
	}
	if c.Agent.MaxRetries < 0 {
		return fmt.Errorf("agent max_retries cannot be negative")
	}
	if c.Agent.TimeoutSecs <= 0 {
		return fmt.Errorf("agent timeout_secs must be positive")
	}

	if c.Session.TTLHours <= 0 {
		return fmt.Errorf("session ttl_hours must be positive")
	}

	return nil
}
