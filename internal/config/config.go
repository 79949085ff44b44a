package config

import (
	"encoding/json"
	"fmt"
)

// Config is the main daemon configuration.
type Config struct {
	// Data directory for the database, skills and conversation cwds.
	DataDir string `json:"data_dir" mapstructure:"data_dir"`

	// Gateway configuration
	Gateway GatewayConfig `json:"gateway" mapstructure:"gateway"`

	// Auth configuration
	Auth AuthConfig `json:"auth" mapstructure:"auth"`

	// Providers configuration
	Providers ProvidersConfig `json:"providers" mapstructure:"providers"`

	// Skills configuration
	Skills SkillsConfig `json:"skills" mapstructure:"skills"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`
}

// GatewayConfig holds gateway server configuration.
type GatewayConfig struct {
	Port   int    `json:"port" mapstructure:"port"`
	Host   string `json:"host" mapstructure:"host"`
	APIKey string `json:"api_key" mapstructure:"api_key"`
}

// AuthConfig holds operator login configuration.
type AuthConfig struct {
	Username    string `json:"username" mapstructure:"username"`
	Password    string `json:"password" mapstructure:"password"`
	TokenSecret string `json:"token_secret" mapstructure:"token_secret"`
	TokenTTLSec int    `json:"token_ttl_sec" mapstructure:"token_ttl_sec"`
}

// ProvidersConfig holds model provider credentials.
type ProvidersConfig struct {
	AnthropicAPIKey string `json:"anthropic_api_key" mapstructure:"anthropic_api_key"`
	OpenAIAPIKey    string `json:"openai_api_key" mapstructure:"openai_api_key"`
}

// SkillsConfig holds skill sync configuration.
type SkillsConfig struct {
	SyncIntervalSec int `json:"sync_interval_sec" mapstructure:"sync_interval_sec"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `json:"level" mapstructure:"level"`
	File   string `json:"file" mapstructure:"file"`
	Pretty bool   `json:"pretty" mapstructure:"pretty"`
}

// DefaultConfig returns a config with default values.
func DefaultConfig() *Config {
	return &Config{
		Gateway: GatewayConfig{
			Port: 8321,
			Host: "0.0.0.0",
		},
		Auth: AuthConfig{
			TokenTTLSec: 86400,
		},
		Skills: SkillsConfig{
			SyncIntervalSec: 30,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Pretty: true,
		},
	}
}

// String returns a JSON representation of the config.
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Gateway.Port <= 0 || c.Gateway.Port > 65535 {
		return fmt.Errorf("invalid gateway port: %d", c.Gateway.Port)
	}
	if c.Auth.Username == "" {
		return fmt.Errorf("auth username is required")
	}
	if c.Auth.Password == "" {
		return fmt.Errorf("auth password is required")
	}
	if c.Auth.TokenSecret == "" {
		return fmt.Errorf("auth token secret is required")
	}
	if c.Providers.AnthropicAPIKey == "" && c.Providers.OpenAIAPIKey == "" {
		return fmt.Errorf("at least one provider api key is required")
	}
	return nil
}
