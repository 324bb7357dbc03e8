package config

import "time"

// Config represents the complete switchboard configuration.
type Config struct {
	Service      ServiceConfig `yaml:"service"`
	Journal      JournalConfig `yaml:"journal"`
	API          APIConfig     `yaml:"api,omitempty"`
	HandlerRoots []string      `yaml:"handler_roots"`
}

// ServiceConfig defines core service settings.
type ServiceConfig struct {
	Name             string        `yaml:"name"`
	LogLevel         string        `yaml:"log_level"`
	LogFormat        string        `yaml:"log_format"`
	JournalRetention time.Duration `yaml:"journal_retention"`
}

// JournalConfig defines dispatch journal storage settings.
type JournalConfig struct {
	Path string `yaml:"path"`
}

// APIConfig defines HTTP API server settings.
type APIConfig struct {
	Enabled bool          `yaml:"enabled"`
	Listen  string        `yaml:"listen"`
	Auth    APIAuthConfig `yaml:"auth"`
}

// APIAuthConfig defines API authentication settings.
type APIAuthConfig struct {
	// APIKey is the bearer token required on every authenticated route.
	APIKey string `yaml:"api_key"`
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:             "switchboard",
			LogLevel:         "info",
			LogFormat:        "json",
			JournalRetention: 7 * 24 * time.Hour,
		},
		Journal: JournalConfig{
			Path: "./data/switchboard.db",
		},
		API: APIConfig{
			Enabled: false,
			Listen:  "127.0.0.1:8710",
		},
		HandlerRoots: []string{"./handlers"},
	}
}
