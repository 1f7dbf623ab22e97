package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the daemon configuration. Unknown keys in the file are
// ignored; a subsystem that is enabled but missing a required key is a
// startup error, never a silent downgrade to disabled.
type Config struct {
	System   SystemConfig   `yaml:"system"`
	Voice    VoiceConfig    `yaml:"voice"`
	Database DatabaseConfig `yaml:"database"`
	Cloud    CloudConfig    `yaml:"cloud"`
	Insight  InsightConfig  `yaml:"insight"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type SystemConfig struct {
	MaxCPUPercent int    `yaml:"max_cpu_percent"`
	MaxRAMMB      int    `yaml:"max_ram_mb"`
	LogLevel      string `yaml:"log_level"`
}

type VoiceConfig struct {
	Enabled          bool   `yaml:"enabled"`
	ModelPath        string `yaml:"model_path"`
	SampleRate       int    `yaml:"sample_rate"`
	ActivationPhrase string `yaml:"activation_phrase"`
	Language         string `yaml:"language"`
	BeepPath         string `yaml:"beep_path"`
	SpokenReplies    bool   `yaml:"spoken_replies"`
}

type DatabaseConfig struct {
	Type             string `yaml:"type"`
	ConnectionString string `yaml:"connection_string"`
}

type CloudConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
	Proxy    string `yaml:"proxy"` // SOCKS5 address, optional
	Region   string `yaml:"region"`
}

type InsightConfig struct {
	Enabled bool   `yaml:"enabled"`
	Model   string `yaml:"model"`
}

type LoggingConfig struct {
	Dir string `yaml:"dir"`
}

// Load reads and validates the configuration file. A missing file yields
// defaults, so the daemon runs with just a file sink and no voice.
func Load(path string) (*Config, error) {
	cfg := defaults()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	case os.IsNotExist(err):
		// Defaults still get env overrides and validation below.
	default:
		return nil, fmt.Errorf("read config file: %w", err)
	}

	if conn := os.Getenv("SPOKY_DB_CONNECTION"); conn != "" {
		cfg.Database.ConnectionString = conn
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		System: SystemConfig{
			LogLevel: "info",
		},
		Voice: VoiceConfig{
			SampleRate: 16000,
			Language:   "auto",
		},
		Database: DatabaseConfig{
			Type:             "file",
			ConnectionString: "spoky_actions.jsonl",
		},
		Logging: LoggingConfig{
			Dir: "logs",
		},
	}
}

// Validate checks required keys per subsystem.
func (c *Config) Validate() error {
	switch c.System.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("system.log_level must be one of debug/info/warn/error, got %q", c.System.LogLevel)
	}

	if c.Voice.Enabled {
		if c.Voice.ModelPath == "" {
			return fmt.Errorf("voice.model_path is required when voice.enabled is true")
		}
		if c.Voice.SampleRate <= 0 {
			return fmt.Errorf("voice.sample_rate must be positive")
		}
	}

	switch c.Database.Type {
	case "sqlite", "postgres", "file":
		if c.Database.ConnectionString == "" {
			return fmt.Errorf("database.connection_string is required for type %q", c.Database.Type)
		}
	case "dynamo":
		if !c.Cloud.Enabled {
			return fmt.Errorf("database.type dynamo keeps records in the cloud pipeline; it requires cloud.enabled")
		}
	case "mysql":
		return fmt.Errorf("database.type mysql is not supported; use sqlite, postgres, or file")
	case "":
	default:
		return fmt.Errorf("unknown database.type %q", c.Database.Type)
	}

	if c.Cloud.Enabled && c.Cloud.Endpoint == "" {
		return fmt.Errorf("cloud.endpoint is required when cloud.enabled is true")
	}
	if c.Insight.Enabled && c.Insight.Model == "" {
		return fmt.Errorf("insight.model is required when insight.enabled is true")
	}
	return nil
}
