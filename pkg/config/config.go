// Package config loads Argus configuration from a YAML file with
// environment-variable overrides (ARGUS_* prefix).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration for the Argus daemon.
type Config struct {
	Gateway   GatewayConfig   `yaml:"gateway" envPrefix:"ARGUS_GATEWAY_"`
	Storage   StorageConfig   `yaml:"storage" envPrefix:"ARGUS_STORAGE_"`
	Events    EventsConfig    `yaml:"events" envPrefix:"ARGUS_EVENTS_"`
	Rules     RulesConfig     `yaml:"rules" envPrefix:"ARGUS_RULES_"`
	Retention RetentionConfig `yaml:"retention" envPrefix:"ARGUS_RETENTION_"`
	Slack     SlackConfig     `yaml:"slack" envPrefix:"ARGUS_SLACK_"`
	LogLevel  string          `yaml:"log_level" env:"ARGUS_LOG_LEVEL"`
}

// GatewayConfig configures the dashboard HTTP server.
type GatewayConfig struct {
	Host   string `yaml:"host" env:"HOST"`
	Port   int    `yaml:"port" env:"PORT"`
	APIKey string `yaml:"api_key" env:"API_KEY"`
}

// StorageConfig configures the SQLite-backed repositories.
type StorageConfig struct {
	Path string `yaml:"path" env:"PATH"`
}

// EventsConfig configures the domain event bus.
// The bus is disabled by default; without it the rule engine never fires
// and query caches are never invalidated by events.
type EventsConfig struct {
	Enabled     bool `yaml:"enabled" env:"ENABLED"`
	HistorySize int  `yaml:"history_size" env:"HISTORY_SIZE"`
}

// RulesConfig configures the incident auto-creation engine.
type RulesConfig struct {
	// SweepSchedule is a cron expression for the pending-incident
	// validation sweep. Default: every minute.
	SweepSchedule string `yaml:"sweep_schedule" env:"SWEEP_SCHEDULE"`
	SeedDefaults  bool   `yaml:"seed_defaults" env:"SEED_DEFAULTS"`
}

// RetentionConfig configures activity retention.
type RetentionConfig struct {
	Days int `yaml:"days" env:"DAYS"`
}

// SlackConfig configures the Slack notification collaborator.
type SlackConfig struct {
	Enabled bool   `yaml:"enabled" env:"ENABLED"`
	Token   string `yaml:"token" env:"TOKEN"`
	Channel string `yaml:"channel" env:"CHANNEL"`
	// EscalationNotifyLevel is the minimum escalation level that
	// triggers a notification.
	EscalationNotifyLevel int `yaml:"escalation_notify_level" env:"ESCALATION_NOTIFY_LEVEL"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Gateway: GatewayConfig{
			Host: "127.0.0.1",
			Port: 8710,
		},
		Storage: StorageConfig{
			Path: filepath.Join(defaultDataDir(), "argus.db"),
		},
		Events: EventsConfig{
			Enabled:     false,
			HistorySize: 100,
		},
		Rules: RulesConfig{
			SweepSchedule: "* * * * *",
			SeedDefaults:  true,
		},
		Retention: RetentionConfig{
			Days: 30,
		},
		Slack: SlackConfig{
			EscalationNotifyLevel: 2,
		},
		LogLevel: "info",
	}
}

// Load reads the config file at path (if it exists), then applies
// environment overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("apply env overrides: %w", err)
	}

	if cfg.Events.HistorySize <= 0 {
		cfg.Events.HistorySize = 100
	}
	if cfg.Retention.Days <= 0 {
		cfg.Retention.Days = 30
	}

	return cfg, nil
}

// RetentionPeriod returns the activity retention window as a duration.
func (c *Config) RetentionPeriod() time.Duration {
	return time.Duration(c.Retention.Days) * 24 * time.Hour
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".argus")
}
