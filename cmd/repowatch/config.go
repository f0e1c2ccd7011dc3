// Package main provides the repowatch daemon CLI.
package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/good-yellow-bee/repowatch/internal/alerting"
	"github.com/good-yellow-bee/repowatch/internal/models"
	"github.com/good-yellow-bee/repowatch/internal/tracker"
)

// Config represents the daemon configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Poll     PollConfig     `yaml:"poll"`
	Alerting AlertingConfig `yaml:"alerting"`
	Notify   NotifyConfig   `yaml:"notify"`
	RepoHost RepoHostConfig `yaml:"repohost"`
	Targets  []string       `yaml:"targets"`
	Verbose  bool           `yaml:"-"` // set via CLI flag
}

// ServerConfig contains listen addresses.
type ServerConfig struct {
	APIAddress     string `yaml:"api_address"`     // admin API listen address (default: :8080)
	MetricsAddress string `yaml:"metrics_address"` // Prometheus listen address (default: :9090)
}

// DatabaseConfig contains storage settings.
type DatabaseConfig struct {
	Path      string `yaml:"path"`       // SQLite database path (default: data/repowatch.db)
	MaxEvents int    `yaml:"max_events"` // event log retention bound (default: 1000)
}

// PollConfig contains poll cycle settings.
type PollConfig struct {
	Interval      time.Duration `yaml:"interval"`       // time between cycles (default: 5m)
	TargetTimeout time.Duration `yaml:"target_timeout"` // per-target timeout (default: 2m)
	MaxConcurrent int           `yaml:"max_concurrent"` // concurrent targets (default: 4)

	// AutoUpdateTypes lists update types treated as auto-eligible even
	// when the collaborator does not flag them (default: patch).
	AutoUpdateTypes []string `yaml:"auto_update_types"`
}

// AlertingConfig contains the alert gate settings. Reloaded on config
// file change; takes effect on the next evaluation.
type AlertingConfig struct {
	AlertThreshold int      `yaml:"alert_threshold"` // in-window count that fires (default: 10)
	WindowMinutes  int      `yaml:"window_minutes"`  // trailing window size (default: 60)
	SilenceMinutes int      `yaml:"silence_minutes"` // min gap between same-fingerprint alerts (default: 15)
	SeverityFilter []string `yaml:"severity_filter"` // severities that count (default: error, critical)
	Filter         string   `yaml:"filter"`          // optional expr filter
}

// NotifyConfig contains notification sink settings.
type NotifyConfig struct {
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Webhooks  []WebhookConfig `yaml:"webhooks"`
}

// RateLimitConfig bounds the notification rate.
type RateLimitConfig struct {
	MaxPerWindow int           `yaml:"max_per_window"` // default: 10
	Window       time.Duration `yaml:"window"`         // default: 1m
	Disabled     bool          `yaml:"disabled"`
}

// WebhookConfig describes one webhook sink.
type WebhookConfig struct {
	Name    string        `yaml:"name"`
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

// RepoHostConfig describes the repository-host collaborator.
type RepoHostConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"` // default: 30s
	// Token is read from REPOWATCH_REPOHOST_TOKEN, never from the file.
	Token string `yaml:"-"`
}

// LoadConfig loads configuration from a YAML file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.setDefaults()
	cfg.RepoHost.Token = os.Getenv("REPOWATCH_REPOHOST_TOKEN")

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.setDefaults()
	return cfg
}

// setDefaults sets default values for missing config fields.
func (c *Config) setDefaults() {
	if c.Server.APIAddress == "" {
		c.Server.APIAddress = ":8080"
	}
	if c.Server.MetricsAddress == "" {
		c.Server.MetricsAddress = ":9090"
	}
	if c.Database.Path == "" {
		c.Database.Path = "data/repowatch.db"
	}
	if c.Database.MaxEvents == 0 {
		c.Database.MaxEvents = 1000
	}
	if c.Poll.Interval == 0 {
		c.Poll.Interval = 5 * time.Minute
	}
	if c.Poll.TargetTimeout == 0 {
		c.Poll.TargetTimeout = 2 * time.Minute
	}
	if c.Poll.MaxConcurrent == 0 {
		c.Poll.MaxConcurrent = 4
	}
	if len(c.Poll.AutoUpdateTypes) == 0 {
		c.Poll.AutoUpdateTypes = []string{"patch"}
	}
	if c.Alerting.AlertThreshold == 0 {
		c.Alerting.AlertThreshold = 10
	}
	if c.Alerting.WindowMinutes == 0 {
		c.Alerting.WindowMinutes = 60
	}
	if c.Alerting.SilenceMinutes == 0 {
		c.Alerting.SilenceMinutes = 15
	}
	if len(c.Alerting.SeverityFilter) == 0 {
		c.Alerting.SeverityFilter = []string{"error", "critical"}
	}
	if c.Notify.RateLimit.MaxPerWindow == 0 {
		c.Notify.RateLimit.MaxPerWindow = 10
	}
	if c.Notify.RateLimit.Window == 0 {
		c.Notify.RateLimit.Window = time.Minute
	}
	if c.RepoHost.Timeout == 0 {
		c.RepoHost.Timeout = 30 * time.Second
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Alerting.AlertThreshold <= 0 {
		return fmt.Errorf("alerting.alert_threshold must be positive")
	}
	if c.Alerting.WindowMinutes <= 0 {
		return fmt.Errorf("alerting.window_minutes must be positive")
	}
	if c.Alerting.SilenceMinutes < 0 {
		return fmt.Errorf("alerting.silence_minutes must not be negative")
	}
	for _, s := range c.Alerting.SeverityFilter {
		if !models.Severity(s).Valid() {
			return fmt.Errorf("invalid severity %q in alerting.severity_filter", s)
		}
	}
	for _, t := range c.Poll.AutoUpdateTypes {
		switch models.UpdateType(t) {
		case models.UpdateTypeMajor, models.UpdateTypeMinor, models.UpdateTypePatch:
		default:
			return fmt.Errorf("invalid update type %q in poll.auto_update_types", t)
		}
	}
	if c.Alerting.Filter != "" {
		if _, err := alerting.NewEventFilter(c.Alerting.Filter); err != nil {
			return fmt.Errorf("alerting.filter: %w", err)
		}
	}
	if c.RepoHost.BaseURL == "" {
		return fmt.Errorf("repohost.base_url is required")
	}
	for i, wh := range c.Notify.Webhooks {
		if wh.URL == "" {
			return fmt.Errorf("notify.webhooks[%d].url is required", i)
		}
	}
	return nil
}

// GateConfig converts the alerting section into the gate's settings.
func (c *Config) GateConfig() (alerting.Config, error) {
	severities := make([]models.Severity, 0, len(c.Alerting.SeverityFilter))
	for _, s := range c.Alerting.SeverityFilter {
		severities = append(severities, models.Severity(s))
	}

	gc := alerting.Config{
		Threshold:      c.Alerting.AlertThreshold,
		Window:         time.Duration(c.Alerting.WindowMinutes) * time.Minute,
		Silence:        time.Duration(c.Alerting.SilenceMinutes) * time.Minute,
		SeverityFilter: alerting.NewSeverityFilter(severities),
	}

	if c.Alerting.Filter != "" {
		filter, err := alerting.NewEventFilter(c.Alerting.Filter)
		if err != nil {
			return alerting.Config{}, err
		}
		gc.Filter = filter
	}
	return gc, nil
}

// UpdatePolicy converts the poll section's auto-eligible update types.
func (c *Config) UpdatePolicy() tracker.UpdatePolicy {
	types := make([]models.UpdateType, 0, len(c.Poll.AutoUpdateTypes))
	for _, t := range c.Poll.AutoUpdateTypes {
		types = append(types, models.UpdateType(t))
	}
	return tracker.NewUpdatePolicy(types)
}
