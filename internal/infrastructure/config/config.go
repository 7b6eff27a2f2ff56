package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all service configuration.
type Config struct {
	Server     ServerConfig
	Upstream   UpstreamConfig
	Poll       PollConfig
	Layout     LayoutConfig
	Activation ActivationConfig
	Control    ControlConfig
	RateLimit  RateLimitConfig
	Logging    LogConfig
	Workspace  WorkspaceConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8400"`
	Host string `envconfig:"HOST" default:"0.0.0.0"`
}

// UpstreamConfig holds the REST collaborators' addresses.
type UpstreamConfig struct {
	AgentURL string        `envconfig:"AGENT_URL" default:"http://localhost:3001"`
	StoreURL string        `envconfig:"STORE_URL" default:"http://localhost:3002"`
	Timeout  time.Duration `envconfig:"UPSTREAM_TIMEOUT" default:"10s"`
}

// PollConfig holds conversation polling cadences.
type PollConfig struct {
	Normal    time.Duration `envconfig:"POLL_NORMAL" default:"15s"`
	Live      time.Duration `envconfig:"POLL_LIVE" default:"2s"`
	Aggregate time.Duration `envconfig:"POLL_AGGREGATE" default:"60s"`
	TailCount int           `envconfig:"POLL_TAIL_COUNT" default:"20"`
}

// LayoutConfig holds layout persistence configuration.
type LayoutConfig struct {
	Debounce     time.Duration `envconfig:"LAYOUT_DEBOUNCE" default:"1500ms"`
	SplitCeiling int           `envconfig:"LAYOUT_SPLIT_CEILING" default:"6"`
	BackupDir    string        `envconfig:"LAYOUT_BACKUP_DIR" default:""`
	BackupKeep   int           `envconfig:"LAYOUT_BACKUP_KEEP" default:"20"`
}

// ActivationConfig holds activation engine configuration.
type ActivationConfig struct {
	Stagger time.Duration `envconfig:"ACTIVATION_STAGGER" default:"300ms"`
}

// ControlConfig holds control-channel configuration.
type ControlConfig struct {
	ReportInterval time.Duration `envconfig:"CONTROL_REPORT_INTERVAL" default:"10s"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"100"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"200"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// WorkspaceConfig points at the workspace manifest.
type WorkspaceConfig struct {
	ManifestPath   string `envconfig:"WORKSPACE_MANIFEST" default:"workspace.yaml"`
	DefaultProject string `envconfig:"WORKSPACE_DEFAULT_PROJECT" default:""`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns defaults.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: "8400",
			Host: "0.0.0.0",
		},
		Upstream: UpstreamConfig{
			AgentURL: "http://localhost:3001",
			StoreURL: "http://localhost:3002",
			Timeout:  10 * time.Second,
		},
		Poll: PollConfig{
			Normal:    15 * time.Second,
			Live:      2 * time.Second,
			Aggregate: 60 * time.Second,
			TailCount: 20,
		},
		Layout: LayoutConfig{
			Debounce:     1500 * time.Millisecond,
			SplitCeiling: 6,
			BackupKeep:   20,
		},
		Activation: ActivationConfig{
			Stagger: 300 * time.Millisecond,
		},
		Control: ControlConfig{
			ReportInterval: 10 * time.Second,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		Workspace: WorkspaceConfig{
			ManifestPath: "workspace.yaml",
		},
	}
}
