// Package config loads the client configuration from a YAML file with
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/gobwas/glob"
	"gopkg.in/yaml.v3"
)

// DefaultFile is the configuration file looked up when no path is given.
const DefaultFile = "mate.yaml"

// Environment variables that override the file.
const (
	EnvAPIKey  = "MATE_API_KEY"
	EnvBaseURL = "MATE_BASE_URL"
	EnvTeamID  = "MATE_TEAM_ID"
)

// Config is the client configuration.
type Config struct {
	APIKey  string `yaml:"api_key" json:"api_key"`
	BaseURL string `yaml:"base_url" json:"base_url"`
	TeamID  string `yaml:"team_id" json:"team_id"`

	WebSocket WebSocketConfig `yaml:"websocket" json:"websocket"`
	Session   SessionConfig   `yaml:"session" json:"session"`
	Logging   LoggingConfig   `yaml:"logging" json:"logging"`
}

// WebSocketConfig configures the connection.
type WebSocketConfig struct {
	// Path is the session path template; {session_id} is substituted.
	Path              string        `yaml:"path" json:"path"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval" json:"heartbeat_interval"`
	MaxMessageSize    int64         `yaml:"max_message_size" json:"max_message_size"`
	Timeouts          Timeouts      `yaml:"timeouts" json:"timeouts"`
}

// Timeouts bound the caller-facing operations.
type Timeouts struct {
	Send            time.Duration `yaml:"send" json:"send"`
	Ping            time.Duration `yaml:"ping" json:"ping"`
	Stop            time.Duration `yaml:"stop" json:"stop"`
	Close           time.Duration `yaml:"close" json:"close"`
	HeartbeatCancel time.Duration `yaml:"heartbeat_cancel" json:"heartbeat_cancel"`
}

// SessionConfig configures the orchestrator policies.
type SessionConfig struct {
	AutoAcceptPlan bool `yaml:"auto_accept_plan" json:"auto_accept_plan"`

	// AutoAcceptSources are glob patterns matched against the source of the
	// plan message. ExcludeSources take precedence.
	AutoAcceptSources []string `yaml:"auto_accept_sources" json:"auto_accept_sources"`
	ExcludeSources    []string `yaml:"exclude_sources" json:"exclude_sources"`

	CloseOnComplete bool          `yaml:"close_on_complete" json:"close_on_complete"`
	PollInterval    time.Duration `yaml:"poll_interval" json:"poll_interval"`
	EventBuffer     int           `yaml:"event_buffer" json:"event_buffer"`
}

// LoggingConfig defines logging configuration
type LoggingConfig struct {
	// Verbosity controls logging level: quiet, normal, verbose, debug
	Verbosity string `yaml:"verbosity" json:"verbosity"`
}

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() *Config {
	return &Config{
		TeamID: "wyse_mate",
		WebSocket: WebSocketConfig{
			Path:              "/v1/ws/{session_id}",
			HeartbeatInterval: 30 * time.Second,
			MaxMessageSize:    1 << 20,
			Timeouts: Timeouts{
				Send:            10 * time.Second,
				Ping:            5 * time.Second,
				Stop:            5 * time.Second,
				Close:           5 * time.Second,
				HeartbeatCancel: 2 * time.Second,
			},
		},
		Session: SessionConfig{
			AutoAcceptPlan:    true,
			AutoAcceptSources: []string{"*"},
			CloseOnComplete:   true,
			PollInterval:      100 * time.Millisecond,
			EventBuffer:       64,
		},
		Logging: LoggingConfig{
			Verbosity: "normal",
		},
	}
}

// Load reads the YAML file at path over the defaults and applies environment
// overrides. The result is validated.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	config.applyEnv()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return config, nil
}

// LoadOrDefault behaves like Load but falls back to the defaults when the file
// does not exist. An empty path means DefaultFile.
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		path = DefaultFile
	}
	config, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		config = DefaultConfig()
		config.applyEnv()
		return config, config.Validate()
	}
	return config, err
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvAPIKey); v != "" {
		c.APIKey = v
	}
	if v := os.Getenv(EnvBaseURL); v != "" {
		c.BaseURL = v
	}
	if v := os.Getenv(EnvTeamID); v != "" {
		c.TeamID = v
	}
}

// Validate fills unset values with defaults and rejects invalid ones.
func (c *Config) Validate() error {
	defaults := DefaultConfig()

	if c.WebSocket.Path == "" {
		c.WebSocket.Path = defaults.WebSocket.Path
	}

	durations := []struct {
		name  string
		value *time.Duration
		def   time.Duration
	}{
		{"websocket.heartbeat_interval", &c.WebSocket.HeartbeatInterval, defaults.WebSocket.HeartbeatInterval},
		{"websocket.timeouts.send", &c.WebSocket.Timeouts.Send, defaults.WebSocket.Timeouts.Send},
		{"websocket.timeouts.ping", &c.WebSocket.Timeouts.Ping, defaults.WebSocket.Timeouts.Ping},
		{"websocket.timeouts.stop", &c.WebSocket.Timeouts.Stop, defaults.WebSocket.Timeouts.Stop},
		{"websocket.timeouts.close", &c.WebSocket.Timeouts.Close, defaults.WebSocket.Timeouts.Close},
		{"websocket.timeouts.heartbeat_cancel", &c.WebSocket.Timeouts.HeartbeatCancel, defaults.WebSocket.Timeouts.HeartbeatCancel},
		{"session.poll_interval", &c.Session.PollInterval, defaults.Session.PollInterval},
	}
	for _, d := range durations {
		if *d.value < 0 {
			return fmt.Errorf("%s cannot be negative", d.name)
		}
		if *d.value == 0 {
			*d.value = d.def
		}
	}

	if c.WebSocket.MaxMessageSize < 0 {
		return fmt.Errorf("websocket.max_message_size cannot be negative")
	}
	if c.WebSocket.MaxMessageSize == 0 {
		c.WebSocket.MaxMessageSize = defaults.WebSocket.MaxMessageSize
	}
	if c.Session.EventBuffer < 0 {
		return fmt.Errorf("session.event_buffer cannot be negative")
	}

	if len(c.Session.AutoAcceptSources) == 0 {
		c.Session.AutoAcceptSources = defaults.Session.AutoAcceptSources
	}
	for _, pattern := range append(append([]string(nil), c.Session.AutoAcceptSources...), c.Session.ExcludeSources...) {
		if _, err := glob.Compile(pattern); err != nil {
			return fmt.Errorf("invalid source pattern '%s': %w", pattern, err)
		}
	}

	// Set default verbosity if not specified
	if c.Logging.Verbosity == "" {
		c.Logging.Verbosity = "normal"
	}

	validLevels := map[string]bool{
		"quiet":   true,
		"normal":  true,
		"verbose": true,
		"debug":   true,
	}
	if !validLevels[c.Logging.Verbosity] {
		return fmt.Errorf("invalid logging verbosity: %s (must be 'quiet', 'normal', 'verbose', or 'debug')", c.Logging.Verbosity)
	}

	return nil
}

// RequireCredentials reports a missing API key or base URL.
func (c *Config) RequireCredentials() error {
	if c.APIKey == "" {
		return fmt.Errorf("api key is required (set api_key or %s)", EnvAPIKey)
	}
	if c.BaseURL == "" {
		return fmt.Errorf("base url is required (set base_url or %s)", EnvBaseURL)
	}
	return nil
}
