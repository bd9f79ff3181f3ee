// Package config loads and validates the responder configuration: the
// list of servers to run plus logging, shutdown and admin settings.
package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// MaxServers is the maximum number of servers a single configuration
// may define.
const MaxServers = 10

// ServerType identifies the protocol behavior of a configured server.
type ServerType string

const (
	// ServerTypeEcho echoes received bytes back to the peer.
	ServerTypeEcho ServerType = "echo"
	// ServerTypeWeb serves configured content over HTTP.
	ServerTypeWeb ServerType = "web"
)

// ServerSpec describes one server to run. Specs are created by the
// configuration layer and are read-only afterwards.
type ServerSpec struct {
	Type        ServerType `yaml:"type"`
	Port        int        `yaml:"port"`
	BindAddress string     `yaml:"bind_address"`
	// Content is the HTTP body served by web servers. Resolved to its
	// final bytes at configuration time; ignored for echo servers.
	Content string `yaml:"content,omitempty"`
}

// Address returns the listen address for this spec.
func (s *ServerSpec) Address() string {
	return net.JoinHostPort(s.BindAddress, strconv.Itoa(s.Port))
}

// Validate checks a single server spec.
func (s *ServerSpec) Validate() error {
	if s.Type != ServerTypeEcho && s.Type != ServerTypeWeb {
		return fmt.Errorf("invalid server type: %q (must be %q or %q)", s.Type, ServerTypeEcho, ServerTypeWeb)
	}

	if s.Port < 1 || s.Port > 65535 {
		return fmt.Errorf("invalid port: %d (must be between 1 and 65535)", s.Port)
	}

	if s.Type == ServerTypeWeb && s.Content == "" {
		return fmt.Errorf("web server on port %d must have content specified", s.Port)
	}

	return nil
}

// Config represents the application configuration
type Config struct {
	Servers  []ServerSpec   `yaml:"servers"`
	Admin    AdminConfig    `yaml:"admin" envconfig:"ADMIN"`
	Logging  LoggingConfig  `yaml:"logging" envconfig:"LOGGING"`
	Shutdown ShutdownConfig `yaml:"shutdown" envconfig:"SHUTDOWN"`
}

// AdminConfig contains the status/observability HTTP server settings.
// A port of 0 disables the admin server.
type AdminConfig struct {
	Host string `yaml:"host" envconfig:"HOST"`
	Port int    `yaml:"port" envconfig:"PORT"`
}

// Address returns the admin server address
func (c *AdminConfig) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" envconfig:"LEVEL"`   // debug, info, warn, error
	Format string `yaml:"format" envconfig:"FORMAT"` // json, text
}

// ShutdownConfig contains graceful shutdown settings
type ShutdownConfig struct {
	// GracePeriodSeconds is how long in-flight connections get to
	// finish before being forcibly closed.
	GracePeriodSeconds int `yaml:"grace_period_seconds" envconfig:"GRACE_PERIOD_SECONDS"`
}

// GracePeriod returns the shutdown grace period as a duration.
func (c *ShutdownConfig) GracePeriod() time.Duration {
	return time.Duration(c.GracePeriodSeconds) * time.Second
}

// DefaultConfigPath returns the default configuration file path.
func DefaultConfigPath() string {
	return "responder.yaml"
}

// Load loads configuration from file and environment variables
func Load(configFile string) (*Config, error) {
	// Start with defaults
	cfg := defaultConfig()

	// Load from YAML file if provided (overrides defaults)
	if configFile != "" {
		data, err := os.ReadFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	// Override with environment variables (highest priority)
	if err := envconfig.Process("RESPONDER", cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}

	cfg.applyDefaults()

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible default values
func defaultConfig() *Config {
	return &Config{
		Admin: AdminConfig{
			Host: "127.0.0.1",
			Port: 0, // disabled unless configured
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Shutdown: ShutdownConfig{
			GracePeriodSeconds: 5,
		},
	}
}

// applyDefaults fills in per-server defaults the file may omit.
func (c *Config) applyDefaults() {
	for i := range c.Servers {
		if c.Servers[i].BindAddress == "" {
			c.Servers[i].BindAddress = "0.0.0.0"
		}
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if len(c.Servers) == 0 {
		return fmt.Errorf("at least one server must be configured")
	}

	if len(c.Servers) > MaxServers {
		return fmt.Errorf("maximum of %d servers allowed, got %d", MaxServers, len(c.Servers))
	}

	// Validate each server and check for port conflicts
	ports := make(map[int]bool, len(c.Servers))
	for i := range c.Servers {
		if err := c.Servers[i].Validate(); err != nil {
			return err
		}
		if ports[c.Servers[i].Port] {
			return fmt.Errorf("port %d is used by multiple servers", c.Servers[i].Port)
		}
		ports[c.Servers[i].Port] = true
	}

	if c.Admin.Port < 0 || c.Admin.Port > 65535 {
		return fmt.Errorf("invalid admin port: %d", c.Admin.Port)
	}

	if c.Shutdown.GracePeriodSeconds < 0 {
		return fmt.Errorf("shutdown grace period must not be negative")
	}

	return nil
}

// Save writes the configuration to a YAML file.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
