// Package config loads process settings from the environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	HTTPAddr  string `envconfig:"HTTP_ADDR" default:":8081"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`

	// ControllerHost opens a networked session on startup when set.
	ControllerHost    string        `envconfig:"CONTROLLER_HOST"`
	ControllerTimeout time.Duration `envconfig:"CONTROLLER_TIMEOUT" default:"5s"`

	// StandalonePixels or StandaloneMapping open a standalone session on startup.
	StandalonePixels  *int   `envconfig:"STANDALONE_PIXELS"`
	StandaloneMapping string `envconfig:"STANDALONE_MAPPING"`

	DiscoveryService string        `envconfig:"DISCOVERY_SERVICE" default:"_wled._tcp.local."`
	DiscoveryTimeout time.Duration `envconfig:"DISCOVERY_TIMEOUT" default:"2s"`

	LayoutSpacing    float64 `envconfig:"LAYOUT_SPACING" default:"50"`
	LayoutTopPadding float64 `envconfig:"LAYOUT_TOP_PADDING" default:"0"`
}

// Load reads the environment and validates the result.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("error processing environment configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch strings.ToLower(c.LogFormat) {
	case "json", "console":
	default:
		return fmt.Errorf("LOG_FORMAT must be json or console, got %q", c.LogFormat)
	}
	if c.ControllerTimeout <= 0 {
		return errors.New("CONTROLLER_TIMEOUT must be positive")
	}
	if c.DiscoveryTimeout <= 0 {
		return errors.New("DISCOVERY_TIMEOUT must be positive")
	}
	if c.LayoutSpacing <= 0 {
		return errors.New("LAYOUT_SPACING must be positive")
	}
	if c.LayoutTopPadding < 0 {
		return errors.New("LAYOUT_TOP_PADDING must not be negative")
	}
	if strings.TrimSpace(c.ControllerHost) != "" && c.HasStandalone() {
		return errors.New("CONTROLLER_HOST cannot be combined with STANDALONE_PIXELS or STANDALONE_MAPPING")
	}
	return nil
}

// HasStandalone reports whether a standalone session was requested.
func (c *Config) HasStandalone() bool {
	return c.StandalonePixels != nil || strings.TrimSpace(c.StandaloneMapping) != ""
}
