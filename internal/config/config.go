package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/easelhq/easel/internal/engine"
)

// SessionConfig represents the top-level easel.yml configuration.
type SessionConfig struct {
	Version  string        `yaml:"version"`
	Session  string        `yaml:"session"`
	Canvas   string        `yaml:"canvas"`
	RedisURL string        `yaml:"redis_url"`
	User     UserConfig    `yaml:"user"`
	Engine   *EngineConfig `yaml:"engine,omitempty"`
}

// UserConfig identifies the local collaborator.
type UserConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// EngineConfig overrides the engine's timing defaults. All fields are
// optional Go duration strings (e.g. "30s", "16ms").
type EngineConfig struct {
	LeaseTTL          string `yaml:"lease_ttl,omitempty"`
	FlushInterval     string `yaml:"flush_interval,omitempty"`
	PresenceStaleness string `yaml:"presence_staleness,omitempty"`
	LedgerWindow      string `yaml:"ledger_window,omitempty"`
}

// Load reads and validates an easel.yml file.
func Load(path string) (*SessionConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg SessionConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate performs strict validation on the configuration.
func (c *SessionConfig) Validate() error {
	if c.Version != "1.0" {
		return fmt.Errorf("unsupported version: %s (expected: 1.0)", c.Version)
	}

	if c.Session == "" {
		return fmt.Errorf("session name cannot be empty")
	}

	if c.Canvas == "" {
		return fmt.Errorf("canvas name cannot be empty")
	}

	if c.RedisURL == "" {
		return fmt.Errorf("redis_url cannot be empty")
	}

	if c.User.ID == "" {
		return fmt.Errorf("user.id cannot be empty")
	}

	if c.User.Name == "" {
		return fmt.Errorf("user.name cannot be empty")
	}

	if c.Engine != nil {
		for name, value := range map[string]string{
			"lease_ttl":          c.Engine.LeaseTTL,
			"flush_interval":     c.Engine.FlushInterval,
			"presence_staleness": c.Engine.PresenceStaleness,
			"ledger_window":      c.Engine.LedgerWindow,
		} {
			if value == "" {
				continue
			}
			if _, err := time.ParseDuration(value); err != nil {
				return fmt.Errorf("invalid engine.%s: %w", name, err)
			}
		}
	}

	return nil
}

// EngineConfig maps the file configuration onto the engine's Config.
// Unset durations stay zero and pick up the engine defaults.
func (c *SessionConfig) EngineConfig() engine.Config {
	cfg := engine.Config{
		CanvasID:    c.Canvas,
		UserID:      c.User.ID,
		DisplayName: c.User.Name,
	}

	if c.Engine == nil {
		return cfg
	}

	cfg.LeaseTTL = parseDuration(c.Engine.LeaseTTL)
	cfg.FlushInterval = parseDuration(c.Engine.FlushInterval)
	cfg.PresenceStaleness = parseDuration(c.Engine.PresenceStaleness)
	cfg.LedgerWindow = parseDuration(c.Engine.LedgerWindow)
	return cfg
}

// parseDuration assumes Validate already ran; invalid input maps to zero
// and therefore to the engine default.
func parseDuration(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}
