// Package config handles consoled configuration from a YAML file with
// environment variable overrides. Env always wins over the file so that
// container deployments can tweak a single knob without shipping a new
// config file.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level consoled configuration.
type Config struct {
	// Listen is the HTTP listen address, e.g. ":3002".
	Listen string `yaml:"listen"`

	// BackendURL is the origin of the backend API the gateway forwards to.
	BackendURL string `yaml:"backend_url"`

	// StateDB is the path of the SQLite database holding UI state and
	// conversations. ":memory:" is accepted for tests.
	StateDB string `yaml:"state_db"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`

	Activity   ActivityConfig   `yaml:"activity"`
	Onboarding OnboardingConfig `yaml:"onboarding"`
}

// ActivityConfig tunes the synthetic live-activity feed.
type ActivityConfig struct {
	// WindowSize is the fixed number of samples kept in the window.
	WindowSize int `yaml:"window_size"`

	// RefreshInterval is the period between generated samples.
	RefreshInterval time.Duration `yaml:"refresh_interval"`

	// SeedStep is the backward timestamp step used when seeding the
	// initial window.
	SeedStep time.Duration `yaml:"seed_step"`
}

// OnboardingConfig tunes the guided first-run flow.
type OnboardingConfig struct {
	// TourSteps is the number of steps in the guided tour.
	TourSteps int `yaml:"tour_steps"`
}

// Load reads a YAML configuration file, applies env overrides, then
// fills defaults. An empty path skips the file and uses env + defaults
// only.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("PORT"); v != "" {
		c.Listen = ":" + v
	}
	if v := os.Getenv("BACKEND_URL"); v != "" {
		c.BackendURL = v
	}
	if v := os.Getenv("STATE_DB"); v != "" {
		c.StateDB = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
}

func (c *Config) applyDefaults() {
	if c.Listen == "" {
		c.Listen = ":3002"
	}
	if c.BackendURL == "" {
		c.BackendURL = "http://localhost:8000"
	}
	if c.StateDB == "" {
		c.StateDB = "db/console.db"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Activity.WindowSize <= 0 {
		c.Activity.WindowSize = 31
	}
	if c.Activity.RefreshInterval <= 0 {
		c.Activity.RefreshInterval = 6 * time.Second
	}
	if c.Activity.SeedStep <= 0 {
		c.Activity.SeedStep = time.Minute
	}
	if c.Onboarding.TourSteps <= 0 {
		c.Onboarding.TourSteps = 4
	}
}
