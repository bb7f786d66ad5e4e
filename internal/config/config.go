// Package config loads service configuration from environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds the runtime configuration of the user service.
type Config struct {
	Port         int    `env:"PORT" envDefault:"8080"`
	DatabasePath string `env:"DATABASE_PATH" envDefault:"useriq.db"`

	// ConfirmWindow is how long a created user may confirm before the
	// confirmation link lapses.
	ConfirmWindow time.Duration `env:"USER_CONFIRM_WINDOW" envDefault:"72h"`

	// TopicPrefix namespaces outbound notification routing keys, e.g.
	// "staging" turns user.confirmed into staging.user.confirmed.
	TopicPrefix string `env:"TOPIC_PREFIX"`

	// SnapshotCompactMinTail is the event-tail length that qualifies a
	// user for re-snapshotting. Zero disables the periodic sweep.
	SnapshotCompactMinTail  int           `env:"SNAPSHOT_COMPACT_MIN_TAIL" envDefault:"50"`
	SnapshotCompactInterval time.Duration `env:"SNAPSHOT_COMPACT_INTERVAL" envDefault:"1h"`

	IAM IAMConfig `envPrefix:"IAM_"`
}

// IAMConfig holds identity provider credentials. When BaseURL is empty
// the service runs without external provisioning.
type IAMConfig struct {
	BaseURL      string `env:"BASE_URL"`
	ClientID     string `env:"CLIENT_ID"`
	ClientSecret string `env:"CLIENT_SECRET"`
	Audience     string `env:"AUDIENCE"`
	Connection   string `env:"CONNECTION"`
}

// Enabled reports whether external identity provisioning is configured.
func (c IAMConfig) Enabled() bool {
	return c.BaseURL != "" && c.ClientID != "" && c.ClientSecret != ""
}

// Load parses the configuration from the environment.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parsing environment: %w", err)
	}
	if cfg.ConfirmWindow <= 0 {
		return Config{}, fmt.Errorf("confirm window must be positive, got %s", cfg.ConfirmWindow)
	}
	return cfg, nil
}
