package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	HTTPAddr string     `env:"HTTP_ADDR" envDefault:":8080"`
	DBPath   string     `env:"DB_PATH" envDefault:"devbattle.db"`
	LogLevel slog.Level `env:"LOG_LEVEL" envDefault:"INFO"`
	SPADir   string     `env:"SPA_DIR"`

	SessionTTL   time.Duration `env:"SESSION_TTL" envDefault:"168h"`
	CookieSecure bool          `env:"COOKIE_SECURE" envDefault:"false"`

	// BroadcastOnJoin makes join-code redemption publish userJoined to the
	// challenge room. Off by default: the two paths are independent.
	BroadcastOnJoin bool `env:"BROADCAST_ON_JOIN" envDefault:"false"`
}

func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	return &cfg, nil
}
