package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	HTTPAddr     string     `env:"HTTP_ADDR" envDefault:":8080"`
	DBPath       string     `env:"DB_PATH" envDefault:"data/backstage.db"`
	LogLevel     slog.Level `env:"LOG_LEVEL" envDefault:"INFO"`
	SPADir       string     `env:"SPA_DIR"`
	RedisURL     string     `env:"REDIS_URL"`
	AdminKeyHash string     `env:"ADMIN_KEY_HASH,required"`

	// Liveness timing. One staleness window for every reader; devices
	// heartbeat on the interval and readers resample on the tick. All
	// three are surfaced through the state endpoint so clients and the
	// server agree on the numbers.
	StaleAfter        time.Duration `env:"STALE_AFTER" envDefault:"45s"`
	HeartbeatInterval time.Duration `env:"HEARTBEAT_INTERVAL" envDefault:"15s"`
	LivenessTick      time.Duration `env:"LIVENESS_TICK" envDefault:"5s"`
}

func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	return &cfg, nil
}
