package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config читается из окружения при старте сервера.
type Config struct {
	ServerAddress string        `env:"SERVER_ADDRESS" envDefault:"0.0.0.0:8080"`
	PostgresConn  string        `env:"POSTGRES_CONN,required"`
	InvitationTTL time.Duration `env:"INVITATION_TTL" envDefault:"24h"`
	WorkspaceRoot string        `env:"WORKSPACE_ROOT" envDefault:"workspaces"`
}

func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}
