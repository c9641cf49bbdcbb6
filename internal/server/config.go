// Package server provides the runtime configuration for the minichat
// service, loaded from the environment with sensible defaults.
package server

import (
	"fmt"
	"time"

	env "github.com/Netflix/go-env"
)

// defaultDisplayName is assigned when a connection request carries no name.
const defaultDisplayName = "이용자"

// defaultRoom is joined when a connection request carries no room.
const defaultRoom = "lobby"

// Config holds the server settings. Every field can be overridden through the
// environment variable named in its tag.
type Config struct {
	Port             string        `env:"SERVER_PORT,default=:8080"`
	AllowedOrigins   []string      `env:"ALLOWED_ORIGINS,default=http://localhost:8080"`
	MaxMessageSize   int64         `env:"MAX_MESSAGE_SIZE,default=1048576"`
	SendBufferSize   int           `env:"SEND_BUFFER_SIZE,default=256"`
	HistoryLimit     int           `env:"HISTORY_LIMIT,default=50"`
	DisplayTimezone  string        `env:"DISPLAY_TIMEZONE,default=Asia/Seoul"`
	BadgerFilepath   string        `env:"BADGER_FILEPATH,default=data/messages"`
	SQLiteFilepath   string        `env:"SQLITE_FILEPATH,default=data/presence.db"`
	PersistQueueSize int           `env:"PERSIST_QUEUE_SIZE,default=1024"`
	ShutdownTimeout  time.Duration `env:"SHUTDOWN_TIMEOUT,default=10s"`
	LogLevel         string        `env:"LOG_LEVEL,default=info"`
	Env              string        `env:"APP_ENV,default=dev"`
}

// LoadConfig reads the configuration from the environment.
func LoadConfig() (*Config, error) {
	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return nil, fmt.Errorf("load config from environment: %w", err)
	}
	return sanitizeConfig(&cfg), nil
}

// NewConfig returns a Config populated with defaults only, ignoring the
// environment. Useful for tests.
func NewConfig() *Config {
	return sanitizeConfig(&Config{
		Port:            ":8080",
		AllowedOrigins:  []string{"http://localhost:8080"},
		DisplayTimezone: "Asia/Seoul",
	})
}

func sanitizeConfig(cfg *Config) *Config {
	if cfg.Port == "" {
		cfg.Port = ":8080"
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = 1 << 20
	}
	if cfg.SendBufferSize <= 0 {
		cfg.SendBufferSize = 256
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 50
	}
	if cfg.PersistQueueSize <= 0 {
		cfg.PersistQueueSize = 1024
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	return cfg
}
