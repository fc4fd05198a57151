package config

import (
	"time"

	"github.com/caarlos0/env/v11"
)

type ServerConfig struct {
	HTTPAddr    string `env:"HTTP_ADDR" envDefault:":8080"`
	AdminAPIKey string `env:"ADMIN_API_KEY"`
	// PostgresDSN is optional; game recording is off without it.
	PostgresDSN string `env:"POSTGRES_DSN"`
	AutoMigrate bool   `env:"AUTO_MIGRATE" envDefault:"true"`

	MaxConcurrentGames int           `env:"MAX_CONCURRENT_GAMES" envDefault:"1000"`
	ScenePath          string        `env:"SCENE_PATH"`
	JanitorInterval    time.Duration `env:"JANITOR_INTERVAL" envDefault:"1s"`

	InputRatePerSec  float64 `env:"INPUT_RATE_PER_SEC" envDefault:"60"`
	InputBurst       int     `env:"INPUT_BURST" envDefault:"30"`
	WSReadLimitBytes int64   `env:"WS_READ_LIMIT_BYTES" envDefault:"65536"`
	SpectatorBuffer  int     `env:"SPECTATOR_BUFFER" envDefault:"64"`

	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`

	// Lifecycle webhooks. Targets come from NOTIFY_CONFIG_PATH when set,
	// otherwise from NOTIFY_CONFIG_JSON.
	NotifyEnabled        bool   `env:"NOTIFY_ENABLED" envDefault:"false"`
	NotifyConfigPath     string `env:"NOTIFY_CONFIG_PATH"`
	NotifyConfigJSON     string `env:"NOTIFY_CONFIG_JSON"`
	NotifyConfigReloadMS int    `env:"NOTIFY_CONFIG_RELOAD_MS" envDefault:"1000"`
	NotifyWorkers        int    `env:"NOTIFY_WORKERS" envDefault:"2"`
	NotifyRetryMax       int    `env:"NOTIFY_RETRY_MAX" envDefault:"3"`
	NotifyRetryBaseMS    int    `env:"NOTIFY_RETRY_BASE_MS" envDefault:"500"`
}

func LoadServer() (ServerConfig, error) {
	var cfg ServerConfig
	err := env.Parse(&cfg)
	return cfg, err
}
