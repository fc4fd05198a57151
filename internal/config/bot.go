package config

import "github.com/caarlos0/env/v11"

type BotConfig struct {
	WSURL    string   `env:"WS_URL" envDefault:"ws://localhost:8080/ws"`
	Name     string   `env:"BOT_NAME" envDefault:"key-bot"`
	Keys     []string `env:"BOT_KEYS" envDefault:"ArrowLeft,ArrowRight" envSeparator:","`
	MaxGames int      `env:"BOT_MAX_GAMES" envDefault:"1"`
}

func LoadBot() (BotConfig, error) {
	var cfg BotConfig
	err := env.Parse(&cfg)
	return cfg, err
}
