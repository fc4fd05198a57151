package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"interactive-gym/internal/config"
	"interactive-gym/internal/logging"

	"github.com/rs/zerolog/log"
)

func main() {
	logCfg, err := config.LoadLog()
	if err != nil {
		panic(err)
	}
	if err := logging.Init(logCfg); err != nil {
		panic(err)
	}
	defer func() { _ = logging.Close() }()

	cfg, err := config.LoadBot()
	if err != nil {
		log.Fatal().Err(err).Msg("load bot config failed")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b := newBot(cfg)
	for i := 0; i < cfg.MaxGames || cfg.MaxGames <= 0; i++ {
		if ctx.Err() != nil {
			return
		}
		reason, err := b.playOnce(ctx)
		if err != nil {
			log.Error().Err(err).Str("bot", cfg.Name).Int("game", i+1).Msg("game_failed")
			os.Exit(1)
		}
		log.Info().Str("bot", cfg.Name).Int("game", i+1).Str("reason", reason).Msg("game_finished")
	}
}
