package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"interactive-gym/internal/arena"
	"interactive-gym/internal/config"
	"interactive-gym/internal/logging"
	"interactive-gym/internal/mcpserver"
	"interactive-gym/internal/notify"
	"interactive-gym/internal/render"
	"interactive-gym/internal/slots"
	"interactive-gym/internal/store"
	"interactive-gym/internal/stream"
	httptransport "interactive-gym/internal/transport/http"
	"interactive-gym/internal/ws"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newServeCmd() *cobra.Command {
	var scenePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the game server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if scenePath != "" {
				if err := os.Setenv("SCENE_PATH", scenePath); err != nil {
					return err
				}
			}
			cfg, err := config.LoadApp()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := logging.Init(cfg.Log); err != nil {
				return fmt.Errorf("init logging: %w", err)
			}
			defer func() { _ = logging.Close() }()
			return serve(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVar(&scenePath, "scene", "", "scene file (overrides SCENE_PATH)")
	return cmd
}

func serve(ctx context.Context, cfg config.AppConfig) error {
	wiring, err := buildScene(cfg.Scene)
	if err != nil {
		return err
	}

	var (
		st       *store.Store
		recorder *store.Recorder
		history  httptransport.History
	)
	if cfg.Server.PostgresDSN != "" {
		st, err = store.New(ctx, cfg.Server.PostgresDSN)
		if err != nil {
			return fmt.Errorf("store init: %w", err)
		}
		defer st.Close()
		if err := st.Ping(ctx); err != nil {
			return fmt.Errorf("db ping: %w", err)
		}
		if cfg.Server.AutoMigrate {
			if err := st.Migrate(ctx); err != nil {
				return fmt.Errorf("db migrate: %w", err)
			}
		}
		recorder = store.NewRecorder(st, cfg.Scene.Env.Name, 0)
		history = st
	} else {
		log.Warn().Msg("postgres_dsn_unset_recording_disabled")
	}

	rooms := stream.NewRooms(cfg.Server.SpectatorBuffer)
	hub := ws.NewServer(ws.Options{
		ReadLimit:           cfg.Server.WSReadLimitBytes,
		InputRate:           cfg.Server.InputRatePerSec,
		InputBurst:          cfg.Server.InputBurst,
		MaxLatency:          cfg.Scene.MaxPing,
		MinPingMeasurements: cfg.Scene.MinPingMeasurements,
		NewID:               store.NewID,
	}, rooms)

	notifyCfg, err := notify.ConfigFromServer(cfg.Server)
	if err != nil {
		return fmt.Errorf("notify config: %w", err)
	}
	notifier := notify.NewManager(notifyCfg, cfg.Scene.Env.Name)

	var hooks arena.MultiCallbacks
	if recorder != nil {
		hooks = append(hooks, recorder)
	}
	if notifier.Enabled() {
		hooks = append(hooks, notifier)
	}
	var opts []arena.Option
	if len(hooks) > 0 {
		opts = append(opts, arena.WithCallbacks(hooks))
	}
	coord, err := arena.New(wiring.cfg, arena.Deps{
		Slots:      slots.NewRegistry(cfg.Server.MaxConcurrentGames),
		NewEnv:     wiring.newEnv,
		Policies:   wiring.policies,
		Translator: wiring.translator,
		Transport:  hub,
		Encoder: render.JPEGEncoder{
			Quality: cfg.Scene.ImageQuality,
			Width:   cfg.Scene.GameWidth,
			Height:  cfg.Scene.GameHeight,
		},
		NewID: store.NewID,
	}, opts...)
	if err != nil {
		return fmt.Errorf("coordinator init: %w", err)
	}
	hub.SetCoordinator(coord)

	r := httptransport.NewRouter(httptransport.RouterDeps{
		Sessions:    coord,
		Rooms:       rooms,
		WS:          hub.HandleWS,
		MCP:         mcpserver.New(coord, version).Handler(),
		History:     history,
		AdminAPIKey: cfg.Server.AdminAPIKey,
	})
	httptransport.LogRoutes(r)

	server := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(sigCtx)

	// Recorder and notifier outlive gctx so games ended during shutdown
	// still land.
	sinkCtx, stopSinks := context.WithCancel(context.Background())
	defer stopSinks()
	if recorder != nil {
		g.Go(func() error { return recorder.Run(sinkCtx) })
	}
	if err := notifier.Start(sinkCtx); err != nil {
		return fmt.Errorf("notify start: %w", err)
	}

	coord.StartJanitor(gctx, cfg.Server.JanitorInterval)

	g.Go(func() error {
		log.Info().Str("addr", cfg.Server.HTTPAddr).Str("env", cfg.Scene.Env.Name).Int("max_games", cfg.Server.MaxConcurrentGames).Msg("http_listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutdown_started")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := coord.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("coordinator_shutdown_incomplete")
		}
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("http_shutdown_failed")
		}
		stopSinks()
		return nil
	})

	err = g.Wait()
	log.Info().Err(err).Msg("server_stopped")
	return err
}
