package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	router "github.com/pixelligue/zvonizvonu/internal/adapters/http"
	sig "github.com/pixelligue/zvonizvonu/internal/adapters/signal"
	"github.com/pixelligue/zvonizvonu/internal/app/mesh"
	"github.com/pixelligue/zvonizvonu/internal/app/sfu"
	"github.com/pixelligue/zvonizvonu/internal/config"
	"github.com/pixelligue/zvonizvonu/internal/media"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if cfg.Mode != "debug" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil && lvl != zerolog.NoLevel {
		zerolog.SetGlobalLevel(lvl)
	}

	pool, err := media.NewPionPool(ctx, cfg.MediaConfig())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to start media workers")
	}
	// A dead worker takes its routers with it and they cannot be rebuilt
	// elsewhere, so the process exits and lets the supervisor restart it.
	pool.Watch(ctx, func(idx int, err error) {
		log.Fatal().Err(err).Int("worker", idx).Msg("media worker died, exiting")
	})

	rooms := mesh.NewRegistry()
	orch := sfu.NewOrchestrator(pool, media.AudioCodecs())

	opts := sig.Options{
		ReadLimit:    cfg.ReadLimit,
		PingPeriod:   cfg.PingPeriod,
		WriteWait:    cfg.WriteWait,
		SendBuffer:   cfg.SendBuffer,
		RateMessages: cfg.RateLimit.Messages,
		RateInterval: cfg.RateLimit.Interval,
		SlowPeer:     sig.PolicyByName(cfg.SlowPeer),
	}

	r := router.SetupRouter(ctx, cfg, router.Services{
		Rooms:      rooms,
		Forwarding: orch,
		Signal:     sig.NewSignalWSController(orch, opts),
		Relay:      sig.NewMeshRelay(opts),
	})
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Int("workers", pool.Size()).Msg("zvonizvonu server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
			cancel()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	orch.Close()
	pool.Close()
	log.Info().Msg("Server exited gracefully")
}
