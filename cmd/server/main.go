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

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	router "github.com/dkeye/VoiceSpaces/internal/adapters/http"
	"github.com/dkeye/VoiceSpaces/internal/app"
	"github.com/dkeye/VoiceSpaces/internal/app/orch"
	"github.com/dkeye/VoiceSpaces/internal/config"
	"github.com/dkeye/VoiceSpaces/internal/domain"
	"github.com/dkeye/VoiceSpaces/internal/engine"
	"github.com/dkeye/VoiceSpaces/internal/engine/loopback"
	"github.com/dkeye/VoiceSpaces/internal/engine/ortc"
	"github.com/dkeye/VoiceSpaces/internal/events"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

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
	if err := config.ApplyLogLevel(cfg.LogLevel); err != nil {
		log.Warn().Err(err).Msg("keeping default log level")
	}

	if err := run(ctx, cfg); err != nil {
		log.Error().Err(err).Msg("server stopped")
		os.Exit(1)
	}
	log.Info().Msg("Server exited gracefully")
}

func newEngine(cfg config.EngineConfig) (engine.Engine, error) {
	switch cfg.Kind {
	case "", "ortc":
		return ortc.New(ortc.Config{
			ListenIP:    cfg.ListenIP,
			AnnouncedIP: cfg.AnnouncedIP,
			PortMin:     cfg.PortMin,
			PortMax:     cfg.PortMax,
		})
	case "loopback":
		log.Warn().Msg("loopback engine selected, media will not flow")
		return loopback.New(cfg.PortMin, cfg.PortMax), nil
	default:
		return nil, fmt.Errorf("unknown engine kind %q", cfg.Kind)
	}
}

func newPublisher(ctx context.Context, cfg config.EventsConfig) events.Publisher {
	if cfg.AMQPURL == "" {
		return events.Nop{}
	}
	pub, err := events.DialAMQP(ctx, cfg.AMQPURL, cfg.Queue, 5)
	if err != nil {
		log.Warn().Err(err).Msg("membership events disabled")
		return events.Nop{}
	}
	return pub
}

// watchEngine returns ErrFatalInfra once the engine dies, after delay so
// in-flight responses can flush. It returns nil when ctx ends first.
func watchEngine(ctx context.Context, eng engine.Engine, delay time.Duration) error {
	select {
	case <-ctx.Done():
		return nil
	case cause := <-eng.Died():
		log.Error().Err(cause).Dur("delay", delay).Msg("media engine died, exiting")
		select {
		case <-time.After(delay):
		case <-ctx.Done():
		}
		return fmt.Errorf("%w: %w", domain.ErrFatalInfra, cause)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	eng, err := newEngine(cfg.Engine)
	if err != nil {
		return err
	}
	defer func() { _ = eng.Close() }()

	roomPolicy, err := app.ParseRoomPolicy(cfg.Rooms.Policy)
	if err != nil {
		return err
	}
	backpressure, err := app.PolicyByName(cfg.Signal.Backpressure)
	if err != nil {
		return err
	}

	rooms := app.NewRoomDirectory(eng, []engine.CodecCapability{engine.Opus()}, roomPolicy, cfg.Engine.Timeout)
	defer rooms.Close()

	preload := make([]domain.RoomID, 0, len(cfg.Rooms.Preload))
	for _, raw := range cfg.Rooms.Preload {
		id, err := domain.ParseRoomID(raw)
		if err != nil {
			return fmt.Errorf("rooms.preload %q: %w", raw, err)
		}
		preload = append(preload, id)
	}
	if err := rooms.Preload(ctx, preload); err != nil {
		return err
	}

	pub := newPublisher(ctx, cfg.Events)
	defer func() { _ = pub.Close() }()

	o := &orch.Orchestrator{
		Registry:      app.NewRegistry(),
		Rooms:         rooms,
		Transports:    app.NewTransportLedger(),
		Producers:     app.NewProducerLedger(),
		Consumers:     app.NewConsumerLedger(),
		Policy:        backpressure,
		Events:        pub,
		EngineTimeout: cfg.Engine.Timeout,
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router.SetupRouter(ctx, cfg, o),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", addr).Msg("Voice server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error { return watchEngine(gctx, eng, cfg.Engine.ShutdownDelay) })
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server forced to shutdown")
		}
		return nil
	})
	return g.Wait()
}
