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

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	router "github.com/dkeye/Buzzline/internal/adapters/http"
	wssignal "github.com/dkeye/Buzzline/internal/adapters/signal"
	"github.com/dkeye/Buzzline/internal/app"
	"github.com/dkeye/Buzzline/internal/app/orch"
	"github.com/dkeye/Buzzline/internal/config"
	"github.com/dkeye/Buzzline/internal/core"
	"github.com/dkeye/Buzzline/internal/domain"
	"github.com/dkeye/Buzzline/internal/infra/gormstore"
	"github.com/dkeye/Buzzline/internal/infra/redistokens"
)

type storage interface {
	core.RoomRepository
	core.ProjectResolver
	core.UsageSource
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if os.Getenv("CONFIG_ENV") == "" || os.Getenv("CONFIG_ENV") == "dev" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if cfg.Mode == "debug" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	store, closeStore, err := openStorage(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open storage")
	}
	defer closeStore()

	tokens, closeTokens, err := openTokens(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open token backend")
	}
	defer closeTokens()

	events := app.NewNotifier()
	events.Subscribe(app.LogEvents)
	events.Subscribe(app.UsageRecorder(store, cfg.Storage.Timeout))

	rooms := app.NewRoomStore(store, tokens, events, cfg.Storage.Timeout, app.WithDefaults(app.RoomDefaults{
		MaxParticipants: cfg.Rooms.DefaultMaxParticipants,
		TTL:             cfg.Rooms.DefaultTTL,
	}))

	policy, err := app.PolicyByName(cfg.Signal.Backpressure)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid backpressure policy")
	}

	o := &orch.Orchestrator{
		Rooms:             rooms,
		Tokens:            tokens,
		Peers:             core.NewPeerRegistry(),
		Quota:             app.NewPlanQuota(store, cfg.Quota.Timeout, nil),
		Policy:            policy,
		NotifyUnavailable: cfg.Signal.NotifyUnavailablePeer,
		ICEServers:        cfg.ICEServers,
		Timeout:           cfg.Storage.Timeout,
		CloseRetries:      cfg.Signal.CloseRetries,
		CloseBackoff:      cfg.Signal.CloseBackoff,
	}

	ws := wssignal.NewSignalWSController(o, wssignal.NewRoomRateLimiter(cfg.JoinRate.Limit, cfg.JoinRate.Interval), wssignal.Options{
		ReadLimit:  cfg.ReadLimit,
		PingPeriod: cfg.PingPeriod,
		WriteWait:  cfg.WriteWait,
		SendBuffer: cfg.SendBuffer,
	})

	r := router.SetupRouter(ctx, cfg.Mode, o, store, ws)
	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", addr).Msg("Buzzline signaling server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("server error")
	}
	o.Wait()
	events.Wait()
	log.Info().Msg("Server exited gracefully")
}

func openStorage(ctx context.Context, cfg *config.Config) (storage, func(), error) {
	switch cfg.Storage.Driver {
	case "mysql":
		s, err := gormstore.Open(cfg.Storage.DSN)
		if err != nil {
			return nil, nil, err
		}
		for _, p := range cfg.Projects {
			project, plan := projectFromConfig(p)
			if err := s.PutProject(ctx, project, plan); err != nil {
				_ = s.Close()
				return nil, nil, err
			}
		}
		return s, func() { _ = s.Close() }, nil
	default:
		s := core.NewLocalStore()
		for _, p := range cfg.Projects {
			s.PutProject(projectFromConfig(p))
		}
		return s, func() {}, nil
	}
}

func openTokens(ctx context.Context, cfg *config.Config) (app.TokenIssuer, func(), error) {
	if cfg.Tokens.Backend != "redis" {
		return app.NewMemoryTokens(nil), func() {}, nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, cfg.Storage.Timeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, nil, fmt.Errorf("redis ping: %w", err)
	}
	log.Info().Str("module", "redistokens").Str("addr", cfg.Redis.Addr).Msg("redis connected")
	return redistokens.New(rdb, cfg.Redis.Prefix), func() { _ = rdb.Close() }, nil
}

func projectFromConfig(p config.ProjectConfig) (*domain.Project, domain.PlanName) {
	return &domain.Project{
		ID:             domain.ProjectID(p.ID),
		UserID:         domain.UserID(p.UserID),
		APIKey:         p.APIKey,
		AllowedOrigins: p.AllowedOrigins,
	}, domain.PlanName(p.Plan)
}
