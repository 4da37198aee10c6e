package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cyp0633/libroutine/availability"
	"github.com/cyp0633/libroutine/careblock"
	"github.com/cyp0633/libroutine/config"
	"github.com/cyp0633/libroutine/eventlog"
	hhmemory "github.com/cyp0633/libroutine/household/memory"
	"github.com/cyp0633/libroutine/httpapi"
	"github.com/cyp0633/libroutine/internal/clock"
	"github.com/cyp0633/libroutine/notify"
	"github.com/cyp0633/libroutine/persist"
	"github.com/cyp0633/libroutine/persist/file"
	persistmem "github.com/cyp0633/libroutine/persist/memory"
	"github.com/cyp0633/libroutine/persist/postgres"
	redisstore "github.com/cyp0633/libroutine/persist/redis"
	"github.com/cyp0633/libroutine/recurrence"
	"github.com/cyp0633/libroutine/transition"
)

var Version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger := cfg.NewLogger(os.Stderr).With("version", Version)

	if err := run(cfg, logger); err != nil {
		logger.Error("routined exited", "error", err)
		os.Exit(1)
	}
}

// closer releases a backend connection on shutdown
type closer func()

func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (persist.Store, closer, error) {
	switch cfg.Storage {
	case config.StorageFile:
		s, err := file.New(cfg.DataDir)
		return s, func() {}, err
	case config.StorageRedis:
		client, err := redisstore.Dial(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, nil, err
		}
		return redisstore.New(client, cfg.RedisPrefix), func() { client.Close() }, nil
	case config.StoragePostgres:
		pool, err := pgxpool.New(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		s := postgres.NewWithTable(pool, cfg.PostgresTable)
		if err := s.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return s, pool.Close, nil
	}
	logger.Warn("using in-memory storage, state is lost on restart")
	return persistmem.New(), func() {}, nil
}

func openEmitter(ctx context.Context, cfg *config.Config, logger *slog.Logger) (notify.Emitter, closer, error) {
	bus := notify.NewBus()
	bus.Subscribe(func(_ context.Context, ev notify.Event) {
		logger.Info("event", "name", ev.Name, "child_id", ev.ChildID, "ref", ev.Ref)
	})
	if cfg.NotifyChannel == "" {
		return bus, func() {}, nil
	}

	client, err := redisstore.Dial(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return nil, nil, err
	}
	publisher := notify.NewRedis(client, cfg.NotifyChannel, logger)
	bus.Subscribe(publisher.Emit)
	return bus, func() { client.Close() }, nil
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	clk := clock.Zoned{Loc: loc}

	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	emitter, closeEmitter, err := openEmitter(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeEmitter()

	engineConfig := recurrence.DisabledCacheConfig
	if cfg.RecurrenceCache {
		engineConfig = recurrence.DefaultEngineConfig
	}
	engine := recurrence.NewEngineWithConfig(engineConfig)
	defer engine.Close()

	hh := hhmemory.New(
		hhmemory.WithLogger(logger.With("component", "household")),
		hhmemory.WithStore(store, ""),
	)
	blocks := careblock.NewRegistry(
		careblock.WithLogger(logger.With("component", "careblock")),
		careblock.WithClock(clk),
		careblock.WithEngine(engine),
		careblock.WithStore(store, ""),
	)
	logOpts := func(name string) []eventlog.Option {
		return []eventlog.Option{
			eventlog.WithLogger(logger.With("component", name)),
			eventlog.WithClock(clk),
			eventlog.WithNapSchedules(hh),
			eventlog.WithEmitter(emitter),
			eventlog.WithExpiry(cfg.Expiry()),
			eventlog.WithStore(store, ""),
		}
	}
	sleep := eventlog.NewLog(eventlog.Sleep, logOpts("sleep")...)
	away := eventlog.NewLog(eventlog.Away, logOpts("away")...)

	detector := transition.New(hh, blocks, sleep, away,
		transition.WithLogger(logger.With("component", "transition")),
		transition.WithClock(clk),
		transition.WithEmitter(emitter),
		transition.WithDeadline(cfg.TransitionDeadline),
		transition.WithRetention(cfg.TransitionRetention),
		transition.WithStore(store, ""),
	)
	avail := availability.New(hh, blocks, sleep, away,
		availability.WithLogger(logger.With("component", "availability")),
		availability.WithClock(clk),
		availability.WithSuppressor(detector),
	)

	for _, r := range []interface{ Restore(context.Context) error }{hh, blocks, sleep, away, detector} {
		if err := r.Restore(ctx); err != nil {
			return err
		}
	}

	scheduler := transition.NewScheduler(detector,
		transition.WithSchedulerLogger(logger.With("component", "scheduler")),
		transition.WithInterval(cfg.ScanInterval),
	)
	scheduler.TriggerNow(ctx)
	scheduler.Start()
	defer scheduler.Stop()

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	api := httpapi.New(httpapi.Deps{
		Household:    hh,
		Blocks:       blocks,
		Sleep:        sleep,
		Away:         away,
		Availability: avail,
		Detector:     detector,
		Clock:        clk,
	}, httpapi.WithLogger(logger.With("component", "http")))

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: api.Router(),
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.ListenAddr, "storage", cfg.Storage, "timezone", loc.String())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
