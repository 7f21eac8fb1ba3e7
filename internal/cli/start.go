package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/npezzotti/go-classroom/internal/api"
	"github.com/npezzotti/go-classroom/internal/cache"
	"github.com/npezzotti/go-classroom/internal/classroom"
	"github.com/npezzotti/go-classroom/internal/config"
	"github.com/npezzotti/go-classroom/internal/database"
	"github.com/npezzotti/go-classroom/internal/server"
	"github.com/npezzotti/go-classroom/internal/stats"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const (
	shutdownTimeout = 10 * time.Second
	cachePrefix     = "classroom:"
)

func newStartCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the classroom server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, cfg, logger)
		},
	}
}

func openStore(ctx context.Context, cfg *config.Config, logger logrus.FieldLogger) (database.ClassroomRepository, func() error, error) {
	if cfg.DatabaseDSN == "" {
		logger.Warn("no database configured, keeping data in memory")
		return database.NewMemoryClassroomRepository(), func() error { return nil }, nil
	}

	if err := database.Migrate(cfg.DatabaseDSN); err != nil {
		return nil, nil, err
	}
	db, err := database.NewPgClassroomRepository(ctx, cfg.DatabaseDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("db open: %w", err)
	}
	return db, db.Close, nil
}

func openCache(ctx context.Context, cfg *config.Config, logger logrus.FieldLogger) (cache.Backend, func() error, error) {
	if cfg.RedisURL == "" {
		return cache.NewMemoryBackend(), func() error { return nil }, nil
	}

	client, err := cache.NewRedisClient(cfg.RedisURL)
	if err != nil {
		return nil, nil, err
	}
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("redis ping: %w", err)
	}
	logger.Info("caching reads in redis")
	return cache.NewRedisBackend(client, cachePrefix), client.Close, nil
}

func runServer(ctx context.Context, cfg *config.Config, logger *logrus.Logger) error {
	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeStore(); err != nil {
			logger.WithError(err).Error("db close")
		}
	}()

	backend, closeCache, err := openCache(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeCache()

	repo := cache.NewRepository(store, backend, config.TTLDuration(cfg.CacheTTL, time.Minute), logger)

	mux := http.NewServeMux()
	statsUpdater := stats.NewStatsUpdater(mux)
	statsUpdater.Run()
	defer statsUpdater.Stop()

	// the hub resolves rooms through the classroom, which publishes through the hub
	hub := server.NewHub(logger, nil, statsUpdater, server.HubConfig{
		QueueSize:       cfg.OutboundQueueSize,
		DropPolicy:      server.DropPolicy(cfg.DropPolicy),
		IdleRoomTimeout: config.TTLDuration(cfg.IdleRoomTimeout, server.DefaultIdleRoomTimeout),
	})
	cls := classroom.New(repo, hub, logger, classroom.WithStats(statsUpdater))
	hub.SetResolver(cls)

	app := api.NewApp(mux, logger, repo, cls, hub, cfg)

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Start()
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("received shutdown signal")
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			serveErr = err
			logger.WithError(err).Error("server")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := app.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("HTTP server shutdown")
	}
	hub.Shutdown()

	logger.Info("shutdown complete")
	return serveErr
}
