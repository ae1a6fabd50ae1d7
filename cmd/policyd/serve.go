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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jbweber/homelab/policyd/internal/api"
	"github.com/jbweber/homelab/policyd/internal/config"
	"github.com/jbweber/homelab/policyd/internal/notify"
	"github.com/jbweber/homelab/policyd/internal/repository"
	"github.com/jbweber/homelab/policyd/internal/service"
	"github.com/jbweber/homelab/policyd/internal/validation"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return serve(ctx, cfg, logger)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	ds, err := cfg.InitializeDatabase(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer ds.Close()

	repo := repository.NewPolicyRepository(ds.DB, ds.Dialect)
	defer repo.Close()

	publisher, closePublisher := newPublisher(ctx, cfg.Redis, logger)
	defer closePublisher()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewDBStatsCollector(ds.DB, "policyd"),
	)

	svc := service.NewPolicyService(repo, service.PolicyMapper{}, publisher, logger)
	a := api.NewAPI(api.Options{
		Service:   svc,
		Validator: validation.New(cfg.Validation.Rules()),
		Health:    ds,
		Counter:   repo,
		Logger:    logger,
		Registry:  reg,
	})

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      a.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("policyd started",
			zap.String("addr", srv.Addr),
			zap.String("driver", ds.Dialect.String()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down", zap.Duration("timeout", cfg.Server.ShutdownTimeout))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return <-errCh
}

// newPublisher returns the Redis publisher when an address is configured,
// otherwise a no-op. The returned func releases the client.
func newPublisher(ctx context.Context, cfg config.RedisConfig, logger *zap.Logger) (notify.Publisher, func()) {
	if cfg.Addr == "" {
		return notify.NopPublisher{}, func() {}
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		// Events are best effort; keep serving and let each publish retry the connection
		logger.Warn("redis unreachable, policy events may be lost",
			zap.String("addr", cfg.Addr),
			zap.Error(err))
	}

	logger.Info("publishing policy events", zap.String("addr", cfg.Addr), zap.String("channel", cfg.Channel))
	return notify.NewRedisPublisher(rdb, cfg.Channel), func() { _ = rdb.Close() }
}
