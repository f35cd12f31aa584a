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

	"go.uber.org/zap"

	"github.com/baharkarakas/credits-backend/internal/api"
	"github.com/baharkarakas/credits-backend/internal/auth"
	"github.com/baharkarakas/credits-backend/internal/clock"
	"github.com/baharkarakas/credits-backend/internal/config"
	"github.com/baharkarakas/credits-backend/internal/db"
	"github.com/baharkarakas/credits-backend/internal/logger"
	"github.com/baharkarakas/credits-backend/internal/metrics"
	"github.com/baharkarakas/credits-backend/internal/policy"
	"github.com/baharkarakas/credits-backend/internal/repository"
	"github.com/baharkarakas/credits-backend/internal/repository/memory"
	"github.com/baharkarakas/credits-backend/internal/repository/postgres"
	"github.com/baharkarakas/credits-backend/internal/repository/rediscache"
	"github.com/baharkarakas/credits-backend/internal/services"
	"github.com/baharkarakas/credits-backend/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log, err := logger.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Error("api stopped", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Migrate {
		if err := db.RunMigrations(ctx, cfg.DatabaseURL); err != nil {
			return fmt.Errorf("migrations: %w", err)
		}
		log.Info("migrations applied")
	}

	dbPool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns)
	if err != nil {
		return fmt.Errorf("db connect: %w", err)
	}
	defer dbPool.Close()

	repos := postgres.NewRepositories(dbPool, cfg.LedgerLockTimeout)
	snapshots, closeCache, err := snapshotStore(ctx, cfg, repos, log)
	if err != nil {
		return err
	}
	defer closeCache()

	wp := worker.NewPool(cfg.WorkerCount, 0)
	defer wp.Stop()

	pol, err := policy.New()
	if err != nil {
		return fmt.Errorf("policy: %w", err)
	}
	tokens := auth.NewTokenManager(cfg.JWTAccessSecret, cfg.JWTRefreshSecret, cfg.JWTIssuer, cfg.JWTAccessTTL, cfg.JWTRefreshTTL)

	board := services.NewLeaderboardService(services.LeaderboardParams{
		Accounts:  repos.Accounts,
		Snapshots: snapshots,
		Clock:     clock.Real{},
		Log:       log,
		Key:       cfg.LeaderboardKey,
		TTL:       cfg.LeaderboardTTL,
		MaxDepth:  cfg.LeaderboardMaxDepth,
	})
	ledger := services.NewLedgerService(services.LedgerParams{
		Tx:            repos.Tx,
		Users:         repos.Users,
		Accounts:      repos.Accounts,
		Entries:       repos.Entries,
		Policy:        pol,
		Cache:         board,
		Workers:       wp,
		Clock:         clock.Real{},
		Log:           log,
		MaxAttempts:   cfg.LedgerMaxAttempts,
		RetryBackoff:  cfg.LedgerRetryBackoff,
		ExportMaxRows: cfg.LedgerExportMaxRows,
	})
	users := services.NewUserService(services.UserParams{
		Users:     repos.Users,
		AuditLogs: repos.AuditLogs,
		Policy:    pol,
		Tokens:    tokens,
		Log:       log,
	})

	if cfg.AdminEmail != "" && cfg.AdminPassword != "" {
		admin, err := users.EnsureAdmin(ctx, cfg.AdminEmail, cfg.AdminPassword)
		if err != nil {
			return fmt.Errorf("bootstrap admin: %w", err)
		}
		log.Info("admin ready", zap.String("user_id", admin.ID))
	}

	metrics.Init()
	r := api.NewRouter(api.RouterDeps{
		DevTokens:   cfg.AuthDevTokens,
		RateRPS:     cfg.RateRPS,
		Log:         log,
		Tokens:      tokens,
		Users:       users,
		Ledger:      ledger,
		Leaderboard: board,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server starting",
			zap.String("port", cfg.HTTPPort),
			zap.String("env", cfg.Env),
			zap.Bool("dev_tokens", cfg.AuthDevTokens),
			zap.String("cache_backend", cfg.CacheBackend),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server: %w", err)
		}
	case <-ctx.Done():
	}

	log.Info("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// snapshotStore picks where leaderboard snapshots live.
func snapshotStore(ctx context.Context, cfg config.Config, repos postgres.Repositories, log *zap.Logger) (repository.Snapshots, func(), error) {
	switch cfg.CacheBackend {
	case "redis":
		client := rediscache.NewClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("redis connect: %w", err)
		}
		log.Info("leaderboard cache on redis", zap.String("addr", cfg.RedisAddr))
		return rediscache.NewSnapshots(client, "", cfg.CacheRetention), func() { _ = client.Close() }, nil
	case "memory":
		return memory.New(clock.Real{}).Snapshots(), func() {}, nil
	default:
		return repos.Snapshots, func() {}, nil
	}
}
