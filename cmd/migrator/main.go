package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"github.com/baharkarakas/credits-backend/internal/config"
	"github.com/baharkarakas/credits-backend/internal/db"
	"github.com/baharkarakas/credits-backend/internal/logger"
)

func main() {
	down := flag.Bool("down", false, "roll back every applied migration")
	flag.Parse()

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

	if err := migrateAll(cfg.DatabaseURL, *down); err != nil {
		log.Error("migration run failed", zap.Error(err))
		os.Exit(1)
	}
	log.Info("migration run finished successfully", zap.Bool("down", *down))
}

func migrateAll(dsn string, down bool) error {
	if !down {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		return db.RunMigrations(ctx, dsn)
	}

	sqlDB, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	//nolint:errcheck
	defer sqlDB.Close()

	if err := sqlDB.Ping(); err != nil {
		return fmt.Errorf("ping db: %w", err)
	}
	return db.Down(sqlDB)
}
