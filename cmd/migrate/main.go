// Package main provides a CLI tool for running database migrations.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/token-analytics/internal/config"
	"github.com/token-analytics/internal/logging"
	"github.com/token-analytics/internal/storage"
)

func main() {
	var (
		action = flag.String("action", "up", "Migration action: up, down, version")
		dbType = flag.String("db", "postgres", "Database: postgres, clickhouse, all")
		dir    = flag.String("dir", "migrations", "Directory holding postgres/ and clickhouse/ migrations")
	)
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logging.InitGlobalLogger(logging.ParseLogLevel(cfg.Logging.Level), logging.FormatText)
	logger := logging.GetGlobalLogger().WithFields(map[string]interface{}{
		"action": *action,
		"db":     *dbType,
	})

	ctx := logging.WithLogger(context.Background(), logger)

	switch *dbType {
	case "postgres":
		err = migratePostgres(ctx, cfg, *action, filepath.Join(*dir, "postgres"))
	case "clickhouse":
		err = migrateClickHouse(ctx, cfg, *action, filepath.Join(*dir, "clickhouse"))
	case "all":
		err = migratePostgres(ctx, cfg, *action, filepath.Join(*dir, "postgres"))
		if err == nil {
			err = migrateClickHouse(ctx, cfg, *action, filepath.Join(*dir, "clickhouse"))
		}
	default:
		err = fmt.Errorf("unknown database: %s", *dbType)
	}

	if err != nil {
		logger.WithError(err).Fatal("Migration failed")
	}
}

func migratePostgres(ctx context.Context, cfg *config.Config, action, path string) error {
	logger := logging.FromContext(ctx).WithField("path", path)
	databaseURL := cfg.Database.Postgres.URL()

	switch action {
	case "up":
		if err := storage.RunMigrations(databaseURL, path); err != nil {
			return err
		}
		logger.Info("Postgres migrations applied")

	case "down":
		if err := storage.RollbackMigrations(databaseURL, path); err != nil {
			return err
		}
		logger.Info("Postgres migration rolled back")

	case "version":
		version, dirty, err := storage.MigrationVersion(databaseURL, path)
		if err != nil {
			return err
		}
		logger.WithFields(map[string]interface{}{
			"version": version,
			"dirty":   dirty,
		}).Info("Postgres migration version")

	default:
		return fmt.Errorf("unknown action: %s", action)
	}
	return nil
}

func migrateClickHouse(ctx context.Context, cfg *config.Config, action, path string) error {
	if action != "up" {
		return fmt.Errorf("clickhouse migrations only support 'up'")
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("migrations directory not found: %s", path)
	}

	db, err := storage.NewClickHouseDB(&cfg.Database.ClickHouse)
	if err != nil {
		return fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}
	defer func() { _ = db.Close() }()

	return storage.RunClickHouseMigrations(ctx, db, path)
}
