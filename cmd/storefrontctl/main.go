package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"github.com/urfave/cli/v2"

	"github.com/joao-fontenele/storefront/internal/config"
	"github.com/joao-fontenele/storefront/internal/orders"
	"github.com/joao-fontenele/storefront/internal/telemetry"
)

func main() {
	logger := telemetry.NewLogger("storefrontctl")

	app := &cli.App{
		Name:  "storefrontctl",
		Usage: "storefront database administration",
		Commands: []*cli.Command{
			migrateCommand(logger),
			sweepCommand(logger),
		},
	}

	if err := app.Run(os.Args); err != nil {
		logger.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func migrateCommand(logger *slog.Logger) *cli.Command {
	withMigrate := func(run func(m *migrate.Migrate) error) cli.ActionFunc {
		return func(c *cli.Context) error {
			cfg, err := config.LoadAdmin()
			if err != nil {
				return err
			}

			m, err := migrate.New(cfg.MigrationsPath, cfg.PostgresURL)
			if err != nil {
				return fmt.Errorf("create migrate instance: %w", err)
			}
			defer func() { _, _ = m.Close() }()

			return run(m)
		}
	}

	return &cli.Command{
		Name:  "migrate",
		Usage: "apply or inspect schema migrations",
		Subcommands: []*cli.Command{
			{
				Name:  "up",
				Usage: "apply all pending migrations",
				Action: withMigrate(func(m *migrate.Migrate) error {
					err := m.Up()
					if errors.Is(err, migrate.ErrNoChange) {
						logger.Info("no pending migrations")
						return nil
					}
					if err != nil {
						return fmt.Errorf("migration up: %w", err)
					}
					logger.Info("migrations applied successfully")
					return nil
				}),
			},
			{
				Name:  "down",
				Usage: "roll back the latest migration",
				Action: withMigrate(func(m *migrate.Migrate) error {
					err := m.Steps(-1)
					if errors.Is(err, migrate.ErrNoChange) {
						logger.Info("no migrations to rollback")
						return nil
					}
					if err != nil {
						return fmt.Errorf("migration down: %w", err)
					}
					logger.Info("migration rolled back successfully")
					return nil
				}),
			},
			{
				Name:  "version",
				Usage: "print the applied migration version",
				Action: withMigrate(func(m *migrate.Migrate) error {
					version, dirty, err := m.Version()
					if errors.Is(err, migrate.ErrNilVersion) {
						logger.Info("no migrations applied yet")
						return nil
					}
					if err != nil {
						return fmt.Errorf("get version: %w", err)
					}
					logger.Info("current migration version", "version", version, "dirty", dirty)
					return nil
				}),
			},
		},
	}
}

func sweepCommand(logger *slog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "sweep",
		Usage: "mark online orders left pending past PENDING_ORDER_TTL as abandoned",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:  "older-than",
				Usage: "override PENDING_ORDER_TTL",
			},
		},
		Action: func(c *cli.Context) error {
			cfg, err := config.LoadAdmin()
			if err != nil {
				return err
			}

			ttl := cfg.PendingOrderTTL
			if c.IsSet("older-than") {
				ttl = c.Duration("older-than")
			}
			if ttl <= 0 {
				return fmt.Errorf("pending order ttl must be positive, got %s", ttl)
			}

			dsn, err := config.WithSearchPath(cfg.PostgresURL, config.Schema)
			if err != nil {
				return err
			}

			db, err := telemetry.OpenDB("postgres", dsn)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer func() { _ = db.Close() }()

			ctx, cancel := context.WithTimeout(c.Context, time.Minute)
			defer cancel()

			cutoff := time.Now().UTC().Add(-ttl)
			n, err := orders.NewOrderRepository(db, nil).AbandonStalePending(ctx, cutoff)
			if err != nil {
				return fmt.Errorf("abandon stale orders: %w", err)
			}

			logger.Info("stale pending orders abandoned", "count", n, "cutoff", cutoff)
			return nil
		},
	}
}
