package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"library/db/migrations"
	"library/internal/config"
	"library/internal/platform/logging"
	"library/internal/platform/postgres"
)

var errUsage = errors.New("usage")

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, errUsage) {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
		os.Exit(2)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	fs.SetOutput(stderr)
	command := fs.String("command", "up", "Migration command: up, down, status, version, create")
	name := fs.String("name", "", "Name for 'create' command")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}

	switch *command {
	case "up", "down", "status", "version", "create":
	default:
		fmt.Fprintf(stderr, "Unknown command: %s. Use: up, down, status, version, create\n", *command)
		return errUsage
	}

	config.LoadEnvFiles()
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := logging.New(stderr, cfg.LogLevel)

	// create writes a new file next to the sources and needs no database.
	if *command == "create" {
		if *name == "" {
			return errors.New("name is required for 'create' command")
		}
		if err := goose.Create(nil, cfg.MigrationsDir, *name, "sql"); err != nil {
			return fmt.Errorf("create migration: %w", err)
		}
		fmt.Fprintf(stdout, "Migration created: %s\n", *name)
		return nil
	}

	ctx := context.Background()
	pool, err := postgres.Open(ctx, cfg.DatabaseDSN)
	if err != nil {
		return err
	}
	defer pool.Close()
	logger.Debug("connected", "dsn", postgres.RedactDSN(cfg.DatabaseDSN))

	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	const dir = "."

	switch *command {
	case "up":
		if err := goose.UpContext(ctx, db, dir); err != nil {
			return fmt.Errorf("apply migrations: %w", err)
		}
		logger.Info("migrations applied")
	case "down":
		if err := goose.DownContext(ctx, db, dir); err != nil {
			return fmt.Errorf("roll back migration: %w", err)
		}
		logger.Info("migration rolled back")
	case "status":
		if err := goose.StatusContext(ctx, db, dir); err != nil {
			return fmt.Errorf("migration status: %w", err)
		}
	case "version":
		v, err := goose.GetDBVersionContext(ctx, db)
		if err != nil {
			return fmt.Errorf("read schema version: %w", err)
		}
		fmt.Fprintf(stdout, "schema version %d\n", v)
	}
	return nil
}
