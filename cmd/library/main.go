package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"library/internal/catalog"
	"library/internal/config"
	"library/internal/menu"
	"library/internal/platform/logging"
	"library/internal/platform/postgres"
)

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("library", flag.ContinueOnError)
	fs.SetOutput(stderr)
	memory := fs.Bool("memory", false, "keep data in memory instead of Postgres")
	if err := fs.Parse(args); err != nil {
		return err
	}

	config.LoadEnvFiles()
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := logging.New(stderr, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var repo catalog.Repository
	if *memory {
		repo = catalog.NewMemoryRepo()
		logger.Info("using in-memory store")
	} else {
		pool, err := postgres.Open(ctx, cfg.DatabaseDSN)
		if err != nil {
			return err
		}
		defer pool.Close()
		logger.Info("database connection OK", "dsn", postgres.RedactDSN(cfg.DatabaseDSN))
		repo = catalog.NewPostgresRepo(pool, cfg.DBTimeout)
	}

	store := catalog.NewService(repo,
		catalog.WithLogger(logger),
		catalog.WithSeedDefaults(cfg.SeedDefaults),
	)
	if err := store.Init(ctx); err != nil {
		return fmt.Errorf("initialize store: %w", err)
	}

	return menu.New(store, stdin, stdout).Run(ctx)
}
