// Package main is the schema migration tool for the protected fields database.
// It applies the SQL files under migrations/ with golang-migrate and tracks the
// applied version in the schema_migrations table.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/welldanyogia/fieldguard/internal/config"
	"github.com/welldanyogia/fieldguard/internal/logger"
)

// Version is set at build time
var Version = "dev"

const (
	defaultMigrationTimeout = 5 * time.Minute
	defaultMigrationsPath   = "migrations"
)

// Options holds migration settings
type Options struct {
	DSN            string
	MigrationsPath string
	Timeout        time.Duration
	DryRun         bool
}

func main() {
	var (
		migrPath = flag.String("path", getEnv("MIGRATIONS_PATH", defaultMigrationsPath), "Path to migrations directory")
		timeout  = flag.Duration("timeout", defaultMigrationTimeout, "Lock and connect timeout")
		dryRun   = flag.Bool("dry-run", false, "Show what would be done without executing")
		version  = flag.Bool("version", false, "Print version and exit")
	)

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options] <command> [args]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Commands:\n")
		fmt.Fprintf(os.Stderr, "  up [N]       Apply all or N up migrations\n")
		fmt.Fprintf(os.Stderr, "  down [N]     Roll back all or N migrations\n")
		fmt.Fprintf(os.Stderr, "  goto V       Migrate to version V\n")
		fmt.Fprintf(os.Stderr, "  force V      Set version V without running migrations\n")
		fmt.Fprintf(os.Stderr, "  version      Print current migration version\n")
		fmt.Fprintf(os.Stderr, "  create NAME  Create a new migration file pair\n")
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nThe database is read from DB_HOST, DB_PORT, DB_USER, DB_PASSWORD, DB_NAME and DB_SSLMODE.\n")
	}

	flag.Parse()

	if *version {
		fmt.Printf("migrate version %s\n", Version)
		os.Exit(0)
	}

	args := flag.Args()
	if len(args) < 1 {
		flag.Usage()
		os.Exit(1)
	}

	log := logger.New(logger.DefaultConfig())
	cfg := config.Load()

	opts := &Options{
		DSN:            cfg.Database.DSN(),
		MigrationsPath: *migrPath,
		Timeout:        *timeout,
		DryRun:         *dryRun,
	}

	if err := runCommand(opts, log, args[0], args[1:]); err != nil {
		log.Error("migration command failed", slog.String("command", args[0]), slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
