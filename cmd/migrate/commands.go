package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/welldanyogia/fieldguard/internal/repository"
)

// runCommand executes one migration command
func runCommand(opts *Options, log *slog.Logger, cmd string, args []string) error {
	switch cmd {
	case "create":
		if len(args) < 1 {
			return errors.New("create requires a migration name")
		}
		_, err := createMigration(opts, log, args[0])
		return err
	case "version":
		return withMigrate(opts, func(m *migrate.Migrate) error { return showVersion(m, log) })
	case "up", "down":
		steps, err := parseSteps(args)
		if err != nil {
			return err
		}
		if cmd == "down" {
			steps = -steps
		}
		if opts.DryRun {
			log.Info("dry run", slog.String("command", cmd), slog.Int("steps", steps))
			return nil
		}
		return withMigrate(opts, func(m *migrate.Migrate) error { return step(m, log, cmd, steps) })
	case "goto":
		if len(args) < 1 {
			return errors.New("goto requires a version number")
		}
		target, err := strconv.ParseUint(args[0], 10, 32)
		if err != nil {
			return fmt.Errorf("invalid version: %s", args[0])
		}
		if opts.DryRun {
			log.Info("dry run", slog.String("command", cmd), slog.Uint64("version", target))
			return nil
		}
		return withMigrate(opts, func(m *migrate.Migrate) error {
			return report(m, log, m.Migrate(uint(target)))
		})
	case "force":
		if len(args) < 1 {
			return errors.New("force requires a version number")
		}
		target, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid version: %s", args[0])
		}
		if opts.DryRun {
			log.Info("dry run", slog.String("command", cmd), slog.Int("version", target))
			return nil
		}
		return withMigrate(opts, func(m *migrate.Migrate) error {
			if err := m.Force(target); err != nil {
				return fmt.Errorf("force failed: %w", err)
			}
			log.Warn("migration version forced", slog.Int("version", target))
			return nil
		})
	default:
		return fmt.Errorf("unknown command: %s", cmd)
	}
}

// parseSteps reads the optional step count; zero means all
func parseSteps(args []string) (int, error) {
	if len(args) == 0 {
		return 0, nil
	}
	steps, err := strconv.Atoi(args[0])
	if err != nil || steps < 0 {
		return 0, fmt.Errorf("invalid number of steps: %s", args[0])
	}
	return steps, nil
}

func step(m *migrate.Migrate, log *slog.Logger, cmd string, steps int) error {
	var err error
	switch {
	case steps != 0:
		err = m.Steps(steps)
	case cmd == "down":
		err = m.Down()
	default:
		err = m.Up()
	}
	return report(m, log, err)
}

// report logs the version reached, treating ErrNoChange as success
func report(m *migrate.Migrate, log *slog.Logger, err error) error {
	if errors.Is(err, migrate.ErrNoChange) {
		log.Info("no migrations to apply")
		return nil
	}
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	return showVersion(m, log)
}

func showVersion(m *migrate.Migrate, log *slog.Logger) error {
	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		log.Info("no migrations have been applied yet")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to get version: %w", err)
	}
	log.Info("current migration version", slog.Uint64("version", uint64(version)), slog.Bool("dirty", dirty))
	return nil
}

// withMigrate opens the database, runs fn and closes everything
func withMigrate(opts *Options, fn func(m *migrate.Migrate) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), opts.Timeout)
	defer cancel()

	db, err := repository.Open(ctx, opts.DSN)
	if err != nil {
		return err
	}

	driver, err := postgres.WithInstance(db.DB, &postgres.Config{
		MigrationsTable: "schema_migrations",
	})
	if err != nil {
		db.Close()
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	migrationsPath, err := filepath.Abs(opts.MigrationsPath)
	if err != nil {
		db.Close()
		return fmt.Errorf("failed to resolve migrations path: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+migrationsPath, "postgres", driver)
	if err != nil {
		db.Close()
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	m.LockTimeout = opts.Timeout
	defer m.Close()

	return fn(m)
}

// createMigration writes an empty up/down pair numbered after the latest file
func createMigration(opts *Options, log *slog.Logger, name string) ([]string, error) {
	next, err := nextMigrationNumber(opts.MigrationsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to determine next migration number: %w", err)
	}

	files := []string{
		filepath.Join(opts.MigrationsPath, fmt.Sprintf("%03d_%s.up.sql", next, name)),
		filepath.Join(opts.MigrationsPath, fmt.Sprintf("%03d_%s.down.sql", next, name)),
	}

	if opts.DryRun {
		log.Info("dry run", slog.String("command", "create"), slog.Any("files", files))
		return files, nil
	}

	if err := os.MkdirAll(opts.MigrationsPath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create migrations directory: %w", err)
	}

	created := time.Now().Format(time.RFC3339)
	for i, file := range files {
		direction := "up"
		if i == 1 {
			direction = "down"
		}
		content := fmt.Sprintf("-- Migration: %s (%s)\n-- Created: %s\n", name, direction, created)
		if err := os.WriteFile(file, []byte(content), 0644); err != nil {
			return nil, fmt.Errorf("failed to create %s migration: %w", direction, err)
		}
	}

	log.Info("created migration files", slog.Any("files", files))
	return files, nil
}

// nextMigrationNumber finds the next available migration number
func nextMigrationNumber(migrationsPath string) (int, error) {
	entries, err := os.ReadDir(migrationsPath)
	if err != nil {
		if os.IsNotExist(err) {
			return 1, nil
		}
		return 0, err
	}

	maxNum := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		var num int
		if _, err := fmt.Sscanf(entry.Name(), "%d_", &num); err == nil && num > maxNum {
			maxNum = num
		}
	}
	return maxNum + 1, nil
}
