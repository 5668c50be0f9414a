package main

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestParseSteps(t *testing.T) {
	tests := []struct {
		args    []string
		want    int
		wantErr bool
	}{
		{nil, 0, false},
		{[]string{"3"}, 3, false},
		{[]string{"x"}, 0, true},
		{[]string{"-1"}, 0, true},
	}
	for _, tt := range tests {
		got, err := parseSteps(tt.args)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("parseSteps(%v) = %d, %v", tt.args, got, err)
		}
	}
}

func TestCreateMigration(t *testing.T) {
	dir := t.TempDir()
	opts := &Options{MigrationsPath: dir}

	files, err := createMigration(opts, discard, "create_protected_fields")
	if err != nil {
		t.Fatalf("createMigration failed: %v", err)
	}
	if filepath.Base(files[0]) != "001_create_protected_fields.up.sql" {
		t.Errorf("unexpected up file %s", files[0])
	}

	files, err = createMigration(opts, discard, "add_index")
	if err != nil {
		t.Fatalf("createMigration failed: %v", err)
	}
	if filepath.Base(files[1]) != "002_add_index.down.sql" {
		t.Errorf("unexpected down file %s", files[1])
	}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			t.Errorf("expected %s to exist: %v", f, err)
		}
	}
}

func TestCreateMigration_DryRun(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "missing")
	files, err := createMigration(&Options{MigrationsPath: dir, DryRun: true}, discard, "noop")
	if err != nil || len(files) != 2 {
		t.Fatalf("unexpected result %v, %v", files, err)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Error("dry run must not create the directory")
	}
}

func TestNextMigrationNumber_RepositoryMigrations(t *testing.T) {
	next, err := nextMigrationNumber(filepath.Join("..", "..", "migrations"))
	if err != nil {
		t.Fatalf("nextMigrationNumber failed: %v", err)
	}
	if next != 2 {
		t.Errorf("expected 2 after the initial schema, got %d", next)
	}
}

func TestRunCommand_Rejects(t *testing.T) {
	opts := &Options{MigrationsPath: t.TempDir(), DryRun: true}
	for _, args := range [][]string{{"bogus"}, {"goto"}, {"goto", "x"}, {"force"}, {"up", "many"}, {"create"}} {
		if err := runCommand(opts, discard, args[0], args[1:]); err == nil {
			t.Errorf("expected %v to fail", args)
		}
	}
	if err := runCommand(opts, discard, "up", []string{"1"}); err != nil {
		t.Errorf("dry run up should not touch the database: %v", err)
	}
}
