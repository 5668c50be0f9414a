//go:build integration

package repository_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/welldanyogia/fieldguard/internal/repository"
)

var (
	testDB   *sqlx.DB
	testRepo *repository.ProtectedFieldRepo
)

// TestMain connects to the test database and applies the migrations
func TestMain(m *testing.M) {
	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		dbURL = "host=localhost port=5432 user=postgres password=postgres dbname=fieldguard_test sslmode=disable"
	}

	ctx := context.Background()

	var err error
	testDB, err = repository.Open(ctx, dbURL)
	if err != nil {
		fmt.Printf("Failed to connect to test database: %v\n", err)
		os.Exit(1)
	}

	if err := migrateUp(testDB); err != nil {
		fmt.Printf("Failed to migrate test database: %v\n", err)
		os.Exit(1)
	}

	testRepo = repository.NewProtectedFieldRepo(testDB)

	code := m.Run()
	testDB.Close()
	os.Exit(code)
}

func migrateUp(db *sqlx.DB) error {
	driver, err := postgres.WithInstance(db.DB, &postgres.Config{})
	if err != nil {
		return err
	}
	m, err := migrate.NewWithDatabaseInstance("file://../../migrations", "postgres", driver)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

// cleanupOwner removes the rows written by one test
func cleanupOwner(t *testing.T, ownerID uuid.UUID) {
	t.Cleanup(func() {
		if _, err := testDB.Exec("DELETE FROM protected_fields WHERE owner_id = $1", ownerID); err != nil {
			t.Logf("Warning: failed to cleanup protected fields: %v", err)
		}
	})
}

func TestIntegration_UpsertKeepsIdentity(t *testing.T) {
	ctx := context.Background()
	owner := uuid.New()
	cleanupOwner(t, owner)

	first := &repository.ProtectedField{OwnerID: owner, Name: "date_of_birth", Blob: "blob-v1"}
	if err := testRepo.Upsert(ctx, first); err != nil {
		t.Fatalf("first upsert failed: %v", err)
	}
	if first.ID == uuid.Nil || first.CreatedAt.IsZero() {
		t.Fatalf("expected id and timestamps from the stored row, got %+v", first)
	}

	time.Sleep(10 * time.Millisecond)

	second := &repository.ProtectedField{OwnerID: owner, Name: "date_of_birth", Blob: "blob-v2"}
	if err := testRepo.Upsert(ctx, second); err != nil {
		t.Fatalf("second upsert failed: %v", err)
	}

	if second.ID != first.ID {
		t.Errorf("expected the same row id %s, got %s", first.ID, second.ID)
	}
	if !second.CreatedAt.Equal(first.CreatedAt) {
		t.Errorf("expected created_at to stay %v, got %v", first.CreatedAt, second.CreatedAt)
	}
	if !second.UpdatedAt.After(first.UpdatedAt) {
		t.Errorf("expected updated_at to move past %v, got %v", first.UpdatedAt, second.UpdatedAt)
	}

	got, err := testRepo.Get(ctx, owner, "date_of_birth")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Blob != "blob-v2" || got.ID != first.ID {
		t.Errorf("expected replaced blob on the same row, got %+v", got)
	}
}

func TestIntegration_MissingField(t *testing.T) {
	ctx := context.Background()
	owner := uuid.New()
	cleanupOwner(t, owner)

	if _, err := testRepo.Get(ctx, owner, "phone"); !errors.Is(err, repository.ErrFieldNotFound) {
		t.Errorf("expected ErrFieldNotFound on get, got %v", err)
	}
	if err := testRepo.Delete(ctx, owner, "phone"); !errors.Is(err, repository.ErrFieldNotFound) {
		t.Errorf("expected ErrFieldNotFound on delete, got %v", err)
	}

	// Another owner's field is not visible
	other := uuid.New()
	cleanupOwner(t, other)
	if err := testRepo.Upsert(ctx, &repository.ProtectedField{OwnerID: other, Name: "phone", Blob: "b"}); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}
	if _, err := testRepo.Get(ctx, owner, "phone"); !errors.Is(err, repository.ErrFieldNotFound) {
		t.Errorf("expected ErrFieldNotFound across owners, got %v", err)
	}
	if err := testRepo.Delete(ctx, owner, "phone"); !errors.Is(err, repository.ErrFieldNotFound) {
		t.Errorf("expected delete across owners to miss, got %v", err)
	}

	if err := testRepo.Delete(ctx, other, "phone"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if err := testRepo.Delete(ctx, other, "phone"); !errors.Is(err, repository.ErrFieldNotFound) {
		t.Errorf("expected second delete to miss, got %v", err)
	}
}

func TestIntegration_ListOrderedByName(t *testing.T) {
	ctx := context.Background()
	owner := uuid.New()
	cleanupOwner(t, owner)

	empty, err := testRepo.List(ctx, owner)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if empty == nil || len(empty) != 0 {
		t.Errorf("expected an empty non-nil list, got %v", empty)
	}

	for _, name := range []string{"phone", "address", "medical_notes"} {
		if err := testRepo.Upsert(ctx, &repository.ProtectedField{OwnerID: owner, Name: name, Blob: "b-" + name}); err != nil {
			t.Fatalf("upsert %s failed: %v", name, err)
		}
	}

	fields, err := testRepo.List(ctx, owner)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}

	want := []string{"address", "medical_notes", "phone"}
	if len(fields) != len(want) {
		t.Fatalf("expected %d fields, got %d", len(want), len(fields))
	}
	for i, name := range want {
		if fields[i].Name != name || fields[i].OwnerID != owner || fields[i].Blob != "b-"+name {
			t.Errorf("position %d: expected %s, got %+v", i, name, fields[i])
		}
	}
}
