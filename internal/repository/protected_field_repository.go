package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/welldanyogia/fieldguard/internal/metrics"
)

// Protected field repository errors
var (
	ErrFieldNotFound = errors.New("protected field not found")
)

// ProtectedFieldRepository defines data access for encrypted profile fields
type ProtectedFieldRepository interface {
	Upsert(ctx context.Context, field *ProtectedField) error
	Get(ctx context.Context, ownerID uuid.UUID, name string) (*ProtectedField, error)
	List(ctx context.Context, ownerID uuid.UUID) ([]ProtectedField, error)
	Delete(ctx context.Context, ownerID uuid.UUID, name string) error
}

// ProtectedFieldRepo implements ProtectedFieldRepository using PostgreSQL
type ProtectedFieldRepo struct {
	db *sqlx.DB
}

// NewProtectedFieldRepo creates a new ProtectedFieldRepo instance
func NewProtectedFieldRepo(db *sqlx.DB) *ProtectedFieldRepo {
	return &ProtectedFieldRepo{db: db}
}

// Upsert inserts the field or replaces the blob of an existing one.
// ID and timestamps are filled from the stored row.
func (r *ProtectedFieldRepo) Upsert(ctx context.Context, field *ProtectedField) error {
	defer metrics.TimeQuery("upsert_protected_field")()

	query := `
		INSERT INTO protected_fields (owner_id, name, blob)
		VALUES ($1, $2, $3)
		ON CONFLICT (owner_id, name)
		DO UPDATE SET blob = EXCLUDED.blob, updated_at = NOW()
		RETURNING id, created_at, updated_at
	`

	err := r.db.QueryRowxContext(ctx, query, field.OwnerID, field.Name, field.Blob).
		Scan(&field.ID, &field.CreatedAt, &field.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert protected field: %w", err)
	}
	return nil
}

// Get retrieves one field of an owner
func (r *ProtectedFieldRepo) Get(ctx context.Context, ownerID uuid.UUID, name string) (*ProtectedField, error) {
	defer metrics.TimeQuery("get_protected_field")()

	query := `
		SELECT id, owner_id, name, blob, created_at, updated_at
		FROM protected_fields
		WHERE owner_id = $1 AND name = $2
	`

	var field ProtectedField
	if err := r.db.GetContext(ctx, &field, query, ownerID, name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrFieldNotFound
		}
		return nil, fmt.Errorf("failed to get protected field: %w", err)
	}
	return &field, nil
}

// List retrieves all fields of an owner ordered by name
func (r *ProtectedFieldRepo) List(ctx context.Context, ownerID uuid.UUID) ([]ProtectedField, error) {
	defer metrics.TimeQuery("list_protected_fields")()

	query := `
		SELECT id, owner_id, name, blob, created_at, updated_at
		FROM protected_fields
		WHERE owner_id = $1
		ORDER BY name
	`

	fields := []ProtectedField{}
	if err := r.db.SelectContext(ctx, &fields, query, ownerID); err != nil {
		return nil, fmt.Errorf("failed to list protected fields: %w", err)
	}
	return fields, nil
}

// Delete removes one field of an owner
func (r *ProtectedFieldRepo) Delete(ctx context.Context, ownerID uuid.UUID, name string) error {
	defer metrics.TimeQuery("delete_protected_field")()

	result, err := r.db.ExecContext(ctx,
		`DELETE FROM protected_fields WHERE owner_id = $1 AND name = $2`, ownerID, name)
	if err != nil {
		return fmt.Errorf("failed to delete protected field: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if rows == 0 {
		return ErrFieldNotFound
	}
	return nil
}

var _ ProtectedFieldRepository = (*ProtectedFieldRepo)(nil)
