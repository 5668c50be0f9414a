package repository

import (
	"time"

	"github.com/google/uuid"
)

// ProtectedField is one encrypted profile field owned by a marketplace account.
// Blob is the field cipher output; plaintext never reaches the database.
type ProtectedField struct {
	ID        uuid.UUID `db:"id"`
	OwnerID   uuid.UUID `db:"owner_id"`
	Name      string    `db:"name"`
	Blob      string    `db:"blob"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}
