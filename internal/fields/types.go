package fields

import (
	"encoding/json"
	"time"
)

// PutFieldRequest is the body of PUT /api/v1/fields/{name}
type PutFieldRequest struct {
	Value json.RawMessage `json:"value" validate:"required"`
}

// FieldResponse is a decrypted protected field.
// Value is null and Readable false when the stored blob cannot be opened.
type FieldResponse struct {
	Name      string      `json:"name"`
	Value     interface{} `json:"value"`
	Readable  bool        `json:"readable"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// FieldSummary is one entry of the field listing
type FieldSummary struct {
	Name      string    `json:"name"`
	Readable  bool      `json:"readable"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ListFieldsResponse is the response of GET /api/v1/fields
type ListFieldsResponse struct {
	Fields []FieldSummary `json:"fields"`
}
