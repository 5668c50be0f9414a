package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	appctx "github.com/welldanyogia/fieldguard/internal/context"
)

// Error codes shared by the /api/v1 handlers
const (
	CodeValidationError  = "VALIDATION_ERROR"
	CodeNotFound         = "NOT_FOUND"
	CodeInternalError    = "INTERNAL_ERROR"
	CodeAuthTokenInvalid = "AUTH_TOKEN_INVALID"
)

// APIResponse represents the standard API response format
type APIResponse struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     *APIError   `json:"error,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// APIError represents the error detail in API response
type APIError struct {
	Code    string              `json:"code"`
	Message string              `json:"message"`
	Details map[string][]string `json:"details,omitempty"`
}

// WriteSuccess writes a success JSON response
func WriteSuccess(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := APIResponse{
		Success:   true,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}
	json.NewEncoder(w).Encode(response)
}

// WriteError writes an error JSON response
func WriteError(w http.ResponseWriter, statusCode int, code, message string, details map[string][]string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := APIResponse{
		Success: false,
		Error: &APIError{
			Code:    code,
			Message: message,
			Details: details,
		},
		Timestamp: time.Now().UTC(),
	}
	json.NewEncoder(w).Encode(response)
}

// OwnerID returns the account id set by the auth middleware, writing a 401
// when the request reached the handler without one
func OwnerID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	ownerID, ok := appctx.ExtractOwnerID(r.Context())
	if !ok {
		WriteError(w, http.StatusUnauthorized, CodeAuthTokenInvalid, "Invalid or expired token", nil)
		return uuid.Nil, false
	}
	return ownerID, true
}
