package middleware

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/welldanyogia/fieldguard/internal/auth"
	appctx "github.com/welldanyogia/fieldguard/internal/context"
)

// ErrorResponse represents the standard error response format
type ErrorResponse struct {
	Success   bool        `json:"success"`
	Error     ErrorDetail `json:"error"`
	Timestamp time.Time   `json:"timestamp"`
}

// ErrorDetail contains error information
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// AuthMiddleware resolves the bearer token to the account that owns the
// request. Every protected route sees a parsed owner id or is never reached.
type AuthMiddleware struct {
	tokenService *auth.TokenService
}

// NewAuthMiddleware creates a new AuthMiddleware instance
func NewAuthMiddleware(tokenService *auth.TokenService) *AuthMiddleware {
	return &AuthMiddleware{
		tokenService: tokenService,
	}
}

// Authenticate validates the Authorization header and injects the owner id
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			m.writeError(w, http.StatusUnauthorized, "AUTH_TOKEN_MISSING", "Authorization header is required")
			return
		}

		scheme, tokenString, found := strings.Cut(authHeader, " ")
		if !found || !strings.EqualFold(scheme, "Bearer") {
			m.writeError(w, http.StatusUnauthorized, "AUTH_TOKEN_INVALID", "Invalid authorization header format")
			return
		}
		if tokenString == "" {
			m.writeError(w, http.StatusUnauthorized, "AUTH_TOKEN_INVALID", "Token is empty")
			return
		}

		claims, err := m.tokenService.ValidateAccessToken(tokenString)
		if err != nil {
			m.writeError(w, http.StatusUnauthorized, "AUTH_TOKEN_INVALID", "Invalid or expired token")
			return
		}

		// Field records are keyed by account UUID
		ownerID, err := claims.OwnerID()
		if err != nil {
			m.writeError(w, http.StatusUnauthorized, "AUTH_TOKEN_INVALID", "Token subject is not an account id")
			return
		}

		next.ServeHTTP(w, r.WithContext(appctx.WithOwnerID(r.Context(), ownerID)))
	})
}

// writeError writes a JSON error response
func (m *AuthMiddleware) writeError(w http.ResponseWriter, statusCode int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := ErrorResponse{
		Success: false,
		Error: ErrorDetail{
			Code:    code,
			Message: message,
		},
		Timestamp: time.Now().UTC(),
	}

	json.NewEncoder(w).Encode(response)
}
