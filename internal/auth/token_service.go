package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenType represents the type of JWT token
type TokenType string

const (
	AccessTokenType  TokenType = "access"
	RefreshTokenType TokenType = "refresh"
)

var (
	// ErrInvalidToken is returned for tokens that fail signature, expiry or type checks
	ErrInvalidToken = errors.New("invalid token")
	// ErrInvalidSubject is returned when the subject is not an account UUID
	ErrInvalidSubject = errors.New("token subject is not a valid account id")
)

// Claims represents the JWT claims issued by the marketplace auth service
type Claims struct {
	Email string    `json:"email,omitempty"`
	Role  string    `json:"role,omitempty"`
	Type  TokenType `json:"type"`
	jwt.RegisteredClaims
}

// OwnerID parses the subject as the account UUID that owns protected fields
func (c *Claims) OwnerID() (uuid.UUID, error) {
	id, err := uuid.Parse(c.Subject)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %v", ErrInvalidSubject, err)
	}
	return id, nil
}

// TokenServiceConfig holds configuration for TokenService
type TokenServiceConfig struct {
	AccessSecret      string
	AccessTokenExpiry time.Duration
	// Issuer is checked when non-empty
	Issuer string
}

// TokenService verifies access tokens shared with the marketplace auth
// service. It can also mint them for tooling and tests.
type TokenService struct {
	accessSecret      string
	accessTokenExpiry time.Duration
	issuer            string
}

// NewTokenService creates a new TokenService instance
func NewTokenService(cfg TokenServiceConfig) *TokenService {
	expiry := cfg.AccessTokenExpiry
	if expiry == 0 {
		expiry = 15 * time.Minute
	}
	return &TokenService{
		accessSecret:      cfg.AccessSecret,
		accessTokenExpiry: expiry,
		issuer:            cfg.Issuer,
	}
}

// GenerateAccessToken generates a new access token for the given user
func (s *TokenService) GenerateAccessToken(userID, email, role string) (string, error) {
	now := time.Now()

	claims := Claims{
		Email: email,
		Role:  role,
		Type:  AccessTokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTokenExpiry)),
			ID:        uuid.New().String(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.accessSecret))
}

// ValidateAccessToken validates an access token and returns the claims
func (s *TokenService) ValidateAccessToken(tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(s.accessSecret), nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	if claims.Type != AccessTokenType {
		return nil, fmt.Errorf("%w: unexpected token type %q", ErrInvalidToken, claims.Type)
	}

	return claims, nil
}
