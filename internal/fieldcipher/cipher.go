// Package fieldcipher protects JSON-serializable values so they can be stored
// or transmitted as opaque text.
//
// A blob is base64(iv || ciphertext) where iv is a fresh 12 byte GCM nonce and
// ciphertext carries the GCM tag. The key is derived from a shared secret with
// PBKDF2-HMAC-SHA256 over a fixed salt, so any holder of the secret can open a
// blob produced by any other holder.
package fieldcipher

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"golang.org/x/crypto/pbkdf2"

	"github.com/welldanyogia/fieldguard/internal/metrics"
)

const (
	// IVSize is the GCM nonce length prepended to every blob
	IVSize = 12

	// KeySize is the derived AES-256 key length
	KeySize = 32

	// DefaultIterations is the PBKDF2 iteration count. Lower values are rejected.
	DefaultIterations = 100000

	// Salt is the fixed KDF salt. Changing it breaks every existing blob.
	Salt = "fieldguard.field-cipher.v1"

	// DevelopmentSecret is used only when Config.AllowDevSecret is set outside production.
	DevelopmentSecret = "fieldguard-development-only-secret-do-not-ship"

	// EnvProduction is the environment name in which a secret is mandatory
	EnvProduction = "production"
)

var (
	// ErrConfiguration is returned when secret material is missing or unusable
	ErrConfiguration = errors.New("field cipher misconfigured")
	// ErrEncryption is returned when serialization or sealing fails
	ErrEncryption = errors.New("field encryption failed")

	// ErrMalformedBlob means the blob is not base64 or is shorter than the IV
	ErrMalformedBlob = errors.New("malformed blob")
	// ErrAuthentication means the GCM tag did not verify (wrong secret or tampering)
	ErrAuthentication = errors.New("blob authentication failed")
	// ErrMalformedPayload means the decrypted bytes are not valid JSON for the target
	ErrMalformedPayload = errors.New("malformed payload")
)

// Config holds the key material settings for a Cipher
type Config struct {
	// Secret is the shared passphrase. Required in production.
	Secret string
	// Environment is the deployment name (production, staging, development, test)
	Environment string
	// AllowDevSecret opts in to DevelopmentSecret when Secret is empty.
	// Ignored in production.
	AllowDevSecret bool
	// Iterations overrides the PBKDF2 iteration count. Zero means DefaultIterations.
	Iterations int
}

// Cipher encrypts and decrypts field values with a key derived once at construction.
// A Cipher is immutable and safe for concurrent use.
type Cipher struct {
	aead   cipher.AEAD
	logger *slog.Logger
}

// New creates a Cipher from cfg
func New(cfg Config, logger *slog.Logger) (*Cipher, error) {
	if logger == nil {
		logger = slog.Default()
	}

	secret, err := resolveSecret(cfg, logger)
	if err != nil {
		return nil, err
	}

	iterations := cfg.Iterations
	if iterations == 0 {
		iterations = DefaultIterations
	}
	if iterations < DefaultIterations {
		return nil, fmt.Errorf("%w: iterations must be at least %d, got %d", ErrConfiguration, DefaultIterations, iterations)
	}

	aead, err := newAEAD(secret, iterations)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	return &Cipher{aead: aead, logger: logger}, nil
}

// resolveSecret applies the production / development fallback policy
func resolveSecret(cfg Config, logger *slog.Logger) (string, error) {
	if cfg.Secret != "" {
		return cfg.Secret, nil
	}

	if strings.EqualFold(cfg.Environment, EnvProduction) {
		return "", fmt.Errorf("%w: secret is required in production", ErrConfiguration)
	}

	if !cfg.AllowDevSecret {
		return "", fmt.Errorf("%w: secret is empty and the development fallback is not enabled", ErrConfiguration)
	}

	logger.Warn("field cipher is using the built-in development secret; data encrypted now is NOT protected",
		slog.String("environment", cfg.Environment),
	)
	return DevelopmentSecret, nil
}

// DeriveKey stretches secret into a 256-bit key with PBKDF2-HMAC-SHA256
func DeriveKey(secret string, iterations int) []byte {
	return pbkdf2.Key([]byte(secret), []byte(Salt), iterations, KeySize, sha256.New)
}

func newAEAD(secret string, iterations int) (cipher.AEAD, error) {
	block, err := aes.NewCipher(DeriveKey(secret, iterations))
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCMWithNonceSize(block, IVSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

// Encrypt serializes value to JSON and seals it into a printable blob.
// Every call uses a fresh IV, so equal inputs give different blobs.
func (c *Cipher) Encrypt(value any) (string, error) {
	blob, err := encrypt(c.aead, value)
	if err != nil {
		metrics.CipherOperations.WithLabelValues("encrypt", "error").Inc()
		return "", err
	}
	metrics.CipherOperations.WithLabelValues("encrypt", "ok").Inc()
	return blob, nil
}

func encrypt(aead cipher.AEAD, value any) (string, error) {
	plaintext, err := json.Marshal(value)
	if err != nil {
		return "", fmt.Errorf("%w: failed to serialize value: %w", ErrEncryption, err)
	}
	return seal(aead, plaintext)
}

func seal(aead cipher.AEAD, plaintext []byte) (string, error) {
	iv := make([]byte, IVSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return "", fmt.Errorf("%w: failed to generate iv: %w", ErrEncryption, err)
	}

	// Seal appends to iv, giving iv || ciphertext || tag
	sealed := aead.Seal(iv, iv, plaintext, nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Open decrypts blob and unmarshals the plaintext into dst.
// The returned error wraps ErrMalformedBlob, ErrAuthentication or ErrMalformedPayload.
func (c *Cipher) Open(blob string, dst any) error {
	err := openInto(c.aead, blob, dst)
	metrics.CipherOperations.WithLabelValues("decrypt", Reason(err)).Inc()
	return err
}

func openInto(aead cipher.AEAD, blob string, dst any) error {
	plaintext, err := open(aead, blob)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(plaintext, dst); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return nil
}

func open(aead cipher.AEAD, blob string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedBlob, err)
	}
	if len(raw) < IVSize {
		return nil, fmt.Errorf("%w: %d bytes is shorter than the iv", ErrMalformedBlob, len(raw))
	}

	iv, ciphertext := raw[:IVSize], raw[IVSize:]
	plaintext, err := aead.Open(nil, iv, ciphertext, nil)
	if err != nil {
		return nil, ErrAuthentication
	}
	return plaintext, nil
}

// Decrypt returns the value sealed in blob, or nil if the blob cannot be opened
// for any reason. The cause is logged, never returned.
func (c *Cipher) Decrypt(blob string) any {
	var value any
	if !c.DecryptInto(blob, &value) {
		return nil
	}
	return value
}

// DecryptInto opens blob into dst and reports whether it succeeded
func (c *Cipher) DecryptInto(blob string, dst any) bool {
	if err := c.Open(blob, dst); err != nil {
		c.logFailure(err)
		return false
	}
	return true
}

func (c *Cipher) logFailure(err error) {
	c.logger.Warn("field decrypt failed",
		slog.String("reason", Reason(err)),
		slog.String("error", err.Error()),
	)
}

// Reason classifies a decrypt error for logs and metrics
func Reason(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrMalformedBlob):
		return "malformed_blob"
	case errors.Is(err, ErrAuthentication):
		return "authentication"
	case errors.Is(err, ErrMalformedPayload):
		return "malformed_payload"
	default:
		return "unknown"
	}
}
