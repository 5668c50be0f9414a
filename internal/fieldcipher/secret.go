package fieldcipher

import (
	"fmt"
	"log/slog"
)

// Encrypt seals value under secret, deriving the key for this call only.
// Prefer a long-lived Cipher when the same secret is used repeatedly.
func Encrypt(value any, secret string) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("%w: secret is empty", ErrConfiguration)
	}

	aead, err := newAEAD(secret, DefaultIterations)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrEncryption, err)
	}
	return encrypt(aead, value)
}

// Decrypt opens a blob sealed under secret. It returns nil when the blob is
// malformed, the secret is wrong or the payload is not JSON.
func Decrypt(blob, secret string) any {
	aead, err := newAEAD(secret, DefaultIterations)
	if err != nil {
		slog.Default().Warn("field decrypt failed", slog.String("reason", "key_setup"), slog.String("error", err.Error()))
		return nil
	}

	var value any
	if err := openInto(aead, blob, &value); err != nil {
		slog.Default().Debug("field decrypt failed", slog.String("reason", Reason(err)))
		return nil
	}
	return value
}
