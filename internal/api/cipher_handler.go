package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/welldanyogia/fieldguard/internal/fieldcipher"
)

// CipherHandler exposes the field cipher to backend services that store
// protected values themselves
type CipherHandler struct {
	cipher *fieldcipher.Cipher
	logger *slog.Logger
}

// NewCipherHandler creates a new CipherHandler instance
func NewCipherHandler(c *fieldcipher.Cipher, logger *slog.Logger) *CipherHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &CipherHandler{cipher: c, logger: logger}
}

// Encrypt handles POST /api/v1/cipher/encrypt
func (h *CipherHandler) Encrypt(w http.ResponseWriter, r *http.Request) {
	var req EncryptRequest
	if !DecodeAndValidate(w, r, &req) {
		return
	}

	blob, err := h.cipher.Encrypt(req.Value)
	if err != nil {
		if errors.Is(err, fieldcipher.ErrEncryption) {
			h.logger.Error("field encryption failed", slog.String("error", err.Error()))
		}
		WriteError(w, http.StatusInternalServerError, CodeInternalError, "Encryption failed", nil)
		return
	}

	WriteSuccess(w, http.StatusOK, EncryptResponse{Blob: blob})
}

// Decrypt handles POST /api/v1/cipher/decrypt.
// An unreadable blob is answered with a null value, not an error.
func (h *CipherHandler) Decrypt(w http.ResponseWriter, r *http.Request) {
	var req DecryptRequest
	if !DecodeAndValidate(w, r, &req) {
		return
	}

	WriteSuccess(w, http.StatusOK, DecryptResponse{Value: h.cipher.Decrypt(req.Blob)})
}
