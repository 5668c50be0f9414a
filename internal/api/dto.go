package api

import (
	"encoding/json"
	"time"
)

// EncryptRequest is the body of POST /api/v1/cipher/encrypt
type EncryptRequest struct {
	Value json.RawMessage `json:"value" validate:"required"`
}

// EncryptResponse carries the sealed blob
type EncryptResponse struct {
	Blob string `json:"blob"`
}

// DecryptRequest is the body of POST /api/v1/cipher/decrypt
type DecryptRequest struct {
	Blob string `json:"blob" validate:"required"`
}

// DecryptResponse carries the opened value; Value is null when the blob is unreadable
type DecryptResponse struct {
	Value interface{} `json:"value"`
}

// ThrottleCheckRequest is the body of POST /api/v1/throttle/check.
// Zero limits fall back to the limiter defaults.
type ThrottleCheckRequest struct {
	Key         string `json:"key" validate:"required,max=256"`
	MaxAttempts int    `json:"max_attempts" validate:"omitempty,gte=1"`
	WindowMs    int64  `json:"window_ms" validate:"omitempty,gte=1,lte=86400000"`
}

// ThrottleCheckResponse reports an allowed limiter decision
type ThrottleCheckResponse struct {
	Key       string     `json:"key"`
	Allowed   bool       `json:"allowed"`
	Remaining int        `json:"remaining"`
	Limit     int        `json:"limit"`
	ResetAt   *time.Time `json:"reset_at,omitempty"`
}
