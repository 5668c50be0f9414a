package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
)

func newBufferLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{ReplaceAttr: sanitizeAttributes}))
}

func TestSanitizeAttributes(t *testing.T) {
	tests := []struct {
		key      string
		redacted bool
	}{
		{"secret", true},
		{"FIELD_CIPHER_SECRET", true},
		{"blob", true},
		{"plaintext", true},
		{"jwt_token", true},
		{"limiter", false},
		{"reason", false},
		{"owner_id", false},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			var buf bytes.Buffer
			newBufferLogger(&buf).Info("event", slog.String(tt.key, "sensitive-value"))

			var entry map[string]any
			if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
				t.Fatalf("invalid log line: %v", err)
			}

			got := entry[tt.key]
			if tt.redacted && got != "[REDACTED]" {
				t.Errorf("expected %s to be redacted, got %v", tt.key, got)
			}
			if !tt.redacted && got != "sensitive-value" {
				t.Errorf("expected %s to be kept, got %v", tt.key, got)
			}
		})
	}
}

func TestCorrelationID(t *testing.T) {
	ctx := SetCorrelationID(context.Background(), "req-123")
	if got := GetCorrelationID(ctx); got != "req-123" {
		t.Errorf("expected req-123, got %q", got)
	}

	var buf bytes.Buffer
	WithCorrelationID(ctx, newBufferLogger(&buf)).Info("event")
	if !bytes.Contains(buf.Bytes(), []byte(`"correlation_id":"req-123"`)) {
		t.Errorf("expected correlation id in log line, got %s", buf.String())
	}

	if got := GetCorrelationID(context.Background()); got != "" {
		t.Errorf("expected empty correlation id, got %q", got)
	}
}

func TestNew_Levels(t *testing.T) {
	log := New(Config{Level: "warn", Format: "text", Output: "stderr"})
	if log.Enabled(context.Background(), slog.LevelInfo) {
		t.Error("expected info to be disabled at warn level")
	}
	if !log.Enabled(context.Background(), slog.LevelError) {
		t.Error("expected error to be enabled at warn level")
	}
}
