package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/welldanyogia/fieldguard/internal/ratelimit"
)

type accessLine struct {
	Level     string `json:"level"`
	Route     string `json:"route"`
	Status    int    `json:"status"`
	OwnerID   string `json:"owner_id"`
	ClientIP  string `json:"client_ip"`
	RateLimit *struct {
		Limiter   string `json:"limiter"`
		Outcome   string `json:"outcome"`
		Remaining int    `json:"remaining"`
	} `json:"rate_limit"`
}

func newLoggedRouter(buf *bytes.Buffer, rule ratelimit.Rule) http.Handler {
	log := slog.New(slog.NewJSONHandler(buf, nil))
	tokens := newTestTokenService()
	limiter := ratelimit.New(ratelimit.NewMemoryStore(), ratelimit.WithName("api"))

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(StructuredLogger(log))
	r.With(NewAuthMiddleware(tokens).Authenticate, NewRateLimitMiddleware(limiter, rule, ByOwner("api:"), log).Handler).
		Get("/fields/{name}", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return r
}

func lastAccessLine(t *testing.T, buf *bytes.Buffer) accessLine {
	t.Helper()
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	var line accessLine
	if err := json.Unmarshal([]byte(lines[len(lines)-1]), &line); err != nil {
		t.Fatalf("failed to parse log line: %v", err)
	}
	return line
}

func TestLogging_RecordsOwnerAndRateLimit(t *testing.T) {
	var buf bytes.Buffer
	handler := newLoggedRouter(&buf, ratelimit.Rule{MaxAttempts: 1, Window: time.Minute})

	ownerID := "3f0b6c1e-8a52-4c1d-9d1f-5b7a2e9c4d10"
	token, err := newTestTokenService().GenerateAccessToken(ownerID, "athlete@example.com", "athlete")
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}

	for _, want := range []struct {
		status  int
		outcome string
		level   string
	}{
		{http.StatusOK, "allowed", "INFO"},
		{http.StatusTooManyRequests, "rejected", "WARN"},
	} {
		req := httptest.NewRequest("GET", "/fields/medical_notes", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != want.status {
			t.Fatalf("expected %d, got %d", want.status, rec.Code)
		}

		line := lastAccessLine(t, &buf)
		if line.Status != want.status || line.Level != want.level {
			t.Errorf("unexpected status or level in %+v", line)
		}
		if line.OwnerID != ownerID {
			t.Errorf("expected owner %s, got %q", ownerID, line.OwnerID)
		}
		if line.RateLimit == nil || line.RateLimit.Limiter != "api" || line.RateLimit.Outcome != want.outcome {
			t.Errorf("expected rate limit outcome %s, got %+v", want.outcome, line.RateLimit)
		}
	}

	if strings.Contains(buf.String(), "medical_notes") {
		t.Error("access log should carry the route pattern, not the field name")
	}
	if line := lastAccessLine(t, &buf); line.Route != "/fields/{name}" {
		t.Errorf("expected route pattern, got %q", line.Route)
	}
}

func TestLogging_AnonymousRequest(t *testing.T) {
	var buf bytes.Buffer
	handler := newLoggedRouter(&buf, ratelimit.DefaultRule())

	req := httptest.NewRequest("GET", "/health/live", nil)
	req.RemoteAddr = "198.51.100.4:4711"
	handler.ServeHTTP(httptest.NewRecorder(), req)

	line := lastAccessLine(t, &buf)
	if line.OwnerID != "" || line.RateLimit != nil {
		t.Errorf("expected no owner or rate limit on a public route, got %+v", line)
	}
	if line.ClientIP != "198.51.100.4" || line.Route != "/health/live" {
		t.Errorf("unexpected line %+v", line)
	}
}
