package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	appctx "github.com/welldanyogia/fieldguard/internal/context"
	"github.com/welldanyogia/fieldguard/internal/ratelimit"
)

func newTestRateLimit(rule ratelimit.Rule) (*RateLimitMiddleware, http.Handler) {
	limiter := ratelimit.New(ratelimit.NewMemoryStore(), ratelimit.WithName("http-test"))
	mw := NewRateLimitMiddleware(limiter, rule, ByOwner("api:"), nil)
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mw, mw.Handler(ok)
}

var (
	ownerOne = uuid.MustParse("11111111-1111-4111-8111-111111111111")
	ownerTwo = uuid.MustParse("22222222-2222-4222-8222-222222222222")
)

func requestAs(ownerID uuid.UUID) *http.Request {
	req := httptest.NewRequest("GET", "/api/v1/fields", nil)
	return req.WithContext(appctx.WithOwnerID(req.Context(), ownerID))
}

func TestRateLimitMiddleware_RejectsOverBudget(t *testing.T) {
	_, handler := newTestRateLimit(ratelimit.Rule{MaxAttempts: 2, Window: time.Minute})

	for i, wantRemaining := range []string{"1", "0"} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, requestAs(ownerOne))

		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i+1, rec.Code)
		}
		if got := rec.Header().Get("X-RateLimit-Remaining"); got != wantRemaining {
			t.Errorf("request %d: expected remaining %s, got %s", i+1, wantRemaining, got)
		}
		if got := rec.Header().Get("X-RateLimit-Limit"); got != "2" {
			t.Errorf("request %d: expected limit 2, got %s", i+1, got)
		}
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, requestAs(ownerOne))

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}
	if rec.Header().Get("X-RateLimit-Reset") == "" {
		t.Error("expected X-RateLimit-Reset header")
	}

	var response struct {
		Success bool `json:"success"`
		Error   struct {
			Code    string         `json:"code"`
			Details map[string]any `json:"details"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if response.Success || response.Error.Code != "TOO_MANY_REQUESTS" {
		t.Errorf("unexpected envelope %+v", response)
	}
	if retry, ok := response.Error.Details["retry_after"].(float64); !ok || retry < 1 || retry > 60 {
		t.Errorf("expected retry_after within the window, got %v", response.Error.Details["retry_after"])
	}
}

func TestRateLimitMiddleware_UsersIsolated(t *testing.T) {
	_, handler := newTestRateLimit(ratelimit.Rule{MaxAttempts: 1, Window: time.Minute})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, requestAs(ownerOne))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, requestAs(ownerOne))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected user-1 to be limited, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, requestAs(ownerTwo))
	if rec.Code != http.StatusOK {
		t.Errorf("expected user-2 to be unaffected, got %d", rec.Code)
	}
}

func TestKeyFuncs(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "203.0.113.7:5555"

	if got := ByIP("login:")(req); got != "login:ip:203.0.113.7" {
		t.Errorf("unexpected ip key %q", got)
	}
	if got := ByOwner("api:")(req); got != "api:ip:203.0.113.7" {
		t.Errorf("expected ip fallback, got %q", got)
	}

	req = req.WithContext(appctx.WithOwnerID(req.Context(), ownerOne))
	if got := ByOwner("api:")(req); got != "api:user:"+ownerOne.String() {
		t.Errorf("unexpected user key %q", got)
	}
}

func TestRateLimitMiddleware_EmptyKeySkips(t *testing.T) {
	limiter := ratelimit.New(ratelimit.NewMemoryStore())
	mw := NewRateLimitMiddleware(limiter, ratelimit.Rule{MaxAttempts: 1, Window: time.Minute},
		func(*http.Request) string { return "" }, nil)

	handler := mw.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
		if rec.Code != http.StatusNoContent {
			t.Fatalf("request %d: expected pass-through, got %d", i+1, rec.Code)
		}
	}
}
