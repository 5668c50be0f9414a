package middleware

import (
	"encoding/json"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"time"

	appctx "github.com/welldanyogia/fieldguard/internal/context"
	"github.com/welldanyogia/fieldguard/internal/ratelimit"
)

// KeyFunc derives the limiter key for a request. An empty key skips limiting.
type KeyFunc func(r *http.Request) string

// ByOwner keys requests by the authenticated account, falling back to the
// client IP for anonymous requests
func ByOwner(prefix string) KeyFunc {
	byIP := ByIP(prefix)
	return func(r *http.Request) string {
		if ownerID, ok := appctx.ExtractOwnerID(r.Context()); ok {
			return prefix + "user:" + ownerID.String()
		}
		return byIP(r)
	}
}

// ByIP keys requests by client IP
func ByIP(prefix string) KeyFunc {
	return func(r *http.Request) string {
		return prefix + "ip:" + clientIP(r)
	}
}

// clientIP returns the host part of RemoteAddr; chi's RealIP middleware has
// already rewritten it from proxy headers when enabled
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// RateLimitMiddleware rejects requests over the limiter budget with 429
type RateLimitMiddleware struct {
	limiter *ratelimit.Limiter
	rule    ratelimit.Rule
	keyFunc KeyFunc
	logger  *slog.Logger
	now     func() time.Time
}

// NewRateLimitMiddleware creates middleware applying rule per key
func NewRateLimitMiddleware(limiter *ratelimit.Limiter, rule ratelimit.Rule, keyFunc KeyFunc, log *slog.Logger) *RateLimitMiddleware {
	if log == nil {
		log = slog.Default()
	}
	return &RateLimitMiddleware{
		limiter: limiter,
		rule:    rule,
		keyFunc: keyFunc,
		logger:  log,
		now:     time.Now,
	}
}

// Handler returns the rate limiting middleware.
// Requests are rejected when the backing store fails.
func (m *RateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := m.keyFunc(r)
		if key == "" {
			next.ServeHTTP(w, r)
			return
		}

		info := appctx.RequestInfoFrom(r.Context())
		decision, err := m.limiter.Check(r.Context(), key, m.rule)
		if err != nil {
			if info != nil {
				info.SetRateLimit(appctx.RateLimitOutcome{Limiter: m.limiter.Name(), Outcome: "error"})
			}
			m.logger.Error("rate limit check failed",
				slog.String("limiter", m.limiter.Name()),
				slog.String("error", err.Error()),
			)
			writeJSONError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Rate limit check failed", nil)
			return
		}

		if info != nil {
			info.SetRateLimit(appctx.RateLimitOutcome{
				Limiter:   m.limiter.Name(),
				Outcome:   outcome(decision),
				Remaining: decision.Remaining,
			})
		}
		SetRateLimitHeaders(w, m.rule, decision)

		if !decision.Allowed {
			WriteRateLimitError(w, decision, m.now())
			return
		}

		next.ServeHTTP(w, r)
	})
}

func outcome(decision ratelimit.Decision) string {
	if decision.Allowed {
		return "allowed"
	}
	return "rejected"
}

// SetRateLimitHeaders writes the X-RateLimit-* headers for decision
func SetRateLimitHeaders(w http.ResponseWriter, rule ratelimit.Rule, decision ratelimit.Decision) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rule.MaxAttempts))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
	if !decision.ResetAt.IsZero() {
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(decision.ResetAt.Unix(), 10))
	}
}

// WriteRateLimitError writes a 429 Too Many Requests response
func WriteRateLimitError(w http.ResponseWriter, decision ratelimit.Decision, now time.Time) {
	retryAfter := int64(math.Ceil(decision.RetryAfter(now).Seconds()))
	w.Header().Set("Retry-After", strconv.FormatInt(retryAfter, 10))

	writeJSONError(w, http.StatusTooManyRequests, "TOO_MANY_REQUESTS", "Rate limit exceeded. Please try again later.", map[string]interface{}{
		"retry_after": retryAfter,
		"reset_at":    decision.ResetAt.UTC(),
	})
}

// writeJSONError writes the standard error envelope with optional details
func writeJSONError(w http.ResponseWriter, status int, code, message string, details map[string]interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	errBody := map[string]interface{}{
		"code":    code,
		"message": message,
	}
	if details != nil {
		errBody["details"] = details
	}

	response := map[string]interface{}{
		"success":   false,
		"error":     errBody,
		"timestamp": time.Now().UTC(),
	}

	json.NewEncoder(w).Encode(response)
}
