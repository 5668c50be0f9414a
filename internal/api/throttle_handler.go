package api

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/welldanyogia/fieldguard/internal/middleware"
	"github.com/welldanyogia/fieldguard/internal/ratelimit"
)

// throttleKeyPrefix keeps caller keys apart from the per-account API limiter keys
const throttleKeyPrefix = "throttle:"

// ThrottleHandler lets backend services consume attempts for their own
// sensitive actions, such as login or password reset per email
type ThrottleHandler struct {
	limiter *ratelimit.Limiter
	logger  *slog.Logger
	now     func() time.Time
}

// NewThrottleHandler creates a new ThrottleHandler instance
func NewThrottleHandler(limiter *ratelimit.Limiter, logger *slog.Logger) *ThrottleHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ThrottleHandler{limiter: limiter, logger: logger, now: time.Now}
}

// Check handles POST /api/v1/throttle/check
func (h *ThrottleHandler) Check(w http.ResponseWriter, r *http.Request) {
	var req ThrottleCheckRequest
	if !DecodeAndValidate(w, r, &req) {
		return
	}

	rule := h.limiter.DefaultRule()
	if req.MaxAttempts > 0 {
		rule.MaxAttempts = req.MaxAttempts
	}
	if req.WindowMs > 0 {
		rule.Window = time.Duration(req.WindowMs) * time.Millisecond
	}

	decision, err := h.limiter.Check(r.Context(), throttleKeyPrefix+req.Key, rule)
	if err != nil {
		if errors.Is(err, ratelimit.ErrInvalidRule) || errors.Is(err, ratelimit.ErrEmptyKey) {
			WriteError(w, http.StatusBadRequest, CodeValidationError, err.Error(), nil)
			return
		}
		h.logger.Error("throttle check failed", slog.String("error", err.Error()))
		WriteError(w, http.StatusInternalServerError, CodeInternalError, "Rate limit check failed", nil)
		return
	}

	middleware.SetRateLimitHeaders(w, rule, decision)
	if !decision.Allowed {
		middleware.WriteRateLimitError(w, decision, h.now())
		return
	}

	resp := ThrottleCheckResponse{
		Key:       req.Key,
		Allowed:   decision.Allowed,
		Remaining: decision.Remaining,
		Limit:     rule.MaxAttempts,
	}
	if !decision.ResetAt.IsZero() {
		resetAt := decision.ResetAt.UTC()
		resp.ResetAt = &resetAt
	}
	WriteSuccess(w, http.StatusOK, resp)
}
