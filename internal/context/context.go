package context

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

const (
	// OwnerIDKey is the context key for the authenticated account id
	OwnerIDKey ContextKey = "owner_id"
	// requestInfoKey is the context key for the access log annotations
	requestInfoKey ContextKey = "request_info"
)

// WithOwnerID returns ctx carrying the authenticated account id
func WithOwnerID(ctx context.Context, ownerID uuid.UUID) context.Context {
	if info := RequestInfoFrom(ctx); info != nil {
		info.SetOwner(ownerID)
	}
	return context.WithValue(ctx, OwnerIDKey, ownerID)
}

// ExtractOwnerID extracts the authenticated account id from the request context
func ExtractOwnerID(ctx context.Context) (uuid.UUID, bool) {
	ownerID, ok := ctx.Value(OwnerIDKey).(uuid.UUID)
	return ownerID, ok && ownerID != uuid.Nil
}

// RequestInfo collects what inner middleware learned about a request so the
// access log written by the outermost middleware can report it
type RequestInfo struct {
	mu        sync.Mutex
	ownerID   uuid.UUID
	limiter   string
	outcome   string
	remaining int
}

// RateLimitOutcome is the limiter verdict recorded for a request
type RateLimitOutcome struct {
	Limiter   string
	Outcome   string
	Remaining int
}

// WithRequestInfo returns ctx carrying a fresh RequestInfo
func WithRequestInfo(ctx context.Context) (context.Context, *RequestInfo) {
	info := &RequestInfo{}
	return context.WithValue(ctx, requestInfoKey, info), info
}

// RequestInfoFrom returns the RequestInfo in ctx, or nil
func RequestInfoFrom(ctx context.Context) *RequestInfo {
	info, _ := ctx.Value(requestInfoKey).(*RequestInfo)
	return info
}

// SetOwner records the authenticated account
func (i *RequestInfo) SetOwner(ownerID uuid.UUID) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.ownerID = ownerID
}

// Owner returns the recorded account, if any
func (i *RequestInfo) Owner() (uuid.UUID, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.ownerID, i.ownerID != uuid.Nil
}

// SetRateLimit records the verdict of the limiter guarding the request
func (i *RequestInfo) SetRateLimit(outcome RateLimitOutcome) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.limiter = outcome.Limiter
	i.outcome = outcome.Outcome
	i.remaining = outcome.Remaining
}

// RateLimit returns the recorded verdict, if any
func (i *RequestInfo) RateLimit() (RateLimitOutcome, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.outcome == "" {
		return RateLimitOutcome{}, false
	}
	return RateLimitOutcome{Limiter: i.limiter, Outcome: i.outcome, Remaining: i.remaining}, true
}
