// Package ratelimit implements a fixed-window attempt counter keyed by an
// arbitrary string, used to throttle sensitive actions such as login attempts.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	// DefaultMaxAttempts is the attempt budget per window when none is given
	DefaultMaxAttempts = 5

	// DefaultWindow is the window length when none is given
	DefaultWindow = time.Minute

	// MaxWindow is the longest window a rule may use
	MaxWindow = 24 * time.Hour
)

var (
	// ErrInvalidRule is returned for a non-positive attempt budget or window
	ErrInvalidRule = errors.New("invalid rate limit rule")
	// ErrEmptyKey is returned when a check is made without a key
	ErrEmptyKey = errors.New("rate limit key is empty")
)

var validate = validator.New()

// Rule is the budget applied to one check
type Rule struct {
	MaxAttempts int           `validate:"gte=1"`
	Window      time.Duration `validate:"gte=1ms,lte=24h"`
}

// DefaultRule returns 5 attempts per minute
func DefaultRule() Rule {
	return Rule{MaxAttempts: DefaultMaxAttempts, Window: DefaultWindow}
}

// Validate reports whether the rule can be enforced
func (r Rule) Validate() error {
	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRule, err)
	}
	return nil
}

// Decision is the outcome of a check.
// ResetAt is only set when the attempt is rejected.
type Decision struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// RetryAfter returns how long a rejected caller should wait, or zero
func (d Decision) RetryAfter(now time.Time) time.Duration {
	if d.Allowed || d.ResetAt.IsZero() {
		return 0
	}
	if wait := d.ResetAt.Sub(now); wait > 0 {
		return wait
	}
	return 0
}

// Record is the per-key window state
type Record struct {
	Count   int
	ResetAt time.Time
}

// Expired reports whether the window has elapsed at now
func (r Record) Expired(now time.Time) bool {
	return now.After(r.ResetAt)
}

// Store holds window records. Take must perform the whole
// read-check-update sequence atomically.
type Store interface {
	// Take applies one attempt for key under rule at now
	Take(ctx context.Context, key string, rule Rule, now time.Time) (Decision, error)

	// Get returns the record for key, if any
	Get(ctx context.Context, key string) (Record, bool, error)

	// Reset forgets key
	Reset(ctx context.Context, key string) error

	// Sweep removes records whose window ended before now and returns how many
	Sweep(ctx context.Context, now time.Time) (int, error)

	// Ping reports whether the store can serve checks
	Ping(ctx context.Context) error

	// Close releases resources held by the store
	Close() error
}

// take is the fixed-window algorithm shared by in-process stores.
// rec is nil when the key has no record yet.
func take(rec *Record, rule Rule, now time.Time) (Record, Decision) {
	if rec == nil || rec.Expired(now) {
		fresh := Record{Count: 1, ResetAt: now.Add(rule.Window)}
		return fresh, Decision{Allowed: true, Remaining: rule.MaxAttempts - 1}
	}

	// Rejected attempts are not counted
	if rec.Count >= rule.MaxAttempts {
		return *rec, Decision{Allowed: false, Remaining: 0, ResetAt: rec.ResetAt}
	}

	next := Record{Count: rec.Count + 1, ResetAt: rec.ResetAt}
	return next, Decision{Allowed: true, Remaining: rule.MaxAttempts - next.Count}
}
