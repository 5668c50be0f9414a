package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/welldanyogia/fieldguard/internal/metrics"
)

// Limiter checks attempts against a Store. Create one per throttled action or
// share one across call sites; the choice belongs to the caller.
type Limiter struct {
	store  Store
	name   string
	rule   Rule
	now    func() time.Time
	logger *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// Option configures a Limiter
type Option func(*Limiter)

// WithClock overrides time.Now, mainly for tests
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		l.now = now
	}
}

// WithDefaultRule sets the rule used by CheckDefault
func WithDefaultRule(rule Rule) Option {
	return func(l *Limiter) {
		l.rule = rule
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(l *Limiter) {
		l.logger = logger
	}
}

// WithName labels the limiter in logs and metrics
func WithName(name string) Option {
	return func(l *Limiter) {
		l.name = name
	}
}

// New creates a Limiter backed by store
func New(store Store, opts ...Option) *Limiter {
	l := &Limiter{
		store:  store,
		name:   "default",
		rule:   DefaultRule(),
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Name returns the limiter label
func (l *Limiter) Name() string {
	return l.name
}

// DefaultRule returns the rule used by CheckDefault
func (l *Limiter) DefaultRule() Rule {
	return l.rule
}

// Check applies one attempt for key under rule.
// At most rule.MaxAttempts attempts are allowed per window starting at the
// first attempt. A rule that differs from the one that opened the current
// window only takes effect once that window ends.
func (l *Limiter) Check(ctx context.Context, key string, rule Rule) (Decision, error) {
	if key == "" {
		return Decision{}, ErrEmptyKey
	}
	if err := rule.Validate(); err != nil {
		return Decision{}, err
	}

	decision, err := l.store.Take(ctx, key, rule, l.clock())
	if err != nil {
		metrics.RateLimitDecisions.WithLabelValues(l.name, "error").Inc()
		return Decision{}, fmt.Errorf("rate limit check for %s failed: %w", l.name, err)
	}

	if decision.Allowed {
		metrics.RateLimitDecisions.WithLabelValues(l.name, "allowed").Inc()
	} else {
		metrics.RateLimitDecisions.WithLabelValues(l.name, "rejected").Inc()
		l.logger.Info("rate limit exceeded",
			slog.String("limiter", l.name),
			slog.Int("max_attempts", rule.MaxAttempts),
			slog.Time("reset_at", decision.ResetAt),
		)
	}
	return decision, nil
}

// clock reads the configured clock at millisecond precision so every store
// sees the same window boundaries
func (l *Limiter) clock() time.Time {
	return l.now().Truncate(time.Millisecond)
}

// CheckDefault applies one attempt for key under the limiter's default rule
func (l *Limiter) CheckDefault(ctx context.Context, key string) (Decision, error) {
	return l.Check(ctx, key, l.rule)
}

// Peek returns the current record for key without counting an attempt
func (l *Limiter) Peek(ctx context.Context, key string) (Record, bool, error) {
	return l.store.Get(ctx, key)
}

// Reset forgets key, e.g. after a successful login
func (l *Limiter) Reset(ctx context.Context, key string) error {
	return l.store.Reset(ctx, key)
}

// Ping reports whether the backing store is reachable
func (l *Limiter) Ping(ctx context.Context) error {
	return l.store.Ping(ctx)
}

// Sweep evicts expired records once
func (l *Limiter) Sweep(ctx context.Context) (int, error) {
	removed, err := l.store.Sweep(ctx, l.clock())
	if err != nil {
		return 0, err
	}
	if sized, ok := l.store.(interface{ Len() int }); ok {
		metrics.RateLimitRecords.WithLabelValues(l.name).Set(float64(sized.Len()))
	}
	if removed > 0 {
		l.logger.Debug("rate limit records evicted",
			slog.String("limiter", l.name),
			slog.Int("removed", removed),
		)
	}
	return removed, nil
}

// Start runs Sweep every interval until ctx is cancelled or Stop is called.
// Calling Start on a running limiter is a no-op.
func (l *Limiter) Start(ctx context.Context, interval time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.done != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.done = make(chan struct{})

	go func(done chan struct{}) {
		defer close(done)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := l.Sweep(ctx); err != nil {
					l.logger.Warn("rate limit sweep failed",
						slog.String("limiter", l.name),
						slog.String("error", err.Error()),
					)
				}
			}
		}
	}(l.done)
}

// Stop halts the sweeper and waits for it to exit
func (l *Limiter) Stop() {
	l.mu.Lock()
	cancel, done := l.cancel, l.done
	l.cancel, l.done = nil, nil
	l.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Close stops the sweeper and closes the store
func (l *Limiter) Close() error {
	l.Stop()
	return l.store.Close()
}
