// Package ratelimit paces requests against a single host. A Limiter lets a
// randomly sized window of requests through, then pauses for a randomly
// drawn timeout, rotates the session cookies, and draws the next window.
package ratelimit

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/JakeFAU/novelmirror/internal/metrics"
)

// Config holds the uniform ranges the pause window is drawn from.
type Config struct {
	PauseMin    int           `mapstructure:"pause_min"`
	PauseMax    int           `mapstructure:"pause_max"`
	DelayMin    time.Duration `mapstructure:"delay_min"`
	DelayMax    time.Duration `mapstructure:"delay_max"`
	MinInterval time.Duration `mapstructure:"min_interval"`
}

// Disabled reports whether no window is configured. A zero pause range
// disables pacing whatever the delays are.
func (c Config) Disabled() bool {
	return c.PauseMax == 0
}

// Validate rejects negative or inverted ranges.
func (c Config) Validate() error {
	if c.PauseMin < 0 || c.PauseMax < 0 {
		return fmt.Errorf("pause range must be >= 0")
	}
	if c.PauseMin > c.PauseMax {
		return fmt.Errorf("pause_min (%d) must be <= pause_max (%d)", c.PauseMin, c.PauseMax)
	}
	if c.DelayMin < 0 || c.DelayMax < 0 {
		return fmt.Errorf("delay range must be >= 0")
	}
	if c.DelayMin > c.DelayMax {
		return fmt.Errorf("delay_min (%s) must be <= delay_max (%s)", c.DelayMin, c.DelayMax)
	}
	if c.PauseMax == 0 && c.DelayMax > 0 {
		return fmt.Errorf("pause_max must be > 0 when a delay is set")
	}
	if c.MinInterval < 0 {
		return fmt.Errorf("min_interval must be >= 0")
	}
	return nil
}

// Session is the cookie-carrying state discarded on every pause.
type Session interface {
	ResetSession()
}

// Sleeper blocks for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Limiter paces requests for one host. It is safe for concurrent use; callers
// sharing a host must share the Limiter.
type Limiter struct {
	mu      sync.Mutex
	cfg     Config
	site    string
	rng     *rand.Rand
	sleep   Sleeper
	session Session
	floor   *rate.Limiter
	logger  *zap.Logger

	count   int
	rate    int
	limit   int
	timeout time.Duration
}

// Option customizes a Limiter.
type Option func(*Limiter)

// WithSite labels logs and metrics.
func WithSite(site string) Option {
	return func(l *Limiter) { l.site = site }
}

// WithSession registers the session reset on every pause.
func WithSession(s Session) Option {
	return func(l *Limiter) { l.session = s }
}

// WithSleeper replaces the timer-based sleep.
func WithSleeper(s Sleeper) Option {
	return func(l *Limiter) {
		if s != nil {
			l.sleep = s
		}
	}
}

// WithRand sets the random source used for window draws.
func WithRand(r *rand.Rand) Option {
	return func(l *Limiter) {
		if r != nil {
			l.rng = r
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(l *Limiter) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// New builds a Limiter and draws its first window.
func New(cfg Config, opts ...Option) *Limiter {
	l := &Limiter{
		cfg:    cfg,
		site:   "unknown",
		rng:    rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())), //nolint:gosec // pacing jitter, not security
		sleep:  SleepContext,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	if cfg.MinInterval > 0 {
		l.floor = rate.NewLimiter(rate.Every(cfg.MinInterval), 1)
	}
	l.roll()
	return l
}

// Wait blocks until the next request may be sent. When the current window is
// exhausted it sleeps the drawn timeout, resets the session, draws a new
// window and counts the caller as the first request of that window.
func (l *Limiter) Wait(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.floor != nil {
		if err := l.floor.Wait(ctx); err != nil {
			return fmt.Errorf("rate limit wait: %w", err)
		}
	}
	if l.cfg.Disabled() {
		l.count++
		return nil
	}
	if l.rate < l.limit {
		l.rate++
		l.count++
		return nil
	}

	l.logger.Info("pausing requests",
		zap.String("site", l.site),
		zap.Int("window", l.rate),
		zap.Int("total", l.count),
		zap.Duration("timeout", l.timeout),
	)
	start := time.Now()
	if err := l.sleep(ctx, l.timeout); err != nil {
		return fmt.Errorf("rate limit pause: %w", err)
	}
	metrics.ObserveLimiterPause(l.site, time.Since(start))

	l.rate = 0
	if l.session != nil {
		l.session.ResetSession()
	}
	l.roll()
	l.rate++
	l.count++
	return nil
}

// Count returns the lifetime number of requests let through.
func (l *Limiter) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.count
}

// Window returns the current request allowance and pause timeout.
func (l *Limiter) Window() (int, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.limit, l.timeout
}

func (l *Limiter) roll() {
	l.limit = l.cfg.PauseMin
	if span := l.cfg.PauseMax - l.cfg.PauseMin; span > 0 {
		l.limit += l.rng.IntN(span + 1)
	}
	l.timeout = l.cfg.DelayMin
	if span := l.cfg.DelayMax - l.cfg.DelayMin; span > 0 {
		l.timeout += time.Duration(l.rng.Int64N(int64(span) + 1))
	}
}

// SleepContext sleeps for d unless ctx finishes first.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
