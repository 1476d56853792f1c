package location

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrTimeout is the timeout-class error providers return when a fix could
	// not be acquired within Options.Timeout. Only this class is retried.
	ErrTimeout = errors.New("location: fix timeout")
	// ErrRetriesExhausted means every bounded retry timed out.
	ErrRetriesExhausted = errors.New("location: exhausted-retries")
)

// Retry bounds for the timeout sub-loop. The disabled-services prompt loop is
// deliberately unbounded: presence verification cannot proceed without
// location, so it is gated on the user, not a timer.
const (
	DefaultMaxRetries = 3
	DefaultFixTimeout = 15 * time.Second
	DefaultRetryDelay = 2 * time.Second
	DefaultMaxFixAge  = 10 * time.Second
)

// Fix is a resolved geolocation coordinate. Immutable once produced.
type Fix struct {
	Latitude   float64
	Longitude  float64
	Accuracy   float64 // meters
	CapturedAt time.Time
}

// Options is passed through to the provider per request. MaxAge zero forces a
// fresh fix; non-zero allows a cached fix no older than MaxAge.
type Options struct {
	HighAccuracy bool
	Timeout      time.Duration
	MaxAge       time.Duration
}

// Provider abstracts the positioning hardware.
type Provider interface {
	// ServicesEnabled reports whether location services are on at the OS level.
	ServicesEnabled(ctx context.Context) bool
	// Position returns a fix, possibly cached up to Options.MaxAge.
	// Timeout-class failures must wrap ErrTimeout.
	Position(ctx context.Context, opts Options) (Fix, error)
}

// Prompter blocks on the user when location services are disabled.
// RetryServicesDisabled returns when the user asks for a re-check.
type Prompter interface {
	RetryServicesDisabled(ctx context.Context) error
}

// Config tunes a Resolver; zero fields take the package defaults.
type Config struct {
	MaxRetries   int
	FixTimeout   time.Duration
	RetryDelay   time.Duration
	MaxFixAge    time.Duration
	HighAccuracy bool
}

// Resolver obtains one fix per capture session, retrying bounded on timeouts
// and looping on the user while services are disabled.
type Resolver struct {
	provider Provider
	prompter Prompter
	cfg      Config
	now      func() time.Time
}

// NewResolver builds a resolver. prompter may not be nil.
func NewResolver(provider Provider, prompter Prompter, cfg Config) *Resolver {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.FixTimeout <= 0 {
		cfg.FixTimeout = DefaultFixTimeout
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	if cfg.MaxFixAge <= 0 {
		cfg.MaxFixAge = DefaultMaxFixAge
	}
	return &Resolver{provider: provider, prompter: prompter, cfg: cfg, now: time.Now}
}

// Resolve returns a fresh fix and the number of timeout retries that were
// needed. Non-timeout provider errors (permission revoked and the like)
// propagate immediately without retry.
func (r *Resolver) Resolve(ctx context.Context) (Fix, int, error) {
	// Unbounded user-gated loop while services are off.
	for !r.provider.ServicesEnabled(ctx) {
		if err := r.prompter.RetryServicesDisabled(ctx); err != nil {
			return Fix{}, 0, fmt.Errorf("location: services disabled: %w", err)
		}
	}

	opts := Options{
		HighAccuracy: r.cfg.HighAccuracy,
		Timeout:      r.cfg.FixTimeout,
		MaxAge:       r.cfg.MaxFixAge,
	}

	retries := 0
	refreshed := false
	for {
		fix, err := r.provider.Position(ctx, opts)
		if err == nil {
			if !refreshed && r.now().Sub(fix.CapturedAt) > r.cfg.MaxFixAge {
				// cached fix is stale; force one fresh request
				refreshed = true
				opts.MaxAge = 0
				continue
			}
			return fix, retries, nil
		}
		if !errors.Is(err, ErrTimeout) {
			return Fix{}, retries, err
		}
		if retries >= r.cfg.MaxRetries {
			return Fix{}, retries, ErrRetriesExhausted
		}
		retries++
		select {
		case <-time.After(r.cfg.RetryDelay):
		case <-ctx.Done():
			return Fix{}, retries, ctx.Err()
		}
	}
}
