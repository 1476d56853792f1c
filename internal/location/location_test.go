package location

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type scriptedProvider struct {
	enabled       []bool // consumed per ServicesEnabled call; last value sticks
	results       []error
	fixes         []Fix
	positionCalls int
	lastOpts      Options
}

func (p *scriptedProvider) ServicesEnabled(_ context.Context) bool {
	if len(p.enabled) == 0 {
		return true
	}
	v := p.enabled[0]
	if len(p.enabled) > 1 {
		p.enabled = p.enabled[1:]
	}
	return v
}

func (p *scriptedProvider) Position(_ context.Context, opts Options) (Fix, error) {
	p.lastOpts = opts
	i := p.positionCalls
	p.positionCalls++
	if i < len(p.results) && p.results[i] != nil {
		return Fix{}, p.results[i]
	}
	if i < len(p.fixes) {
		return p.fixes[i], nil
	}
	return Fix{Latitude: 1, Longitude: 2, CapturedAt: time.Now()}, nil
}

type countingPrompter struct {
	calls int
	err   error
}

func (p *countingPrompter) RetryServicesDisabled(_ context.Context) error {
	p.calls++
	return p.err
}

func newTestResolver(p Provider, pr Prompter) *Resolver {
	return NewResolver(p, pr, Config{
		MaxRetries:   3,
		FixTimeout:   10 * time.Millisecond,
		RetryDelay:   time.Millisecond,
		MaxFixAge:    10 * time.Second,
		HighAccuracy: true,
	})
}

func TestResolve_FirstTry(t *testing.T) {
	want := Fix{Latitude: 12.97, Longitude: 77.59, Accuracy: 5, CapturedAt: time.Now()}
	p := &scriptedProvider{fixes: []Fix{want}}

	fix, retries, err := newTestResolver(p, &countingPrompter{}).Resolve(context.Background())
	require.NoError(t, err)
	require.Equal(t, want, fix)
	require.Equal(t, 0, retries)
	require.True(t, p.lastOpts.HighAccuracy)
}

func TestResolve_RetriesOnTimeout(t *testing.T) {
	want := Fix{Latitude: 12.97, Longitude: 77.59, CapturedAt: time.Now()}
	p := &scriptedProvider{
		results: []error{ErrTimeout, ErrTimeout, nil},
		fixes:   []Fix{{}, {}, want},
	}

	fix, retries, err := newTestResolver(p, &countingPrompter{}).Resolve(context.Background())
	require.NoError(t, err)
	require.Equal(t, want, fix)
	require.Equal(t, 2, retries, "two timeouts then success must record exactly 2 retries")
	require.Equal(t, 3, p.positionCalls)
}

func TestResolve_RetriesExhausted(t *testing.T) {
	p := &scriptedProvider{
		results: []error{ErrTimeout, ErrTimeout, ErrTimeout, ErrTimeout},
	}

	_, retries, err := newTestResolver(p, &countingPrompter{}).Resolve(context.Background())
	require.ErrorIs(t, err, ErrRetriesExhausted)
	require.Equal(t, 3, retries)
	require.Equal(t, 4, p.positionCalls, "maxRetries+1 attempts in total")
}

func TestResolve_NonTimeoutErrorNotRetried(t *testing.T) {
	revoked := errors.New("location permission revoked")
	p := &scriptedProvider{results: []error{revoked}}

	_, retries, err := newTestResolver(p, &countingPrompter{}).Resolve(context.Background())
	require.ErrorIs(t, err, revoked)
	require.Equal(t, 0, retries)
	require.Equal(t, 1, p.positionCalls)
}

func TestResolve_ServicesDisabledPromptLoop(t *testing.T) {
	// disabled for two checks, then enabled
	p := &scriptedProvider{enabled: []bool{false, false, true}}
	prompter := &countingPrompter{}

	_, _, err := newTestResolver(p, prompter).Resolve(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, prompter.calls)
}

func TestResolve_PrompterAborts(t *testing.T) {
	p := &scriptedProvider{enabled: []bool{false}}
	prompter := &countingPrompter{err: context.Canceled}

	_, _, err := newTestResolver(p, prompter).Resolve(context.Background())
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 0, p.positionCalls)
}

func TestResolve_StaleFixRefetched(t *testing.T) {
	stale := Fix{Latitude: 1, Longitude: 1, CapturedAt: time.Now().Add(-time.Minute)}
	fresh := Fix{Latitude: 2, Longitude: 2, CapturedAt: time.Now()}
	p := &scriptedProvider{fixes: []Fix{stale, fresh}}

	fix, retries, err := newTestResolver(p, &countingPrompter{}).Resolve(context.Background())
	require.NoError(t, err)
	require.Equal(t, fresh, fix)
	require.Equal(t, 0, retries, "a stale-cache refresh is not a timeout retry")
	require.Equal(t, time.Duration(0), p.lastOpts.MaxAge, "refresh must force MaxAge=0")
}
