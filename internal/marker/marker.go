package marker

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// DayFormat is the calendar-day component of a marker key. Markers are keyed
// by the device-local day, matching the clock the field staff lives by.
const DayFormat = "2006-01-02"

// Day formats t as a marker day.
func Day(t time.Time) string {
	return t.Format(DayFormat)
}

// Key builds the completion-marker key for one identity, presence kind and day.
func Key(identity, kind, day string) string {
	return fmt.Sprintf("completion:%s:%s:%s", identity, kind, day)
}

// Store is the narrow durable key-value surface guarding at-most-once-per-day
// submission. The pipeline worker is the sole writer for a given key.
type Store interface {
	Get(ctx context.Context, key string) (bool, error)
	Set(ctx context.Context, key string) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Memory is a map-backed Store for dev and tests.
type Memory struct {
	mu   sync.Mutex
	keys map[string]bool
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{keys: make(map[string]bool)}
}

func (m *Memory) Get(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.keys[key], nil
}

func (m *Memory) Set(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys[key] = true
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, key)
	return nil
}

func (m *Memory) Close() error { return nil }
