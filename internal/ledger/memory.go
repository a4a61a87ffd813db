package ledger

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Memory is an in-process Ledger.
type Memory struct {
	mu      sync.Mutex
	visited map[string]time.Time
	now     Clock
}

// MemoryOption configures a Memory ledger.
type MemoryOption func(*Memory)

// WithClock overrides the time source.
func WithClock(now Clock) MemoryOption {
	return func(m *Memory) {
		m.now = now
	}
}

// NewMemory creates an empty in-memory ledger.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		visited: make(map[string]time.Time),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Claim implements Ledger.
func (m *Memory) Claim(ctx context.Context, url string, revisit time.Duration) (Outcome, error) {
	if err := ctx.Err(); err != nil {
		return Suppressed, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if last, ok := m.visited[url]; ok && !Expired(last, now, revisit) {
		return Suppressed, nil
	}
	m.visited[url] = now
	return Fresh, nil
}

// Visited implements Ledger.
func (m *Memory) Visited(ctx context.Context, url string, revisit time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	last, ok := m.visited[url]
	if !ok {
		return false, nil
	}
	return !Expired(last, m.now(), revisit), nil
}

// Entries implements Ledger.
func (m *Memory) Entries(_ context.Context) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entries := make([]Entry, 0, len(m.visited))
	for u, t := range m.visited {
		entries = append(entries, Entry{URL: u, LastVisitedAt: t})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].URL < entries[j].URL
	})
	return entries, nil
}

// Len returns the number of recorded URLs.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.visited)
}

// Close implements Ledger.
func (m *Memory) Close() error {
	return nil
}
