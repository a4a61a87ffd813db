package ledger

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
)

// newTestRedis connects to MEDCRAWL_TEST_REDIS_URL or skips the test.
func newTestRedis(t *testing.T, opts ...RedisOption) *Redis {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping redis test in short mode")
	}
	rawURL := os.Getenv("MEDCRAWL_TEST_REDIS_URL")
	if rawURL == "" {
		t.Skip("MEDCRAWL_TEST_REDIS_URL not set")
	}

	opts = append([]RedisOption{WithRedisKey("medcrawl_test:" + uuid.NewString())}, opts...)
	r, err := NewRedis(context.Background(), rawURL, opts...)
	if err != nil {
		t.Fatalf("connect to redis: %v", err)
	}
	t.Cleanup(func() {
		_ = r.Reset(context.Background())
		_ = r.Close()
	})
	return r
}

// TestRedisClaim tests the script-based claim against a live server.
func TestRedisClaim(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clock := newFakeClock()
	r := newTestRedis(t, WithRedisClock(clock.Now))

	if got, err := r.Claim(ctx, "u", time.Hour); err != nil || got != Fresh {
		t.Fatalf("expected fresh, got %v (%v)", got, err)
	}
	if got, _ := r.Claim(ctx, "u", time.Hour); got != Suppressed {
		t.Fatalf("expected suppressed, got %v", got)
	}
	if visited, _ := r.Visited(ctx, "u", time.Hour); !visited {
		t.Error("expected visited inside window")
	}

	clock.Advance(time.Hour)
	if got, _ := r.Claim(ctx, "u", time.Hour); got != Fresh {
		t.Fatalf("expected fresh after window, got %v", got)
	}
	if got, _ := r.Claim(ctx, "u", 0); got != Suppressed {
		t.Fatalf("expected suppressed for zero interval, got %v", got)
	}

	entries, err := r.Entries(ctx)
	if err != nil {
		t.Fatalf("entries: %v", err)
	}
	if len(entries) != 1 || entries[0].URL != "u" {
		t.Errorf("unexpected entries %+v", entries)
	}
}

// TestRedisConcurrentClaims checks the single-winner guarantee.
func TestRedisConcurrentClaims(t *testing.T) {
	t.Parallel()

	r := newTestRedis(t)

	var fresh atomic.Int32
	var wg sync.WaitGroup
	for range 32 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if got, err := r.Claim(context.Background(), "https://a.edu/", time.Hour); err == nil && got == Fresh {
				fresh.Add(1)
			}
		}()
	}
	wg.Wait()

	if fresh.Load() != 1 {
		t.Errorf("expected one fresh claim, got %d", fresh.Load())
	}
}

// TestNewRedisUnavailable tests connection failures.
func TestNewRedisUnavailable(t *testing.T) {
	t.Parallel()

	t.Run("invalid url", func(t *testing.T) {
		t.Parallel()

		_, err := NewRedis(context.Background(), "not-a-url")
		if !errors.Is(err, ErrUnavailable) {
			t.Errorf("expected ErrUnavailable, got %v", err)
		}
	})

	t.Run("unreachable server", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		_, err := NewRedis(ctx, "redis://127.0.0.1:1/0")
		if !errors.Is(err, ErrUnavailable) {
			t.Errorf("expected ErrUnavailable, got %v", err)
		}
	})
}

// TestUnixSeconds tests the stored timestamp format.
func TestUnixSeconds(t *testing.T) {
	t.Parallel()

	ts := time.Unix(1700000000, 500000000)
	s := unixSeconds(ts)
	if s != "1700000000.500000" {
		t.Errorf("unexpected encoding %q", s)
	}
	got, err := parseUnixSeconds(s)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if d := got.Sub(ts); d > time.Millisecond || d < -time.Millisecond {
		t.Errorf("round trip drifted by %v", d)
	}
}
