package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisKey is the hash that stores url -> last visit (unix seconds).
const DefaultRedisKey = "visited_urls"

// claimScript checks and updates one hash field in a single server-side step.
// KEYS[1] hash, ARGV[1] url, ARGV[2] now, ARGV[3] revisit seconds (<= 0 never).
var claimScript = redis.NewScript(`
local last = redis.call("HGET", KEYS[1], ARGV[1])
if last then
	local revisit = tonumber(ARGV[3])
	if revisit <= 0 or tonumber(ARGV[2]) - tonumber(last) < revisit then
		return 0
	end
end
redis.call("HSET", KEYS[1], ARGV[1], ARGV[2])
return 1
`)

// Redis is a Ledger shared between processes through a Redis hash.
// The visit time comes from the caller's clock, so crawler hosts should
// keep their clocks in sync.
type Redis struct {
	client *redis.Client
	key    string
	now    Clock
}

// RedisOption configures a Redis ledger.
type RedisOption func(*Redis)

// WithRedisKey overrides the hash key.
func WithRedisKey(key string) RedisOption {
	return func(r *Redis) {
		r.key = key
	}
}

// WithRedisClock overrides the time source.
func WithRedisClock(now Clock) RedisOption {
	return func(r *Redis) {
		r.now = now
	}
}

// NewRedis connects to the Redis server at rawURL (redis://host:port/db)
// and verifies the connection.
func NewRedis(ctx context.Context, rawURL string, opts ...RedisOption) (*Redis, error) {
	options, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid redis url: %w", ErrUnavailable, err)
	}

	client := redis.NewClient(options)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return NewRedisWithClient(client, opts...), nil
}

// NewRedisWithClient wraps an existing client.
func NewRedisWithClient(client *redis.Client, opts ...RedisOption) *Redis {
	r := &Redis{
		client: client,
		key:    DefaultRedisKey,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Claim implements Ledger.
func (r *Redis) Claim(ctx context.Context, url string, revisit time.Duration) (Outcome, error) {
	res, err := claimScript.Run(ctx, r.client, []string{r.key},
		url, unixSeconds(r.now()), revisit.Seconds()).Int()
	if err != nil {
		return Suppressed, fmt.Errorf("%w: claim %s: %w", ErrUnavailable, url, err)
	}
	if res == 1 {
		return Fresh, nil
	}
	return Suppressed, nil
}

// Visited implements Ledger.
func (r *Redis) Visited(ctx context.Context, url string, revisit time.Duration) (bool, error) {
	val, err := r.client.HGet(ctx, r.key, url).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("%w: lookup %s: %w", ErrUnavailable, url, err)
	}

	last, err := parseUnixSeconds(val)
	if err != nil {
		return false, fmt.Errorf("%w: bad timestamp for %s: %w", ErrUnavailable, url, err)
	}
	return !Expired(last, r.now(), revisit), nil
}

// Entries implements Ledger.
func (r *Redis) Entries(ctx context.Context) ([]Entry, error) {
	all, err := r.client.HGetAll(ctx, r.key).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	entries := make([]Entry, 0, len(all))
	for u, val := range all {
		last, err := parseUnixSeconds(val)
		if err != nil {
			continue
		}
		entries = append(entries, Entry{URL: u, LastVisitedAt: last})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].URL < entries[j].URL
	})
	return entries, nil
}

// Reset removes every record. Used by tests and the ledger command.
func (r *Redis) Reset(ctx context.Context) error {
	return r.client.Del(ctx, r.key).Err()
}

// Close implements Ledger.
func (r *Redis) Close() error {
	return r.client.Close()
}

func unixSeconds(t time.Time) string {
	return strconv.FormatFloat(float64(t.UnixNano())/1e9, 'f', 6, 64)
}

func parseUnixSeconds(s string) (time.Time, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return time.Time{}, err
	}
	sec := int64(f)
	nsec := int64((f - float64(sec)) * 1e9)
	return time.Unix(sec, nsec), nil
}
