package config

import (
	"fmt"
	"strconv"
	"time"
)

// Environment variables read by ApplyEnv.
const (
	EnvConcurrencyLimit = "CONCURRENCY_LIMIT"
	EnvRevisitInterval  = "REVISIT_INTERVAL"
	EnvRedisURL         = "REDIS_URL"
	EnvKafkaBroker      = "KAFKA_BROKER"
	EnvKafkaTopic       = "KAFKA_TOPIC"
)

// ApplyEnv overlays values from the environment onto c.
// getenv is usually os.Getenv; tests pass a map lookup.
// REVISIT_INTERVAL is a whole number of seconds.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if v := getenv(EnvConcurrencyLimit); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvConcurrencyLimit, v, err)
		}
		c.ConcurrencyLimit = n
	}

	if v := getenv(EnvRevisitInterval); v != "" {
		secs, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvRevisitInterval, v, err)
		}
		c.RevisitInterval = time.Duration(secs) * time.Second
	}

	if v := getenv(EnvRedisURL); v != "" {
		c.RedisURL = v
	}
	if v := getenv(EnvKafkaBroker); v != "" {
		c.KafkaBroker = v
	}
	if v := getenv(EnvKafkaTopic); v != "" {
		c.KafkaTopic = v
	}

	return nil
}
