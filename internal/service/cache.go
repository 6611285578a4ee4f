package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Cache TTLs are short: the ledger invalidates eagerly after mutations, the
// TTL only bounds staleness for consumers we never hear back from.
const (
	PollCacheTTL     = 30 * time.Second
	PollListCacheTTL = 15 * time.Second
)

const pollListKey = "polls:all"

// Cache is a Redis cache-aside layer for poll reads. If redisURL is empty
// or the connection fails, the client stays nil and every operation becomes
// a no-op, so the service runs without Redis.
type Cache struct {
	rdb    *redis.Client
	log    zerolog.Logger
	onHit  func()
	onMiss func()
}

func NewCache(redisURL string, log zerolog.Logger) *Cache {
	c := &Cache{log: log}
	if redisURL == "" {
		log.Info().Msg("redis: no URL configured, caching disabled")
		return c
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		log.Warn().Err(err).Msg("redis: invalid URL, caching disabled")
		return c
	}

	rdb := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Warn().Err(err).Msg("redis: connection failed, caching disabled")
		return c
	}

	log.Info().Msg("redis: connected, caching enabled")
	c.rdb = rdb
	return c
}

// Client returns the underlying Redis client for health checks. May be nil.
func (c *Cache) Client() *redis.Client {
	return c.rdb
}

// SetCounters installs hit/miss callbacks, for metrics. Either may be nil.
func (c *Cache) SetCounters(onHit, onMiss func()) {
	c.onHit = onHit
	c.onMiss = onMiss
}

func (c *Cache) countHit() {
	if c.onHit != nil {
		c.onHit()
	}
}

func (c *Cache) countMiss() {
	if c.onMiss != nil {
		c.onMiss()
	}
}

// GetPoll returns the cached response bytes, or nil on miss/disabled cache.
func (c *Cache) GetPoll(ctx context.Context, pollID string) ([]byte, error) {
	if c.rdb == nil {
		return nil, nil
	}
	data, err := c.rdb.Get(ctx, pollKey(pollID)).Bytes()
	if err == redis.Nil {
		c.countMiss()
		return nil, nil
	}
	if err == nil {
		c.countHit()
	}
	return data, err
}

func (c *Cache) SetPoll(ctx context.Context, pollID string, data interface{}) error {
	if c.rdb == nil {
		return nil
	}
	b, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, pollKey(pollID), b, PollCacheTTL).Err()
}

func (c *Cache) InvalidatePoll(ctx context.Context, pollID string) error {
	if c.rdb == nil {
		return nil
	}
	return c.rdb.Del(ctx, pollKey(pollID)).Err()
}

func (c *Cache) GetPollList(ctx context.Context) ([]byte, error) {
	if c.rdb == nil {
		return nil, nil
	}
	data, err := c.rdb.Get(ctx, pollListKey).Bytes()
	if err == redis.Nil {
		c.countMiss()
		return nil, nil
	}
	if err == nil {
		c.countHit()
	}
	return data, err
}

func (c *Cache) SetPollList(ctx context.Context, data interface{}) error {
	if c.rdb == nil {
		return nil
	}
	b, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, pollListKey, b, PollListCacheTTL).Err()
}

func (c *Cache) InvalidatePollList(ctx context.Context) error {
	if c.rdb == nil {
		return nil
	}
	return c.rdb.Del(ctx, pollListKey).Err()
}

func (c *Cache) Close() error {
	if c.rdb == nil {
		return nil
	}
	return c.rdb.Close()
}

func pollKey(pollID string) string {
	return fmt.Sprintf("poll:%s", pollID)
}
