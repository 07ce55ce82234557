package gateway

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// CacheConfig configures the redis-backed generation-result cache.
type CacheConfig struct {
	Addr     string // e.g. localhost:6379
	Password string
	DB       int
	TTL      time.Duration
}

// Cache remembers settled generation results so identical prompts skip
// the upstream pipeline entirely. Entries expire; the model files on disk
// are the source of truth and are re-checked on every hit.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache connects a cache with explicit settings.
func NewCache(cfg CacheConfig) *Cache {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Cache{client: client, ttl: ttl}
}

// NewCacheFromEnv creates a cache from REDIS_ADDR, REDIS_PASS and
// CACHE_TTL_SECONDS. Returns nil when REDIS_ADDR is unset: caching is an
// optional subsystem.
func NewCacheFromEnv() *Cache {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		return nil
	}

	ttl := 24 * time.Hour
	if t := os.Getenv("CACHE_TTL_SECONDS"); t != "" {
		if secs, err := strconv.Atoi(t); err == nil && secs > 0 {
			ttl = time.Duration(secs) * time.Second
		}
	}

	return NewCache(CacheConfig{
		Addr:     addr,
		Password: os.Getenv("REDIS_PASS"),
		TTL:      ttl,
	})
}

// CachedResult is the stored outcome of a finished pipeline run.
type CachedResult struct {
	Message string   `json:"message"`
	Files   []string `json:"files"`
}

// CacheKey derives a stable key for an operation over its inputs.
func CacheKey(kind, text, style string) string {
	sum := sha256.Sum256([]byte(kind + "|" + text + "|" + style))
	return "meshbot:results:" + hex.EncodeToString(sum[:])
}

// Lookup returns the stored result for key, or found=false on a miss.
func (c *Cache) Lookup(ctx context.Context, key string) (*CachedResult, bool, error) {
	raw, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var result CachedResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		// A corrupt entry is treated as a miss and overwritten later.
		return nil, false, nil
	}
	return &result, true, nil
}

// Store writes a settled result under key with the cache TTL.
func (c *Cache) Store(ctx context.Context, key string, result *CachedResult) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, raw, c.ttl).Err()
}

// Close releases the redis connection.
func (c *Cache) Close() error {
	return c.client.Close()
}
