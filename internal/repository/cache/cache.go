// Package cache wraps a repository.Repository with a Redis read-through
// cache for the safelist lookup every ingest pays for. Everything else
// passes straight through to the embedded repository.
package cache

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/lance0/prefixd-sub000/internal/repository"
)

// Client is the minimal Redis surface the cache depends on, so this
// package stays decoupled from a specific driver; cmd/prefixd injects a
// concrete adapter (see RedisAdapter).
type Client interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	Incr(ctx context.Context, key string) (int64, error)
}

// ErrCacheMiss is returned by Client.Get when the key does not exist.
var ErrCacheMiss = cacheMissError{}

type cacheMissError struct{}

func (cacheMissError) Error() string { return "cache: miss" }

// SafelistCache is a read-through cache for Repository.IsSafelisted.
// Invalidation is a version bump rather than per-key deletes: every
// safelist mutation increments a shared counter, and cached entries embed
// the version they were read at, so a bump makes every previously cached
// answer unreachable without needing to enumerate keys.
type SafelistCache struct {
	repository.Repository

	client    Client
	ttl       time.Duration
	keyPrefix string
	logger    *zap.Logger
}

// New wraps repo with a Redis-backed safelist cache. ttl bounds how long a
// stale positive/negative answer can survive a safelist change that
// another process made (InsertSafelist/RemoveSafelist on this instance
// bump the version immediately; other instances converge within ttl).
func New(repo repository.Repository, client Client, ttl time.Duration, logger *zap.Logger) *SafelistCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &SafelistCache{
		Repository: repo,
		client:     client,
		ttl:        ttl,
		keyPrefix:  "prefixd:safelist:",
		logger:     logger,
	}
}

func (c *SafelistCache) versionKey() string {
	return c.keyPrefix + "version"
}

func (c *SafelistCache) version(ctx context.Context) int64 {
	raw, err := c.client.Get(ctx, c.versionKey())
	if err != nil {
		return 0
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0
	}
	return v
}

func (c *SafelistCache) entryKey(ip string, version int64) string {
	return c.keyPrefix + "v" + strconv.FormatInt(version, 10) + ":" + ip
}

// IsSafelisted checks Redis first, falling back to the wrapped repository
// on a miss or a Redis error (the cache is an optimization, never a
// dependency the hot path can be blocked by).
func (c *SafelistCache) IsSafelisted(ctx context.Context, ip string) (bool, error) {
	version := c.version(ctx)
	key := c.entryKey(ip, version)

	if raw, err := c.client.Get(ctx, key); err == nil {
		return raw == "1", nil
	}

	safelisted, err := c.Repository.IsSafelisted(ctx, ip)
	if err != nil {
		return false, err
	}

	value := "0"
	if safelisted {
		value = "1"
	}
	if setErr := c.client.Set(ctx, key, value, c.ttl); setErr != nil {
		c.logger.Warn("safelist cache write failed", zap.Error(setErr))
	}
	return safelisted, nil
}

// InsertSafelist delegates then bumps the version so every cached answer,
// here and on any other instance, is invalidated within one ttl window.
func (c *SafelistCache) InsertSafelist(ctx context.Context, prefix, addedBy string, reason *string) error {
	if err := c.Repository.InsertSafelist(ctx, prefix, addedBy, reason); err != nil {
		return err
	}
	c.bump(ctx)
	return nil
}

// RemoveSafelist delegates then bumps the version, same as InsertSafelist.
func (c *SafelistCache) RemoveSafelist(ctx context.Context, prefix string) (bool, error) {
	removed, err := c.Repository.RemoveSafelist(ctx, prefix)
	if err != nil {
		return false, err
	}
	if removed {
		c.bump(ctx)
	}
	return removed, nil
}

func (c *SafelistCache) bump(ctx context.Context) {
	if _, err := c.client.Incr(ctx, c.versionKey()); err != nil {
		c.logger.Warn("safelist cache version bump failed", zap.Error(err))
	}
}
