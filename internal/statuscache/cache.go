// Package statuscache provides a small Redis read-through cache for OCR
// status lookups. A nil cache (or nil client) is valid and always misses.
package statuscache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// Cache wraps a Redis client with a fixed TTL.
type Cache struct {
	rdb *redis.Client
	ttl time.Duration
}

// New constructs a Cache. A nil client yields a cache that never hits.
func New(rdb *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Cache{rdb: rdb, ttl: ttl}
}

func statusKey(documentID string) string {
	return "ocrstatus:" + documentID
}

// Get returns the cached payload for a document, if present.
func (c *Cache) Get(ctx context.Context, documentID string) ([]byte, bool) {
	if c == nil || c.rdb == nil {
		return nil, false
	}
	payload, errGet := c.rdb.Get(ctx, statusKey(documentID)).Bytes()
	if errGet != nil {
		return nil, false
	}
	return payload, true
}

// Set stores a payload for a document. Failures are logged, never returned:
// the cache is advisory.
func (c *Cache) Set(ctx context.Context, documentID string, payload []byte) {
	if c == nil || c.rdb == nil {
		return
	}
	if errSet := c.rdb.Set(ctx, statusKey(documentID), payload, c.ttl).Err(); errSet != nil {
		log.WithError(errSet).Debug("status cache: set failed")
	}
}

// Invalidate drops a document's cached status. Called before every state
// transition so readers never observe a stale terminal state.
func (c *Cache) Invalidate(ctx context.Context, documentID string) {
	if c == nil || c.rdb == nil {
		return
	}
	if errDel := c.rdb.Del(ctx, statusKey(documentID)).Err(); errDel != nil {
		log.WithError(errDel).Debug("status cache: invalidate failed")
	}
}
