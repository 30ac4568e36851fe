// Package dedup prevents duplicate processing of redelivered webhook events.
// Membership is keyed by the provider message id and expires after a short
// window.
package dedup

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/whatscrm/server/pkg/logging"
)

// DefaultTTL is the redelivery window the guard covers.
const DefaultTTL = 60 * time.Second

const keyPrefix = "dedup:message:"

// Guard answers "have we already processed this message id?".
type Guard interface {
	// Seen atomically marks the id and reports whether it was already marked.
	Seen(ctx context.Context, messageID string) bool
}

// RedisGuard shares the dedup set across instances through redis SET NX with
// a TTL, so redelivery during a rolling deploy is still caught.
type RedisGuard struct {
	client *redis.Client
	ttl    time.Duration
	logger *logging.Logger
}

// NewRedisGuard builds a redis-backed guard.
func NewRedisGuard(client *redis.Client, ttl time.Duration, logger *logging.Logger) *RedisGuard {
	if client == nil {
		panic("dedup: redis client required")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &RedisGuard{client: client, ttl: ttl, logger: logger}
}

// Seen marks the message id and reports whether it was already present.
// On redis failure it reports not-seen; processing a duplicate is preferable
// to dropping a live message.
func (g *RedisGuard) Seen(ctx context.Context, messageID string) bool {
	if messageID == "" {
		return false
	}
	ok, err := g.client.SetNX(ctx, keyPrefix+messageID, 1, g.ttl).Result()
	if err != nil {
		g.logger.Warn("dedup check failed, treating as unseen", "error", err, "message_id", messageID)
		return false
	}
	return !ok
}

// MemoryGuard is the per-process fallback used in tests and redis-less runs.
type MemoryGuard struct {
	mu   sync.Mutex
	ttl  time.Duration
	seen map[string]time.Time
	now  func() time.Time
}

// NewMemoryGuard builds an in-memory guard.
func NewMemoryGuard(ttl time.Duration) *MemoryGuard {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryGuard{
		ttl:  ttl,
		seen: make(map[string]time.Time),
		now:  time.Now,
	}
}

// Seen marks the message id and reports whether it was already present,
// evicting expired entries as it goes.
func (g *MemoryGuard) Seen(ctx context.Context, messageID string) bool {
	if messageID == "" {
		return false
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	for id, at := range g.seen {
		if now.Sub(at) >= g.ttl {
			delete(g.seen, id)
		}
	}

	if at, ok := g.seen[messageID]; ok && now.Sub(at) < g.ttl {
		return true
	}
	g.seen[messageID] = now
	return false
}
