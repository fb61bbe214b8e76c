package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/faustbrian/sequencer/internal/cache"
	"github.com/faustbrian/sequencer/internal/domain"
	"github.com/faustbrian/sequencer/internal/logging"
)

// CachedStore decorates an OperationStore with an L2 lookup cache
// (§6.1 Cache.Redis) accelerating LastCompletion reads, such as the
// CLI's rollback path. Writes pass straight through to the wrapped
// store and do not touch the cache: a cached completion is dropped
// only by InvalidateName or when its TTL expires, so a read within the
// TTL can still return a completion that a later transition changed.
type CachedStore struct {
	OperationStore
	cache cache.Cache
	ttl   time.Duration
}

// NewCachedStore wraps s with c, caching LastCompletion lookups for ttl.
func NewCachedStore(s OperationStore, c cache.Cache, ttl time.Duration) *CachedStore {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &CachedStore{OperationStore: s, cache: c, ttl: ttl}
}

func (c *CachedStore) lastCompletionKey(name string) string {
	return fmt.Sprintf("last_completion:%s", name)
}

// LastCompletion serves from cache when possible, falling back to the
// wrapped store and repopulating the cache on a miss. Cache errors are
// logged and otherwise ignored: the underlying store is always the
// source of truth.
func (c *CachedStore) LastCompletion(ctx context.Context, name string) (*domain.Record, error) {
	key := c.lastCompletionKey(name)

	if raw, err := c.cache.Get(ctx, key); err == nil {
		var rec domain.Record
		if jsonErr := json.Unmarshal(raw, &rec); jsonErr == nil {
			return &rec, nil
		}
	} else if err != cache.ErrNotFound {
		logging.Op().Warn("cache get failed, falling back to store", "name", name, "err", err)
	}

	rec, err := c.OperationStore.LastCompletion(ctx, name)
	if err != nil || rec == nil {
		return rec, err
	}

	if raw, mErr := json.Marshal(rec); mErr == nil {
		if sErr := c.cache.Set(ctx, key, raw, c.ttl); sErr != nil {
			logging.Op().Warn("cache set failed", "name", name, "err", sErr)
		}
	}
	return rec, nil
}

// InvalidateName drops any cached last-completion entry for name.
// Transition only has the record's primary key, not its name, so
// callers that perform a state-changing write outside LastCompletion's
// own read path (Rollback, in particular) must invalidate explicitly
// once they know which name was affected.
func (c *CachedStore) InvalidateName(ctx context.Context, name string) error {
	return c.cache.Delete(ctx, c.lastCompletionKey(name))
}
