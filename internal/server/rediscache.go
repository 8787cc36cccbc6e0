package server

import (
	"context"
	"encoding/json"
	"time"

	redis "github.com/redis/go-redis/v9"

	"otsync/internal/ot"
)

// RedisCache decorates a Store with a cache-aside layer over GetSnapshot:
// a thin *redis.Client wrapper keyed by a namespaced string, JSON payloads
// in, JSON payloads out. It never becomes the source of truth — a miss or
// decode failure always falls through to next, and a successful Commit
// invalidates the entry rather than trying to keep it coherent in place.
//
// GetSnapshot's read-then-fill is not safe to use from the CAS commit
// loop: a fetch that races a concurrent Commit's invalidation can cache a
// snapshot version that is already stale by the time the Set lands, and
// nothing here notices, so the entry sits wrong until ttl expires. A
// version passed through SubmitOp's retries against that entry never
// advances and burns the whole retry budget. BypassReadCache gives the
// commit loop a Store that reads straight through to next while still
// routing Commit here, so invalidation-on-write still happens for
// whichever Subscribe/Fetch caller reads the cache directly next.
type RedisCache struct {
	next Store
	rdb  *redis.Client
	ttl  time.Duration
}

// NewRedisCache wraps next with a redis cache-aside layer. ttl <= 0 means
// entries never expire on their own; they still get invalidated on commit.
func NewRedisCache(next Store, rdb *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{next: next, rdb: rdb, ttl: ttl}
}

func snapshotKey(collection, id string) string {
	return "otsync:snapshot:" + collection + ":" + id
}

func (c *RedisCache) GetSnapshot(collection, id string) (ot.Snapshot, error) {
	ctx := context.Background()
	key := snapshotKey(collection, id)

	if raw, err := c.rdb.Get(ctx, key).Bytes(); err == nil {
		var snap ot.Snapshot
		if err := json.Unmarshal(raw, &snap); err == nil {
			return snap, nil
		}
	}

	snap, err := c.next.GetSnapshot(collection, id)
	if err != nil {
		return ot.Snapshot{}, err
	}
	if raw, err := json.Marshal(snap); err == nil {
		c.rdb.Set(ctx, key, raw, c.ttl)
	}
	return snap, nil
}

// GetOps bypasses the cache; only current-snapshot reads are hot enough to
// warrant it.
func (c *RedisCache) GetOps(collection, id string, from, to uint64) ([]LogEntry, error) {
	return c.next.GetOps(collection, id, from, to)
}

func (c *RedisCache) Commit(collection, id string, op *ot.Op, newSnapshot ot.Snapshot) (bool, error) {
	committed, err := c.next.Commit(collection, id, op, newSnapshot)
	if err != nil {
		return committed, err
	}
	if committed {
		c.rdb.Del(context.Background(), snapshotKey(collection, id))
	}
	return committed, nil
}

// BypassReadCache returns a Store whose GetSnapshot/GetOps read straight
// through to the underlying store, skipping the cache-aside fill, while
// Commit still goes through c so a successful write keeps invalidating the
// cached entry for other readers.
func (c *RedisCache) BypassReadCache() Store {
	return uncachedReads{cache: c}
}

type uncachedReads struct{ cache *RedisCache }

func (u uncachedReads) GetSnapshot(collection, id string) (ot.Snapshot, error) {
	return u.cache.next.GetSnapshot(collection, id)
}

func (u uncachedReads) GetOps(collection, id string, from, to uint64) ([]LogEntry, error) {
	return u.cache.next.GetOps(collection, id, from, to)
}

func (u uncachedReads) Commit(collection, id string, op *ot.Op, newSnapshot ot.Snapshot) (bool, error) {
	return u.cache.Commit(collection, id, op, newSnapshot)
}
