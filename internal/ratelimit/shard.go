package ratelimit

import (
	"hash/fnv"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

const numShards = 64

// perShardCapacity bounds how many distinct keys (route, client) a single
// shard tracks. Once full, the shard evicts its least-recently-used bucket
// instead of growing unbounded or needing a periodic sweep goroutine.
const perShardCapacity = 2048

// shard is a single partition of the sharded map, guarding an LRU cache of
// per-key bucket state.
type shard[V any] struct {
	mu    sync.Mutex
	cache *lru.Cache[string, V]
}

// shardedMap is a concurrent map split into fixed shards to reduce lock
// contention, each shard bounded and self-evicting via an LRU cache.
type shardedMap[V any] struct {
	shards [numShards]*shard[V]
}

func newShardedMap[V any]() *shardedMap[V] {
	var m shardedMap[V]
	for i := range m.shards {
		c, _ := lru.New[string, V](perShardCapacity)
		m.shards[i] = &shard[V]{cache: c}
	}
	return &m
}

func (m *shardedMap[V]) getShard(key string) *shard[V] {
	h := fnv.New32a()
	h.Write([]byte(key))
	return m.shards[h.Sum32()%numShards]
}

// withLock runs fn holding the shard lock for key, passing the current
// value (and whether it existed), and stores the value fn returns.
// This keeps a bucket's read-modify-write update serialized against both
// concurrent updates and concurrent creation, matching a single mutex per
// logical key without allocating one per key.
func (m *shardedMap[V]) withLock(key string, fn func(v V, ok bool) V) {
	s := m.getShard(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.cache.Get(key)
	s.cache.Add(key, fn(v, ok))
}
