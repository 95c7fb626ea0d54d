package lru

import (
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
)

// Cache an in-memory store, the entries leave the cache on eviction or when their ttl expires
type Cache struct {
	arc  *lru.ARCCache
	load sync.Mutex
}

type entry struct {
	value   interface{}
	expires time.Time
}

func (e entry) expired(now time.Time) bool {
	return !e.expires.IsZero() && !now.Before(e.expires)
}

// New create a cache holding up to size entries
func New(size int) (*Cache, error) {
	arc, err := lru.NewARC(size)
	if err != nil {
		return nil, err
	}
	return &Cache{arc: arc}, nil
}

// Get the value of the key, an expired entry is removed and reported missing
func (cache *Cache) Get(key string) (interface{}, bool) {
	raw, ok := cache.arc.Get(key)
	if !ok {
		return nil, false
	}

	e := raw.(entry)
	if e.expired(time.Now()) {
		cache.arc.Remove(key)
		return nil, false
	}
	return e.value, true
}

// Set the value of the key, a ttl <= 0 never expires
func (cache *Cache) Set(key string, value interface{}, ttl time.Duration) error {
	e := entry{value: value}
	if ttl > 0 {
		e.expires = time.Now().Add(ttl)
	}
	cache.arc.Add(key, e)
	return nil
}

// Del remove the key
func (cache *Cache) Del(key string) error {
	cache.arc.Remove(key)
	return nil
}

// Has check the key without updating its recency
func (cache *Cache) Has(key string) bool {
	raw, ok := cache.arc.Peek(key)
	return ok && !raw.(entry).expired(time.Now())
}

// Len the number of live entries
func (cache *Cache) Len() int {
	return len(cache.Keys())
}

// Keys the live keys
func (cache *Cache) Keys() []string {
	now := time.Now()
	keys := []string{}
	for _, key := range cache.arc.Keys() {
		raw, ok := cache.arc.Peek(key)
		if !ok || raw.(entry).expired(now) {
			continue
		}
		keys = append(keys, fmt.Sprintf("%v", key))
	}
	return keys
}

// Clear remove all the entries
func (cache *Cache) Clear() {
	cache.arc.Purge()
}

// GetSet get the value of the key, loading and caching it on a miss. Loads are
// serialized so concurrent misses on one key call getValue once.
func (cache *Cache) GetSet(key string, ttl time.Duration, getValue func(key string) (interface{}, error)) (interface{}, error) {
	if value, ok := cache.Get(key); ok {
		return value, nil
	}

	cache.load.Lock()
	defer cache.load.Unlock()
	if value, ok := cache.Get(key); ok {
		return value, nil
	}

	value, err := getValue(key)
	if err != nil {
		return nil, err
	}
	cache.Set(key, value, ttl)
	return value, nil
}
