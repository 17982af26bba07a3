package utils

import "sync"

// Cache is a minimal concurrency-safe map used to memoize explorer
// responses (e.g. raw tx hex keyed by txid).
type Cache[T any] struct {
	mu    *sync.RWMutex
	items map[string]T
}

func NewCache[T any]() *Cache[T] {
	return &Cache[T]{
		mu:    &sync.RWMutex{},
		items: make(map[string]T),
	}
}

func (c *Cache[T]) Get(key string) (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	item, ok := c.items[key]
	return item, ok
}

func (c *Cache[T]) Set(key string, item T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = item
}
