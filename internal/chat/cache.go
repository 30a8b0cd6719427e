package chat

import "sync"

// readCache is the advisory read-through cache behind the facade's list
// views. Entries are keyed by "table/key" change-token topics so a bus event
// maps directly onto the entry it stales. Discarding any entry at any time
// is always safe; the store stays the single source of truth.
type readCache struct {
	mu      sync.Mutex
	entries map[string]any
}

func newReadCache() *readCache {
	return &readCache{entries: make(map[string]any)}
}

func (c *readCache) get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	v, ok := c.entries[key]
	return v, ok
}

func (c *readCache) set(key string, v any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = v
}

func (c *readCache) invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, key)
}
