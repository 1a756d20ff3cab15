package lifecycle

import (
	"sync"

	"github.com/contacto31/ama-tyc-service/models"
)

// requestCache is the process-local fast path, keyed by token. It only
// ever holds value copies, and writers are expected to have persisted
// to the store first (best-effort bookkeeping paths excepted). The
// store stays authoritative: a cache miss always rehydrates from it.
type requestCache struct {
	mu      sync.RWMutex
	entries map[string]models.ConsentRequest
}

func newRequestCache() *requestCache {
	return &requestCache{entries: make(map[string]models.ConsentRequest)}
}

func (c *requestCache) Get(token string) (models.ConsentRequest, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rec, ok := c.entries[token]
	return rec, ok
}

func (c *requestCache) Put(rec models.ConsentRequest) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[rec.Token] = rec
}

// Snapshot returns a point-in-time copy of all resident records, so
// the sweeper can iterate without holding the lock across store calls.
func (c *requestCache) Snapshot() []models.ConsentRequest {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]models.ConsentRequest, 0, len(c.entries))
	for _, rec := range c.entries {
		out = append(out, rec)
	}
	return out
}

func (c *requestCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
