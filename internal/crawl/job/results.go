package job

import (
	"sync"

	"github.com/tuanvu-dev/ledgerscan/internal/core/domain"
)

// ResultCache retains finalized crawl results with FIFO eviction. It is
// bounded separately from the job registry so a caller holding a result
// identifier can still fetch output after its job has been evicted.
type ResultCache struct {
	mu      sync.Mutex
	entries map[string]*domain.Result
	order   []string
	limit   int
}

// NewResultCache creates a cache retaining at most limit results.
func NewResultCache(limit int) *ResultCache {
	if limit <= 0 {
		limit = 10
	}
	return &ResultCache{
		entries: make(map[string]*domain.Result),
		limit:   limit,
	}
}

// Put stores a result, evicting the oldest entry past the bound.
func (c *ResultCache) Put(r *domain.Result) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[r.ID] = r
	c.order = append(c.order, r.ID)
	if len(c.order) > c.limit {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
}

// Get fetches a result by identifier.
func (c *ResultCache) Get(id string) (*domain.Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	r, ok := c.entries[id]
	return r, ok
}
