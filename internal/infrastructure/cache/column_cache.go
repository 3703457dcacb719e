// Package cache holds in-process caches of database metadata.
package cache

import (
	"strings"
	"sync"
)

// ColumnCache holds the physical column set of each lookup table.
// Entries are filled on first use and dropped with Invalidate when the
// store notices the table no longer matches (for example an undefined
// column after a migration).
type ColumnCache struct {
	mu      sync.RWMutex
	columns map[string]map[string]bool // table -> column set
}

// NewColumnCache creates an empty cache.
func NewColumnCache() *ColumnCache {
	return &ColumnCache{columns: make(map[string]map[string]bool)}
}

// Get returns the cached column set of table.
func (c *ColumnCache) Get(table string) (map[string]bool, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cols, ok := c.columns[table]
	return cols, ok
}

// Store caches the column set of table.
func (c *ColumnCache) Store(table string, cols map[string]bool) {
	c.mu.Lock()
	c.columns[table] = cols
	c.mu.Unlock()
}

// Invalidate drops one table, or all tables when table is empty.
func (c *ColumnCache) Invalidate(table string) {
	table = strings.TrimSpace(table)

	c.mu.Lock()
	defer c.mu.Unlock()
	if table == "" {
		c.columns = make(map[string]map[string]bool)
		return
	}
	delete(c.columns, table)
}

// Len returns the number of cached tables.
func (c *ColumnCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.columns)
}
