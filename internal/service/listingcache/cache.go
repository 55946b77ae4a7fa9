// Package listingcache remembers every listing a source has ever returned
// for the lifetime of the process.
package listingcache

import (
	"sync"

	"MarketPull/internal/domain/models"
)

// State of a cached listing.
type State int

const (
	// Pending listings still wait for a detail fetch before they can be announced.
	Pending State = iota
	Announced
	// Suppressed listings were seen during a first poll and are never announced.
	Suppressed
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Announced:
		return "announced"
	case Suppressed:
		return "suppressed"
	default:
		return "unknown"
	}
}

type entry struct {
	rec   *models.ListingRecord
	state State
}

// Cache maps listing id to its record. Entries are never evicted.
type Cache struct {
	mu sync.RWMutex
	m  map[string]*entry
}

func New() *Cache {
	return &Cache{m: make(map[string]*entry)}
}

// State reports the state of id and whether it is cached.
func (c *Cache) State(id string) (State, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.m[id]
	if !ok {
		return 0, false
	}
	return e.state, true
}

// Insert adds rec under its id. It returns false and leaves the existing
// entry untouched when the id is already cached.
func (c *Cache) Insert(rec *models.ListingRecord, suppressed bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.m[rec.ID]; ok {
		return false
	}
	st := Pending
	if suppressed {
		st = Suppressed
	}
	c.m[rec.ID] = &entry{rec: rec.Clone(), state: st}
	return true
}

// Get returns a copy of the cached record.
func (c *Cache) Get(id string) (*models.ListingRecord, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.m[id]
	if !ok {
		return nil, false
	}
	return e.rec.Clone(), true
}

// AttachDetail stores detail on the cached record in place.
func (c *Cache) AttachDetail(id string, d *models.ListingDetail) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.m[id]
	if !ok || d == nil {
		return false
	}
	cp := *d
	e.rec.Detail = &cp
	return true
}

// MarkAnnounced moves a pending entry to Announced. Suppressed and already
// announced entries are left as they are and false is returned.
func (c *Cache) MarkAnnounced(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.m[id]
	if !ok || e.state != Pending {
		return false
	}
	e.state = Announced
	return true
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.m)
}
