// Package identity keeps the entities already materialized during one
// logical operation, so that a row is turned into an entity at most once and
// cyclic relation graphs resolve to the same instances.
package identity

import (
	"sync"

	"github.com/hivesolutions/colony-plugins-sub002/internal/orm/entity"
	"github.com/hivesolutions/colony-plugins-sub002/internal/orm/schema"
)

// Cache maps (entity type, id) to materialized entities
type Cache struct {
	mu      sync.RWMutex
	buckets map[schema.Handle]map[interface{}]*entity.Entity
	size    int
}

// NewCache creates an empty identity cache
func NewCache() *Cache {
	return &Cache{buckets: make(map[schema.Handle]map[interface{}]*entity.Entity)}
}

// Add stores e under its concrete type and the given id, replacing any
// previous entry
func (c *Cache) Add(id interface{}, e *entity.Entity) {
	c.mu.Lock()
	defer c.mu.Unlock()

	handle := e.Type().Handle()
	bucket, ok := c.buckets[handle]
	if !ok {
		bucket = make(map[interface{}]*entity.Entity)
		c.buckets[handle] = bucket
	}

	key := entity.NormalizeID(id)
	if _, exists := bucket[key]; !exists {
		c.size++
	}
	bucket[key] = e
}

// Get looks up id under t first and then under every registered sub-type
// of t, so a polymorphic lookup finds entities cached under their concrete
// type
func (c *Cache) Get(t *schema.EntityType, id interface{}) (*entity.Entity, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	key := entity.NormalizeID(id)
	if e, ok := c.buckets[t.Handle()][key]; ok {
		return e, true
	}
	for _, sub := range t.AllSubTypes() {
		if e, ok := c.buckets[sub.Handle()][key]; ok {
			return e, true
		}
	}
	return nil, false
}

// Len returns the number of cached entities
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.size
}
