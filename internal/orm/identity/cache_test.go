package identity

import (
	"testing"

	"github.com/hivesolutions/colony-plugins-sub002/internal/orm/entity"
	"github.com/hivesolutions/colony-plugins-sub002/internal/orm/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T) *schema.Registry {
	t.Helper()

	registry := schema.NewRegistry()
	registry.MustRegister(
		schema.NewEntity("Person").
			Field("object_id", schema.TypeInteger, schema.ID()).
			Entity(),
		schema.NewEntity("Employee").Extends("Person").Entity(),
		schema.NewEntity("Dog").
			Field("object_id", schema.TypeInteger, schema.ID()).
			Entity(),
	)
	require.NoError(t, registry.Build())
	return registry
}

func TestCache_AddAndGet(t *testing.T) {
	registry := newTestRegistry(t)
	cache := NewCache()

	person := entity.New(registry.MustGet("Person"))
	cache.Add(1, person)

	found, ok := cache.Get(registry.MustGet("Person"), int64(1))
	require.True(t, ok)
	assert.Same(t, person, found)

	_, ok = cache.Get(registry.MustGet("Dog"), 1)
	assert.False(t, ok)
	assert.Equal(t, 1, cache.Len())
}

func TestCache_GetThroughSubTypes(t *testing.T) {
	registry := newTestRegistry(t)
	cache := NewCache()

	employee := entity.New(registry.MustGet("Employee"))
	cache.Add(int64(7), employee)

	found, ok := cache.Get(registry.MustGet("Person"), 7)
	require.True(t, ok)
	assert.Same(t, employee, found)

	// parents are not searched from a sub-type
	person := entity.New(registry.MustGet("Person"))
	cache.Add(8, person)
	_, ok = cache.Get(registry.MustGet("Employee"), 8)
	assert.False(t, ok)
}

func TestCache_AddReplaces(t *testing.T) {
	registry := newTestRegistry(t)
	cache := NewCache()
	dogType := registry.MustGet("Dog")

	first := entity.New(dogType)
	second := entity.New(dogType)
	cache.Add(1, first)
	cache.Add(1.0, second)

	found, ok := cache.Get(dogType, 1)
	require.True(t, ok)
	assert.Same(t, second, found)
	assert.Equal(t, 1, cache.Len())
}
