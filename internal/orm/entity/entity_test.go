package entity

import (
	"errors"
	"testing"
	"time"

	"github.com/hivesolutions/colony-plugins-sub002/internal/orm/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T) *schema.Registry {
	t.Helper()

	registry := schema.NewRegistry()
	registry.MustRegister(
		schema.NewEntity("Person").
			Field("object_id", schema.TypeInteger, schema.ID(), schema.Generated(schema.GeneratorTable)).
			Field("name", schema.TypeText, schema.Mandatory()).
			Field("weight", schema.TypeFloat).
			Field("birth", schema.TypeDate).
			Field("photo", schema.TypeData).
			Relation("car", schema.Relation{Kind: schema.ManyToOne, Target: "Car", Reverse: "owners"}).
			Relation("dogs", schema.Relation{Kind: schema.OneToMany, Target: "Dog", Reverse: "owner"}).
			Entity(),
		schema.NewEntity("Employee").Extends("Person").
			Field("salary", schema.TypeInteger).
			Entity(),
		schema.NewEntity("Car").
			Field("object_id", schema.TypeInteger, schema.ID()).
			Relation("owners", schema.Relation{Kind: schema.OneToMany, Target: "Person", Reverse: "car"}).
			Entity(),
		schema.NewEntity("Dog").
			Field("object_id", schema.TypeInteger, schema.ID()).
			Relation("owner", schema.Relation{Kind: schema.ManyToOne, Target: "Person", Reverse: "dogs"}).
			Entity(),
	)
	require.NoError(t, registry.Build())
	return registry
}

func TestValue_States(t *testing.T) {
	assert.False(t, NotLoaded().IsLoaded())
	assert.Equal(t, Unloaded, Value{}.State())

	null := Of(nil)
	assert.True(t, null.IsLoaded())
	assert.True(t, null.IsNull())

	v := Of("john")
	raw, ok := v.Get()
	assert.True(t, ok)
	assert.Equal(t, "john", raw)
	assert.Equal(t, "john", v.String())
	assert.Equal(t, "<unloaded>", NotLoaded().String())
}

func TestNormalizeID(t *testing.T) {
	assert.Equal(t, NormalizeID(int64(1)), NormalizeID(1))
	assert.Equal(t, NormalizeID(int32(7)), NormalizeID(float64(7)))
	assert.Equal(t, "abc", NormalizeID([]byte("abc")))
	assert.Equal(t, 1.5, NormalizeID(1.5))
}

func TestEntity_SetAndGet(t *testing.T) {
	registry := newTestRegistry(t)
	person := New(registry.MustGet("Person"))

	assert.False(t, person.IsLoaded("name"))

	require.NoError(t, person.Set("name", "john"))
	require.NoError(t, person.Set("weight", 70))
	require.NoError(t, person.Set("birth", time.Date(1980, 1, 2, 0, 0, 0, 0, time.UTC)))
	require.NoError(t, person.Set("photo", []byte{0x1}))

	name, ok := person.Get("name")
	assert.True(t, ok)
	assert.Equal(t, "john", name)
	assert.Equal(t, []string{"birth", "name", "photo", "weight"}, person.LoadedNames())

	person.Unload("name")
	assert.False(t, person.IsLoaded("name"))

	require.NoError(t, person.Set("name", nil))
	assert.True(t, person.Value("name").IsNull())
}

func TestEntity_SetRejectsInvalidValues(t *testing.T) {
	registry := newTestRegistry(t)
	person := New(registry.MustGet("Person"))

	err := person.Set("name", 12)
	assert.True(t, errors.Is(err, ErrInvalidType))

	err = person.Set("birth", "yesterday")
	assert.True(t, errors.Is(err, ErrInvalidType))

	err = person.Set("unknown", "x")
	assert.True(t, errors.Is(err, schema.ErrUnknownAttribute))

	dog := New(registry.MustGet("Dog"))
	err = person.Set("car", dog)
	assert.True(t, errors.Is(err, ErrInvalidRelationValue))

	err = person.Set("dogs", dog)
	assert.True(t, errors.Is(err, ErrInvalidRelationValue))
}

func TestEntity_Relations(t *testing.T) {
	registry := newTestRegistry(t)
	person := New(registry.MustGet("Person"))
	car := New(registry.MustGet("Car"))
	dog := New(registry.MustGet("Dog"))

	require.NoError(t, person.Set("car", car))
	require.NoError(t, person.Set("dogs", []*Entity{dog}))

	related, ok := person.Related("car")
	require.True(t, ok)
	assert.Same(t, car, related)

	list, ok := person.RelatedList("dogs")
	require.True(t, ok)
	assert.Len(t, list, 1)

	// sub-types are valid relation values
	employee := New(registry.MustGet("Employee"))
	require.NoError(t, dog.Set("owner", employee))

	require.NoError(t, dog.Set("owner", (*Entity)(nil)))
	assert.True(t, dog.Value("owner").IsNull())
	_, ok = dog.Related("owner")
	assert.False(t, ok)
}

func TestEntity_ID(t *testing.T) {
	registry := newTestRegistry(t)
	employee := New(registry.MustGet("Employee"))

	_, ok := employee.ID()
	assert.False(t, ok)

	require.NoError(t, employee.SetID(3))
	id, ok := employee.ID()
	assert.True(t, ok)
	assert.Equal(t, 3, id)
}

func TestEntity_ApplyCollectsErrors(t *testing.T) {
	registry := newTestRegistry(t)
	person := New(registry.MustGet("Person"))

	err := person.Apply(map[string]interface{}{
		"name":       "john",
		"weight":     "heavy",
		"birth":      42,
		"data_state": 1,
	})
	require.Error(t, err)
	assert.True(t, IsValidationFailed(err))

	var ve *ValidationErrors
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, []string{"birth", "weight"}, ve.Fields())
	assert.True(t, errors.Is(err, ErrInvalidType))

	name, _ := person.Get("name")
	assert.Equal(t, "john", name)
}

func TestEntity_Validate(t *testing.T) {
	registry := newTestRegistry(t)
	person := New(registry.MustGet("Person"))

	err := person.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingMandatoryValue))
	assert.NoError(t, person.ValidateLoaded())

	require.NoError(t, person.Set("name", "john"))
	assert.NoError(t, person.Validate())
}

func TestEntity_ScopeAndState(t *testing.T) {
	registry := newTestRegistry(t)
	scope := NewScope()
	person := NewInScope(registry.MustGet("Person"), scope)
	car := NewInScope(registry.MustGet("Car"), scope)

	assert.Same(t, person.Scope(), car.Scope())
	assert.False(t, scope.IsAttached())

	assert.Equal(t, 1, person.Attach())
	assert.Equal(t, 2, car.Attach())
	assert.True(t, scope.IsAttached())
	assert.Equal(t, 1, person.Detach())
	assert.Equal(t, 0, car.Detach())
	assert.Equal(t, 0, car.Detach())

	scope.SetSession("session-1")
	assert.Equal(t, "session-1", person.Scope().Session())

	assert.Equal(t, StateUnset, person.State())
	person.SetState(StateToSave)
	assert.Equal(t, "to_save", person.State().String())

	assert.NotEqual(t, NewScope().ID(), scope.ID())
}
