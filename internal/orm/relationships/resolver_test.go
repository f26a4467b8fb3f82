package relationships

import (
	"errors"
	"testing"

	"github.com/hivesolutions/colony-plugins-sub002/internal/orm/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestResolver(t *testing.T, types ...*schema.EntityType) (*Resolver, *schema.Registry) {
	t.Helper()

	registry := schema.NewRegistry()
	registry.MustRegister(types...)
	require.NoError(t, registry.Build())
	return NewResolver(registry), registry
}

func idField(b *schema.Builder) *schema.Builder {
	return b.Field("object_id", schema.TypeInteger, schema.ID())
}

func TestResolver_MapperDefaults(t *testing.T) {
	resolver, registry := newTestResolver(t,
		idField(schema.NewEntity("Car")).
			Relation("owner", schema.Relation{Kind: schema.ManyToOne, Target: "Driver", Reverse: "cars"}).
			Entity(),
		idField(schema.NewEntity("Driver")).
			Relation("cars", schema.Relation{Kind: schema.OneToMany, Target: "Car", Reverse: "owner"}).
			Entity(),
	)
	car := registry.MustGet("Car")
	driver := registry.MustGet("Driver")

	fromCar, err := resolver.Mapper(car, "owner")
	require.NoError(t, err)
	fromDriver, err := resolver.Mapper(driver, "cars")
	require.NoError(t, err)

	assert.Same(t, car, fromCar)
	assert.Same(t, fromCar, fromDriver)

	mapped, err := resolver.IsMapped(car, "owner")
	require.NoError(t, err)
	assert.True(t, mapped)

	mapped, err = resolver.IsMapped(driver, "cars")
	require.NoError(t, err)
	assert.False(t, mapped)
}

func TestResolver_MapperSymmetry(t *testing.T) {
	tests := []struct {
		name       string
		personSide schema.Relation
		addrSide   schema.Relation
		want       string
	}{
		{
			name:       "is mapper on the declaring side",
			personSide: schema.Relation{Kind: schema.OneToOne, Target: "Address", Reverse: "person", IsMapper: schema.MapperTrue},
			addrSide:   schema.Relation{Kind: schema.OneToOne, Target: "Person", Reverse: "address"},
			want:       "Person",
		},
		{
			name:       "is mapper false on the declaring side",
			personSide: schema.Relation{Kind: schema.OneToOne, Target: "Address", Reverse: "person", IsMapper: schema.MapperFalse},
			addrSide:   schema.Relation{Kind: schema.OneToOne, Target: "Person", Reverse: "address"},
			want:       "Address",
		},
		{
			name:       "mapped by on the reverse side",
			personSide: schema.Relation{Kind: schema.OneToOne, Target: "Address", Reverse: "person"},
			addrSide:   schema.Relation{Kind: schema.OneToOne, Target: "Person", Reverse: "address", MappedBy: "Address"},
			want:       "Address",
		},
		{
			name:       "is mapper wins over mapped by",
			personSide: schema.Relation{Kind: schema.OneToOne, Target: "Address", Reverse: "person", MappedBy: "Person"},
			addrSide:   schema.Relation{Kind: schema.OneToOne, Target: "Person", Reverse: "address", IsMapper: schema.MapperTrue},
			want:       "Address",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resolver, registry := newTestResolver(t,
				idField(schema.NewEntity("Person")).Relation("address", tt.personSide).Entity(),
				idField(schema.NewEntity("Address")).Relation("person", tt.addrSide).Entity(),
			)

			fromPerson, err := resolver.Mapper(registry.MustGet("Person"), "address")
			require.NoError(t, err)
			fromAddress, err := resolver.Mapper(registry.MustGet("Address"), "person")
			require.NoError(t, err)

			assert.Equal(t, tt.want, fromPerson.Name)
			assert.Same(t, fromPerson, fromAddress)
		})
	}
}

func TestResolver_MapperErrors(t *testing.T) {
	t.Run("no mapper", func(t *testing.T) {
		resolver, registry := newTestResolver(t,
			idField(schema.NewEntity("Person")).
				Relation("address", schema.Relation{Kind: schema.OneToOne, Target: "Address"}).
				Entity(),
			idField(schema.NewEntity("Address")).Entity(),
		)
		_, err := resolver.Mapper(registry.MustGet("Person"), "address")
		assert.True(t, errors.Is(err, ErrNoMapper))
	})

	t.Run("both sides claim the mapping", func(t *testing.T) {
		resolver, registry := newTestResolver(t,
			idField(schema.NewEntity("Person")).
				Relation("address", schema.Relation{Kind: schema.OneToOne, Target: "Address", Reverse: "person", IsMapper: schema.MapperTrue}).
				Entity(),
			idField(schema.NewEntity("Address")).
				Relation("person", schema.Relation{Kind: schema.OneToOne, Target: "Person", Reverse: "address", IsMapper: schema.MapperTrue}).
				Entity(),
		)
		_, err := resolver.Mapper(registry.MustGet("Person"), "address")
		assert.True(t, errors.Is(err, ErrMalformedRelation))
	})

	t.Run("unknown target", func(t *testing.T) {
		resolver, registry := newTestResolver(t,
			idField(schema.NewEntity("Person")).
				Relation("address", schema.Relation{Kind: schema.ManyToOne, Target: "Nowhere"}).
				Entity(),
		)
		_, err := resolver.Mapper(registry.MustGet("Person"), "address")
		assert.True(t, errors.Is(err, ErrUnknownTarget))
	})

	t.Run("missing descriptor", func(t *testing.T) {
		resolver, registry := newTestResolver(t,
			idField(schema.NewEntity("Person")).UndeclaredRelation("address").Entity(),
		)
		_, err := resolver.Mapper(registry.MustGet("Person"), "address")
		assert.True(t, errors.Is(err, schema.ErrMissingRelationMethod))
	})

	t.Run("not a relation", func(t *testing.T) {
		resolver, registry := newTestResolver(t,
			idField(schema.NewEntity("Person")).Field("name", schema.TypeText).Entity(),
		)
		_, err := resolver.Mapper(registry.MustGet("Person"), "name")
		assert.True(t, errors.Is(err, ErrUnknownRelation))
	})
}

func TestResolver_ReverseDefault(t *testing.T) {
	resolver, registry := newTestResolver(t,
		idField(schema.NewEntity("BlogPost")).
			Relation("comments", schema.Relation{Kind: schema.OneToMany, Target: "Comment"}).
			Entity(),
		idField(schema.NewEntity("Comment")).
			Relation("blog_post", schema.Relation{Kind: schema.ManyToOne, Target: "BlogPost", Reverse: "comments"}).
			Entity(),
	)

	reverse, err := resolver.Reverse(registry.MustGet("BlogPost"), "comments")
	require.NoError(t, err)
	assert.Equal(t, "blog_post", reverse)

	reverse, err = resolver.Reverse(registry.MustGet("Comment"), "blog_post")
	require.NoError(t, err)
	assert.Equal(t, "comments", reverse)
}

func TestResolver_ManyToManyLayout(t *testing.T) {
	resolver, registry := newTestResolver(t,
		idField(schema.NewEntity("Person")).
			Relation("tags", schema.Relation{Kind: schema.ManyToMany, Target: "Tag", Reverse: "people", MappedBy: "Person"}).
			Entity(),
		idField(schema.NewEntity("Tag")).
			Relation("people", schema.Relation{Kind: schema.ManyToMany, Target: "Person", Reverse: "tags"}).
			Entity(),
	)
	person := registry.MustGet("Person")
	tag := registry.MustGet("Tag")

	fromPerson, err := resolver.RelationUnique(person, "tags")
	require.NoError(t, err)
	fromTag, err := resolver.RelationUnique(tag, "people")
	require.NoError(t, err)
	assert.Equal(t, "people_tags", fromPerson)
	assert.Equal(t, fromPerson, fromTag)

	table, err := resolver.JoinTable(tag, "people")
	require.NoError(t, err)
	assert.Equal(t, "people_tags", table)

	own, other, err := resolver.JoinColumns(person, "tags")
	require.NoError(t, err)
	assert.Equal(t, "people", own)
	assert.Equal(t, "tags", other)

	own, other, err = resolver.JoinColumns(tag, "people")
	require.NoError(t, err)
	assert.Equal(t, "tags", own)
	assert.Equal(t, "people", other)

	direct, err := resolver.IsDirect(person, "tags")
	require.NoError(t, err)
	assert.False(t, direct)

	mapper, err := resolver.Mapper(tag, "people")
	require.NoError(t, err)
	assert.Same(t, person, mapper)
}

func TestResolver_ExplicitJoinTable(t *testing.T) {
	resolver, registry := newTestResolver(t,
		idField(schema.NewEntity("Person")).
			Relation("tags", schema.Relation{
				Kind:                    schema.ManyToMany,
				Target:                  "Tag",
				Reverse:                 "people",
				JoinTable:               "person_has_tag",
				AttributeColumnName:     "person_id",
				JoinAttributeColumnName: "tag_id",
			}).
			Entity(),
		idField(schema.NewEntity("Tag")).
			Relation("people", schema.Relation{Kind: schema.ManyToMany, Target: "Person", Reverse: "tags"}).
			Entity(),
	)
	tag := registry.MustGet("Tag")

	table, err := resolver.JoinTable(tag, "people")
	require.NoError(t, err)
	assert.Equal(t, "person_has_tag", table)

	own, other, err := resolver.JoinColumns(tag, "people")
	require.NoError(t, err)
	assert.Equal(t, "tag_id", own)
	assert.Equal(t, "person_id", other)
}

func TestResolver_InheritedRelationTarget(t *testing.T) {
	resolver, registry := newTestResolver(t,
		idField(schema.NewEntity("Person")).
			Relation("car", schema.Relation{Kind: schema.ManyToOne, Target: "Car"}).
			Entity(),
		schema.NewEntity("Employee").Extends("Person").Entity(),
		idField(schema.NewEntity("Car")).Entity(),
	)
	employee := registry.MustGet("Employee")

	target, err := resolver.Target(employee, "car")
	require.NoError(t, err)
	assert.Equal(t, "Car", target.Name)

	mapped, err := resolver.IsMapped(employee, "car")
	require.NoError(t, err)
	assert.True(t, mapped)

	reverse, err := resolver.Reverse(employee, "car")
	require.NoError(t, err)
	assert.Equal(t, "person", reverse)
}

func TestResolver_SelfRelation(t *testing.T) {
	resolver, registry := newTestResolver(t,
		idField(schema.NewEntity("Person")).
			Relation("parent", schema.Relation{Kind: schema.ManyToOne, Target: "Person", Reverse: "children"}).
			Relation("children", schema.Relation{Kind: schema.OneToMany, Target: "Person", Reverse: "parent"}).
			Entity(),
	)
	person := registry.MustGet("Person")

	mapped, err := resolver.IsMapped(person, "parent")
	require.NoError(t, err)
	assert.True(t, mapped)

	mapped, err = resolver.IsMapped(person, "children")
	require.NoError(t, err)
	assert.False(t, mapped)

	mapper, err := resolver.Mapper(person, "children")
	require.NoError(t, err)
	assert.Same(t, person, mapper)
}
