package loader

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hivesolutions/colony-plugins-sub002/internal/orm/schema"
)

func TestLoad(t *testing.T) {
	registry, err := Load(filepath.Join("testdata", "entities.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 5, registry.Count())

	root := registry.MustGet("Root")
	assert.True(t, root.Abstract)

	employee := registry.MustGet("Employee")
	person := registry.MustGet("Person")
	assert.True(t, employee.IsSubTypeOf(person))
	assert.True(t, employee.IsSubTypeOf(root))

	id, err := employee.IDAttribute()
	require.NoError(t, err)
	assert.Equal(t, "object_id", id.Name)
	assert.True(t, id.Generated)
	assert.Equal(t, schema.GeneratorTable, id.Generator)
	assert.Same(t, root, id.Owner())

	name, ok := person.Attribute("name")
	require.True(t, ok)
	assert.True(t, name.Mandatory)
	assert.True(t, name.Indexed)

	tags, ok := person.Attribute("tags")
	require.True(t, ok)
	require.True(t, tags.IsRelation())
	assert.Equal(t, schema.ManyToMany, tags.Relation.Kind)
	assert.Equal(t, "person_has_tag", tags.Relation.JoinTable)

	owners, _ := registry.MustGet("Car").Attribute("owners")
	assert.Equal(t, schema.FetchLazy, owners.Fetch())

	tagID, err := registry.MustGet("Tag").IDName()
	require.NoError(t, err)
	assert.Equal(t, "name", tagID)
}

func TestParse_Mapper(t *testing.T) {
	f, err := Parse([]byte(`
entities:
  - name: Account
    attributes:
      - {name: object_id, type: integer, id: true}
      - name: profile
        relation: {kind: one-to-one, target: Profile, is_mapper: false, fetch: eager}
`))
	require.NoError(t, err)

	types, err := f.EntityTypes()
	require.NoError(t, err)
	require.Len(t, types, 1)

	profile := types[0].Declared[1]
	assert.Equal(t, schema.MapperFalse, profile.Relation.IsMapper)
	assert.Equal(t, schema.FetchEager, profile.Relation.FetchType)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"missing entity name", "entities: [{attributes: []}]"},
		{"missing attribute name", "entities: [{name: A, attributes: [{type: text}]}]"},
		{"missing type", "entities: [{name: A, attributes: [{name: x}]}]"},
		{"relation on plain field", "entities: [{name: A, attributes: [{name: x, type: text, relation: {kind: one-to-one, target: B}}]}]"},
		{"relation without target", "entities: [{name: A, attributes: [{name: x, relation: {kind: one-to-one}}]}]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := Parse([]byte(tt.yaml))
			require.NoError(t, err)
			_, err = f.EntityTypes()
			assert.True(t, errors.Is(err, ErrInvalidDeclaration), "got %v", err)
		})
	}
}

func TestParse_UnknownValues(t *testing.T) {
	f, err := Parse([]byte("entities: [{name: A, attributes: [{name: x, type: blob}]}]"))
	require.NoError(t, err)
	_, err = f.EntityTypes()
	assert.Error(t, err)

	_, err = Parse([]byte("entities: {name: A}"))
	assert.Error(t, err)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join("testdata", "missing.yaml"))
	assert.Error(t, err)
}
