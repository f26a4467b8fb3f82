// Package loader reads entity declarations from YAML files and builds the
// schema registry they describe.
//
// A declaration file lists entity types with their attributes in order:
//
//	entities:
//	  - name: Person
//	    extends: Root
//	    attributes:
//	      - {name: object_id, type: integer, id: true, generated: table}
//	      - {name: name, type: text, mandatory: true}
//	      - name: tags
//	        relation: {kind: many-to-many, target: Tag, reverse: people}
package loader

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/hivesolutions/colony-plugins-sub002/internal/orm/schema"
)

// ErrInvalidDeclaration is returned for declarations that cannot describe an
// entity type
var ErrInvalidDeclaration = errors.New("invalid entity declaration")

// File is the content of one declaration file
type File struct {
	Entities []EntityDecl `yaml:"entities"`
}

// EntityDecl declares one entity type
type EntityDecl struct {
	Name       string          `yaml:"name"`
	Abstract   bool            `yaml:"abstract,omitempty"`
	Extends    StringList      `yaml:"extends,omitempty"`
	Attributes []AttributeDecl `yaml:"attributes"`
}

// AttributeDecl declares one attribute
type AttributeDecl struct {
	Name      string        `yaml:"name"`
	Type      string        `yaml:"type,omitempty"`
	ID        bool          `yaml:"id,omitempty"`
	Generated string        `yaml:"generated,omitempty"`
	Indexed   bool          `yaml:"indexed,omitempty"`
	Mandatory bool          `yaml:"mandatory,omitempty"`
	Fetch     string        `yaml:"fetch,omitempty"`
	Relation  *RelationDecl `yaml:"relation,omitempty"`
}

// RelationDecl declares the relation descriptor of a relation attribute
type RelationDecl struct {
	Kind                    string `yaml:"kind"`
	Target                  string `yaml:"target"`
	Reverse                 string `yaml:"reverse,omitempty"`
	MappedBy                string `yaml:"mapped_by,omitempty"`
	IsMapper                *bool  `yaml:"is_mapper,omitempty"`
	Fetch                   string `yaml:"fetch,omitempty"`
	JoinTable               string `yaml:"join_table,omitempty"`
	AttributeColumnName     string `yaml:"attribute_column,omitempty"`
	JoinAttributeColumnName string `yaml:"join_attribute_column,omitempty"`
}

// StringList is a YAML value that can be either a string or a list of strings
type StringList []string

// UnmarshalYAML implements yaml.Unmarshaler for StringList
func (s *StringList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		*s = []string{node.Value}
		return nil
	case yaml.SequenceNode:
		var list []string
		if err := node.Decode(&list); err != nil {
			return err
		}
		*s = list
		return nil
	default:
		return fmt.Errorf("expected string or list, got %v", node.Kind)
	}
}

// Parse decodes the declarations of one file
func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse declarations: %w", err)
	}
	return &f, nil
}

// LoadFile reads and decodes a declaration file
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read declarations: %w", err)
	}
	f, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// Load reads every file and builds the registry of their entity types
func Load(paths ...string) (*schema.Registry, error) {
	files := make([]*File, 0, len(paths))
	for _, path := range paths {
		f, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return Build(files...)
}

// Build registers the entity types of the files and builds the registry
func Build(files ...*File) (*schema.Registry, error) {
	registry := schema.NewRegistry()
	for _, f := range files {
		types, err := f.EntityTypes()
		if err != nil {
			return nil, err
		}
		for _, t := range types {
			if err := registry.Register(t); err != nil {
				return nil, err
			}
		}
	}
	if err := registry.Build(); err != nil {
		return nil, err
	}
	return registry, nil
}

// EntityTypes converts the declarations into entity types
func (f *File) EntityTypes() ([]*schema.EntityType, error) {
	types := make([]*schema.EntityType, 0, len(f.Entities))
	for _, decl := range f.Entities {
		t, err := decl.EntityType()
		if err != nil {
			return nil, err
		}
		types = append(types, t)
	}
	return types, nil
}

// EntityType converts the declaration into an entity type
func (d EntityDecl) EntityType() (*schema.EntityType, error) {
	if d.Name == "" {
		return nil, fmt.Errorf("%w: entity without name", ErrInvalidDeclaration)
	}

	b := schema.NewEntity(d.Name)
	if d.Abstract {
		b.Abstract()
	}
	if len(d.Extends) > 0 {
		b.Extends(d.Extends...)
	}

	for _, attr := range d.Attributes {
		if err := attr.declare(b); err != nil {
			return nil, fmt.Errorf("%s.%s: %w", d.Name, attr.Name, err)
		}
	}
	return b.Entity(), nil
}

// declare adds the attribute to the builder
func (a AttributeDecl) declare(b *schema.Builder) error {
	if a.Name == "" {
		return fmt.Errorf("%w: attribute without name", ErrInvalidDeclaration)
	}

	var opts []schema.AttributeOption
	if a.ID {
		opts = append(opts, schema.ID())
	}
	if a.Generated != "" {
		g, err := schema.ParseGeneratorType(a.Generated)
		if err != nil {
			return err
		}
		opts = append(opts, schema.Generated(g))
	}
	if a.Indexed {
		opts = append(opts, schema.Indexed())
	}
	if a.Mandatory {
		opts = append(opts, schema.Mandatory())
	}
	if a.Fetch != "" {
		f, err := schema.ParseFetchType(a.Fetch)
		if err != nil {
			return err
		}
		opts = append(opts, schema.Fetch(f))
	}

	dataType := schema.TypeRelation
	if a.Type != "" {
		t, err := schema.ParseDataType(a.Type)
		if err != nil {
			return err
		}
		dataType = t
	} else if a.Relation == nil {
		return fmt.Errorf("%w: missing type", ErrInvalidDeclaration)
	}

	if dataType != schema.TypeRelation {
		if a.Relation != nil {
			return fmt.Errorf("%w: %s attribute with a relation", ErrInvalidDeclaration, dataType)
		}
		b.Field(a.Name, dataType, opts...)
		return nil
	}

	if a.Relation == nil {
		b.UndeclaredRelation(a.Name)
		return nil
	}
	rel, err := a.Relation.relation()
	if err != nil {
		return err
	}
	b.Relation(a.Name, rel, opts...)
	return nil
}

// relation converts the declaration into a relation descriptor
func (r RelationDecl) relation() (schema.Relation, error) {
	kind, err := schema.ParseRelationKind(r.Kind)
	if err != nil {
		return schema.Relation{}, err
	}
	if r.Target == "" {
		return schema.Relation{}, fmt.Errorf("%w: relation without target", ErrInvalidDeclaration)
	}

	rel := schema.Relation{
		Kind:                    kind,
		Target:                  r.Target,
		Reverse:                 r.Reverse,
		MappedBy:                r.MappedBy,
		JoinTable:               r.JoinTable,
		AttributeColumnName:     r.AttributeColumnName,
		JoinAttributeColumnName: r.JoinAttributeColumnName,
	}
	if r.IsMapper != nil {
		rel.IsMapper = schema.MapperFalse
		if *r.IsMapper {
			rel.IsMapper = schema.MapperTrue
		}
	}
	if r.Fetch != "" {
		f, err := schema.ParseFetchType(r.Fetch)
		if err != nil {
			return schema.Relation{}, err
		}
		rel.FetchType = f
	}
	return rel, nil
}
