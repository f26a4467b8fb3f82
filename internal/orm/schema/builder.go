package schema

// AttributeOption configures an attribute declaration
type AttributeOption func(*Attribute)

// ID flags the attribute as the entity identifier
func ID() AttributeOption {
	return func(a *Attribute) { a.ID = true }
}

// Generated flags the attribute as generated with the given strategy
func Generated(g GeneratorType) AttributeOption {
	return func(a *Attribute) {
		a.Generated = true
		a.Generator = g
	}
}

// Indexed flags the attribute for a secondary index
func Indexed() AttributeOption {
	return func(a *Attribute) { a.Indexed = true }
}

// Mandatory flags the attribute as required on save
func Mandatory() AttributeOption {
	return func(a *Attribute) { a.Mandatory = true }
}

// Fetch sets the fetch type of the attribute
func Fetch(f FetchType) AttributeOption {
	return func(a *Attribute) { a.FetchType = f }
}

// Builder declares an entity type fluently
//
//	person := schema.NewEntity("Person").
//		Field("object_id", schema.TypeInteger, schema.ID(), schema.Generated(schema.GeneratorTable)).
//		Field("name", schema.TypeText).
//		Relation("tags", schema.Relation{Kind: schema.ManyToMany, Target: "Tag"}).
//		Entity()
type Builder struct {
	entity *EntityType
}

// NewEntity starts the declaration of an entity type
func NewEntity(name string) *Builder {
	return &Builder{entity: &EntityType{Name: name}}
}

// Abstract marks the type as a template without a table of its own
func (b *Builder) Abstract() *Builder {
	b.entity.Abstract = true
	return b
}

// Extends appends parents to the type
func (b *Builder) Extends(parents ...string) *Builder {
	b.entity.ParentNames = append(b.entity.ParentNames, parents...)
	return b
}

// Field declares a plain attribute
func (b *Builder) Field(name string, dataType DataType, opts ...AttributeOption) *Builder {
	attr := &Attribute{Name: name, Type: dataType}
	for _, opt := range opts {
		opt(attr)
	}
	b.entity.Declared = append(b.entity.Declared, attr)
	return b
}

// Relation declares a relation attribute
func (b *Builder) Relation(name string, rel Relation, opts ...AttributeOption) *Builder {
	r := rel
	attr := &Attribute{Name: name, Type: TypeRelation, Relation: &r}
	for _, opt := range opts {
		opt(attr)
	}
	b.entity.Declared = append(b.entity.Declared, attr)
	return b
}

// UndeclaredRelation declares a relation attribute without a descriptor
func (b *Builder) UndeclaredRelation(name string) *Builder {
	b.entity.Declared = append(b.entity.Declared, &Attribute{Name: name, Type: TypeRelation})
	return b
}

// Entity returns the declared entity type
func (b *Builder) Entity() *EntityType {
	return b.entity
}
