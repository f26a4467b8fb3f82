package schema

import (
	"fmt"
)

// Handle identifies a registered entity type inside its registry
type Handle int

// EntityType is the declaration of an entity type together with the views
// derived from it when the owning registry is built
type EntityType struct {
	Name        string
	Abstract    bool
	ParentNames []string
	Declared    []*Attribute

	handle   Handle
	registry *Registry

	parents     []*EntityType
	allParents  []*EntityType
	subTypes    []*EntityType
	allSubTypes []*EntityType

	own       []*Attribute
	items     []*Attribute
	itemsMap  map[string]*Attribute
	names     []string
	relations []*Attribute
	generated []*Attribute
	indexed   []*Attribute
	idName    string
	idErr     error
	built     bool
}

// Handle returns the registry handle of the type
func (t *EntityType) Handle() Handle {
	return t.handle
}

// Registry returns the registry the type was registered into
func (t *EntityType) Registry() *Registry {
	return t.registry
}

// Discriminator returns the value stored in polymorphic queries for the type
func (t *EntityType) Discriminator() string {
	return t.Name
}

// TableName returns the table backing the type
func (t *EntityType) TableName() string {
	return t.Name
}

// SafeTableName returns the lower snake case form of the type name
func (t *EntityType) SafeTableName() string {
	return toSnakeCase(t.Name)
}

// Items returns the attributes merged parent-first, child entries overriding
func (t *EntityType) Items() []*Attribute {
	return t.items
}

// ItemsMap returns the merged attributes keyed by name
func (t *EntityType) ItemsMap() map[string]*Attribute {
	return t.itemsMap
}

// OwnItems returns the attributes declared by the type itself plus those
// inlined from its abstract ancestors
func (t *EntityType) OwnItems() []*Attribute {
	return t.own
}

// Names returns the ordered attribute names
func (t *EntityType) Names() []string {
	return t.names
}

// Relations returns the relation attributes
func (t *EntityType) Relations() []*Attribute {
	return t.relations
}

// Generated returns the generated attributes
func (t *EntityType) Generated() []*Attribute {
	return t.generated
}

// Indexed returns the indexed attributes
func (t *EntityType) Indexed() []*Attribute {
	return t.indexed
}

// Parents returns the direct parents of the type
func (t *EntityType) Parents() []*EntityType {
	return t.parents
}

// AllParents returns every ancestor of the type, ancestors first
func (t *EntityType) AllParents() []*EntityType {
	return t.allParents
}

// SubTypes returns the registered direct sub-types
func (t *EntityType) SubTypes() []*EntityType {
	return t.subTypes
}

// AllSubTypes returns every registered descendant, depth first
func (t *EntityType) AllSubTypes() []*EntityType {
	return t.allSubTypes
}

// IsSubTypeOf returns true when t is other or descends from it
func (t *EntityType) IsSubTypeOf(other *EntityType) bool {
	if t == other {
		return true
	}
	for _, parent := range t.allParents {
		if parent == other {
			return true
		}
	}
	return false
}

// Concrete returns the non-abstract types answering a polymorphic query on t
func (t *EntityType) Concrete() []*EntityType {
	var result []*EntityType
	if !t.Abstract {
		result = append(result, t)
	}
	for _, sub := range t.allSubTypes {
		if !sub.Abstract {
			result = append(result, sub)
		}
	}
	return result
}

// Attribute returns the merged attribute with the given name
func (t *EntityType) Attribute(name string) (*Attribute, bool) {
	attr, ok := t.itemsMap[name]
	return attr, ok
}

// HasAttribute returns true if the type has an attribute with the given name
func (t *EntityType) HasAttribute(name string) bool {
	_, ok := t.itemsMap[name]
	return ok
}

// IDName returns the name of the id attribute, resolved through the parents
func (t *EntityType) IDName() (string, error) {
	if !t.built {
		return "", ErrRegistryNotBuilt
	}
	return t.idName, t.idErr
}

// IDAttribute returns the id attribute descriptor
func (t *EntityType) IDAttribute() (*Attribute, error) {
	name, err := t.IDName()
	if err != nil {
		return nil, err
	}
	return t.itemsMap[name], nil
}

// RelationAttributes returns the relation descriptor of name. Undeclared
// descriptors yield an empty relation unless strict is set.
func (t *EntityType) RelationAttributes(name string, strict bool) (*Relation, error) {
	attr, ok := t.itemsMap[name]
	if !ok || attr.Relation == nil {
		if strict {
			return nil, fmt.Errorf("%w: %s.%s", ErrMissingRelationMethod, t.Name, name)
		}
		return &Relation{}, nil
	}
	return attr.Relation, nil
}

// IsRelation returns true when name is a relation attribute
func (t *EntityType) IsRelation(name string) bool {
	attr, ok := t.itemsMap[name]
	return ok && attr.IsRelation()
}

// derive computes every cached view. Parents are derived before children.
func (t *EntityType) derive() {
	if t.built {
		return
	}
	for _, parent := range t.parents {
		parent.derive()
	}

	t.own = t.ownItems()

	t.itemsMap = make(map[string]*Attribute)
	var order []string
	merge := func(attrs []*Attribute) {
		for _, attr := range attrs {
			if _, exists := t.itemsMap[attr.Name]; !exists {
				order = append(order, attr.Name)
			}
			t.itemsMap[attr.Name] = attr
		}
	}
	for _, parent := range t.allParents {
		if !parent.Abstract {
			merge(parent.own)
		}
	}
	merge(t.own)

	t.items = make([]*Attribute, 0, len(order))
	for _, name := range order {
		t.items = append(t.items, t.itemsMap[name])
	}

	seen := make(map[string]bool)
	t.names = t.names[:0]
	for _, parent := range t.allParents {
		for _, name := range parent.names {
			if !seen[name] {
				seen[name] = true
				t.names = append(t.names, name)
			}
		}
	}
	for _, attr := range t.own {
		if !seen[attr.Name] {
			seen[attr.Name] = true
			t.names = append(t.names, attr.Name)
		}
	}

	for _, attr := range t.items {
		if attr.IsRelation() {
			t.relations = append(t.relations, attr)
		}
		if attr.Generated {
			t.generated = append(t.generated, attr)
		}
		if attr.Indexed {
			t.indexed = append(t.indexed, attr)
		}
	}

	t.idName, t.idErr = t.resolveID()
	t.built = true
}

// ownItems returns the declared attributes preceded by those of the abstract
// ancestors reachable without crossing a concrete type
func (t *EntityType) ownItems() []*Attribute {
	index := make(map[string]int)
	var result []*Attribute
	add := func(attrs []*Attribute) {
		for _, attr := range attrs {
			if !IsPersistentName(attr.Name) {
				continue
			}
			if i, exists := index[attr.Name]; exists {
				result[i] = attr
				continue
			}
			index[attr.Name] = len(result)
			result = append(result, attr)
		}
	}

	var inline func(*EntityType, map[*EntityType]bool)
	inline = func(current *EntityType, visited map[*EntityType]bool) {
		for _, parent := range current.parents {
			if !parent.Abstract || visited[parent] {
				continue
			}
			visited[parent] = true
			inline(parent, visited)
			add(parent.Declared)
		}
	}
	inline(t, make(map[*EntityType]bool))
	add(t.Declared)

	return result
}

// resolveID searches the own items first and then the parents in order
func (t *EntityType) resolveID() (string, error) {
	var ids []string
	for _, attr := range t.own {
		if attr.ID {
			ids = append(ids, attr.Name)
		}
	}
	if len(ids) > 1 {
		return "", fmt.Errorf("%w: %s (%v)", ErrMultipleIDs, t.Name, ids)
	}
	if len(ids) == 1 {
		return ids[0], nil
	}
	for _, parent := range t.parents {
		if name, err := parent.resolveID(); err == nil {
			return name, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrMissingID, t.Name)
}
