package query

import (
	"fmt"

	"github.com/hivesolutions/colony-plugins-sub002/internal/orm/relationships"
	"github.com/hivesolutions/colony-plugins-sub002/internal/orm/schema"
)

// Column is a physical column of an entity table
type Column struct {
	Name string
	// Type is the storage type of the column
	Type string
	// DataType is the type of the values written to the column, the id type
	// of the referenced entity for foreign keys
	DataType schema.DataType
	// Attribute is nil for foreign keys of inverse relations the table's
	// type does not declare
	Attribute  *schema.Attribute
	ForeignKey bool
	// Target is the referenced entity type of a foreign key
	Target *schema.EntityType
}

// JoinTable is the physical layout of one side of a many-to-many relation
type JoinTable struct {
	Name      string
	Attribute *schema.Attribute
	Target    *schema.EntityType
	// Own holds the ids of the declaring type, Other those of the target
	Own   Column
	Other Column
}

// Columns returns both join table columns, own first
func (j JoinTable) Columns() []Column {
	return []Column{j.Own, j.Other}
}

// Layout maps entity types onto tables with table per concrete type
// inheritance: every table carries the merged attributes of its type
type Layout struct {
	resolver *relationships.Resolver
}

// NewLayout creates a layout over the resolver's registry
func NewLayout(resolver *relationships.Resolver) *Layout {
	return &Layout{resolver: resolver}
}

// Resolver returns the relation resolver
func (l *Layout) Resolver() *relationships.Resolver {
	return l.resolver
}

// IDColumn returns the id column of t
func (l *Layout) IDColumn(t *schema.EntityType) (Column, error) {
	attr, err := t.IDAttribute()
	if err != nil {
		return Column{}, fmt.Errorf("%s: %w", t.Name, err)
	}
	return Column{Name: attr.Name, Type: SQLType(attr.Type), DataType: attr.Type, Attribute: attr}, nil
}

// Columns returns the columns of the table of t: the plain attributes, the
// foreign keys of the to-one relations t maps, and the foreign keys other
// types map onto t
func (l *Layout) Columns(t *schema.EntityType) ([]Column, error) {
	var columns []Column
	seen := make(map[string]bool)
	add := func(c Column) {
		if !seen[c.Name] {
			seen[c.Name] = true
			columns = append(columns, c)
		}
	}

	for _, attr := range t.Items() {
		if !attr.IsRelation() {
			add(Column{Name: attr.Name, Type: SQLType(attr.Type), DataType: attr.Type, Attribute: attr})
			continue
		}
		column, ok, err := l.ForeignKey(t, attr.Name)
		if err != nil {
			return nil, err
		}
		if ok {
			add(column)
		}
	}

	inverse, err := l.inverseForeignKeys(t)
	if err != nil {
		return nil, err
	}
	for _, column := range inverse {
		add(column)
	}

	return columns, nil
}

// Column returns the named column of the table of t
func (l *Layout) Column(t *schema.EntityType, name string) (Column, bool, error) {
	columns, err := l.Columns(t)
	if err != nil {
		return Column{}, false, err
	}
	for _, column := range columns {
		if column.Name == name {
			return column, true, nil
		}
	}
	return Column{}, false, nil
}

// ForeignKey returns the foreign key column stored in the table of t for the
// relation name, when t maps a to-one relation
func (l *Layout) ForeignKey(t *schema.EntityType, name string) (Column, bool, error) {
	attr, rel, err := l.resolver.Relation(t, name)
	if err != nil {
		return Column{}, false, err
	}
	if !rel.Kind.IsToOne() {
		return Column{}, false, nil
	}

	mapped, err := l.resolver.IsMapped(t, name)
	if err != nil {
		return Column{}, false, err
	}
	if !mapped {
		return Column{}, false, nil
	}

	target, err := l.resolver.Target(t, name)
	if err != nil {
		return Column{}, false, err
	}
	return foreignKeyColumn(name, attr, target)
}

// inverseForeignKeys returns the foreign keys placed on t by relations of
// other types whose inverse side t is the mapper of
func (l *Layout) inverseForeignKeys(t *schema.EntityType) ([]Column, error) {
	var columns []Column
	for _, other := range l.resolver.Registry().All() {
		if other.Abstract {
			continue
		}
		for _, attr := range other.Relations() {
			if attr.Relation.IsEmpty() || attr.Relation.Kind == schema.ManyToMany {
				continue
			}
			target, err := l.resolver.Target(other, attr.Name)
			if err != nil {
				return nil, err
			}
			if !t.IsSubTypeOf(target) {
				continue
			}
			mapped, err := l.resolver.IsMapped(other, attr.Name)
			if err != nil {
				return nil, err
			}
			if mapped {
				continue
			}
			reverse, err := l.resolver.Reverse(other, attr.Name)
			if err != nil {
				return nil, err
			}
			// the inverse attribute declared on t carries the column itself
			if t.IsRelation(reverse) {
				continue
			}
			column, _, err := foreignKeyColumn(reverse, nil, other)
			if err != nil {
				return nil, err
			}
			columns = append(columns, column)
		}
	}
	return columns, nil
}

func foreignKeyColumn(name string, attr *schema.Attribute, target *schema.EntityType) (Column, bool, error) {
	id, err := target.IDAttribute()
	if err != nil {
		return Column{}, false, fmt.Errorf("%s: %w", target.Name, err)
	}
	return Column{
		Name:       name,
		Type:       SQLType(id.Type),
		DataType:   id.Type,
		Attribute:  attr,
		ForeignKey: true,
		Target:     target,
	}, true, nil
}

// InverseColumn returns the name of the foreign key column held by the
// target of a relation t does not map, the reverse attribute name
func (l *Layout) InverseColumn(t *schema.EntityType, name string) (string, error) {
	return l.resolver.Reverse(t, name)
}

// JoinTables returns the join tables of the many-to-many relations of t
func (l *Layout) JoinTables(t *schema.EntityType) ([]JoinTable, error) {
	var tables []JoinTable
	for _, attr := range t.Relations() {
		if attr.Relation.IsEmpty() || attr.Relation.Kind != schema.ManyToMany {
			continue
		}
		table, err := l.JoinTable(t, attr.Name)
		if err != nil {
			return nil, err
		}
		tables = append(tables, table)
	}
	return tables, nil
}

// JoinTable returns the join table layout of the many-to-many relation name
func (l *Layout) JoinTable(t *schema.EntityType, name string) (JoinTable, error) {
	attr, _, err := l.resolver.Relation(t, name)
	if err != nil {
		return JoinTable{}, err
	}
	target, err := l.resolver.Target(t, name)
	if err != nil {
		return JoinTable{}, err
	}
	tableName, err := l.resolver.JoinTable(t, name)
	if err != nil {
		return JoinTable{}, err
	}
	own, other, err := l.resolver.JoinColumns(t, name)
	if err != nil {
		return JoinTable{}, err
	}

	ownColumn, _, err := foreignKeyColumn(own, nil, t)
	if err != nil {
		return JoinTable{}, err
	}
	otherColumn, _, err := foreignKeyColumn(other, attr, target)
	if err != nil {
		return JoinTable{}, err
	}

	return JoinTable{
		Name:      tableName,
		Attribute: attr,
		Target:    target,
		Own:       ownColumn,
		Other:     otherColumn,
	}, nil
}
