package query

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/hivesolutions/colony-plugins-sub002/internal/orm/schema"
)

var (
	// ErrNoBranches is returned when a select has no concrete table to read from
	ErrNoBranches = errors.New("no concrete table to select from")

	// ErrUnknownColumn is returned when a filter or ordering names no column
	ErrUnknownColumn = errors.New("unknown column")
)

// Branch is one concrete table answering a polymorphic select
type Branch struct {
	Type    *schema.EntityType
	Columns []Column
}

// Order is an ordering clause
type Order struct {
	Field      string
	Descending bool
}

// SelectBuilder builds polymorphic selects: one select per concrete table,
// combined with union all and tagged with the discriminator column
type SelectBuilder struct {
	branches []Branch
	groups   []*PredicateGroup
	orderBy  []Order
	start    int
	count    int
	limited  bool
}

// NewSelect creates a select over the given branches
func NewSelect(branches ...Branch) *SelectBuilder {
	return &SelectBuilder{branches: branches}
}

// Where adds a condition that must hold
func (b *SelectBuilder) Where(field string, op Operator, value interface{}) *SelectBuilder {
	return b.WhereAny(&Condition{Field: field, Operator: op, Value: value})
}

// WhereAny adds a group of conditions of which one must hold
func (b *SelectBuilder) WhereAny(conditions ...*Condition) *SelectBuilder {
	if len(conditions) > 0 {
		b.groups = append(b.groups, NewPredicateGroup(conditions...))
	}
	return b
}

// Groups adds predicate groups
func (b *SelectBuilder) Groups(groups ...*PredicateGroup) *SelectBuilder {
	for _, g := range groups {
		if g != nil && len(g.Conditions) > 0 {
			b.groups = append(b.groups, g)
		}
	}
	return b
}

// OrderBy adds an ordering clause
func (b *SelectBuilder) OrderBy(orders ...Order) *SelectBuilder {
	b.orderBy = append(b.orderBy, orders...)
	return b
}

// Limit restricts the result to count rows after skipping start rows. A
// negative count keeps every row after start.
func (b *SelectBuilder) Limit(start, count int) *SelectBuilder {
	b.start = start
	b.count = count
	b.limited = true
	return b
}

// Columns returns the result columns, the discriminator excluded: the union
// of the branch columns in first seen order
func (b *SelectBuilder) Columns() []Column {
	var columns []Column
	seen := make(map[string]bool)
	for _, branch := range b.branches {
		for _, c := range branch.Columns {
			if !seen[c.Name] {
				seen[c.Name] = true
				columns = append(columns, c)
			}
		}
	}
	return columns
}

// ToSQL renders the select
func (b *SelectBuilder) ToSQL() (string, error) {
	union, err := b.union()
	if err != nil {
		return "", err
	}

	var sql strings.Builder
	sql.WriteString(union)

	if len(b.orderBy) > 0 {
		known := b.columnSet()
		parts := make([]string, len(b.orderBy))
		for i, o := range b.orderBy {
			if _, ok := known[o.Field]; !ok && o.Field != DiscriminatorColumn {
				return "", fmt.Errorf("%w: order by %s", ErrUnknownColumn, o.Field)
			}
			direction := "asc"
			if o.Descending {
				direction = "desc"
			}
			parts[i] = o.Field + " " + direction
		}
		sql.WriteString(" order by ")
		sql.WriteString(strings.Join(parts, ", "))
	}

	if b.limited {
		count := b.count
		if count < 0 {
			count = -1
		}
		sql.WriteString(" limit ")
		sql.WriteString(strconv.Itoa(b.start))
		sql.WriteString(", ")
		sql.WriteString(strconv.Itoa(count))
	}

	return sql.String(), nil
}

// CountSQL renders the query counting the matching rows
func (b *SelectBuilder) CountSQL() (string, error) {
	union, err := b.union()
	if err != nil {
		return "", err
	}
	return "select count(1) from (" + union + ")", nil
}

func (b *SelectBuilder) columnSet() map[string]Column {
	known := make(map[string]Column)
	for _, c := range b.Columns() {
		known[c.Name] = c
	}
	return known
}

// union renders the per branch selects joined with union all
func (b *SelectBuilder) union() (string, error) {
	if len(b.branches) == 0 {
		return "", ErrNoBranches
	}

	known := b.columnSet()
	for _, g := range b.groups {
		for _, cond := range g.Conditions {
			if _, ok := known[cond.Field]; !ok {
				return "", fmt.Errorf("%w: filter on %s", ErrUnknownColumn, cond.Field)
			}
		}
	}

	columns := b.Columns()
	selects := make([]string, len(b.branches))
	for i, branch := range b.branches {
		own := make(map[string]Column, len(branch.Columns))
		for _, c := range branch.Columns {
			own[c.Name] = c
		}

		projection := make([]string, 0, len(columns)+1)
		for _, c := range columns {
			if _, ok := own[c.Name]; ok {
				projection = append(projection, c.Name)
			} else {
				projection = append(projection, "null as "+c.Name)
			}
		}
		projection = append(projection, Quote(branch.Type.Discriminator())+" as "+DiscriminatorColumn)

		sql := "select " + strings.Join(projection, ", ") + " from " + branch.Type.TableName()

		where, err := b.where(own)
		if err != nil {
			return "", err
		}
		if where != "" {
			sql += " where " + where
		}
		selects[i] = sql
	}

	return strings.Join(selects, " union all "), nil
}

// where renders the predicate groups against the columns of one branch
func (b *SelectBuilder) where(columns map[string]Column) (string, error) {
	parts := make([]string, 0, len(b.groups))
	for _, g := range b.groups {
		sql, err := g.ToSQL(columns)
		if err != nil {
			return "", err
		}
		if sql != "" {
			parts = append(parts, sql)
		}
	}
	return strings.Join(parts, " and "), nil
}
