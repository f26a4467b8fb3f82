package crud

import (
	"context"
	"fmt"

	"github.com/hivesolutions/colony-plugins-sub002/internal/orm/entity"
	"github.com/hivesolutions/colony-plugins-sub002/internal/orm/query"
	"github.com/hivesolutions/colony-plugins-sub002/internal/orm/schema"
)

// FindOptions narrows and shapes a find
type FindOptions struct {
	// Filters are combined with AND, the conditions of a group with OR
	Filters []*query.PredicateGroup
	Order   []query.Order
	Start   int
	// Count limits the number of entities, zero returns all of them
	Count int
	// Eager names relations and lazy attributes loaded with the top level
	// entities on top of those declared eager
	Eager []string
}

// Find returns the entities of t and its sub-types matching opts
func (e *Engine) Find(ctx context.Context, t *schema.EntityType, opts FindOptions) ([]*entity.Entity, error) {
	l := e.newLoader(entity.NewScope())
	return l.find(ctx, t, opts, eagerSet(opts.Eager))
}

// Get returns the entity of t or a sub-type with the given id
func (e *Engine) Get(ctx context.Context, t *schema.EntityType, id interface{}, eager ...string) (*entity.Entity, error) {
	name, err := t.IDName()
	if err != nil {
		return nil, err
	}
	return e.GetBy(ctx, t, name, id, eager...)
}

// GetBy returns the first entity of t whose field equals value
func (e *Engine) GetBy(ctx context.Context, t *schema.EntityType, field string, value interface{}, eager ...string) (*entity.Entity, error) {
	found, err := e.Find(ctx, t, FindOptions{
		Filters: []*query.PredicateGroup{equals(field, value)},
		Count:   1,
		Eager:   eager,
	})
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, fmt.Errorf("%w: %s with %s %v", ErrNotFound, t.Name, field, value)
	}
	return found[0], nil
}

// Count returns the number of entities of t and its sub-types matching the
// filters
func (e *Engine) Count(ctx context.Context, t *schema.EntityType, filters ...*query.PredicateGroup) (int64, error) {
	builder, ok, err := e.selectBuilder(ctx, t, FindOptions{Filters: filters})
	if err != nil || !ok {
		return 0, err
	}
	sql, err := builder.CountSQL()
	if err != nil {
		return 0, err
	}

	var count int64
	if err := e.conn.QueryRow(ctx, sql).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// LoadLazy materializes the named attributes of ent that were left unloaded
func (e *Engine) LoadLazy(ctx context.Context, ent *entity.Entity, names ...string) error {
	t := ent.Type()
	id, ok := ent.ID()
	if !ok {
		return fmt.Errorf("%w: %s", ErrMissingID, t.Name)
	}

	l := e.newLoader(ent.Scope())
	l.cache.Add(id, ent)

	for _, name := range names {
		attr, ok := t.Attribute(name)
		if !ok {
			return fmt.Errorf("%w: %s.%s", schema.ErrUnknownAttribute, t.Name, name)
		}
		if attr.IsRelation() {
			if err := l.loadRelation(ctx, ent, attr, nil); err != nil {
				return err
			}
			continue
		}
		if err := l.loadColumn(ctx, ent, attr); err != nil {
			return err
		}
	}
	return nil
}

// selectBuilder prepares the polymorphic select of t over the concrete
// tables that exist. The flag is false when there is none.
func (e *Engine) selectBuilder(ctx context.Context, t *schema.EntityType, opts FindOptions) (*query.SelectBuilder, bool, error) {
	tables, err := e.existingTables(ctx)
	if err != nil {
		return nil, false, err
	}

	var branches []query.Branch
	for _, c := range t.Concrete() {
		if !tables[c.TableName()] {
			continue
		}
		columns, err := e.layout.Columns(c)
		if err != nil {
			return nil, false, err
		}
		branches = append(branches, query.Branch{Type: c, Columns: columns})
	}
	if len(branches) == 0 {
		return nil, false, nil
	}

	builder := query.NewSelect(branches...).
		Groups(normalizeFilters(opts.Filters)...).
		OrderBy(opts.Order...)
	if opts.Start > 0 || opts.Count > 0 {
		count := opts.Count
		if count <= 0 {
			count = -1
		}
		builder.Limit(opts.Start, count)
	}
	return builder, true, nil
}

// normalizeFilters replaces entity values with their ids
func normalizeFilters(groups []*query.PredicateGroup) []*query.PredicateGroup {
	result := make([]*query.PredicateGroup, 0, len(groups))
	for _, g := range groups {
		if g == nil {
			continue
		}
		normalized := query.NewPredicateGroup()
		for _, cond := range g.Conditions {
			c := *cond
			if related, ok := c.Value.(*entity.Entity); ok {
				if related == nil {
					c.Value = nil
				} else {
					c.Value, _ = related.ID()
				}
			}
			normalized.AddCondition(&c)
		}
		result = append(result, normalized)
	}
	return result
}

func equals(field string, value interface{}) *query.PredicateGroup {
	return query.NewPredicateGroup(&query.Condition{Field: field, Operator: query.OpEqual, Value: value})
}

func eagerSet(names []string) map[string]bool {
	if len(names) == 0 {
		return nil
	}
	set := make(map[string]bool, len(names))
	for _, name := range names {
		set[name] = true
	}
	return set
}
