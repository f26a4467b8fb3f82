package crud

import (
	"context"
	"fmt"

	"github.com/hivesolutions/colony-plugins-sub002/internal/orm/entity"
	"github.com/hivesolutions/colony-plugins-sub002/internal/orm/identity"
	"github.com/hivesolutions/colony-plugins-sub002/internal/orm/query"
	"github.com/hivesolutions/colony-plugins-sub002/internal/orm/schema"
)

// loader materializes rows into entities for one logical read. Every entity
// it creates is cached before its relations load, so cycles in the graph end
// on instances already built.
type loader struct {
	engine *Engine
	cache  *identity.Cache
	scope  *entity.Scope
}

func (e *Engine) newLoader(scope *entity.Scope) *loader {
	return &loader{engine: e, cache: identity.NewCache(), scope: scope}
}

// pending is an entity whose relations are still to be loaded
type pending struct {
	ent    *entity.Entity
	values map[string]interface{}
}

// find runs the select of t and materializes the result. eager applies to
// the top level entities only.
func (l *loader) find(ctx context.Context, t *schema.EntityType, opts FindOptions, eager map[string]bool) ([]*entity.Entity, error) {
	builder, ok, err := l.engine.selectBuilder(ctx, t, opts)
	if err != nil || !ok {
		return nil, err
	}
	sql, err := builder.ToSQL()
	if err != nil {
		return nil, err
	}
	columns := builder.Columns()

	// 1. Read the whole result before issuing further statements
	rows, err := l.engine.readRows(ctx, sql, len(columns)+1)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", t.Name, err)
	}

	// 2. Build the entities from their own columns
	result := make([]*entity.Entity, 0, len(rows))
	var fresh []pending
	for _, row := range rows {
		values := make(map[string]interface{}, len(columns))
		for i, column := range columns {
			values[column.Name] = row[i]
		}
		ent, created, err := l.materialize(t, text(row[len(columns)]), values, eager)
		if err != nil {
			return nil, err
		}
		result = append(result, ent)
		if created {
			fresh = append(fresh, pending{ent: ent, values: values})
		}
	}

	// 3. Load the eager relations of the entities built by this query
	for _, p := range fresh {
		if err := l.loadRelations(ctx, p.ent, p.values, eager); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// materialize returns the cached entity of the row or builds a new one of
// the concrete type named by discriminator
func (l *loader) materialize(t *schema.EntityType, discriminator string, values map[string]interface{}, eager map[string]bool) (*entity.Entity, bool, error) {
	concrete, ok := l.engine.registry.ByDiscriminator(discriminator)
	if !ok || !concrete.IsSubTypeOf(t) {
		return nil, false, fmt.Errorf("%w: %q is not a %s", schema.ErrUnknownEntity, discriminator, t.Name)
	}

	idAttr, err := concrete.IDAttribute()
	if err != nil {
		return nil, false, err
	}
	id, err := query.FromStorage(idAttr.Type, values[idAttr.Name])
	if err != nil {
		return nil, false, fmt.Errorf("%s.%s: %w", concrete.Name, idAttr.Name, err)
	}
	if cached, ok := l.cache.Get(concrete, id); ok {
		return cached, false, nil
	}

	ent := entity.NewInScope(concrete, l.scope)
	for _, attr := range concrete.Items() {
		if attr.IsRelation() {
			continue
		}
		if !attr.ID && attr.Fetch() == schema.FetchLazy && !eager[attr.Name] {
			continue
		}
		raw, ok := values[attr.Name]
		if !ok {
			continue
		}
		v, err := query.FromStorage(attr.Type, raw)
		if err != nil {
			return nil, false, fmt.Errorf("%s.%s: %w", concrete.Name, attr.Name, err)
		}
		ent.SetRaw(attr.Name, entity.Of(v))
	}

	l.cache.Add(id, ent)
	return ent, true, nil
}

// loadRelations loads the relations of ent declared eager or named in eager
func (l *loader) loadRelations(ctx context.Context, ent *entity.Entity, values map[string]interface{}, eager map[string]bool) error {
	for _, attr := range ent.Type().Relations() {
		if attr.Relation.IsEmpty() {
			continue
		}
		if attr.Fetch() != schema.FetchEager && !eager[attr.Name] {
			continue
		}
		if err := l.loadRelation(ctx, ent, attr, values); err != nil {
			return err
		}
	}
	return nil
}

// loadRelation sets the relation attr of ent. values holds the row of ent
// when it was just read, nil otherwise.
func (l *loader) loadRelation(ctx context.Context, ent *entity.Entity, attr *schema.Attribute, values map[string]interface{}) error {
	e := l.engine
	t := ent.Type()
	id, ok := ent.ID()
	if !ok {
		return fmt.Errorf("%w: %s", ErrMissingID, t.Name)
	}
	target, err := e.resolver.Target(t, attr.Name)
	if err != nil {
		return err
	}

	if attr.Relation.Kind == schema.ManyToMany {
		return l.loadJoined(ctx, ent, attr, target, id)
	}

	mapped, err := e.resolver.IsMapped(t, attr.Name)
	if err != nil {
		return err
	}
	if mapped {
		return l.loadForeignKey(ctx, ent, attr, target, id, values)
	}

	// the target rows hold the foreign key
	column, err := e.layout.InverseColumn(t, attr.Name)
	if err != nil {
		return err
	}
	found, err := l.find(ctx, target, FindOptions{Filters: []*query.PredicateGroup{equals(column, id)}}, nil)
	if err != nil {
		return err
	}
	if attr.Relation.Kind.IsToOne() {
		if len(found) == 0 {
			ent.SetRaw(attr.Name, entity.Null())
		} else {
			ent.SetRaw(attr.Name, entity.Of(found[0]))
		}
		return nil
	}
	if found == nil {
		found = []*entity.Entity{}
	}
	ent.SetRaw(attr.Name, entity.Of(found))
	return nil
}

// loadForeignKey resolves a to-one relation stored in the row of ent
func (l *loader) loadForeignKey(ctx context.Context, ent *entity.Entity, attr *schema.Attribute, target *schema.EntityType, id interface{}, values map[string]interface{}) error {
	e := l.engine
	t := ent.Type()
	column, ok, err := e.layout.ForeignKey(t, attr.Name)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%s.%s has no foreign key column", t.Name, attr.Name)
	}

	raw, ok := values[column.Name]
	if !ok {
		idColumn, err := e.layout.IDColumn(t)
		if err != nil {
			return err
		}
		idLiteral, err := query.Literal(idColumn.DataType, id)
		if err != nil {
			return err
		}
		found, err := e.readColumn(ctx, query.SelectColumn(t.TableName(), column.Name, idColumn.Name, idLiteral))
		if err != nil {
			return err
		}
		if len(found) == 0 {
			return fmt.Errorf("%w: %s %v", ErrNotFound, t.Name, id)
		}
		raw = found[0]
	}

	if raw == nil {
		ent.SetRaw(attr.Name, entity.Null())
		return nil
	}
	rid, err := query.FromStorage(column.DataType, raw)
	if err != nil {
		return err
	}
	related, err := l.fetch(ctx, target, rid)
	if IsNotFound(err) {
		ent.SetRaw(attr.Name, entity.Null())
		return nil
	}
	if err != nil {
		return err
	}
	ent.SetRaw(attr.Name, entity.Of(related))
	return nil
}

// loadJoined resolves a many-to-many relation through its join table
func (l *loader) loadJoined(ctx context.Context, ent *entity.Entity, attr *schema.Attribute, target *schema.EntityType, id interface{}) error {
	e := l.engine
	jt, err := e.layout.JoinTable(ent.Type(), attr.Name)
	if err != nil {
		return err
	}
	tables, err := e.existingTables(ctx)
	if err != nil {
		return err
	}

	related := []*entity.Entity{}
	if tables[jt.Name] {
		idLiteral, err := query.Literal(jt.Own.DataType, id)
		if err != nil {
			return err
		}
		ids, err := e.readColumn(ctx, query.SelectJoinRows(jt.Name, jt.Own.Name, jt.Other.Name, idLiteral))
		if err != nil {
			return err
		}
		for _, raw := range ids {
			if raw == nil {
				continue
			}
			rid, err := query.FromStorage(jt.Other.DataType, raw)
			if err != nil {
				return err
			}
			r, err := l.fetch(ctx, target, rid)
			if IsNotFound(err) {
				continue
			}
			if err != nil {
				return err
			}
			related = append(related, r)
		}
	}

	ent.SetRaw(attr.Name, entity.Of(related))
	return nil
}

// fetch returns the entity of t with the given id, from the cache when
// this read already built it
func (l *loader) fetch(ctx context.Context, t *schema.EntityType, id interface{}) (*entity.Entity, error) {
	if cached, ok := l.cache.Get(t, id); ok {
		return cached, nil
	}
	name, err := t.IDName()
	if err != nil {
		return nil, err
	}
	found, err := l.find(ctx, t, FindOptions{Filters: []*query.PredicateGroup{equals(name, id)}, Count: 1}, nil)
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, fmt.Errorf("%w: %s %v", ErrNotFound, t.Name, id)
	}
	return found[0], nil
}

// loadColumn reads one plain attribute of ent
func (l *loader) loadColumn(ctx context.Context, ent *entity.Entity, attr *schema.Attribute) error {
	e := l.engine
	t := ent.Type()
	id, _ := ent.ID()
	idColumn, err := e.layout.IDColumn(t)
	if err != nil {
		return err
	}
	idLiteral, err := query.Literal(idColumn.DataType, id)
	if err != nil {
		return err
	}

	found, err := e.readColumn(ctx, query.SelectColumn(t.TableName(), attr.Name, idColumn.Name, idLiteral))
	if err != nil {
		return err
	}
	if len(found) == 0 {
		return fmt.Errorf("%w: %s %v", ErrNotFound, t.Name, id)
	}
	v, err := query.FromStorage(attr.Type, found[0])
	if err != nil {
		return fmt.Errorf("%s.%s: %w", t.Name, attr.Name, err)
	}
	ent.SetRaw(attr.Name, entity.Of(v))
	return nil
}
