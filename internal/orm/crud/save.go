package crud

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/hivesolutions/colony-plugins-sub002/internal/orm/entity"
	"github.com/hivesolutions/colony-plugins-sub002/internal/orm/hooks"
	"github.com/hivesolutions/colony-plugins-sub002/internal/orm/migrate"
	"github.com/hivesolutions/colony-plugins-sub002/internal/orm/query"
	"github.com/hivesolutions/colony-plugins-sub002/internal/orm/schema"
)

// Save inserts ent, generating missing ids, and stores its loaded relations.
// Related entities must already have an id.
func (e *Engine) Save(ctx context.Context, ent *entity.Entity) error {
	t := ent.Type()
	if t.Abstract {
		return fmt.Errorf("%w: %s", migrate.ErrAbstractType, t.Name)
	}

	// 1. Let the hooks fill in values, then validate before any statement runs
	if err := e.runHooks(ctx, hooks.BeforeSave, ent); err != nil {
		return err
	}
	if err := ent.Validate(); err != nil {
		return err
	}

	err := e.conn.WithTransaction(ctx, func(ctx context.Context) error {
		// 2. Generate missing ids
		var generated []string
		for _, attr := range t.Generated() {
			if v := ent.Value(attr.Name); v.IsLoaded() && !v.IsNull() {
				continue
			}
			id, err := e.GenerateID(ctx, t, attr)
			if err != nil {
				return err
			}
			ent.SetRaw(attr.Name, entity.Of(id))
			generated = append(generated, attr.Name)
		}
		if len(generated) > 0 {
			// a rolled back counter hands the same ids out again
			e.conn.AddRollbackHandler(func() {
				for _, name := range generated {
					ent.Unload(name)
				}
			}, true)
		}

		id, ok := ent.ID()
		if !ok {
			return fmt.Errorf("%w: %s", ErrMissingID, t.Name)
		}

		// 3. Insert the row
		values, err := e.assignments(ent, true)
		if err != nil {
			return err
		}
		if err := e.exec(ctx, query.Insert(t.TableName(), values)); err != nil {
			return fmt.Errorf("failed to save %s: %w", t.Name, err)
		}

		// 4. Store the relations kept outside the row
		if err := e.saveRelations(ctx, ent, id, false); err != nil {
			return err
		}
		return e.runHooks(ctx, hooks.AfterSave, ent)
	})
	if err != nil {
		return err
	}

	ent.SetState(entity.StateUnset)
	e.logger.Debug("entity saved", zap.String("entity", t.Name), zap.Any("id", mustID(ent)))
	return nil
}

// Update writes the loaded attributes of ent to its row and replaces its
// loaded relations
func (e *Engine) Update(ctx context.Context, ent *entity.Entity) error {
	t := ent.Type()
	id, ok := ent.ID()
	if !ok {
		return fmt.Errorf("%w: %s", ErrMissingID, t.Name)
	}
	if err := e.runHooks(ctx, hooks.BeforeUpdate, ent); err != nil {
		return err
	}
	if err := ent.ValidateLoaded(); err != nil {
		return err
	}

	idColumn, err := e.layout.IDColumn(t)
	if err != nil {
		return err
	}
	idLiteral, err := query.Literal(idColumn.DataType, id)
	if err != nil {
		return err
	}

	err = e.conn.WithTransaction(ctx, func(ctx context.Context) error {
		values, err := e.assignments(ent, false)
		if err != nil {
			return err
		}
		if len(values) > 0 {
			result, err := e.conn.Exec(ctx, query.Update(t.TableName(), values, idColumn.Name, idLiteral))
			if err != nil {
				return fmt.Errorf("failed to update %s: %w", t.Name, ConvertDBError(err))
			}
			if affected, err := result.RowsAffected(); err == nil && affected == 0 {
				return fmt.Errorf("%w: %s %v", ErrNotFound, t.Name, id)
			}
		}
		if err := e.saveRelations(ctx, ent, id, true); err != nil {
			return err
		}
		return e.runHooks(ctx, hooks.AfterUpdate, ent)
	})
	if err != nil {
		return err
	}

	ent.SetState(entity.StateUnset)
	return nil
}

// Remove deletes the row of ent after clearing the references the type's
// relations hold in other tables
func (e *Engine) Remove(ctx context.Context, ent *entity.Entity) error {
	t := ent.Type()
	id, ok := ent.ID()
	if !ok {
		return fmt.Errorf("%w: %s", ErrMissingID, t.Name)
	}

	idColumn, err := e.layout.IDColumn(t)
	if err != nil {
		return err
	}
	idLiteral, err := query.Literal(idColumn.DataType, id)
	if err != nil {
		return err
	}

	err = e.conn.WithTransaction(ctx, func(ctx context.Context) error {
		if err := e.runHooks(ctx, hooks.BeforeRemove, ent); err != nil {
			return err
		}
		for _, attr := range t.Relations() {
			if attr.Relation.IsEmpty() {
				continue
			}
			if attr.Relation.Kind == schema.ManyToMany {
				jt, err := e.layout.JoinTable(t, attr.Name)
				if err != nil {
					return err
				}
				if err := e.exec(ctx, query.DeleteJoinRows(jt.Name, jt.Own.Name, idLiteral)); err != nil {
					return err
				}
				continue
			}

			mapped, err := e.resolver.IsMapped(t, attr.Name)
			if err != nil {
				return err
			}
			if !mapped {
				if err := e.clearInverse(ctx, t, attr.Name, idLiteral); err != nil {
					return err
				}
			}
		}

		if err := e.exec(ctx, query.Delete(t.TableName(), idColumn.Name, idLiteral)); err != nil {
			return err
		}
		return e.runHooks(ctx, hooks.AfterRemove, ent)
	})
	if err != nil {
		return fmt.Errorf("failed to remove %s: %w", t.Name, err)
	}

	ent.SetState(entity.StateUnset)
	return nil
}

// Flush applies the pending operation recorded in the data state of ent
func (e *Engine) Flush(ctx context.Context, ent *entity.Entity) error {
	switch ent.State() {
	case entity.StateToSave:
		return e.Save(ctx, ent)
	case entity.StateToUpdate:
		return e.Update(ctx, ent)
	case entity.StateToRemove:
		return e.Remove(ctx, ent)
	default:
		return nil
	}
}

// assignments renders the loaded columns of the row of ent. Foreign keys
// take the id of the related entity.
func (e *Engine) assignments(ent *entity.Entity, includeID bool) ([]query.Assignment, error) {
	t := ent.Type()
	columns, err := e.layout.Columns(t)
	if err != nil {
		return nil, err
	}

	values := make([]query.Assignment, 0, len(columns))
	for _, column := range columns {
		// inverse foreign keys are written by the declaring side
		if column.Attribute == nil {
			continue
		}
		if column.Attribute.ID && !includeID {
			continue
		}
		v := ent.Value(column.Name)
		if !v.IsLoaded() {
			continue
		}

		raw, _ := v.Get()
		if column.ForeignKey {
			raw, err = relatedID(t, column.Name, raw)
			if err != nil {
				return nil, err
			}
		}

		literal, err := query.Literal(column.DataType, raw)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", t.Name, column.Name, err)
		}
		values = append(values, query.Assignment{Column: column.Name, Literal: literal})
	}
	return values, nil
}

// saveRelations stores the many-to-many rows and the inverse foreign keys of
// the loaded relations of ent. With replace set the previous references are
// cleared first.
func (e *Engine) saveRelations(ctx context.Context, ent *entity.Entity, id interface{}, replace bool) error {
	t := ent.Type()
	idColumn, err := e.layout.IDColumn(t)
	if err != nil {
		return err
	}
	idLiteral, err := query.Literal(idColumn.DataType, id)
	if err != nil {
		return err
	}

	for _, attr := range t.Relations() {
		if attr.Relation.IsEmpty() || !ent.IsLoaded(attr.Name) {
			continue
		}

		if attr.Relation.Kind == schema.ManyToMany {
			if err := e.saveJoinRows(ctx, ent, attr.Name, idLiteral); err != nil {
				return err
			}
			continue
		}

		mapped, err := e.resolver.IsMapped(t, attr.Name)
		if err != nil {
			return err
		}
		if mapped {
			continue
		}
		if replace {
			if err := e.clearInverse(ctx, t, attr.Name, idLiteral); err != nil {
				return err
			}
		}
		if err := e.saveInverse(ctx, ent, attr, idLiteral); err != nil {
			return err
		}
	}
	return nil
}

// saveJoinRows replaces the join rows of the many-to-many relation name
func (e *Engine) saveJoinRows(ctx context.Context, ent *entity.Entity, name, idLiteral string) error {
	t := ent.Type()
	jt, err := e.layout.JoinTable(t, name)
	if err != nil {
		return err
	}
	if err := e.exec(ctx, query.DeleteJoinRows(jt.Name, jt.Own.Name, idLiteral)); err != nil {
		return err
	}

	related, _ := ent.RelatedList(name)
	for _, r := range related {
		rid, err := relatedID(t, name, r)
		if err != nil {
			return err
		}
		other, err := query.Literal(jt.Other.DataType, rid)
		if err != nil {
			return err
		}
		if err := e.exec(ctx, query.InsertJoinRow(jt.Name, jt.Own.Name, jt.Other.Name, idLiteral, other)); err != nil {
			return err
		}
	}
	return nil
}

// saveInverse points the foreign keys of the related rows at ent. The
// reverse attribute of the loaded related entities follows.
func (e *Engine) saveInverse(ctx context.Context, ent *entity.Entity, attr *schema.Attribute, idLiteral string) error {
	t := ent.Type()
	column, err := e.layout.InverseColumn(t, attr.Name)
	if err != nil {
		return err
	}

	var related []*entity.Entity
	if attr.Relation.Kind.IsToOne() {
		if r, ok := ent.Related(attr.Name); ok {
			related = append(related, r)
		}
	} else {
		related, _ = ent.RelatedList(attr.Name)
	}

	for _, r := range related {
		rid, err := relatedID(t, attr.Name, r)
		if err != nil {
			return err
		}
		ridColumn, err := e.layout.IDColumn(r.Type())
		if err != nil {
			return err
		}
		ridLiteral, err := query.Literal(ridColumn.DataType, rid)
		if err != nil {
			return err
		}
		if err := e.exec(ctx, query.SetForeignKey(r.Type().TableName(), column, idLiteral, ridColumn.Name, ridLiteral)); err != nil {
			return err
		}

		if reverse, ok := r.Type().Attribute(column); ok && reverse.IsRelation() && !reverse.Relation.IsEmpty() && reverse.Relation.Kind.IsToOne() {
			r.SetRaw(column, entity.Of(ent))
		}
	}
	return nil
}

// clearInverse nulls the foreign keys referencing id held by the concrete
// tables of the target of relation name
func (e *Engine) clearInverse(ctx context.Context, t *schema.EntityType, name, idLiteral string) error {
	target, err := e.resolver.Target(t, name)
	if err != nil {
		return err
	}
	column, err := e.layout.InverseColumn(t, name)
	if err != nil {
		return err
	}
	tables, err := e.existingTables(ctx)
	if err != nil {
		return err
	}

	for _, c := range target.Concrete() {
		if !tables[c.TableName()] {
			continue
		}
		if err := e.exec(ctx, query.NullifyReverse(c.TableName(), column, idLiteral)); err != nil {
			return err
		}
	}
	return nil
}

// relatedID returns the id of a related entity, nil for an empty relation
func relatedID(t *schema.EntityType, name string, v interface{}) (interface{}, error) {
	if v == nil {
		return nil, nil
	}
	related, ok := v.(*entity.Entity)
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", entity.ErrInvalidRelationValue, t.Name, name)
	}
	if related == nil {
		return nil, nil
	}
	id, ok := related.ID()
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s references an unsaved %s", ErrMissingID, t.Name, name, related.Type().Name)
	}
	return id, nil
}

func mustID(ent *entity.Entity) interface{} {
	id, _ := ent.ID()
	return id
}
