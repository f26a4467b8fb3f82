package migrate

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/hivesolutions/colony-plugins-sub002/internal/orm/query"
	"github.com/hivesolutions/colony-plugins-sub002/internal/orm/schema"
	"github.com/hivesolutions/colony-plugins-sub002/internal/orm/transaction"
)

// ErrAbstractType is returned when synchronizing a type that has no table
var ErrAbstractType = errors.New("abstract entity types have no table")

// Synchronizer compares entity types with the live schema and updates it
type Synchronizer struct {
	layout *query.Layout
	logger *zap.Logger
}

// Option configures a synchronizer
type Option func(*Synchronizer)

// WithLogger sets the logger reporting mismatches and updates
func WithLogger(logger *zap.Logger) Option {
	return func(s *Synchronizer) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewSynchronizer creates a synchronizer over the given layout
func NewSynchronizer(layout *query.Layout, opts ...Option) *Synchronizer {
	s := &Synchronizer{layout: layout, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// tableColumns returns the storage type of every column of table, or nil
// when the table does not exist
func tableColumns(ctx context.Context, conn *transaction.Connection, table string) (map[string]string, error) {
	rows, err := conn.Query(ctx, query.TableInfo(table))
	if err != nil {
		return nil, fmt.Errorf("failed to describe %s: %w", table, err)
	}
	defer rows.Close()

	var columns map[string]string
	for rows.Next() {
		var (
			cid       int
			name      string
			dataType  string
			notNull   int
			dfltValue interface{}
			pk        int
		)
		if err := rows.Scan(&cid, &name, &dataType, &notNull, &dfltValue, &pk); err != nil {
			return nil, fmt.Errorf("failed to describe %s: %w", table, err)
		}
		if columns == nil {
			columns = make(map[string]string)
		}
		columns[name] = strings.ToLower(dataType)
	}
	return columns, rows.Err()
}

// Diff computes the column diff of the table of t and the relation table
// diff of its many-to-many relations
func (s *Synchronizer) Diff(ctx context.Context, conn *transaction.Connection, t *schema.EntityType) (*Diff, error) {
	if t.Abstract {
		return nil, fmt.Errorf("%w: %s", ErrAbstractType, t.Name)
	}
	diff := &Diff{Type: t}
	table := t.TableName()

	expected, err := s.layout.Columns(t)
	if err != nil {
		return nil, err
	}
	existing, err := tableColumns(ctx, conn, table)
	if err != nil {
		return nil, err
	}

	if existing == nil {
		diff.Mismatches = append(diff.Mismatches, Mismatch{Kind: MissingTable, Table: table})
	} else {
		for _, column := range expected {
			actual, ok := existing[column.Name]
			switch {
			case !ok && column.ForeignKey:
				diff.Mismatches = append(diff.Mismatches, Mismatch{Kind: InexistingRelationAttribute, Table: table, Column: column.Name, Expected: column.Type})
			case !ok:
				diff.Mismatches = append(diff.Mismatches, Mismatch{Kind: InexistingAttribute, Table: table, Column: column.Name, Expected: column.Type})
			case actual != column.Type:
				diff.Mismatches = append(diff.Mismatches, Mismatch{Kind: InvalidAttributeType, Table: table, Column: column.Name, Expected: column.Type, Actual: actual})
			}
		}
	}

	joinTables, err := s.layout.JoinTables(t)
	if err != nil {
		return nil, err
	}
	for _, jt := range joinTables {
		columns, err := tableColumns(ctx, conn, jt.Name)
		if err != nil {
			return nil, err
		}
		if _, ok := columns[jt.Own.Name]; !ok {
			diff.Mismatches = append(diff.Mismatches, Mismatch{
				Kind:      InexistingAttribute,
				Table:     jt.Name,
				Column:    jt.Own.Name,
				Expected:  jt.Own.Type,
				JoinTable: true,
			})
		}
	}

	return diff, nil
}

// Synced returns true when the table of t and its join tables match the model
func (s *Synchronizer) Synced(ctx context.Context, conn *transaction.Connection, t *schema.EntityType) (bool, error) {
	diff, err := s.Diff(ctx, conn, t)
	if err != nil {
		return false, err
	}
	return diff.Synced(), nil
}

// Update brings the table of t in line with the model. A missing table is
// created; a type change or a missing foreign key recreates the table
// keeping its rows; otherwise missing columns are added in place. Join
// tables are repaired afterwards. Everything runs in one transaction.
func (s *Synchronizer) Update(ctx context.Context, conn *transaction.Connection, t *schema.EntityType) (*Diff, error) {
	diff, err := s.Diff(ctx, conn, t)
	if err != nil {
		return nil, err
	}
	if diff.Synced() {
		return diff, nil
	}

	for _, m := range diff.Mismatches {
		s.logger.Info("schema mismatch",
			zap.String("entity", t.Name),
			zap.Stringer("kind", m.Kind),
			zap.String("table", m.Table),
			zap.String("column", m.Column),
		)
	}

	run := conn.WithTransaction
	if diff.NeedsRecreate() {
		// copy, drop, create and restore never run outside a transaction
		run = conn.WithNativeTransaction
	}
	err = run(ctx, func(ctx context.Context) error {
		switch {
		case diff.TableMissing():
			s.logger.Info("creating table", zap.String("entity", t.Name))
			if err := s.create(ctx, conn, t); err != nil {
				return err
			}
		case diff.NeedsRecreate():
			s.logger.Info("recreating table", zap.String("entity", t.Name))
			if err := s.recreate(ctx, conn, t); err != nil {
				return err
			}
		default:
			s.logger.Info("adding columns", zap.String("entity", t.Name), zap.Strings("columns", diff.MissingColumns()))
			if err := s.addColumns(ctx, conn, t, diff.MissingColumns()); err != nil {
				return err
			}
		}
		return s.repairJoinTables(ctx, conn, t)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update %s: %w", t.Name, err)
	}
	return diff, nil
}

// SyncAll updates every concrete type of the registry in dependency order
func (s *Synchronizer) SyncAll(ctx context.Context, conn *transaction.Connection) ([]*Diff, error) {
	var diffs []*Diff
	for _, t := range s.layout.Resolver().Registry().DependencyOrder() {
		if t.Abstract {
			continue
		}
		diff, err := s.Update(ctx, conn, t)
		if err != nil {
			return diffs, err
		}
		diffs = append(diffs, diff)
	}
	return diffs, nil
}

// Status diffs every concrete type of the registry without changing anything
func (s *Synchronizer) Status(ctx context.Context, conn *transaction.Connection) ([]*Diff, error) {
	var diffs []*Diff
	for _, t := range s.layout.Resolver().Registry().DependencyOrder() {
		if t.Abstract {
			continue
		}
		diff, err := s.Diff(ctx, conn, t)
		if err != nil {
			return nil, err
		}
		diffs = append(diffs, diff)
	}
	return diffs, nil
}

// Definition is a statement creating one table or index
type Definition struct {
	// Name is the table or index the statement creates. Both sides of a
	// many-to-many relation name the same join table, with their own
	// column order.
	Name      string
	Statement string
}

// Definitions returns the definitions of the table of t, its id index and
// its join tables
func (s *Synchronizer) Definitions(t *schema.EntityType) ([]Definition, error) {
	if t.Abstract {
		return nil, fmt.Errorf("%w: %s", ErrAbstractType, t.Name)
	}
	columns, err := s.layout.Columns(t)
	if err != nil {
		return nil, err
	}
	id, err := s.layout.IDColumn(t)
	if err != nil {
		return nil, err
	}

	table := t.TableName()
	definitions := []Definition{
		{Name: table, Statement: query.CreateTable(table, columns)},
		{Name: query.IndexName(table, id.Name), Statement: query.CreateIndex(table, id.Name)},
	}

	joinTables, err := s.layout.JoinTables(t)
	if err != nil {
		return nil, err
	}
	for _, jt := range joinTables {
		definitions = append(definitions, Definition{Name: jt.Name, Statement: query.CreateJoinTable(jt)})
	}
	return definitions, nil
}

// create creates the table of t and its id index
func (s *Synchronizer) create(ctx context.Context, conn *transaction.Connection, t *schema.EntityType) error {
	definitions, err := s.Definitions(t)
	if err != nil {
		return err
	}
	// join tables are left to the repair pass, the other side may own them
	for _, d := range definitions[:2] {
		if _, err := conn.Exec(ctx, d.Statement); err != nil {
			return err
		}
	}
	return nil
}

// recreate copies the rows of the table of t, drops it, creates it from the
// current declaration and restores the rows. Columns the old table lacks are
// restored as null.
func (s *Synchronizer) recreate(ctx context.Context, conn *transaction.Connection, t *schema.EntityType) error {
	table := t.TableName()
	columns, err := s.layout.Columns(t)
	if err != nil {
		return err
	}
	existing, err := tableColumns(ctx, conn, table)
	if err != nil {
		return err
	}

	var kept []query.Column
	for _, column := range columns {
		if _, ok := existing[column.Name]; ok {
			kept = append(kept, column)
		}
	}

	var saved [][]interface{}
	if len(kept) > 0 {
		names := make([]string, len(kept))
		for i, column := range kept {
			names[i] = column.Name
		}
		saved, err = readRows(ctx, conn, query.SelectAll(table, names), len(kept))
		if err != nil {
			return err
		}
	}

	if _, err := conn.Exec(ctx, query.DropTable(table)); err != nil {
		return err
	}
	if err := s.create(ctx, conn, t); err != nil {
		return err
	}

	for _, row := range saved {
		values := make([]query.Assignment, 0, len(kept))
		for i, column := range kept {
			literal, err := query.Literal(column.DataType, row[i])
			if err != nil {
				return fmt.Errorf("failed to restore %s.%s: %w", table, column.Name, err)
			}
			values = append(values, query.Assignment{Column: column.Name, Literal: literal})
		}
		if _, err := conn.Exec(ctx, query.Insert(table, values)); err != nil {
			return err
		}
	}

	s.logger.Info("table recreated", zap.String("entity", t.Name), zap.Int("rows", len(saved)))
	return nil
}

// readRows reads every row of a query into memory
func readRows(ctx context.Context, conn *transaction.Connection, sql string, width int) ([][]interface{}, error) {
	rows, err := conn.Query(ctx, sql)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result [][]interface{}
	for rows.Next() {
		row := make([]interface{}, width)
		ptrs := make([]interface{}, width)
		for i := range row {
			ptrs[i] = &row[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

// addColumns adds the named columns of t in place
func (s *Synchronizer) addColumns(ctx context.Context, conn *transaction.Connection, t *schema.EntityType, names []string) error {
	for _, name := range names {
		column, ok, err := s.layout.Column(t, name)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if _, err := conn.Exec(ctx, query.AddColumn(t.TableName(), column)); err != nil {
			return err
		}
	}
	return nil
}

// repairJoinTables creates missing join tables and adds the missing owning
// side columns of existing ones
func (s *Synchronizer) repairJoinTables(ctx context.Context, conn *transaction.Connection, t *schema.EntityType) error {
	joinTables, err := s.layout.JoinTables(t)
	if err != nil {
		return err
	}

	for _, jt := range joinTables {
		existing, err := tableColumns(ctx, conn, jt.Name)
		if err != nil {
			return err
		}
		if existing == nil {
			s.logger.Info("creating join table", zap.String("table", jt.Name))
			if _, err := conn.Exec(ctx, query.CreateJoinTable(jt)); err != nil {
				return err
			}
			continue
		}
		for _, column := range jt.Columns() {
			if _, ok := existing[column.Name]; ok {
				continue
			}
			if _, err := conn.Exec(ctx, query.AddColumn(jt.Name, column)); err != nil {
				return err
			}
		}
	}
	return nil
}
