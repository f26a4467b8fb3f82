// Package crud persists entity instances: it saves, updates and removes
// entities together with their relations, and materializes polymorphic
// queries back into entity graphs.
package crud

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/hivesolutions/colony-plugins-sub002/internal/orm/entity"
	"github.com/hivesolutions/colony-plugins-sub002/internal/orm/hooks"
	"github.com/hivesolutions/colony-plugins-sub002/internal/orm/migrate"
	"github.com/hivesolutions/colony-plugins-sub002/internal/orm/query"
	"github.com/hivesolutions/colony-plugins-sub002/internal/orm/relationships"
	"github.com/hivesolutions/colony-plugins-sub002/internal/orm/schema"
	"github.com/hivesolutions/colony-plugins-sub002/internal/orm/transaction"
)

// CounterStore hands out sequential ids per counter name
type CounterStore interface {
	Next(ctx context.Context, name string) (int64, error)
}

// Engine runs entity operations over one connection
type Engine struct {
	registry *schema.Registry
	resolver *relationships.Resolver
	layout   *query.Layout
	sync     *migrate.Synchronizer
	conn     *transaction.Connection
	counters CounterStore
	unique   *uniqueSource
	hooks    *hooks.Executor
	logger   *zap.Logger
}

// Option configures an engine
type Option func(*Engine)

// WithLogger sets the engine logger
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithCounterStore replaces the generator table as the source of table
// strategy ids
func WithCounterStore(store CounterStore) Option {
	return func(e *Engine) {
		if store != nil {
			e.counters = store
		}
	}
}

// WithHooks runs the lifecycle hooks of executor around save, update and
// remove
func WithHooks(executor *hooks.Executor) Option {
	return func(e *Engine) {
		e.hooks = executor
	}
}

// NewEngine creates an engine for the types of a built registry
func NewEngine(registry *schema.Registry, conn *transaction.Connection, opts ...Option) *Engine {
	resolver := relationships.NewResolver(registry)
	layout := query.NewLayout(resolver)

	e := &Engine{
		registry: registry,
		resolver: resolver,
		layout:   layout,
		conn:     conn,
		unique:   &uniqueSource{},
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.counters == nil {
		e.counters = &tableCounter{conn: conn}
	}
	e.sync = migrate.NewSynchronizer(layout, migrate.WithLogger(e.logger))
	return e
}

// Registry returns the registry of the engine
func (e *Engine) Registry() *schema.Registry {
	return e.registry
}

// Layout returns the table layout of the engine
func (e *Engine) Layout() *query.Layout {
	return e.layout
}

// Synchronizer returns the schema synchronizer of the engine
func (e *Engine) Synchronizer() *migrate.Synchronizer {
	return e.sync
}

// Connection returns the connection of the engine
func (e *Engine) Connection() *transaction.Connection {
	return e.conn
}

// CreateDefinitions creates or updates the tables of the given types, or of
// every concrete type when none is given, and the generator table
func (e *Engine) CreateDefinitions(ctx context.Context, types ...*schema.EntityType) error {
	return e.conn.WithTransaction(ctx, func(ctx context.Context) error {
		if err := ensureGeneratorTable(ctx, e.conn); err != nil {
			return err
		}

		if len(types) == 0 {
			_, err := e.sync.SyncAll(ctx, e.conn)
			return err
		}
		for _, t := range types {
			if t.Abstract {
				continue
			}
			if _, err := e.sync.Update(ctx, e.conn, t); err != nil {
				return err
			}
		}
		return nil
	})
}

// Lock takes the write lock of the database by touching the table of t
// without changing any row
func (e *Engine) Lock(ctx context.Context, t *schema.EntityType) error {
	columns, err := e.layout.Columns(t)
	if err != nil {
		return err
	}
	if len(columns) == 0 {
		return fmt.Errorf("%s has no columns to lock", t.Name)
	}
	return lockTable(ctx, e.conn, t.TableName(), columns[0].Name)
}

func lockTable(ctx context.Context, conn *transaction.Connection, table, column string) error {
	_, err := conn.Exec(ctx, "update "+table+" set "+column+" = "+column+" where 0 = 1")
	return err
}

func (e *Engine) runHooks(ctx context.Context, event hooks.Event, ent *entity.Entity) error {
	if e.hooks == nil {
		return nil
	}
	return e.hooks.Run(ctx, e.conn, event, ent)
}

// exec runs a write statement translating constraint failures
func (e *Engine) exec(ctx context.Context, statement string) error {
	if _, err := e.conn.Exec(ctx, statement); err != nil {
		return ConvertDBError(err)
	}
	return nil
}

// existingTables returns the names of the tables of the database
func (e *Engine) existingTables(ctx context.Context) (map[string]bool, error) {
	rows, err := e.conn.Query(ctx, query.ListTables())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tables := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		tables[name] = true
	}
	return tables, rows.Err()
}
