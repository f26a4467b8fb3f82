// Package transaction wraps the native SQLite handle: statement execution
// with logging, stack counted transactions and commit/rollback handlers.
package transaction

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

var (
	// ErrNoTransaction is returned when committing or rolling back outside a transaction
	ErrNoTransaction = errors.New("no transaction in progress")

	// ErrConnectionClosed is returned when the connection has been closed
	ErrConnectionClosed = errors.New("connection closed")
)

// Executor is the cursor abstraction shared by *sql.DB and *sql.Tx
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Handler is a commit or rollback notification
type Handler func()

type registeredHandler struct {
	fn   Handler
	once bool
}

// Connection owns a single native connection. Nested transactions are a
// depth counter: only the outermost commit or rollback reaches the database.
type Connection struct {
	options Options
	db      *sql.DB
	logger  *zap.Logger

	mu     sync.Mutex
	tx     *sql.Tx
	depth  int
	closed bool

	handlersMu       sync.Mutex
	commitHandlers   []registeredHandler
	rollbackHandlers []registeredHandler
	// notifying is set while handlers run, later boundaries queue their
	// handlers in pending instead of running them inside a handler
	notifying bool
	pending   [][]registeredHandler
}

// Option configures a connection
type Option func(*Connection)

// WithLogger sets the statement logger
func WithLogger(logger *zap.Logger) Option {
	return func(c *Connection) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Open validates the options and opens the native connection
func Open(ctx context.Context, options Options, opts ...Option) (*Connection, error) {
	if err := options.Validate(); err != nil {
		return nil, err
	}

	db, err := sql.Open(options.DriverName(), options.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", options.FilePath, err)
	}
	// in-memory databases only live as long as their single connection
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to %s: %w", options.FilePath, err)
	}

	return NewConnection(db, options, opts...), nil
}

// NewConnection wraps an already opened database handle
func NewConnection(db *sql.DB, options Options, opts ...Option) *Connection {
	c := &Connection{
		options: options,
		db:      db,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// DB returns the native database handle
func (c *Connection) DB() *sql.DB {
	return c.db
}

// Options returns the connection options
func (c *Connection) Options() Options {
	return c.options
}

// Logger returns the statement logger
func (c *Connection) Logger() *zap.Logger {
	return c.logger
}

// Close closes the native connection, rolling back any open transaction
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	if c.tx != nil {
		c.tx.Rollback()
		c.tx = nil
		c.depth = 0
	}
	return c.db.Close()
}

// Depth returns the transaction nesting depth
func (c *Connection) Depth() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.depth
}

// InTransaction returns true while a transaction is open
func (c *Connection) InTransaction() bool {
	return c.Depth() > 0
}

// Begin opens a transaction or increments the nesting depth
func (c *Connection) Begin(ctx context.Context) error {
	return c.begin(ctx, false)
}

// begin increments the nesting depth. The native transaction is opened by
// the outermost level, or by any level when native is set and the
// connection autocommits.
func (c *Connection) begin(ctx context.Context, native bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrConnectionClosed
	}
	if c.tx == nil && (native || (c.depth == 0 && !c.options.Autocommit)) {
		tx, err := c.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		c.tx = tx
		c.logger.Debug("transaction started", zap.Stringer("isolation_level", c.options.IsolationLevel))
	}
	c.depth++
	return nil
}

// Commit decrements the nesting depth and commits when the outermost
// transaction completes
func (c *Connection) Commit(ctx context.Context) error {
	outermost, err := c.finish(func(tx *sql.Tx) error {
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit transaction: %w", err)
		}
		return nil
	})
	if err != nil || !outermost {
		return err
	}

	c.logger.Debug("transaction committed")
	c.notify(&c.commitHandlers)
	return nil
}

// Rollback decrements the nesting depth and rolls back when the outermost
// transaction completes. Inner rollbacks are no-ops.
func (c *Connection) Rollback(ctx context.Context) error {
	outermost, err := c.finish(func(tx *sql.Tx) error {
		if err := tx.Rollback(); err != nil {
			return fmt.Errorf("failed to rollback transaction: %w", err)
		}
		return nil
	})
	if err != nil || !outermost {
		return err
	}

	c.logger.Debug("transaction rolled back")
	c.notify(&c.rollbackHandlers)
	return nil
}

// finish closes one nesting level and applies fn to the native transaction
// when it was the outermost one
func (c *Connection) finish(fn func(tx *sql.Tx) error) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.depth == 0 {
		return false, ErrNoTransaction
	}
	c.depth--
	if c.depth > 0 {
		return false, nil
	}

	tx := c.tx
	c.tx = nil
	if tx == nil {
		return true, nil
	}
	return true, fn(tx)
}

// WithTransaction executes fn within a transaction, committing on success
// and rolling back on error or panic
func (c *Connection) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return c.withTransaction(ctx, false, fn)
}

// WithNativeTransaction is WithTransaction with a native transaction even
// when the connection autocommits. The transaction completes with the
// outermost level.
func (c *Connection) WithNativeTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return c.withTransaction(ctx, true, fn)
}

func (c *Connection) withTransaction(ctx context.Context, native bool, fn func(ctx context.Context) error) error {
	if err := c.begin(ctx, native); err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			c.Rollback(ctx)
			panic(p)
		}
	}()

	if err := fn(ctx); err != nil {
		if rbErr := c.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("transaction failed: %w, rollback failed: %v", err, rbErr)
		}
		return err
	}

	return c.Commit(ctx)
}

// AddCommitHandler registers a handler called after the outermost commit
func (c *Connection) AddCommitHandler(fn Handler, once bool) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	c.commitHandlers = append(c.commitHandlers, registeredHandler{fn: fn, once: once})
}

// AddRollbackHandler registers a handler called after the outermost rollback
func (c *Connection) AddRollbackHandler(fn Handler, once bool) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	c.rollbackHandlers = append(c.rollbackHandlers, registeredHandler{fn: fn, once: once})
}

// notify invokes the handlers of list and drops the one-time handlers of
// both lists. Invocation is serialized: a boundary reached from inside a
// handler, such as a handler committing its own transaction, queues its
// handlers and the outermost notify runs them once the current ones return.
func (c *Connection) notify(list *[]registeredHandler) {
	c.handlersMu.Lock()
	round := make([]registeredHandler, len(*list))
	copy(round, *list)
	c.commitHandlers = dropOnce(c.commitHandlers)
	c.rollbackHandlers = dropOnce(c.rollbackHandlers)
	if c.notifying {
		c.pending = append(c.pending, round)
		c.handlersMu.Unlock()
		return
	}
	c.notifying = true
	c.handlersMu.Unlock()

	defer func() {
		if p := recover(); p != nil {
			c.handlersMu.Lock()
			c.notifying = false
			c.pending = nil
			c.handlersMu.Unlock()
			panic(p)
		}
	}()

	for {
		for _, h := range round {
			h.fn()
		}

		c.handlersMu.Lock()
		if len(c.pending) == 0 {
			c.notifying = false
			c.handlersMu.Unlock()
			return
		}
		round = c.pending[0]
		c.pending = c.pending[1:]
		c.handlersMu.Unlock()
	}
}

func dropOnce(handlers []registeredHandler) []registeredHandler {
	kept := handlers[:0]
	for _, h := range handlers {
		if !h.once {
			kept = append(kept, h)
		}
	}
	return kept
}

// executor returns the open transaction or the database handle
func (c *Connection) executor() (Executor, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrConnectionClosed
	}
	if c.tx != nil {
		return c.tx, nil
	}
	return c.db, nil
}

// Exec executes a statement that doesn't return rows
func (c *Connection) Exec(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	ex, err := c.executor()
	if err != nil {
		return nil, err
	}
	c.logStatement(query, args)
	return ex.ExecContext(ctx, query, args...)
}

// Query executes a query that returns rows
func (c *Connection) Query(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	ex, err := c.executor()
	if err != nil {
		return nil, err
	}
	c.logStatement(query, args)
	return ex.QueryContext(ctx, query, args...)
}

// QueryRow executes a query that returns at most one row
func (c *Connection) QueryRow(ctx context.Context, query string, args ...interface{}) *sql.Row {
	ex, err := c.executor()
	if err != nil {
		// a closed connection surfaces through Scan
		return c.db.QueryRowContext(ctx, query, args...)
	}
	c.logStatement(query, args)
	return ex.QueryRowContext(ctx, query, args...)
}

func (c *Connection) logStatement(query string, args []interface{}) {
	if ce := c.logger.Check(zap.DebugLevel, "executing statement"); ce != nil {
		ce.Write(
			zap.String("kind", StatementKind(query)),
			zap.String("query", query),
			zap.Int("args", len(args)),
		)
	}
}

// StatementKind returns the lower case leading keyword of a statement
func StatementKind(query string) string {
	fields := strings.Fields(query)
	if len(fields) == 0 {
		return ""
	}
	return strings.ToLower(fields[0])
}

// IsDDL returns true for schema changing statements
func IsDDL(query string) bool {
	switch StatementKind(query) {
	case "create", "alter", "drop":
		return true
	}
	return false
}
