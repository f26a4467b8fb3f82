package transaction

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// setupTestConnection opens an in-memory connection with a test table
func setupTestConnection(t *testing.T, options Options, opts ...Option) *Connection {
	t.Helper()

	if options.FilePath == "" {
		options.FilePath = ":memory:"
	}
	conn, err := Open(context.Background(), options, opts...)
	if err != nil {
		t.Fatalf("failed to open test connection: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	if _, err := conn.Exec(context.Background(), "create table test_records(id numeric, name text)"); err != nil {
		t.Fatalf("failed to create test table: %v", err)
	}
	return conn
}

func countRecords(t *testing.T, conn *Connection) int {
	t.Helper()

	var count int
	if err := conn.QueryRow(context.Background(), "select count(1) from test_records").Scan(&count); err != nil {
		t.Fatalf("count failed: %v", err)
	}
	return count
}

func TestOptionsFromMap(t *testing.T) {
	_, err := OptionsFromMap(map[string]interface{}{"autocommit": true})
	if !errors.Is(err, ErrMissingProperty) {
		t.Fatalf("expected ErrMissingProperty, got %v", err)
	}

	opts, err := OptionsFromMap(map[string]interface{}{
		"file_path":       "data.db",
		"autocommit":      "false",
		"isolation_level": "IMMEDIATE",
	})
	if err != nil {
		t.Fatalf("OptionsFromMap failed: %v", err)
	}
	if opts.IsolationLevel != Immediate {
		t.Errorf("expected immediate isolation, got %v", opts.IsolationLevel)
	}
	if got := opts.DSN(); got != "data.db?_txlock=immediate" {
		t.Errorf("unexpected dsn %q", got)
	}
	if opts.DriverName() != DriverSQLite3 {
		t.Errorf("expected default driver, got %s", opts.DriverName())
	}

	opts.Autocommit = true
	if got := opts.DSN(); got != "data.db" {
		t.Errorf("autocommit must not carry an isolation level, got %q", got)
	}

	_, err = OptionsFromMap(map[string]interface{}{"file_path": "x.db", "isolation_level": "snapshot"})
	if !errors.Is(err, ErrInvalidProperty) {
		t.Errorf("expected ErrInvalidProperty, got %v", err)
	}

	_, err = OptionsFromMap(map[string]interface{}{"file_path": "x.db", "driver": "postgres"})
	if !errors.Is(err, ErrInvalidProperty) {
		t.Errorf("expected ErrInvalidProperty for driver, got %v", err)
	}
}

func TestConnection_NestedTransactions(t *testing.T) {
	conn := setupTestConnection(t, Options{})
	ctx := context.Background()

	if err := conn.Begin(ctx); err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if err := conn.Begin(ctx); err != nil {
		t.Fatalf("nested Begin failed: %v", err)
	}
	if conn.Depth() != 2 {
		t.Fatalf("expected depth 2, got %d", conn.Depth())
	}

	if _, err := conn.Exec(ctx, "insert into test_records(id, name) values(1, 'a')"); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	// inner rollback is a no-op
	if err := conn.Rollback(ctx); err != nil {
		t.Fatalf("inner Rollback failed: %v", err)
	}
	if !conn.InTransaction() {
		t.Fatal("expected the outer transaction to remain open")
	}

	if err := conn.Commit(ctx); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	if conn.InTransaction() {
		t.Fatal("expected no open transaction")
	}
	if got := countRecords(t, conn); got != 1 {
		t.Errorf("expected 1 record, got %d", got)
	}

	if err := conn.Commit(ctx); !errors.Is(err, ErrNoTransaction) {
		t.Errorf("expected ErrNoTransaction, got %v", err)
	}
}

func TestConnection_OuterRollback(t *testing.T) {
	conn := setupTestConnection(t, Options{})
	ctx := context.Background()

	err := conn.WithTransaction(ctx, func(ctx context.Context) error {
		if _, err := conn.Exec(ctx, "insert into test_records(id, name) values(1, 'a')"); err != nil {
			return err
		}
		return errors.New("boom")
	})
	if err == nil || err.Error() != "boom" {
		t.Fatalf("expected boom, got %v", err)
	}
	if got := countRecords(t, conn); got != 0 {
		t.Errorf("expected rolled back insert, got %d records", got)
	}
}

func TestConnection_Autocommit(t *testing.T) {
	conn := setupTestConnection(t, Options{Autocommit: true})
	ctx := context.Background()

	if err := conn.Begin(ctx); err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if _, err := conn.Exec(ctx, "insert into test_records(id, name) values(1, 'a')"); err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	if err := conn.Rollback(ctx); err != nil {
		t.Fatalf("Rollback failed: %v", err)
	}

	// statements were applied immediately
	if got := countRecords(t, conn); got != 1 {
		t.Errorf("expected 1 record, got %d", got)
	}
}

func TestConnection_NativeTransactionWithAutocommit(t *testing.T) {
	conn := setupTestConnection(t, Options{Autocommit: true})
	ctx := context.Background()
	failure := errors.New("copy failed")

	err := conn.WithTransaction(ctx, func(ctx context.Context) error {
		if _, err := conn.Exec(ctx, "insert into test_records(id, name) values(1, 'kept')"); err != nil {
			return err
		}
		return conn.WithNativeTransaction(ctx, func(ctx context.Context) error {
			if _, err := conn.Exec(ctx, "insert into test_records(id, name) values(2, 'undone')"); err != nil {
				return err
			}
			return failure
		})
	})
	if !errors.Is(err, failure) {
		t.Fatalf("expected copy failure, got %v", err)
	}
	if conn.InTransaction() {
		t.Errorf("expected no open transaction")
	}

	// the autocommitted insert stays, the native transaction was rolled back
	if got := countRecords(t, conn); got != 1 {
		t.Errorf("expected 1 record, got %d", got)
	}

	if err := conn.WithNativeTransaction(ctx, func(ctx context.Context) error {
		_, err := conn.Exec(ctx, "insert into test_records(id, name) values(3, 'committed')")
		return err
	}); err != nil {
		t.Fatalf("WithNativeTransaction failed: %v", err)
	}
	if got := countRecords(t, conn); got != 2 {
		t.Errorf("expected 2 records, got %d", got)
	}
}

func TestConnection_Handlers(t *testing.T) {
	conn := setupTestConnection(t, Options{})
	ctx := context.Background()

	var persistent, oneTime, rolledBack int
	conn.AddCommitHandler(func() { persistent++ }, false)
	conn.AddCommitHandler(func() { oneTime++ }, true)
	conn.AddRollbackHandler(func() { rolledBack++ }, true)

	for i := 0; i < 2; i++ {
		if err := conn.Begin(ctx); err != nil {
			t.Fatalf("Begin failed: %v", err)
		}
		if err := conn.Commit(ctx); err != nil {
			t.Fatalf("Commit failed: %v", err)
		}
	}

	if persistent != 2 {
		t.Errorf("expected persistent handler called twice, got %d", persistent)
	}
	if oneTime != 1 {
		t.Errorf("expected one-time handler called once, got %d", oneTime)
	}

	// the one-time rollback handler was reset by the first commit boundary
	if err := conn.Begin(ctx); err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if err := conn.Rollback(ctx); err != nil {
		t.Fatalf("Rollback failed: %v", err)
	}
	if rolledBack != 0 {
		t.Errorf("expected reset rollback handler, got %d calls", rolledBack)
	}
}

func TestConnection_HandlerRegistersHandler(t *testing.T) {
	conn := setupTestConnection(t, Options{})
	ctx := context.Background()

	var calls int
	conn.AddCommitHandler(func() {
		calls++
		conn.AddCommitHandler(func() { calls++ }, false)
	}, true)

	if err := conn.WithTransaction(ctx, func(ctx context.Context) error { return nil }); err != nil {
		t.Fatalf("WithTransaction failed: %v", err)
	}
	if err := conn.WithTransaction(ctx, func(ctx context.Context) error { return nil }); err != nil {
		t.Fatalf("WithTransaction failed: %v", err)
	}
	if calls != 2 {
		t.Errorf("expected 2 calls, got %d", calls)
	}
}

func TestConnection_HandlerCommitsTransaction(t *testing.T) {
	conn := setupTestConnection(t, Options{})
	ctx := context.Background()

	var order []string
	conn.AddCommitHandler(func() {
		order = append(order, "outer")
		err := conn.WithTransaction(ctx, func(ctx context.Context) error {
			conn.AddCommitHandler(func() { order = append(order, "inner") }, true)
			_, err := conn.Exec(ctx, "insert into test_records(id, name) values(2, 'inner')")
			return err
		})
		if err != nil {
			t.Errorf("nested WithTransaction failed: %v", err)
		}
	}, true)

	done := make(chan error, 1)
	go func() {
		done <- conn.WithTransaction(ctx, func(ctx context.Context) error {
			_, err := conn.Exec(ctx, "insert into test_records(id, name) values(1, 'outer')")
			return err
		})
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("WithTransaction failed: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("commit did not return while a handler committed its own transaction")
	}

	if len(order) != 2 || order[0] != "outer" || order[1] != "inner" {
		t.Errorf("expected [outer inner], got %v", order)
	}

	var count int
	if err := conn.QueryRow(ctx, "select count(*) from test_records").Scan(&count); err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 2 {
		t.Errorf("expected 2 records, got %d", count)
	}

	// both one-time handlers were dropped
	if err := conn.WithTransaction(ctx, func(ctx context.Context) error { return nil }); err != nil {
		t.Fatalf("WithTransaction failed: %v", err)
	}
	if len(order) != 2 {
		t.Errorf("expected no further calls, got %v", order)
	}
}

func TestConnection_LogsStatements(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	conn := setupTestConnection(t, Options{}, WithLogger(zap.New(core)))

	countRecords(t, conn)

	entries := logs.FilterMessage("executing statement").All()
	if len(entries) != 2 {
		t.Fatalf("expected 2 logged statements, got %d", len(entries))
	}
	if kind := entries[0].ContextMap()["kind"]; kind != "create" {
		t.Errorf("expected create, got %v", kind)
	}
	if kind := entries[1].ContextMap()["kind"]; kind != "select" {
		t.Errorf("expected select, got %v", kind)
	}
}

func TestConnection_PureGoDriver(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pure.db")
	conn := setupTestConnection(t, Options{FilePath: path, Driver: DriverSQLite, IsolationLevel: Immediate})
	ctx := context.Background()

	err := conn.WithTransaction(ctx, func(ctx context.Context) error {
		_, err := conn.Exec(ctx, "insert into test_records(id, name) values(?, ?)", 1, "a")
		return err
	})
	if err != nil {
		t.Fatalf("WithTransaction failed: %v", err)
	}
	if got := countRecords(t, conn); got != 1 {
		t.Errorf("expected 1 record, got %d", got)
	}
}

func TestConnection_Closed(t *testing.T) {
	conn := setupTestConnection(t, Options{})
	if err := conn.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if _, err := conn.Exec(context.Background(), "select 1"); !errors.Is(err, ErrConnectionClosed) {
		t.Errorf("expected ErrConnectionClosed, got %v", err)
	}
	if err := conn.Begin(context.Background()); !errors.Is(err, ErrConnectionClosed) {
		t.Errorf("expected ErrConnectionClosed, got %v", err)
	}
}

func TestContext(t *testing.T) {
	conn := setupTestConnection(t, Options{})
	ctx := WithContext(context.Background(), conn)

	got, ok := FromContext(ctx)
	if !ok || got != conn {
		t.Fatal("expected the connection from the context")
	}
	if _, ok := FromContext(context.Background()); ok {
		t.Error("expected no connection in an empty context")
	}
}

func TestStatementKind(t *testing.T) {
	if StatementKind("  CREATE table x(a text)") != "create" {
		t.Error("expected create")
	}
	if !IsDDL("alter table x add column b text") {
		t.Error("expected alter to be ddl")
	}
	if IsDDL("insert into x(a) values('b')") {
		t.Error("expected insert not to be ddl")
	}
}
