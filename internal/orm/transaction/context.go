package transaction

import (
	"context"
)

// contextKey is a type for context keys to avoid collisions
type contextKey string

const (
	// contextKeyConnection is the key for storing a connection in context
	contextKeyConnection contextKey = "entitymanager:connection"
)

// FromContext retrieves a connection from the context
// Returns the connection and true if found, nil and false otherwise
func FromContext(ctx context.Context) (*Connection, bool) {
	conn, ok := ctx.Value(contextKeyConnection).(*Connection)
	return conn, ok
}

// WithContext returns a new context with the connection embedded
func WithContext(ctx context.Context, conn *Connection) context.Context {
	return context.WithValue(ctx, contextKeyConnection, conn)
}

// MustFromContext retrieves a connection from the context
// Panics if no connection is found (use only when the connection is guaranteed)
func MustFromContext(ctx context.Context) *Connection {
	conn, ok := FromContext(ctx)
	if !ok {
		panic("no connection found in context")
	}
	return conn
}
