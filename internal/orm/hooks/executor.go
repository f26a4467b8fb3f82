package hooks

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/hivesolutions/colony-plugins-sub002/internal/orm/entity"
	"github.com/hivesolutions/colony-plugins-sub002/internal/orm/transaction"
)

// Executor runs the registered hooks of an event
type Executor struct {
	registry *Registry
	logger   *zap.Logger
}

// NewExecutor creates a new hook executor over registry
func NewExecutor(registry *Registry, logger *zap.Logger) *Executor {
	if registry == nil {
		registry = NewRegistry()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{registry: registry, logger: logger}
}

// Registry returns the hook registry
func (e *Executor) Registry() *Registry {
	return e.registry
}

// Register registers a hook for the entity type named typeName
func (e *Executor) Register(typeName string, event Event, hook *Hook) {
	e.registry.Register(typeName, event, hook)
}

// Run calls the hooks of event for ent in order and stops at the first
// error. After commit hooks are handed to conn while a transaction is open
// and dropped if it rolls back; outside a transaction they run right away.
func (e *Executor) Run(ctx context.Context, conn *transaction.Connection, event Event, ent *entity.Entity) error {
	for _, hook := range e.registry.Hooks(ent.Type(), event) {
		if hook.AfterCommit {
			e.schedule(ctx, conn, hook, ent)
			continue
		}
		if err := hook.Fn(ctx, ent); err != nil {
			return fmt.Errorf("hook %s of %s failed: %w", event, ent.Type().Name, err)
		}
	}
	return nil
}

func (e *Executor) schedule(ctx context.Context, conn *transaction.Connection, hook *Hook, ent *entity.Entity) {
	ctx = context.WithoutCancel(ctx)
	run := func() {
		if err := hook.Fn(ctx, ent); err != nil {
			e.logger.Error("after commit hook failed",
				zap.String("event", hook.Event.String()),
				zap.String("entity", ent.Type().Name),
				zap.Error(err))
		}
	}

	if conn == nil || !conn.InTransaction() {
		run()
		return
	}
	conn.AddCommitHandler(run, true)
}
