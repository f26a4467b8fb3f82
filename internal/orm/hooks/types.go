// Package hooks runs user callbacks around the persistence of entities.
package hooks

import (
	"context"
	"sync"

	"github.com/hivesolutions/colony-plugins-sub002/internal/orm/entity"
	"github.com/hivesolutions/colony-plugins-sub002/internal/orm/schema"
)

// Event is a point of the entity lifecycle
type Event int

const (
	BeforeSave Event = iota
	AfterSave
	BeforeUpdate
	AfterUpdate
	BeforeRemove
	AfterRemove
)

// String returns the string representation of the event
func (e Event) String() string {
	switch e {
	case BeforeSave:
		return "before_save"
	case AfterSave:
		return "after_save"
	case BeforeUpdate:
		return "before_update"
	case AfterUpdate:
		return "after_update"
	case BeforeRemove:
		return "before_remove"
	case AfterRemove:
		return "after_remove"
	default:
		return "unknown"
	}
}

// HookFunc is called with the entity being persisted. Before hooks may
// change its values.
type HookFunc func(ctx context.Context, ent *entity.Entity) error

// Hook is a registered lifecycle callback
type Hook struct {
	Event Event
	Fn    HookFunc
	// AfterCommit delays the hook until the outermost transaction commits.
	// Its error can no longer fail the operation and is only logged.
	AfterCommit bool
}

// Registry holds the hooks of every entity type by name
type Registry struct {
	mu    sync.RWMutex
	hooks map[string]map[Event][]*Hook
}

// NewRegistry creates a new hook registry
func NewRegistry() *Registry {
	return &Registry{
		hooks: make(map[string]map[Event][]*Hook),
	}
}

// Register adds a hook for the entity type named typeName. The hook also
// fires for the sub-types of that type.
func (r *Registry) Register(typeName string, event Event, hook *Hook) {
	r.mu.Lock()
	defer r.mu.Unlock()

	hook.Event = event
	events, ok := r.hooks[typeName]
	if !ok {
		events = make(map[Event][]*Hook)
		r.hooks[typeName] = events
	}
	events[event] = append(events[event], hook)
}

// Hooks returns the hooks of event for t, those of its ancestors first
func (r *Registry) Hooks(t *schema.EntityType, event Event) []*Hook {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*Hook
	for _, p := range t.AllParents() {
		result = append(result, r.hooks[p.Name][event]...)
	}
	return append(result, r.hooks[t.Name][event]...)
}

// HasHooks returns true if any hook of event applies to t
func (r *Registry) HasHooks(t *schema.EntityType, event Event) bool {
	return len(r.Hooks(t, event)) > 0
}
