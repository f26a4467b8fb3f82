// Package entity holds entity instances: an attribute bag of tri-state values
// bound to a registered entity type, its persistence data state and the
// diffusion scope it shares with the rest of its object graph.
package entity

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hivesolutions/colony-plugins-sub002/internal/orm/schema"
)

// DataState is the pending persistence operation of an entity
type DataState int

const (
	StateUnset DataState = iota
	StateToSave
	StateToUpdate
	StateToRemove
)

// String returns the string representation of the data state
func (s DataState) String() string {
	switch s {
	case StateUnset:
		return "unset"
	case StateToSave:
		return "to_save"
	case StateToUpdate:
		return "to_update"
	case StateToRemove:
		return "to_remove"
	default:
		return "unknown"
	}
}

// Entity is an instance of a registered entity type. Attributes that were
// never assigned nor loaded are Unloaded.
type Entity struct {
	mu     sync.RWMutex
	typ    *schema.EntityType
	values map[string]Value
	state  DataState
	scope  *Scope
}

// New creates an entity of type t in a fresh scope
func New(t *schema.EntityType) *Entity {
	return NewInScope(t, NewScope())
}

// NewInScope creates an entity of type t sharing the given scope
func NewInScope(t *schema.EntityType, scope *Scope) *Entity {
	if scope == nil {
		scope = NewScope()
	}
	return &Entity{
		typ:    t,
		values: make(map[string]Value),
		scope:  scope,
	}
}

// Type returns the entity type
func (e *Entity) Type() *schema.EntityType {
	return e.typ
}

// Scope returns the diffusion scope of the entity
func (e *Entity) Scope() *Scope {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.scope
}

// SetScope moves the entity to another scope
func (e *Entity) SetScope(scope *Scope) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.scope = scope
}

// Attach attaches the scope of the entity
func (e *Entity) Attach() int {
	return e.Scope().Attach()
}

// Detach detaches the scope of the entity
func (e *Entity) Detach() int {
	return e.Scope().Detach()
}

// State returns the data state
func (e *Entity) State() DataState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// SetState sets the data state
func (e *Entity) SetState(state DataState) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = state
}

// Value returns the tri-state value of name
func (e *Entity) Value(name string) Value {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.values[name]
}

// Get returns the value of name and whether it is loaded
func (e *Entity) Get(name string) (interface{}, bool) {
	return e.Value(name).Get()
}

// IsLoaded returns true when name holds a loaded value, empty ones included
func (e *Entity) IsLoaded(name string) bool {
	return e.Value(name).IsLoaded()
}

// Set assigns a checked value to an attribute of the type
func (e *Entity) Set(name string, v interface{}) error {
	attr, ok := e.typ.Attribute(name)
	if !ok {
		return fmt.Errorf("%w: %s.%s", schema.ErrUnknownAttribute, e.typ.Name, name)
	}
	if related, ok := v.(*Entity); ok && related == nil {
		v = nil
	}
	if err := checkValue(e.typ, attr, v); err != nil {
		return fmt.Errorf("%s.%s: %w", e.typ.Name, name, err)
	}
	e.SetRaw(name, Of(v))
	return nil
}

// MustSet is like Set but panics on error
func (e *Entity) MustSet(name string, v interface{}) *Entity {
	if err := e.Set(name, v); err != nil {
		panic(err)
	}
	return e
}

// SetRaw stores a value without any check, used when materializing rows
func (e *Entity) SetRaw(name string, v Value) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if v.State() == Unloaded {
		delete(e.values, name)
		return
	}
	e.values[name] = v
}

// Unload resets name to the unloaded state
func (e *Entity) Unload(name string) {
	e.SetRaw(name, NotLoaded())
}

// LoadedNames returns the sorted names of the loaded attributes
func (e *Entity) LoadedNames() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	names := make([]string, 0, len(e.values))
	for name := range e.values {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ID returns the value of the id attribute
func (e *Entity) ID() (interface{}, bool) {
	name, err := e.typ.IDName()
	if err != nil {
		return nil, false
	}
	v, ok := e.Get(name)
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

// SetID sets the value of the id attribute
func (e *Entity) SetID(id interface{}) error {
	name, err := e.typ.IDName()
	if err != nil {
		return err
	}
	return e.Set(name, id)
}

// Related returns the entity held by a to-one relation
func (e *Entity) Related(name string) (*Entity, bool) {
	v, ok := e.Get(name)
	if !ok || v == nil {
		return nil, false
	}
	related, ok := v.(*Entity)
	return related, ok
}

// RelatedList returns the entities held by a to-many relation
func (e *Entity) RelatedList(name string) ([]*Entity, bool) {
	v, ok := e.Get(name)
	if !ok {
		return nil, false
	}
	if v == nil {
		return nil, true
	}
	list, ok := v.([]*Entity)
	return list, ok
}

// Apply assigns a map of raw values, as received from a form or request
// body, and collects every failing attribute
func (e *Entity) Apply(values map[string]interface{}) error {
	errs := &ValidationErrors{Entity: e.typ.Name}

	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if !schema.IsPersistentName(name) {
			continue
		}
		if err := e.Set(name, values[name]); err != nil {
			errs.Add(name, err)
		}
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}

// Validate checks that every mandatory attribute holds a value and that the
// loaded values still match their declared types
func (e *Entity) Validate() error {
	return e.validate(true)
}

// ValidateLoaded checks the loaded values only, as needed by partial updates
func (e *Entity) ValidateLoaded() error {
	return e.validate(false)
}

func (e *Entity) validate(mandatory bool) error {
	errs := &ValidationErrors{Entity: e.typ.Name}

	for _, attr := range e.typ.Items() {
		v := e.Value(attr.Name)
		if mandatory && attr.Mandatory && !attr.Generated && (!v.IsLoaded() || v.IsNull()) {
			errs.Add(attr.Name, ErrMissingMandatoryValue)
			continue
		}
		if raw, ok := v.Get(); ok && raw != nil {
			if err := checkValue(e.typ, attr, raw); err != nil {
				errs.Add(attr.Name, err)
			}
		}
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}

// checkValue verifies that v can be stored in attr
func checkValue(t *schema.EntityType, attr *schema.Attribute, v interface{}) error {
	if v == nil {
		return nil
	}

	switch attr.Type {
	case schema.TypeText, schema.TypeString:
		if _, ok := v.(string); ok {
			return nil
		}
	case schema.TypeData:
		switch v.(type) {
		case []byte, string:
			return nil
		}
	case schema.TypeInteger:
		if isInteger(v) {
			return nil
		}
	case schema.TypeFloat:
		if isInteger(v) {
			return nil
		}
		switch v.(type) {
		case float32, float64:
			return nil
		}
	case schema.TypeDate:
		switch v.(type) {
		case time.Time, *time.Time:
			return nil
		}
	case schema.TypeRelation:
		return checkRelation(t, attr, v)
	}

	return fmt.Errorf("%w: %T is not %s", ErrInvalidType, v, attr.Type)
}

func isInteger(v interface{}) bool {
	switch v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return true
	}
	return false
}

// checkRelation verifies that v holds instances of the relation target
func checkRelation(t *schema.EntityType, attr *schema.Attribute, v interface{}) error {
	rel := attr.Relation
	if rel.IsEmpty() {
		return fmt.Errorf("%w: %s.%s", schema.ErrMissingRelationMethod, t.Name, attr.Name)
	}
	target, err := t.Registry().Lookup(rel.Target)
	if err != nil {
		return err
	}

	if rel.Kind.IsToOne() {
		related, ok := v.(*Entity)
		if !ok {
			return fmt.Errorf("%w: %T", ErrInvalidRelationValue, v)
		}
		if related != nil && !related.Type().IsSubTypeOf(target) {
			return fmt.Errorf("%w: %s is not a %s", ErrInvalidRelationValue, related.Type().Name, target.Name)
		}
		return nil
	}

	list, ok := v.([]*Entity)
	if !ok {
		return fmt.Errorf("%w: %T", ErrInvalidRelationValue, v)
	}
	for _, related := range list {
		if related == nil || !related.Type().IsSubTypeOf(target) {
			return fmt.Errorf("%w: list holds a value that is not a %s", ErrInvalidRelationValue, target.Name)
		}
	}
	return nil
}
