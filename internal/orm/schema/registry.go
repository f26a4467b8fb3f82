package schema

import (
	"fmt"
	"sync"
)

// Registry manages all entity types of an application. Types are registered
// first and the registry is then built once, which resolves parents and
// sub-types and derives every per-type view. A built registry is sealed.
type Registry struct {
	types     map[string]*EntityType
	order     []*EntityType
	validator *Validator
	sealed    bool
	mu        sync.RWMutex
}

// NewRegistry creates a new entity type registry
func NewRegistry() *Registry {
	return &Registry{
		types:     make(map[string]*EntityType),
		validator: NewValidator(),
	}
}

// Register registers a new entity type
func (r *Registry) Register(t *EntityType) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sealed {
		return fmt.Errorf("%w: cannot register %s", ErrRegistrySealed, t.Name)
	}

	if _, exists := r.types[t.Name]; exists {
		return fmt.Errorf("entity %s is already registered", t.Name)
	}

	// Forward references to parents and targets are allowed here, the
	// cross-type checks happen in Build and Validate
	if err := r.validator.ValidateStructural(t); err != nil {
		return fmt.Errorf("schema validation failed for %s: %w", t.Name, err)
	}

	t.handle = Handle(len(r.order))
	t.registry = r
	for _, attr := range t.Declared {
		attr.owner = t
	}

	r.types[t.Name] = t
	r.order = append(r.order, t)
	return nil
}

// MustRegister registers every given type and panics on failure
func (r *Registry) MustRegister(types ...*EntityType) {
	for _, t := range types {
		if err := r.Register(t); err != nil {
			panic(err)
		}
	}
}

// Build resolves the inheritance graph, derives the cached views of every
// type and seals the registry. A failed build leaves no graph behind, so it
// can be retried once the declarations are fixed.
func (r *Registry) Build() (err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sealed {
		return nil
	}

	r.resetGraph()
	defer func() {
		if err != nil {
			r.resetGraph()
		}
	}()

	for _, t := range r.order {
		for _, name := range t.ParentNames {
			parent, ok := r.types[name]
			if !ok {
				return fmt.Errorf("%w: %s (parent of %s)", ErrUnknownEntity, name, t.Name)
			}
			t.parents = append(t.parents, parent)
			parent.subTypes = append(parent.subTypes, t)
		}
	}

	for _, t := range r.order {
		all, err := collectParents(t)
		if err != nil {
			return err
		}
		t.allParents = all
	}

	for _, t := range r.order {
		t.allSubTypes = collectSubTypes(t)
	}

	for _, t := range r.order {
		t.derive()
	}

	r.sealed = true
	return nil
}

func (r *Registry) resetGraph() {
	for _, t := range r.order {
		t.parents = nil
		t.subTypes = nil
		t.allParents = nil
		t.allSubTypes = nil
	}
}

// collectParents returns the transitive parents of t, ancestors first
func collectParents(t *EntityType) ([]*EntityType, error) {
	var result []*EntityType
	seen := make(map[*EntityType]bool)
	stack := make(map[*EntityType]bool)

	var visit func(*EntityType) error
	visit = func(current *EntityType) error {
		for _, parent := range current.parents {
			if parent == t || stack[parent] {
				return fmt.Errorf("%w: %s", ErrInheritanceCycle, t.Name)
			}
			if seen[parent] {
				continue
			}
			stack[parent] = true
			if err := visit(parent); err != nil {
				return err
			}
			stack[parent] = false
			seen[parent] = true
			result = append(result, parent)
		}
		return nil
	}

	if err := visit(t); err != nil {
		return nil, err
	}
	return result, nil
}

// collectSubTypes returns every descendant of t, depth first
func collectSubTypes(t *EntityType) []*EntityType {
	var result []*EntityType
	seen := make(map[*EntityType]bool)

	var visit func(*EntityType)
	visit = func(current *EntityType) {
		for _, sub := range current.subTypes {
			if seen[sub] {
				continue
			}
			seen[sub] = true
			result = append(result, sub)
			visit(sub)
		}
	}
	visit(t)
	return result
}

// IsSealed returns true once the registry has been built
func (r *Registry) IsSealed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sealed
}

// Get retrieves an entity type by name
func (r *Registry) Get(name string) (*EntityType, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, exists := r.types[name]
	return t, exists
}

// Lookup retrieves an entity type by name or returns ErrUnknownEntity
func (r *Registry) Lookup(name string) (*EntityType, error) {
	t, ok := r.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEntity, name)
	}
	return t, nil
}

// MustGet retrieves an entity type by name and panics when it is missing
func (r *Registry) MustGet(name string) *EntityType {
	t, ok := r.Get(name)
	if !ok {
		panic(fmt.Sprintf("entity %s is not registered", name))
	}
	return t
}

// ByHandle retrieves an entity type by its handle
func (r *Registry) ByHandle(h Handle) (*EntityType, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if h < 0 || int(h) >= len(r.order) {
		return nil, false
	}
	return r.order[h], true
}

// ByDiscriminator retrieves the concrete type tagged with value in polymorphic queries
func (r *Registry) ByDiscriminator(value string) (*EntityType, bool) {
	return r.Get(value)
}

// All returns the registered types in registration order
func (r *Registry) All() []*EntityType {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*EntityType, len(r.order))
	copy(result, r.order)
	return result
}

// Count returns the number of registered types
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Validate performs the cross-type checks on a built registry
func (r *Registry) Validate() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.sealed {
		return ErrRegistryNotBuilt
	}
	return r.validator.ValidateRegistry(r.types, r.order)
}

// DependencyOrder returns the types ordered so that parents and the targets
// of foreign keys come first
func (r *Registry) DependencyOrder() []*EntityType {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return NewDependencyGraph(r.order, r.types).TopologicalSort()
}

// Cycles returns the relation cycles between registered types
func (r *Registry) Cycles() [][]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return NewDependencyGraph(r.order, r.types).DetectCycles()
}
