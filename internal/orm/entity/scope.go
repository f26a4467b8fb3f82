package entity

import (
	"sync"

	"github.com/google/uuid"
)

// Scope is the diffusion scope shared by the entities of one object graph.
// It is the unit that is attached and detached, not the single entity.
type Scope struct {
	id      uuid.UUID
	depth   int
	session interface{}
	mu      sync.Mutex
}

// NewScope creates a new detached scope
func NewScope() *Scope {
	return &Scope{id: uuid.New()}
}

// ID returns the scope identifier
func (s *Scope) ID() uuid.UUID {
	return s.id
}

// Attach increments the attach depth and returns the new depth
func (s *Scope) Attach() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.depth++
	return s.depth
}

// Detach decrements the attach depth and returns the new depth
func (s *Scope) Detach() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.depth > 0 {
		s.depth--
	}
	return s.depth
}

// IsAttached returns true while the attach depth is positive
func (s *Scope) IsAttached() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.depth > 0
}

// Depth returns the attach depth
func (s *Scope) Depth() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.depth
}

// Session returns the request or session back-reference
func (s *Scope) Session() interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session
}

// SetSession sets the request or session back-reference
func (s *Scope) SetSession(session interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = session
}
