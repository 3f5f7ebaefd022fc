// Package ids provides injectable unique-id generation for agents, chains and nodes.
package ids

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Generator produces unique identifiers.
type Generator interface {
	NewID() string
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func() string

// NewID implements Generator.
func (f GeneratorFunc) NewID() string {
	return f()
}

// UUID generates random (v4) UUIDs. It is the default generator.
type UUID struct{}

// NewID implements Generator.
func (UUID) NewID() string {
	return uuid.NewString()
}

// Sequence generates deterministic ids ("<prefix>-1", "<prefix>-2", ...).
// Safe for concurrent use.
type Sequence struct {
	prefix string
	mu     sync.Mutex
	n      int
}

// NewSequence creates a deterministic generator, mostly useful in tests.
func NewSequence(prefix string) *Sequence {
	return &Sequence{prefix: prefix}
}

// NewID implements Generator.
func (s *Sequence) NewID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return fmt.Sprintf("%s-%d", s.prefix, s.n)
}

// Default is the generator used when none is injected.
var Default Generator = UUID{}
