// Package ids generates order numbers and trace identifiers.
package ids

import (
	"crypto/rand"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// Generator yields identifiers. Implementations are safe for concurrent use.
type Generator interface {
	Next() string
}

// OrderNumbers yields prefix + monotonic ULID. Within one process numbers
// sort by creation time and never repeat; across processes the orders table
// UNIQUE constraint is the backstop.
type OrderNumbers struct {
	prefix  string
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

func NewOrderNumbers(prefix string) *OrderNumbers {
	return &OrderNumbers{
		prefix:  prefix,
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

func (g *OrderNumbers) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.prefix + ulid.MustNew(ulid.Now(), g.entropy).String()
}

// TraceIDs yields UUIDv7 strings, one per pipeline run.
type TraceIDs struct{}

func (TraceIDs) Next() string {
	return uuid.Must(uuid.NewV7()).String()
}

// Sequence yields prefix1, prefix2, ... and is meant for tests.
type Sequence struct {
	prefix string
	mu     sync.Mutex
	n      int
}

func NewSequence(prefix string) *Sequence {
	return &Sequence{prefix: prefix}
}

func (s *Sequence) Next() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return fmt.Sprintf("%s%d", s.prefix, s.n)
}
