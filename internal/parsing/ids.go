package parsing

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// IDGenerator generates parse IDs used to correlate log lines of one
// top-level parse. Implemented by UUIDv7Generator (production) and
// FixedGenerator (tests).
type IDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 parse IDs.
//
// Thread-safety: UUIDv7Generator is stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate creates a new UUIDv7 and returns it as a hyphenated string.
//
// Panics if UUID generation fails (should never happen in practice).
func (g UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// FixedGenerator returns predetermined parse IDs for testing.
//
// Thread-safety: FixedGenerator is safe for concurrent use via internal mutex.
type FixedGenerator struct {
	mu  sync.Mutex
	ids []string
	idx int
}

// NewFixedGenerator creates a generator that returns ids in order.
func NewFixedGenerator(ids ...string) *FixedGenerator {
	return &FixedGenerator{ids: ids}
}

// Generate returns the next predetermined ID.
//
// Panics if all IDs have been consumed, so a test that parses more often
// than it expects fails fast.
func (g *FixedGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.idx >= len(g.ids) {
		panic("FixedGenerator: all ids exhausted")
	}
	id := g.ids[g.idx]
	g.idx++
	return id
}

// UniqueIdentifierGenerator synthesizes iteration-variable names for nodes
// whose identifier cannot be inferred from a lambda parameter.
//
// Thread-safety: not safe for concurrent use. Each parser owns one.
type UniqueIdentifierGenerator struct {
	known   map[string]bool
	counter int
}

// NewUniqueIdentifierGenerator creates an empty generator.
func NewUniqueIdentifierGenerator() *UniqueIdentifierGenerator {
	return &UniqueIdentifierGenerator{known: make(map[string]bool)}
}

// AddKnownIdentifier registers a name that must never be generated.
func (g *UniqueIdentifierGenerator) AddKnownIdentifier(name string) {
	g.known[name] = true
}

// Reset forgets generated and known identifiers.
func (g *UniqueIdentifierGenerator) Reset() {
	clear(g.known)
	g.counter = 0
}

// GetUniqueIdentifier returns prefix followed by the next counter value
// that yields a name neither generated nor known.
func (g *UniqueIdentifierGenerator) GetUniqueIdentifier(prefix string) string {
	for {
		name := fmt.Sprintf("%s%d", prefix, g.counter)
		g.counter++
		if !g.known[name] {
			g.known[name] = true
			return name
		}
	}
}
