package testutil

// FixedIDGenerator generates the same parse ID every time.
//
// Unlike parsing.FixedGenerator which returns IDs in sequence and panics
// when exhausted, this generator never runs out, so one scenario can parse
// any number of queries and still log byte-identical lines.
//
// Thread-safety: FixedIDGenerator is stateless and safe for concurrent use.
type FixedIDGenerator struct {
	id string
}

// NewFixedIDGenerator creates a new fixed ID generator.
//
// If id is empty, Generate() returns "test-parse-default".
func NewFixedIDGenerator(id string) *FixedIDGenerator {
	if id == "" {
		id = "test-parse-default"
	}
	return &FixedIDGenerator{id: id}
}

// Generate returns the fixed ID.
//
// Implements parsing.IDGenerator.
func (g *FixedIDGenerator) Generate() string {
	return g.id
}
