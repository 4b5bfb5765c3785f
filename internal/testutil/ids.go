package testutil

// FixedIDGenerator returns the same session id every time.
//
// Scenario runs use it so that golden snapshots do not embed random ids.
// Unlike engine.FixedGenerator, which hands out a sequence and panics when
// exhausted, this generator never runs out.
//
// Thread-safety: FixedIDGenerator is stateless and safe for concurrent use.
type FixedIDGenerator struct {
	id string
}

// NewFixedIDGenerator creates a generator for id.
// If id is empty, Generate() returns "test-session".
func NewFixedIDGenerator(id string) *FixedIDGenerator {
	if id == "" {
		id = "test-session"
	}
	return &FixedIDGenerator{id: id}
}

// Generate returns the fixed id.
//
// Implements engine.IDGenerator.
func (g *FixedIDGenerator) Generate() string {
	return g.id
}
