package testutil

// FixedIDGenerator returns the same session ID every time.
//
// This enables deterministic test execution and golden snapshot comparison:
// the same scenario recorded twice produces byte-identical rows.
//
// Thread-safety: FixedIDGenerator is stateless and safe for concurrent use.
type FixedIDGenerator struct {
	id string
}

// NewFixedIDGenerator creates a generator for id.
// If id is empty, Generate() returns "test-session-default".
func NewFixedIDGenerator(id string) *FixedIDGenerator {
	if id == "" {
		id = "test-session-default"
	}
	return &FixedIDGenerator{id: id}
}

// Generate returns the fixed ID.
//
// Implements store.IDGenerator interface.
func (g *FixedIDGenerator) Generate() string {
	return g.id
}
