package testutil

// ConstantRunID returns the same run id on every call.
//
// Unlike engine.FixedGenerator, which hands out ids in sequence and panics
// when they run out, ConstantRunID serves any number of runs. Tests that
// validate repeatedly and compare reports use it.
//
// Thread-safety: ConstantRunID is stateless and safe for concurrent use.
type ConstantRunID struct {
	id string
}

// NewConstantRunID creates a generator for id. An empty id becomes
// "test-run".
func NewConstantRunID(id string) *ConstantRunID {
	if id == "" {
		id = "test-run"
	}
	return &ConstantRunID{id: id}
}

// Generate returns the fixed id.
//
// Implements engine.RunIDGenerator.
func (g *ConstantRunID) Generate() string {
	return g.id
}
