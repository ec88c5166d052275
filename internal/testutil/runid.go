package testutil

// FixedRunID returns the same run id every time.
//
// Runs tag every log line with a run id; tests that compare log output
// install this generator so the output is stable.
type FixedRunID struct {
	id string
}

// NewFixedRunID creates a generator for id. Empty id means "test-run".
func NewFixedRunID(id string) *FixedRunID {
	if id == "" {
		id = "test-run"
	}
	return &FixedRunID{id: id}
}

// Generate returns the fixed id.
func (g *FixedRunID) Generate() string {
	return g.id
}
