package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFixedRunID_ReturnsSameID(t *testing.T) {
	gen := NewFixedRunID("run-123")
	assert.Equal(t, "run-123", gen.Generate())
	assert.Equal(t, "run-123", gen.Generate())
}

func TestFixedRunID_EmptyDefault(t *testing.T) {
	assert.Equal(t, "test-run", NewFixedRunID("").Generate())
}
