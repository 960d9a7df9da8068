package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSequentialIDs(t *testing.T) {
	gen := NewSequentialIDs()

	assert.Equal(t, "00000000-0000-4000-8000-000000000001", gen.Generate())
	assert.Equal(t, "00000000-0000-4000-8000-000000000002", gen.Generate())

	gen.Reset()
	assert.Equal(t, "00000000-0000-4000-8000-000000000001", gen.Generate())
}

func TestSequentialIDsAreUUIDShaped(t *testing.T) {
	id := NewSequentialIDs().Generate()
	assert.Len(t, id, 36)
}

func TestSequentialIDsAt(t *testing.T) {
	gen := NewSequentialIDsAt(1000)
	assert.Equal(t, "00000000-0000-4000-8000-000000001001", gen.Generate())
}
