package randengine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJitterSafeRange(t *testing.T) {
	e := New(42)
	for range 1000 {
		f := e.JitterSafe(0.1)
		assert.GreaterOrEqual(t, f, 0.9)
		assert.Less(t, f, 1.1)
	}
	assert.Equal(t, 1.0, e.JitterSafe(0))
}

func TestSameSeedSameSequence(t *testing.T) {
	a, b := New(7), New(7)
	for range 10 {
		assert.Equal(t, a.Float64Safe(), b.Float64Safe())
	}
}
