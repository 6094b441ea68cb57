package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPathFromEdges(t *testing.T) {
	g := corridorGraph()
	p, err := NewPathFromEdges(g.Edges())
	require.NoError(t, err)
	assert.Equal(t, []int32{100, 110, 200, 210, 300, 310}, p.Vertices())
	assert.Equal(t, int32(100), p.Origin())

	pred, err := p.Predecessor(110)
	require.NoError(t, err)
	assert.Equal(t, int32(100), pred)
	_, err = p.Predecessor(100)
	assert.ErrorIs(t, err, ErrNoEdge)

	_, err = NewPathFromEdges(nil)
	assert.ErrorIs(t, err, ErrInvalidPath)

	broken := []Edge{g.Edges()[0], g.Edges()[2]}
	_, err = NewPathFromEdges(broken)
	assert.ErrorIs(t, err, ErrInvalidPath)
}

func TestPathInvertRoundTrip(t *testing.T) {
	p := NewPath([]int32{1, 2, 3}, nil)
	p.SetCost(65)
	p.InvertCost(80)
	assert.True(t, p.IsInverted())
	assert.Equal(t, 15.0, p.Cost())
	assert.Equal(t, 65.0, p.Benefit())
	p.InvertCost(80)
	assert.False(t, p.IsInverted())
	assert.Equal(t, 65.0, p.Cost())
	assert.Equal(t, -1.0, p.InitialCost())
}

func TestPathConflicts(t *testing.T) {
	a := NewPath([]int32{1, 2, 3}, nil)
	b := NewPath([]int32{4, 2, 5}, nil)
	c := NewPath([]int32{6, 7}, nil)
	assert.False(t, a.ConflictFree(b))
	assert.False(t, b.ConflictFree(a))
	assert.True(t, a.ConflictFree(c))
	assert.True(t, a.ConflictFree(NewPath(nil, nil)))
}

func TestPathUpdateCostSkipsFirstNode(t *testing.T) {
	p := NewPath([]int32{2, 3, 4}, nil)
	p.AddCosts(map[int32]float64{1: 100, 2: 40, 3: 35, 4: 30})
	assert.Len(t, p.Costs(), 3)
	p.UpdateCost()
	assert.Equal(t, 65.0, p.Cost())
}

func TestSystemBenefitAndConflicts(t *testing.T) {
	a := NewPath([]int32{1, 2, 3}, nil)
	a.SetCost(60)
	a.InvertCost(100)
	b := NewPath([]int32{4, 5}, nil)
	b.SetCost(20)

	s := NewSystem(1, a)
	require.True(t, s.VerifyAdditionalStream(b))
	s.Add(b)
	assert.Equal(t, 80.0, s.Benefit())

	c := NewPath([]int32{7, 5, 2, 8}, nil)
	assert.False(t, s.VerifyAdditionalStream(c))
	assert.Equal(t, []int32{5, 2}, s.ConflictingVertexIDs(c))
	assert.True(t, s.Contains(4))
	assert.False(t, s.Contains(7))
}
