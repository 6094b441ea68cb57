package trafficlight

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsinghua-fib-lab/agentsociety-greenwave/entity"
)

func testPhases() []entity.Phase {
	return []entity.Phase{
		{ID: 1, DefaultDuration: 30, Turnings: []int32{1}},
		{ID: 2, DefaultDuration: 3, Interphase: true},
		{ID: 3, DefaultDuration: 30, Turnings: []int32{2}},
		{ID: 4, DefaultDuration: 3, Interphase: true},
	}
}

func TestSelectorDesiredCycleTime(t *testing.T) {
	s := NewSelector(1, entity.FixedTime, testPhases())
	c, err := s.DesiredCycleTime(entity.Situation{600, 0, 300, 0})
	require.NoError(t, err)
	assert.Equal(t, 30, c)

	c, err = s.DesiredCycleTime(entity.Situation{1200, 0, 600, 0})
	require.NoError(t, err)
	assert.Equal(t, *maxCycle, c)
}

func TestSelectorDesiredTLC(t *testing.T) {
	s := NewSelector(1, entity.FixedTime, testPhases())
	params, err := s.DesiredTLC(entity.Situation{600, 0, 300, 0}, 60)
	require.NoError(t, err)
	assert.Equal(t, []float64{34, 3, 20, 3}, params.Durations)
	assert.Equal(t, 60.0, params.CycleTime())

	params, err = s.DesiredTLC(entity.Situation{0, 0, 0, 0}, 60)
	require.NoError(t, err)
	assert.Equal(t, []float64{27, 3, 27, 3}, params.Durations)

	_, err = s.DesiredTLC(entity.Situation{600, 0, 300, 0}, 10)
	assert.ErrorIs(t, err, entity.ErrCycleTooShort)
}

func TestSelectorReward(t *testing.T) {
	s := NewSelector(1, entity.FixedTime, testPhases())
	params, err := s.SelectAction(entity.Situation{600, 0, 300, 0}, 60)
	require.NoError(t, err)
	h := params.Hash()
	assert.Equal(t, -1.0, s.PredictionForActiveAction(h))

	s.DistributeReward(80)
	assert.Equal(t, 80.0, s.PredictionForActiveAction(h))
	s.DistributeReward(90)
	assert.InDelta(t, 82.0, s.PredictionForAction(h, nil, 60), 1e-9)

	other := s.DefaultParameters()
	assert.Equal(t, -1.0, s.PredictionForAction(other.Hash(), nil, 0))
}
