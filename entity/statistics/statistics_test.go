package statistics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tsinghua-fib-lab/agentsociety-greenwave/utils/input"
)

func TestFlowAt(t *testing.T) {
	profile := []input.Sample{{Time: 0, Flow: 300}, {Time: 1800, Flow: 600}}
	assert.Equal(t, 0., flowAt(profile, -1))
	assert.Equal(t, 300., flowAt(profile, 0))
	assert.Equal(t, 300., flowAt(profile, 900))
	assert.Equal(t, 600., flowAt(profile, 1800))
	assert.Equal(t, 600., flowAt(profile, 7200))
	assert.Equal(t, 0., flowAt(nil, 10))
}

func TestAverageFlow(t *testing.T) {
	profile := []input.Sample{{Time: 0, Flow: 300}, {Time: 1800, Flow: 600}}
	assert.Equal(t, 450., averageFlow(profile, 900, 2700))
	assert.Equal(t, 300., averageFlow(profile, 0, 900))
	assert.Equal(t, 600., averageFlow(profile, 1800, 3600))
	assert.Equal(t, 0., averageFlow(profile, -900, 0))
	assert.Equal(t, 150., averageFlow(profile, -900, 900))
	// 区间为空时取终点的瞬时流量
	assert.Equal(t, 600., averageFlow(profile, 2000, 2000))
}
