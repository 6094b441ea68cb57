package region

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsinghua-fib-lab/agentsociety-greenwave/entity/region/graph"
)

type turningEntry struct {
	origin, target int32
	flow           float64
	in, out        int32
}

// newManagerWith 不经过路口代理，直接使用给定的图表示
func newManagerWith(reps map[int32][]turningEntry) *RegionalManager {
	m := NewRegionalManager(nil)
	for id, entries := range reps {
		rep := NewNodeDataStructure(id)
		for _, e := range entries {
			rep.AddEntryUsingTurnings(e.origin, e.target, e.flow, e.in, e.out)
		}
		m.representations[id] = rep
		m.nodes[id] = nil
	}
	return m
}

// 1 -> 2 -> 3，沿途流量40/35/30
func chainRepresentations() map[int32][]turningEntry {
	return map[int32][]turningEntry{
		1: {{0, 2, 40, 11, 12}},
		2: {{1, 3, 35, 12, 13}},
		3: {{2, 0, 30, 13, 14}},
	}
}

// 1 -> 2 -> 3 与 4 -> 2 -> 5 在路口2交叉
func crossingRepresentations() map[int32][]turningEntry {
	return map[int32][]turningEntry{
		1: {{0, 2, 60, 11, 12}},
		2: {{1, 3, 50, 12, 23}, {4, 5, 45, 42, 25}},
		3: {{2, 0, 30, 23, 34}},
		4: {{0, 2, 20, 41, 42}},
		5: {{2, 0, 40, 25, 54}},
	}
}

func TestNodeDataStructureSubNodes(t *testing.T) {
	rep := NewNodeDataStructure(2)
	rep.AddEntryUsingTurnings(1, 3, 50, 12, 23)
	rep.AddEntryUsingTurnings(4, 5, 45, 42, 25)
	rep.AddEntryUsingTurnings(0, 3, 10, 99, 23)
	rep.AddEntryUsingTurnings(1, 3, 55, 12, 23)

	assert.Equal(t, int32(200), rep.InNodeIDForNeighbour(1))
	assert.Equal(t, int32(201), rep.InNodeIDForNeighbour(4))
	assert.Equal(t, int32(210), rep.OutNodeIDForNeighbour(3))
	assert.Equal(t, int32(211), rep.OutNodeIDForNeighbour(5))
	assert.Equal(t, int32(-1), rep.InNodeIDForNeighbour(7))
	assert.Equal(t, []int32{202}, rep.InSubNodeIDs())
	assert.Empty(t, rep.OutSubNodeIDs())
	assert.Equal(t, []int32{1, 4}, rep.PredecessorNodes())
	assert.Equal(t, []int32{3, 5}, rep.SuccessorNodes())

	tds := rep.TDS()
	require.Len(t, tds, 3)
	assert.Equal(t, TurningDataStructure{Origin: 200, Destination: 210, Weight: 55}, tds[0])
	assert.Equal(t, TurningDataStructure{Origin: 202, Destination: 210, Weight: 10}, tds[2])
}

func TestCreateGraphConnectsNeighbours(t *testing.T) {
	m := newManagerWith(chainRepresentations())
	m.createGraph()

	assert.Equal(t, 40.0, m.highestCost)
	assert.Equal(t, 5, m.network.NumEdges())
	e, err := m.network.EdgeBetween(110, 200)
	require.NoError(t, err)
	assert.True(t, e.Intermediate)
	assert.Equal(t, connectorCost, e.Cost)
	e, err = m.network.EdgeBetween(210, 300)
	require.NoError(t, err)
	assert.True(t, e.Intermediate)
	assert.Equal(t, []int32{100}, m.network.InSubNodeIDs())
	assert.Equal(t, []int32{310}, m.network.OutSubNodeIDs())
}

func TestCalculateChain(t *testing.T) {
	m := newManagerWith(chainRepresentations())
	require.NoError(t, m.calculate())

	require.Len(t, m.paths, 1)
	assert.Equal(t, []int32{100, 110, 200, 210, 300, 310}, m.paths[0].Vertices())

	require.Len(t, m.otcPaths, 1)
	otc := m.otcPaths[0]
	assert.True(t, otc.IsOTC())
	assert.Equal(t, []int32{1, 2, 3}, otc.Vertices())
	assert.Equal(t, 65.0, otc.Benefit())
	assert.Equal(t, map[int32]float64{1: 40, 2: 35, 3: 30}, otc.Costs())
	e, err := otc.EdgeBetween(1, 2)
	require.NoError(t, err)
	assert.Equal(t, 40.0, e.Cost)
	e, err = otc.EdgeBetween(2, 3)
	require.NoError(t, err)
	assert.Equal(t, 35.0, e.Cost)

	require.NotNil(t, m.ActiveSystem())
	assert.Equal(t, 65.0, m.ActiveSystem().Benefit())
	assert.Equal(t, NewActiveInfo(1, 0, 2, true, false), m.infos[1])
	assert.Equal(t, NewActiveInfo(2, 1, 3, false, false), m.infos[2])
	assert.Equal(t, NewActiveInfo(3, 2, 0, false, true), m.infos[3])
}

func TestCalculateCompetingCorridors(t *testing.T) {
	m := newManagerWith(crossingRepresentations())
	require.NoError(t, m.calculate())

	require.Len(t, m.otcPaths, 2)
	assert.Equal(t, []int32{1, 2, 3}, m.otcPaths[0].Vertices())
	assert.Equal(t, 80.0, m.otcPaths[0].Benefit())
	assert.Equal(t, []int32{4, 2, 5}, m.otcPaths[1].Vertices())
	assert.Equal(t, 85.0, m.otcPaths[1].Benefit())

	systems := m.Systems()
	require.Len(t, systems, 2)
	require.Equal(t, 1, systems[0].Len())
	assert.Equal(t, []int32{4, 2, 5}, systems[0].Paths()[0].Vertices())
	require.Equal(t, 1, systems[1].Len())
	assert.Equal(t, []int32{1, 2, 3}, systems[1].Paths()[0].Vertices())

	assert.Same(t, systems[0], m.ActiveSystem())
	assert.Equal(t, NewActiveInfo(4, 0, 2, true, false), m.infos[4])
	assert.Equal(t, NewActiveInfo(2, 4, 5, false, false), m.infos[2])
	assert.Equal(t, NewActiveInfo(5, 2, 0, false, true), m.infos[5])
	assert.Equal(t, NewInactiveInfo(1), m.infos[1])
	assert.Equal(t, NewInactiveInfo(3), m.infos[3])
}

func TestCalculateRejectsEmptyFlows(t *testing.T) {
	m := newManagerWith(map[int32][]turningEntry{
		1: {{0, 0, 0, 11, 12}},
	})
	err := m.calculate()
	assert.ErrorIs(t, err, graph.ErrInvalidPath)
	assert.Nil(t, m.ActiveSystem())
}

func TestCalculatePSSWithoutNodes(t *testing.T) {
	m := NewRegionalManager(nil)
	assert.ErrorIs(t, m.receiveNodeRepresentations(), ErrNoRepresentations)
}

func TestSplitPath(t *testing.T) {
	m := NewRegionalManager(nil)
	m.highestCost = 100
	p := graph.NewPath([]int32{1, 2, 3, 4, 5}, nil)
	p.SetOTC(true)
	p.SetCosts(map[int32]float64{1: 10, 2: 20, 3: 30, 4: 40, 5: 50})

	parts := m.splitPath(p, []int32{3})
	require.Len(t, parts, 2)
	assert.Equal(t, []int32{1, 2}, parts[0].Vertices())
	assert.Equal(t, 20.0, parts[0].Benefit())
	assert.Equal(t, 80.0, parts[0].Cost())
	assert.True(t, parts[0].IsSplitted())
	assert.Equal(t, []int32{4, 5}, parts[1].Vertices())
	assert.Equal(t, 50.0, parts[1].Benefit())
	assert.Equal(t, map[int32]float64{4: 40, 5: 50}, parts[1].Costs())

	assert.Empty(t, m.splitPath(p, []int32{2, 4}))
}

func TestDetermineBenefitingCars(t *testing.T) {
	edges := []graph.Edge{
		{From: 100, To: 110, Cost: 40, PrimaryCost: -1},
		{From: 110, To: 200, Cost: 1, PrimaryCost: -1, Intermediate: true},
		{From: 200, To: 210, Cost: 10, PrimaryCost: 35, Inverted: true},
		{From: 210, To: 300, Cost: 1, PrimaryCost: -1, Intermediate: true},
		{From: 300, To: 310, Cost: 30, PrimaryCost: -1},
	}
	assert.Equal(t, 65.0, determineBenefitingCars(edges))
	assert.Equal(t, -1.0, determineBenefitingCars(nil))
}

// otcPath 路口级走廊，收益为除首个路口外的代价之和，以highest为基准取反
func otcPath(vertices []int32, costs map[int32]float64, highest float64) *graph.Path {
	p := graph.NewPath(vertices, nil)
	p.SetOTC(true)
	p.SetCosts(costs)
	p.UpdateCost()
	p.InvertCost(highest)
	return p
}

func TestStreamSystemsSplitCrossingCorridors(t *testing.T) {
	// 1-2-3-4-5 收益200，6-7-3-8-9 收益140，两者在路口3交叉
	m := NewRegionalManager(nil)
	m.highestCost = 200
	straight := otcPath([]int32{1, 2, 3, 4, 5}, map[int32]float64{1: 50, 2: 50, 3: 50, 4: 50, 5: 50}, m.highestCost)
	crossing := otcPath([]int32{6, 7, 3, 8, 9}, map[int32]float64{6: 10, 7: 50, 3: 20, 8: 20, 9: 50}, m.highestCost)
	m.otcPaths = []*graph.Path{crossing, straight}
	for id := int32(1); id <= 9; id++ {
		m.nodes[id] = nil
	}

	m.determineStreamSystems()
	require.Len(t, m.systems, 2)

	vertices := func(s *graph.System) [][]int32 {
		res := make([][]int32, 0, s.Len())
		for _, p := range s.Paths() {
			res = append(res, p.Vertices())
		}
		return res
	}
	first, second := m.systems[0], m.systems[1]
	assert.Equal(t, [][]int32{{1, 2, 3, 4, 5}, {6, 7}, {8, 9}}, vertices(first))
	assert.Equal(t, 300., first.Benefit())
	assert.False(t, first.Paths()[0].IsSplitted())
	assert.True(t, first.Paths()[1].IsSplitted())
	assert.True(t, first.Paths()[2].IsSplitted())

	assert.Equal(t, 2, second.ID())
	assert.Equal(t, [][]int32{{6, 7, 3, 8, 9}, {1, 2}, {4, 5}}, vertices(second))
	assert.Equal(t, 240., second.Benefit())

	m.chooseBestStreamSystem()
	require.Same(t, first, m.ActiveSystem())

	m.generateNodeInformation()
	infos := m.Infos()
	assert.Equal(t, NewActiveInfo(3, 2, 4, false, false), infos[3])
	assert.Equal(t, NewActiveInfo(6, 0, 7, true, false), infos[6])
	assert.Equal(t, NewActiveInfo(7, 6, 0, false, true), infos[7])
	assert.Equal(t, NewActiveInfo(8, 0, 9, true, false), infos[8])
	assert.Equal(t, NewActiveInfo(9, 8, 0, false, true), infos[9])
}
