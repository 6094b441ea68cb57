package task

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsinghua-fib-lab/agentsociety-greenwave/entity/junction"
	"github.com/tsinghua-fib-lab/agentsociety-greenwave/entity/region"
	"github.com/tsinghua-fib-lab/agentsociety-greenwave/entity/road"
	"github.com/tsinghua-fib-lab/agentsociety-greenwave/utils/config"
	"github.com/tsinghua-fib-lab/agentsociety-greenwave/utils/input"
)

// chainNetwork 三个受控路口串联：边界 -> 1 -> 2 -> 3 -> 边界，转向流量40/35/30
func chainNetwork() *input.Network {
	road := func(id, pred, succ int32) input.Road {
		return input.Road{ID: id, Length: 250, MaxSpeed: 12.5, Predecessor: pred, Successor: succ}
	}
	junction := func(id, turning, in, out int32) input.Junction {
		return input.Junction{
			ID:         id,
			Controlled: true,
			Turnings:   []input.Turning{{ID: turning, In: in, Out: out}},
			Phases: []input.Phase{
				{Duration: 30, Turnings: []int32{turning}},
				{Duration: 5, Interphase: true},
				{Duration: 20},
				{Duration: 5, Interphase: true},
			},
		}
	}
	demand := func(turning int32, flow float64) input.Demand {
		return input.Demand{Turning: turning, Profile: []input.Sample{{Time: 0, Flow: flow}}}
	}
	return &input.Network{
		Roads: []input.Road{
			road(11, 0, 1),
			road(12, 1, 2),
			road(13, 2, 3),
			road(14, 3, 0),
		},
		Junctions: []input.Junction{
			junction(1, 101, 11, 12),
			junction(2, 201, 12, 13),
			junction(3, 301, 13, 14),
		},
		Demands: []input.Demand{
			demand(101, 40),
			demand(201, 35),
			demand(301, 30),
		},
	}
}

func newTestContext(t *testing.T, pss config.PSS, total int32) *Context {
	t.Helper()
	n := chainNetwork()
	require.NoError(t, n.Validate())
	c := config.Config{
		Input:   config.Input{Network: config.InputPath{File: "memory"}},
		Control: config.Control{Step: config.ControlStep{Start: 0, Total: total, Interval: 1}},
		PSS:     pss,
	}
	ctx := NewContextWithInput(c, &input.Input{Network: n})
	ctx.Init()
	return ctx
}

func TestManagersLookup(t *testing.T) {
	ctx := newTestContext(t, config.PSS{}, 10)
	assert.Len(t, ctx.JunctionManager().ControlledJunctions(), 3)
	j, err := ctx.JunctionManager().GetOrError(2)
	require.NoError(t, err)
	assert.Equal(t, int32(2), j.ID())
	_, err = ctx.JunctionManager().GetOrError(99)
	assert.ErrorIs(t, err, junction.ErrUnknownJunction)
	_, err = ctx.RoadManager().GetOrError(99)
	assert.ErrorIs(t, err, road.ErrUnknownRoad)
}

func TestRegionalCorridor(t *testing.T) {
	ctx := newTestContext(t, config.PSS{Region: true}, 300)
	ctx.Run()

	assert.Equal(t, []int32{1, 2, 3}, ctx.Regional().Registered())
	assert.Equal(t, [][]int32{{1, 2, 3}}, ctx.DPSS().EstablishedCorridors())

	assertSynchronisedChain(t, ctx, []int32{1, 2, 3})

	system := ctx.Regional().ActiveSystem()
	require.NotNil(t, system)
	require.Equal(t, 1, system.Len())
	assert.Equal(t, []int32{1, 2, 3}, system.Paths()[0].Vertices())
}

// assertSynchronisedChain 走廊标志、前驱后继、公共周期与相位差链
func assertSynchronisedChain(t *testing.T, ctx *Context, ids []int32) []*region.Node {
	t.Helper()
	nodes := make([]*region.Node, 0, len(ids))
	for _, id := range ids {
		n, ok := ctx.Negotiator().Node(id)
		require.True(t, ok, "node %d", id)
		nodes = append(nodes, n)
	}
	last := len(nodes) - 1
	assert.True(t, nodes[0].BeginOfPSS())
	assert.True(t, nodes[last].EndOfPSS())
	assert.Equal(t, int32(0), nodes[last].PrimarySuccessor())
	for i, n := range nodes {
		assert.True(t, n.PartOfPSS(), "node %d", n.ID())
		if i > 0 {
			assert.Equal(t, ids[i-1], n.Predecessor(), "predecessor of node %d", n.ID())
		}
		if i < last {
			assert.Equal(t, ids[i+1], n.PrimarySuccessor(), "successor of node %d", n.ID())
		}
	}

	// 公共周期一致且等于期望周期的最大值
	act := nodes[0].AgreedCycleTime()
	assert.Positive(t, act)
	desired := 0
	for _, n := range nodes {
		assert.Equal(t, act, n.AgreedCycleTime(), "cycle of node %d", n.ID())
		desired = max(desired, n.DesiredCycleTime())
	}
	assert.Equal(t, desired, act)

	// 相位差链
	for i := 1; i < len(nodes); i++ {
		pred, succ := nodes[i-1], nodes[i]
		routes := pred.Junction().RoutesToNeighbour(succ.ID())
		require.NotEmpty(t, routes)
		want := (pred.Offset() + pred.SyncStart() + routes[0].Offset() - succ.SyncStart() - succ.QueueAdjustment()) % act
		if want < 0 {
			want += act
		}
		assert.Equal(t, want, succ.Offset(), "offset of node %d", succ.ID())
	}
	return nodes
}

func TestDecentralRunCompletes(t *testing.T) {
	ctx := newTestContext(t, config.PSS{Decentral: true}, 300)
	ctx.Run()

	assert.False(t, ctx.DPSS().ActiveRun())
	assert.Greater(t, ctx.DPSS().NextTimeForPSSRun(), config.DefaultRecalculateInterval)
	assert.Equal(t, [][]int32{{1, 2, 3}}, ctx.DPSS().EstablishedCorridors())

	nodes := assertSynchronisedChain(t, ctx, []int32{1, 2, 3})
	assert.Equal(t, 30, nodes[0].AgreedCycleTime())
	assert.Equal(t, []int{0, 5, 10}, []int{nodes[0].Offset(), nodes[1].Offset(), nodes[2].Offset()})
}

func TestStopEndsRun(t *testing.T) {
	ctx := newTestContext(t, config.PSS{}, 1000)
	ctx.Step()
	ctx.Stop()
	ctx.Run()
	assert.Equal(t, int32(1), ctx.Clock().InternalStep)
}

func TestHTTPReports(t *testing.T) {
	ctx := newTestContext(t, config.PSS{Region: true}, 300)
	ctx.Run()
	mux := http.NewServeMux()
	ctx.Register(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/corridors", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var corridors struct {
		RunID     string    `json:"run_id"`
		Corridors [][]int32 `json:"corridors"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &corridors))
	assert.Equal(t, [][]int32{{1, 2, 3}}, corridors.Corridors)
	assert.Equal(t, ctx.Negotiator().RunID(), corridors.RunID)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/nodes/2", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var node struct {
		PartOfPSS   bool  `json:"part_of_pss"`
		Predecessor int32 `json:"predecessor"`
		Successor   int32 `json:"successor"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &node))
	assert.True(t, node.PartOfPSS)
	assert.Equal(t, int32(1), node.Predecessor)
	assert.Equal(t, int32(3), node.Successor)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/nodes/99", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/nodes/abc", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/junctions/1/traffic-light", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestConfigChangeAppliesNextStep(t *testing.T) {
	ctx := newTestContext(t, config.PSS{}, 10)
	ctx.OnConfigChange(config.Config{PSS: config.PSS{Region: true, CheckInterval: 500}})
	assert.False(t, ctx.RuntimeConfig().PSS.Region)

	ctx.Step()
	assert.True(t, ctx.RuntimeConfig().PSS.Region)
	assert.Equal(t, 500., ctx.RuntimeConfig().PSS.CheckInterval)
	assert.Equal(t, config.DefaultRecalculateInterval, ctx.RuntimeConfig().PSS.RecalculateInterval)
}
