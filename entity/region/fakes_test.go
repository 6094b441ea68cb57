package region

import (
	"math"
	"slices"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tsinghua-fib-lab/agentsociety-greenwave/clock"
	"github.com/tsinghua-fib-lab/agentsociety-greenwave/entity"
	"github.com/tsinghua-fib-lab/agentsociety-greenwave/utils/config"
)

// 以下为协商单元测试使用的最小实现，未覆盖的方法由嵌入的接口提供（调用即panic）

type fakeContext struct {
	entity.ITaskContext
	clock *clock.Clock
	stats *fakeStatistics
	rc    *config.RuntimeConfig
}

// newFakeContext 时间步长1秒，从startStep开始
func newFakeContext(t *testing.T, pss config.PSS, startStep int32) *fakeContext {
	step := config.ControlStep{Start: startStep, Total: 1000, Interval: 1}
	rc, err := config.NewRuntimeConfig(config.Config{
		Input:   config.Input{Network: config.InputPath{File: "memory"}},
		Control: config.Control{Step: step},
		PSS:     pss,
	})
	require.NoError(t, err)
	return &fakeContext{
		clock: clock.New(step),
		stats: &fakeStatistics{flows: map[int32]float64{}, queues: map[int32]float64{}},
		rc:    rc,
	}
}

func (c *fakeContext) Clock() *clock.Clock                  { return c.clock }
func (c *fakeContext) Statistics() entity.IStatistics       { return c.stats }
func (c *fakeContext) RuntimeConfig() *config.RuntimeConfig { return c.rc }

type fakeStatistics struct {
	entity.IStatistics
	flows  map[int32]float64
	queues map[int32]float64
}

func (s *fakeStatistics) TurningFlow(turningID int32, _ float64) float64 {
	if f, ok := s.flows[turningID]; ok {
		return f
	}
	return math.NaN()
}

func (s *fakeStatistics) AverageQueue(turningID int32, _ float64) float64 {
	return s.queues[turningID]
}

type fakeTrafficLight struct {
	params     entity.TLCParameters
	phase      int32
	lastChange float64
	activated  []entity.TLCParameters
}

func (l *fakeTrafficLight) Parameters() entity.TLCParameters { return l.params }
func (l *fakeTrafficLight) CurrentPhaseID() int32            { return l.phase }
func (l *fakeTrafficLight) TimeOfLastChange() float64        { return l.lastChange }
func (l *fakeTrafficLight) Activate(params entity.TLCParameters, now float64) {
	l.params = params
	l.phase = 1
	l.lastChange = now
	l.activated = append(l.activated, params)
}

// fakeSelector 期望周期固定，方案由base按周期伸缩得到
type fakeSelector struct {
	entity.IControllerSelector
	base    entity.TLCParameters
	desired int
}

func (s *fakeSelector) DistributeReward(float64) {}
func (s *fakeSelector) DesiredCycleTime(entity.Situation) (int, error) {
	return s.desired, nil
}
func (s *fakeSelector) SelectAction(_ entity.Situation, cycle int) (entity.TLCParameters, error) {
	return s.base.AdaptCycleTime(cycle)
}
func (s *fakeSelector) DesiredTLC(_ entity.Situation, cycle int) (entity.TLCParameters, error) {
	return s.base.AdaptCycleTime(cycle)
}

type fakeJunction struct {
	entity.IJunction
	id          int32
	neighbours  []int32
	inSections  []int32
	turnings    []entity.Turning
	sending     map[int32][]int32          // 进口路段->上游受控路口
	toNeighbour map[int32][]entity.Turning // 相邻路口->通往它的转向
	routes      map[int32][]entity.Route
	phases      map[int32][]entity.Phase // 转向->放行相位
	tl          *fakeTrafficLight
	selector    *fakeSelector
}

func (j *fakeJunction) ID() int32                    { return j.id }
func (j *fakeJunction) Neighbours() []int32          { return j.neighbours }
func (j *fakeJunction) IsNeighbour(id int32) bool    { return slices.Contains(j.neighbours, id) }
func (j *fakeJunction) Turnings() []entity.Turning   { return j.turnings }
func (j *fakeJunction) InSections() []int32          { return j.inSections }
func (j *fakeJunction) SendingNodes(s int32) []int32 { return j.sending[s] }
func (j *fakeJunction) TurningsForIncomingSection(sectionID int32) []entity.Turning {
	var res []entity.Turning
	for _, t := range j.turnings {
		if t.InSection == sectionID {
			res = append(res, t)
		}
	}
	return res
}
func (j *fakeJunction) TurningsForNeighbour(id int32) []entity.Turning { return j.toNeighbour[id] }
func (j *fakeJunction) RoutesToNeighbour(id int32) []entity.Route      { return j.routes[id] }
func (j *fakeJunction) PhasesForTurning(id int32) []entity.Phase       { return j.phases[id] }
func (j *fakeJunction) EstimatedPhaseStart(int32) float64              { return 0 }
func (j *fakeJunction) Situation() entity.Situation                    { return nil }
func (j *fakeJunction) Evaluation() float64                            { return 0 }

func (j *fakeJunction) TrafficLight() entity.ITrafficLight {
	if j.tl == nil {
		return nil
	}
	return j.tl
}

func (j *fakeJunction) Selector() entity.IControllerSelector {
	if j.selector == nil {
		return nil
	}
	return j.selector
}

// fourPhaseTLC 30秒绿灯、5秒过渡、20秒绿灯、5秒过渡
func fourPhaseTLC() entity.TLCParameters {
	return entity.NewTLCParameters(entity.FixedTime,
		[]int32{1, 2, 3, 4},
		[]float64{30, 5, 20, 5},
		[]bool{false, true, false, true})
}

// bareNetwork 只有相邻关系的路口，用于消息协议测试
func bareNetwork(t *testing.T, neighbours map[int32][]int32) (*fakeContext, *Negotiator) {
	ctx := newFakeContext(t, config.PSS{}, 0)
	net := NewNegotiator(ctx)
	ids := make([]int32, 0, len(neighbours))
	for id := range neighbours {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		net.Add(&fakeJunction{id: id, neighbours: neighbours[id]})
	}
	return ctx, net
}

func mustNode(t *testing.T, net *Negotiator, id int32) *Node {
	n, ok := net.Node(id)
	require.True(t, ok, "node %d", id)
	return n
}

// corridorFixture 已建立的两路口走廊 1 -> 2，两者公共周期60秒
// 路口1：进口11，转向101（11->12）流量40，由相位1放行
// 路口2：进口12由路口1输送，转向201（12->13）流量35，由相位1放行
func corridorFixture(t *testing.T, pss config.PSS, startStep int32) (*fakeContext, *Negotiator, *fakeJunction, *fakeJunction) {
	ctx := newFakeContext(t, pss, startStep)
	ctx.stats.flows[101] = 40
	ctx.stats.flows[201] = 35

	t101 := entity.Turning{ID: 101, InSection: 11, OutSection: 12}
	t201 := entity.Turning{ID: 201, InSection: 12, OutSection: 13}
	now := ctx.clock.T
	j1 := &fakeJunction{
		id:          1,
		neighbours:  []int32{2},
		inSections:  []int32{11},
		turnings:    []entity.Turning{t101},
		toNeighbour: map[int32][]entity.Turning{2: {t101}},
		routes:      map[int32][]entity.Route{2: {{Neighbour: 2, Sections: []int32{12}, Length: 250, TravelTime: 20}}},
		phases:      map[int32][]entity.Phase{101: {{ID: 1, DefaultDuration: 30, Turnings: []int32{101}}}},
		tl:          &fakeTrafficLight{params: fourPhaseTLC(), phase: 1, lastChange: now},
		selector:    &fakeSelector{base: fourPhaseTLC(), desired: 60},
	}
	j2 := &fakeJunction{
		id:         2,
		neighbours: []int32{1},
		inSections: []int32{12},
		turnings:   []entity.Turning{t201},
		sending:    map[int32][]int32{12: {1}},
		phases:     map[int32][]entity.Phase{201: {{ID: 1, DefaultDuration: 30, Turnings: []int32{201}}}},
		tl:         &fakeTrafficLight{params: fourPhaseTLC(), phase: 1, lastChange: now},
		selector:   &fakeSelector{base: fourPhaseTLC(), desired: 60},
	}
	net := NewNegotiator(ctx)
	n1, n2 := net.Add(j1), net.Add(j2)

	n1.partOfPSS, n1.beginOfPSS, n1.primarySuccessor = true, true, 2
	n2.partOfPSS, n2.endOfPSS, n2.predecessor, n2.confirmedPredecessor = true, true, 1, true
	n2.synchronisedStream = &TrafficStream{Origin: 1, Target: 2, Strength: 40}
	n1.agreedCycleTime, n2.agreedCycleTime = 60, 60
	return ctx, net, j1, j2
}
