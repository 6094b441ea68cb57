package junction

import (
	"cmp"
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/agentsociety-greenwave/entity"
	"github.com/tsinghua-fib-lab/agentsociety-greenwave/entity/junction/trafficlight"
	"github.com/tsinghua-fib-lab/agentsociety-greenwave/utils/input"
)

var (
	ErrDisabledTrafficLight = errors.New("traffic light is disabled for the junction")
)

// Junction 路口实体
// 功能：提供路口的转向、相位与相邻受控路口拓扑，持有受控路口的信号灯与方案选择机制
// 说明：非受控路口只参与拓扑遍历，车辆经其最小id的转向继续行驶
type Junction struct {
	ctx     entity.ITaskContext
	manager *JunctionManager
	roads   entity.IRoadManager

	id         int32
	name       string
	controlled bool

	turnings     []entity.Turning
	turningsByIn map[int32][]entity.Turning // 进口路段->转向（按id升序）
	inSections   []int32
	outSections  []int32
	phases       []entity.Phase // 按id排序，id为列表位置（从1开始）

	neighbours []int32                  // 相邻受控路口，按id升序
	routes     map[int32][]entity.Route // 相邻路口->路径（按长度升序）

	trafficLight ITrafficLight          // 信号灯模块，非受控路口为nil
	selector     *trafficlight.Selector // 方案选择机制，非受控路口为nil
}

// newJunction 创建并初始化一个新的Junction实例
// 功能：根据输入数据构建转向、相位，受控路口额外创建信号灯与方案选择机制
// 说明：相邻路口与路径在所有路口创建完成后由link计算
func newJunction(ctx entity.ITaskContext, m *JunctionManager, base input.Junction, roads entity.IRoadManager) *Junction {
	j := &Junction{
		ctx:          ctx,
		manager:      m,
		roads:        roads,
		id:           base.ID,
		name:         base.Name,
		controlled:   base.Controlled,
		turningsByIn: make(map[int32][]entity.Turning),
		routes:       make(map[int32][]entity.Route),
	}
	j.turnings = lo.Map(base.Turnings, func(t input.Turning, _ int) entity.Turning {
		return entity.Turning{ID: t.ID, InSection: t.In, OutSection: t.Out}
	})
	slices.SortFunc(j.turnings, func(a, b entity.Turning) int { return cmp.Compare(a.ID, b.ID) })
	for _, t := range j.turnings {
		j.turningsByIn[t.InSection] = append(j.turningsByIn[t.InSection], t)
	}
	j.inSections = lo.Uniq(lo.Map(j.turnings, func(t entity.Turning, _ int) int32 { return t.InSection }))
	j.outSections = lo.Uniq(lo.Map(j.turnings, func(t entity.Turning, _ int) int32 { return t.OutSection }))
	slices.Sort(j.inSections)
	slices.Sort(j.outSections)

	j.phases = lo.Map(base.Phases, func(p input.Phase, i int) entity.Phase {
		return entity.Phase{
			ID:              int32(i + 1),
			DefaultDuration: p.Duration,
			Interphase:      p.Interphase,
			Turnings:        slices.Clone(p.Turnings),
		}
	})

	if j.controlled {
		tlcType, err := entity.ParseTLCType(base.Controller)
		if err != nil {
			log.Panicf("junction %d: %v", j.id, err)
		}
		j.selector = trafficlight.NewSelector(j.id, tlcType, j.phases)
		tl, err := trafficlight.NewLocalTrafficLight(ctx.Clock(), j.id, j.selector.DefaultParameters())
		if err != nil {
			log.Panicf("junction %d: init traffic light error: %v", j.id, err)
		}
		j.trafficLight = tl
	}
	return j
}

// link 计算相邻受控路口与到达各相邻路口的路径
// 算法说明：
// 1. 沿每条出口路段向下游行驶到第一个受控路口，记录路径
// 2. 沿每条进口路段向上游回溯所有输送车辆的受控路口
// 3. 两者的并集（不含自身）即为相邻路口；路径按长度升序排列
func (j *Junction) link() {
	nbs := make([]int32, 0)
	for _, sec := range j.outSections {
		next, sections := j.NextJunction(sec)
		if next <= 0 || next == j.id {
			continue
		}
		nbs = append(nbs, next)
		j.routes[next] = append(j.routes[next], j.newRoute(next, sections))
	}
	for _, sec := range j.inSections {
		for _, prev := range j.SendingNodes(sec) {
			if prev != j.id {
				nbs = append(nbs, prev)
			}
		}
	}
	j.neighbours = lo.Uniq(nbs)
	slices.Sort(j.neighbours)
	for _, routes := range j.routes {
		slices.SortStableFunc(routes, func(a, b entity.Route) int { return cmp.Compare(a.Length, b.Length) })
	}
}

func (j *Junction) newRoute(neighbour int32, sections []int32) entity.Route {
	r := entity.Route{Neighbour: neighbour, Sections: sections}
	for _, id := range sections {
		road := j.roads.Get(id)
		r.Length += road.Length()
		r.TravelTime += road.TravelTime()
	}
	return r
}

// prepare 准备阶段，处理信号灯的准备工作
func (j *Junction) prepare() {
	if j.trafficLight != nil {
		j.trafficLight.Prepare()
	}
}

// update 更新阶段，更新信号灯状态
// 参数：dt-时间步长
func (j *Junction) update(dt float64) {
	if j.trafficLight != nil {
		j.trafficLight.Update(dt)
	}
}

// ID 获取Junction的唯一标识符
// 返回：Junction的ID，如果Junction为nil则返回-1
func (j *Junction) ID() int32 {
	if j == nil {
		return -1
	}
	return j.id
}

func (j *Junction) Name() string     { return j.name }
func (j *Junction) Controlled() bool { return j.controlled }

func (j *Junction) String() string {
	if j.name != "" {
		return fmt.Sprintf("Junction %d (%s)", j.id, j.name)
	}
	return fmt.Sprintf("Junction %d", j.id)
}

// Neighbours 相邻受控路口，按id升序
func (j *Junction) Neighbours() []int32 {
	return j.neighbours
}

// IsNeighbour 是否为相邻受控路口
func (j *Junction) IsNeighbour(id int32) bool {
	_, ok := slices.BinarySearch(j.neighbours, id)
	return ok
}

func (j *Junction) Turnings() []entity.Turning { return j.turnings }
func (j *Junction) InSections() []int32        { return j.inSections }

// TurningsForIncomingSection 从该进口路段出发的转向
func (j *Junction) TurningsForIncomingSection(sectionID int32) []entity.Turning {
	return j.turningsByIn[sectionID]
}

// TurningsForNeighbour 驶向相邻路口的转向
func (j *Junction) TurningsForNeighbour(id int32) []entity.Turning {
	return lo.Filter(j.turnings, func(t entity.Turning, _ int) bool {
		next, _ := j.NextJunction(t.OutSection)
		return next == id
	})
}

// NextJunction 沿出口路段到达的下一个受控路口
// 功能：向下游行驶，经过非受控路口时选择其最小id的转向
// 参数：outSectionID-本路口的出口路段
// 返回：受控路口id（0表示驶出路网）与经过的路段序列
func (j *Junction) NextJunction(outSectionID int32) (int32, []int32) {
	sections := []int32{outSectionID}
	visited := map[int32]bool{outSectionID: true}
	sec := outSectionID
	for {
		road, err := j.roads.GetOrError(sec)
		if err != nil {
			log.Warnf("junction %d: %v", j.id, err)
			return 0, sections
		}
		nextID := road.SuccessorJunction()
		if nextID <= 0 {
			return 0, sections
		}
		next, ok := j.manager.data[nextID]
		if !ok {
			return 0, sections
		}
		if next.controlled {
			return nextID, sections
		}
		ts := next.turningsByIn[sec]
		if len(ts) == 0 || visited[ts[0].OutSection] {
			return 0, sections
		}
		sec = ts[0].OutSection
		visited[sec] = true
		sections = append(sections, sec)
	}
}

// PreviousJunction 沿进口路段上溯到的上一个受控路口
// 功能：向上游回溯，经过非受控路口时选择驶入该路段的最小id转向
// 返回：受控路口id（0表示路网边界）与经过的路段序列（按行驶方向排列）
func (j *Junction) PreviousJunction(inSectionID int32) (int32, []int32) {
	sections := []int32{inSectionID}
	visited := map[int32]bool{inSectionID: true}
	sec := inSectionID
	done := func(id int32) (int32, []int32) {
		slices.Reverse(sections)
		return id, sections
	}
	for {
		road, err := j.roads.GetOrError(sec)
		if err != nil {
			log.Warnf("junction %d: %v", j.id, err)
			return done(0)
		}
		prevID := road.PredecessorJunction()
		if prevID <= 0 {
			return done(0)
		}
		prev, ok := j.manager.data[prevID]
		if !ok {
			return done(0)
		}
		if prev.controlled {
			return done(prevID)
		}
		t, found := lo.Find(prev.turnings, func(t entity.Turning) bool { return t.OutSection == sec })
		if !found || visited[t.InSection] {
			return done(0)
		}
		sec = t.InSection
		visited[sec] = true
		sections = append(sections, sec)
	}
}

// SendingNodes 向该进口路段输送车辆的上游受控路口
// 功能：经非受控路口的全部转向向上游回溯，按id升序返回
func (j *Junction) SendingNodes(sectionID int32) []int32 {
	result := make([]int32, 0)
	visited := map[int32]bool{}
	queue := []int32{sectionID}
	for len(queue) > 0 {
		sec := queue[0]
		queue = queue[1:]
		if visited[sec] {
			continue
		}
		visited[sec] = true
		road, err := j.roads.GetOrError(sec)
		if err != nil {
			continue
		}
		prev, ok := j.manager.data[road.PredecessorJunction()]
		if !ok {
			continue
		}
		if prev.controlled {
			result = append(result, prev.id)
			continue
		}
		for _, t := range prev.turnings {
			if t.OutSection == sec {
				queue = append(queue, t.InSection)
			}
		}
	}
	result = lo.Uniq(result)
	slices.Sort(result)
	return result
}

// RoutesToNeighbour 到相邻路口的全部路径，按长度升序
func (j *Junction) RoutesToNeighbour(id int32) []entity.Route {
	return j.routes[id]
}

// PhasesForTurning 放行该转向的相位
func (j *Junction) PhasesForTurning(turningID int32) []entity.Phase {
	return lo.Filter(j.phases, func(p entity.Phase, _ int) bool { return p.Serves(turningID) })
}

// Phase 根据id获取相位
func (j *Junction) Phase(id int32) (entity.Phase, bool) {
	if id < 1 || int(id) > len(j.phases) {
		return entity.Phase{}, false
	}
	return j.phases[id-1], true
}

func (j *Junction) PhaseIDs() []int32 {
	return lo.Map(j.phases, func(p entity.Phase, _ int) int32 { return p.ID })
}

// EstimatedPhaseStart 相位在当前周期中的预计开始时刻
// 返回：相对于周期起点的秒数；非受控路口返回NaN
func (j *Junction) EstimatedPhaseStart(phaseID int32) float64 {
	if j.trafficLight == nil {
		return math.NaN()
	}
	params := j.trafficLight.Parameters()
	switch params.Type {
	case entity.FixedTime, entity.FixedTimeRecall, entity.NEMA:
		return float64(params.StartOfPhase(phaseID))
	}
	return math.NaN()
}

// TrafficLight 信号灯运行时，非受控路口返回nil
func (j *Junction) TrafficLight() entity.ITrafficLight {
	if j.trafficLight == nil {
		return nil
	}
	return j.trafficLight
}

// Selector 方案选择机制，非受控路口返回nil
func (j *Junction) Selector() entity.IControllerSelector {
	if j.selector == nil {
		return nil
	}
	return j.selector
}

// Situation 当前交通状况
// 功能：每个相位取其放行转向在统计区间内的最大流量，非数按0计
func (j *Junction) Situation() entity.Situation {
	interval := j.ctx.RuntimeConfig().PSS.IntervalLengthForStream
	stats := j.ctx.Statistics()
	return lo.Map(j.phases, func(p entity.Phase, _ int) float64 {
		if p.Interphase {
			return 0
		}
		critical := 0.
		for _, t := range p.Turnings {
			if f := stats.TurningFlow(t, interval); !math.IsNaN(f) && f > critical {
				critical = f
			}
		}
		return critical
	})
}

// Evaluation 当前信控效果评价
// 功能：100减去各转向在评价区间内的平均排队长度均值，越大越好
// 返回：没有任何排队数据时返回NaN
func (j *Junction) Evaluation() float64 {
	interval := j.ctx.RuntimeConfig().PSS.EvaluationInterval
	stats := j.ctx.Statistics()
	sum, n := 0., 0
	for _, t := range j.turnings {
		if q := stats.AverageQueue(t.ID, interval); !math.IsNaN(q) {
			sum += q
			n++
		}
	}
	if n == 0 {
		return math.NaN()
	}
	return 100 - sum/float64(n)
}

var _ entity.IJunction = (*Junction)(nil)
