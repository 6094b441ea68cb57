// 转向级流量与排队统计
// 流量来自输入的需求曲线（分段常数），排队由到达率与当前信控方案的红灯时长估计
package statistics

import (
	"cmp"
	"math"
	"slices"

	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/agentsociety-greenwave/entity"
	"github.com/tsinghua-fib-lab/agentsociety-greenwave/utils/input"
	"github.com/tsinghua-fib-lab/agentsociety-greenwave/utils/randengine"
)

// Statistics 转向统计数据源
type Statistics struct {
	ctx entity.ITaskContext

	profiles  map[int32][]input.Sample   // 转向->需求曲线（按时间升序）
	junctions map[int32]entity.IJunction // 转向->所属路口
	generator *randengine.Engine
}

// New 创建统计数据源
func New(ctx entity.ITaskContext) *Statistics {
	return &Statistics{
		ctx:       ctx,
		profiles:  make(map[int32][]input.Sample),
		junctions: make(map[int32]entity.IJunction),
	}
}

// Init 初始化需求曲线与转向所属路口
// 参数：demands-需求输入，junctionManager-路口管理器
func (s *Statistics) Init(demands []input.Demand, junctionManager entity.IJunctionManager) {
	s.generator = randengine.New(s.ctx.RuntimeConfig().C.Seed)
	s.profiles = lo.SliceToMap(demands, func(d input.Demand) (int32, []input.Sample) {
		profile := slices.Clone(d.Profile)
		slices.SortStableFunc(profile, func(a, b input.Sample) int { return cmp.Compare(a.Time, b.Time) })
		return d.Turning, profile
	})
	for _, j := range junctionManager.ControlledJunctions() {
		for _, t := range j.Turnings() {
			s.junctions[t.ID] = j
		}
	}
	log.Infof("init %d demand profiles", len(s.profiles))
}

// flowAt 需求曲线在时刻t的流量，第一个采样点之前为0
func flowAt(profile []input.Sample, t float64) float64 {
	i, found := slices.BinarySearchFunc(profile, t, func(s input.Sample, t float64) int { return cmp.Compare(s.Time, t) })
	if found {
		return profile[i].Flow
	}
	if i == 0 {
		return 0
	}
	return profile[i-1].Flow
}

// averageFlow 需求曲线在[from, to]内的时间平均流量
func averageFlow(profile []input.Sample, from, to float64) float64 {
	if to <= from {
		return flowAt(profile, to)
	}
	sum := 0.
	t := from
	for _, sample := range profile {
		if sample.Time <= t {
			continue
		}
		if sample.Time >= to {
			break
		}
		sum += flowAt(profile, t) * (sample.Time - t)
		t = sample.Time
	}
	sum += flowAt(profile, t) * (to - t)
	return sum / (to - from)
}

// TurningFlow 转向在最近interval秒内的平均流量（辆/小时）
// 说明：没有需求曲线的转向返回NaN；配置了扰动幅度时乘以随机扰动因子
func (s *Statistics) TurningFlow(turningID int32, interval float64) float64 {
	profile, ok := s.profiles[turningID]
	if !ok || len(profile) == 0 {
		return math.NaN()
	}
	now := s.ctx.Clock().T
	flow := averageFlow(profile, now-math.Max(interval, 0), now)
	if jitter := s.ctx.RuntimeConfig().C.FlowJitter; jitter > 0 {
		flow *= s.generator.JitterSafe(jitter)
	}
	return flow
}

// AverageQueue 转向在最近interval秒内的平均排队长度（辆）
// 算法说明：排队 = 到达率 × 红灯时长 / 2，红灯时长为周期减去放行该转向的相位总时长
// 说明：没有流量数据时返回NaN，不属于受控路口的转向返回0
func (s *Statistics) AverageQueue(turningID int32, interval float64) float64 {
	flow := s.TurningFlow(turningID, interval)
	if math.IsNaN(flow) {
		return flow
	}
	j, ok := s.junctions[turningID]
	if !ok || j.TrafficLight() == nil {
		return 0
	}
	params := j.TrafficLight().Parameters()
	cycle := params.CycleTime()
	if cycle <= 0 {
		return 0
	}
	green := 0.
	for i, id := range params.PhaseIDs {
		if p, ok := j.Phase(id); ok && p.Serves(turningID) {
			green += params.Durations[i]
		}
	}
	red := math.Max(cycle-green, 0)
	return flow / 3600 * red / 2
}

var _ entity.IStatistics = (*Statistics)(nil)
