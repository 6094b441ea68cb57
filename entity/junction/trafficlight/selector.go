// 提供信控方案选择机制
// 周期按Webster公式确定，绿信比按各相位的压力（所服务转向的临界流量）分配
package trafficlight

import (
	"errors"
	"flag"
	"fmt"
	"math"

	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/agentsociety-greenwave/entity"
	"github.com/tsinghua-fib-lab/agentsociety-greenwave/utils/container"
)

var (
	minCycle       = flag.Int("tl.min_cycle", 30, "信控方案最短周期（秒）")
	maxCycle       = flag.Int("tl.max_cycle", 120, "信控方案最长周期（秒）")
	minGreen       = flag.Float64("tl.min_green", 5, "非过渡相位最短绿灯时间（秒）")
	saturationFlow = flag.Float64("tl.saturation_flow", 1800, "饱和流率（辆/小时）")
	rewardRate     = flag.Float64("tl.reward_rate", 0.2, "预测收益的学习率")
)

var (
	ErrNoGreenPhase = errors.New("selector: junction has no green phase")
)

// 预测收益未知时的返回值
const unknownPrediction = -1.

// Selector 信控方案选择机制
// 功能：根据交通状况生成信控方案，记录每个方案的预测收益
// 说明：方案以参数集哈希区分，收益按指数平滑更新
type Selector struct {
	junctionID int32
	tlcType    entity.TLCType
	phases     []entity.Phase // 按相位id排序

	predictions map[uint64]float64 // 参数集哈希->预测收益
	activeHash  uint64
	hasActive   bool
}

// NewSelector 创建信控方案选择机制
// 参数：junctionID-路口ID，tlcType-控制器类型，phases-路口相位（按id排序）
func NewSelector(junctionID int32, tlcType entity.TLCType, phases []entity.Phase) *Selector {
	return &Selector{
		junctionID:  junctionID,
		tlcType:     tlcType,
		phases:      phases,
		predictions: make(map[uint64]float64),
	}
}

// DefaultParameters 由相位默认时长构成的参数集
func (s *Selector) DefaultParameters() entity.TLCParameters {
	ids := lo.Map(s.phases, func(p entity.Phase, _ int) int32 { return p.ID })
	durations := lo.Map(s.phases, func(p entity.Phase, _ int) float64 { return p.DefaultDuration })
	interphase := lo.Map(s.phases, func(p entity.Phase, _ int) bool { return p.Interphase })
	return entity.NewTLCParameters(s.tlcType, ids, durations, interphase)
}

func (s *Selector) lostTime() float64 {
	return lo.SumBy(s.phases, func(p entity.Phase) float64 {
		if p.Interphase {
			return p.DefaultDuration
		}
		return 0
	})
}

func (s *Selector) greenPhases() int {
	return lo.CountBy(s.phases, func(p entity.Phase) bool { return !p.Interphase })
}

// pressure 相位压力，非数与负值按0计
func (s *Selector) pressure(situation entity.Situation, i int) float64 {
	if i >= len(situation) || s.phases[i].Interphase {
		return 0
	}
	v := situation[i]
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	return v
}

// DesiredCycleTime 期望周期
// 功能：按Webster公式 C = (1.5L + 5) / (1 - Y) 计算周期
// 说明：L为过渡相位总时长，Y为各相位流量比之和；Y不小于0.95时取最长周期；结果限制在[最短周期, 最长周期]内，
// 且不短于全部相位取最短绿灯时间所需的周期
func (s *Selector) DesiredCycleTime(situation entity.Situation) (int, error) {
	n := s.greenPhases()
	if n == 0 {
		return 0, fmt.Errorf("%w: junction %d", ErrNoGreenPhase, s.junctionID)
	}
	lost := s.lostTime()
	y := 0.
	for i := range s.phases {
		y += s.pressure(situation, i) / *saturationFlow
	}
	var cycle float64
	if y >= 0.95 {
		cycle = float64(*maxCycle)
	} else {
		cycle = (1.5*lost + 5) / (1 - y)
	}
	cycle = math.Min(math.Max(cycle, float64(*minCycle)), float64(*maxCycle))
	cycle = math.Max(cycle, math.Ceil(lost+float64(n)*(*minGreen)))
	return int(math.Round(cycle)), nil
}

// DesiredTLC 期望信控方案
// 功能：在给定周期下按相位压力分配绿灯时间
// 参数：situation-交通状况，cycle-周期（0表示使用期望周期）
// 算法说明：
// 1. 过渡相位保持默认时长，每个绿灯相位至少获得最短绿灯时间
// 2. 剩余绿灯时间按压力比例分配并向下取整
// 3. 取整余量按小数部分从大到小逐秒补齐
// 4. 全部压力为0时按默认时长等比例缩放
func (s *Selector) DesiredTLC(situation entity.Situation, cycle int) (entity.TLCParameters, error) {
	base := s.DefaultParameters()
	if s.tlcType == entity.FixedTimeRecall {
		return base, nil
	}
	if cycle == 0 {
		var err error
		if cycle, err = s.DesiredCycleTime(situation); err != nil {
			return entity.TLCParameters{}, err
		}
	}
	n := s.greenPhases()
	if n == 0 {
		return entity.TLCParameters{}, fmt.Errorf("%w: junction %d", ErrNoGreenPhase, s.junctionID)
	}
	lost := s.lostTime()
	spare := float64(cycle) - lost - float64(n)*(*minGreen)
	if spare < 0 {
		return entity.TLCParameters{}, fmt.Errorf("%w: junction %d cycle %d", entity.ErrCycleTooShort, s.junctionID, cycle)
	}
	total := 0.
	for i := range s.phases {
		total += s.pressure(situation, i)
	}
	if total == 0 {
		return base.AdaptCycleTime(cycle)
	}

	durations := make([]float64, len(s.phases))
	remainderHeap := container.NewPriorityQueue[int]()
	assigned := lost
	for i, p := range s.phases {
		if p.Interphase {
			durations[i] = p.DefaultDuration
			continue
		}
		share := spare * s.pressure(situation, i) / total
		durations[i] = *minGreen + math.Floor(share)
		assigned += durations[i]
		remainderHeap.Push(i, -(share - math.Floor(share))) // 小顶堆，小数部分越大越靠前
	}
	remainderHeap.Heapify()
	for rest := int(math.Round(float64(cycle) - assigned)); rest > 0 && !remainderHeap.Empty(); rest-- {
		i, _ := remainderHeap.HeapPop()
		durations[i]++
	}
	return entity.NewTLCParameters(s.tlcType, base.PhaseIDs, durations, base.Interphase), nil
}

// SelectAction 选择并记录当前执行的信控方案
// 参数：situation-交通状况，cycle-周期（0表示使用期望周期）
func (s *Selector) SelectAction(situation entity.Situation, cycle int) (entity.TLCParameters, error) {
	params, err := s.DesiredTLC(situation, cycle)
	if err != nil {
		return entity.TLCParameters{}, err
	}
	s.activeHash = params.Hash()
	s.hasActive = true
	return params, nil
}

// DistributeReward 将信控效果评价反馈给当前方案
// 说明：首次评价直接作为预测收益，之后按学习率指数平滑；非数评价被忽略
func (s *Selector) DistributeReward(evaluation float64) {
	if !s.hasActive || math.IsNaN(evaluation) {
		return
	}
	if p, ok := s.predictions[s.activeHash]; ok {
		s.predictions[s.activeHash] = p + *rewardRate*(evaluation-p)
	} else {
		s.predictions[s.activeHash] = evaluation
	}
}

// PredictionForActiveAction 当前执行方案的预测收益，未知时返回-1
func (s *Selector) PredictionForActiveAction(hash uint64) float64 {
	if p, ok := s.predictions[hash]; ok {
		return p
	}
	return unknownPrediction
}

// PredictionForAction 候选方案的预测收益，未知时返回-1
// 说明：收益只与方案本身相关，与交通状况和周期无关
func (s *Selector) PredictionForAction(hash uint64, _ entity.Situation, _ int) float64 {
	return s.PredictionForActiveAction(hash)
}

var _ entity.IControllerSelector = (*Selector)(nil)
