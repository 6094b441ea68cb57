package region

import (
	"fmt"
	"math"

	"github.com/tsinghua-fib-lab/agentsociety-greenwave/entity"
)

const (
	queueWindow                 = 270. // 排队长度统计区间（秒）
	queueClearingTime           = 2.   // 排队消散的附加时间（秒）
	minTimeToNextPSSCalculation = 300. // 距下次完整协商不足该时长时不局部更换方案（秒）
)

// negotiateCycleTime 阶段6：走廊起点发起公共周期与相位差的协商
func (n *Node) negotiateCycleTime() {
	n.runSynchPhase = false
	n.nextSynchPhase = -1
	if !n.partOfPSS || !n.beginOfPSS {
		return
	}
	members, err := n.corridor()
	if err != nil {
		log.Warnf("node %d: cannot negotiate cycle time: %v", n.ID(), err)
		return
	}
	members.updateCycleTime()
	members.determineOffsetAndSelectTLC()
}

// desired 路口在当前交通状况下期望的周期
func (n *Node) desired() (int, error) {
	selector := n.junction.Selector()
	if selector == nil {
		return 0, fmt.Errorf("%w: junction %d has no selector", entity.ErrUnsupportedTLC, n.ID())
	}
	return selector.DesiredCycleTime(n.junction.Situation())
}

// updateCycleTime 协商公共周期
// 算法说明：
// 1. 正向遍历，每个成员计算期望周期，公共周期取期望周期与前驱公共周期的较大值
// 2. 反向遍历，每个成员的公共周期取自身与后继公共周期的较大值
// 结束后所有成员的公共周期相同，等于全部期望周期的最大值
func (c corridor) updateCycleTime() {
	for i, m := range c {
		if d, err := m.desired(); err != nil {
			log.Errorf("node %d: desired cycle time: %v", m.ID(), err)
		} else {
			m.desiredCycleTime = d
		}
		m.agreedCycleTime = m.desiredCycleTime
		if i > 0 {
			m.agreedCycleTime = max(m.agreedCycleTime, c[i-1].agreedCycleTime)
		}
	}
	for i := len(c) - 2; i >= 0; i-- {
		c[i].agreedCycleTime = max(c[i].agreedCycleTime, c[i+1].agreedCycleTime)
	}
}

// determineOffsetAndSelectTLC 从起点开始为每个成员选择方案并计算相位差
func (c corridor) determineOffsetAndSelectTLC() {
	for i, m := range c {
		var pred *Node
		if i > 0 {
			pred = c[i-1]
		}
		if err := m.determineOffsetAndSelectTLC(pred); err != nil {
			log.Errorf("node %d: cannot synchronise: %v", m.ID(), err)
		}
	}
}

func (n *Node) determineOffsetAndSelectTLC(pred *Node) error {
	tl := n.junction.TrafficLight()
	if tl == nil {
		return fmt.Errorf("%w: junction %d has no traffic light", entity.ErrUnsupportedTLC, n.ID())
	}
	syncPhase := n.determinePhaseForPSS()

	newTLC, err := n.selectForCycle(n.agreedCycleTime)
	if err != nil {
		log.Errorf("node %d: selecting controller for synchronisation: %v", n.ID(), err)
		if newTLC, err = tl.Parameters().AdaptCycleTime(n.agreedCycleTime); err != nil {
			return err
		}
	}
	n.syncStart = newTLC.StartOfPhase(syncPhase)
	if pred != nil {
		if err := n.adjustOwnOffset(pred); err != nil {
			return err
		}
		n.timeZeroForPSS = pred.timeZeroForPSS
	} else {
		n.timeZeroForPSS = n.now() + float64(n.agreedCycleTime)
	}
	return n.changeTLCWithOffset(newTLC)
}

// selectForCycle 反馈评价后为指定周期选择方案
func (n *Node) selectForCycle(cycle int) (entity.TLCParameters, error) {
	selector := n.junction.Selector()
	if selector == nil {
		return entity.TLCParameters{}, fmt.Errorf("%w: junction %d has no selector", entity.ErrUnsupportedTLC, n.ID())
	}
	selector.DistributeReward(n.junction.Evaluation())
	return selector.SelectAction(n.junction.Situation(), cycle)
}

// adjustOwnOffset 根据前驱计算本路口的相位差
// 说明：相位差 = (前驱相位差 + 前驱同步相位开始时刻 + 行驶时间 - 本路口同步相位开始时刻 - 排队修正) mod 公共周期，
// 结果非负
func (n *Node) adjustOwnOffset(pred *Node) error {
	route, err := pred.route(n.ID())
	if err != nil {
		return err
	}
	n.adjustOffsetUsingQueues(pred)
	n.offset = offsetFor(pred.offset, pred.syncStart, route.Offset(), n.syncStart, n.queueBasedAdjustment, n.agreedCycleTime)
	return nil
}

func offsetFor(predOffset, predSyncStart, travel, syncStart, queueAdjustment, cycle int) int {
	if cycle <= 0 {
		return 0
	}
	return normalizeOffset(predOffset+predSyncStart+travel-syncStart-queueAdjustment, cycle)
}

// normalizeOffset 把相位差折算到[0, cycle)，cycle不大于0时原样返回
func normalizeOffset(offset, cycle int) int {
	if cycle <= 0 {
		return offset
	}
	offset %= cycle
	if offset < 0 {
		offset += cycle
	}
	return offset
}

// adjustOffsetUsingQueues 计算让进口排队提前消散的相位差修正
// 算法说明：
// 1. 取来自前驱的进口路段上的走廊转向，统计其最近270秒的平均排队长度
// 2. 修正量 = 排队长度 + 2秒（四舍五入），乘以 周期/(周期-最长服务相位)*2（整数除法）
// 3. 修正量不超过最长服务相位时长的一半
func (n *Node) adjustOffsetUsingQueues(pred *Node) {
	n.queueBasedAdjustment = 0
	if n.beginOfPSS {
		log.Errorf("node %d: no predecessor turning to adjust offset", n.ID())
		return
	}
	route, err := pred.route(n.ID())
	if err != nil || len(route.Sections) == 0 {
		return
	}
	turningID := n.findBestTurning(route.LastSection())
	if turningID < 0 {
		return
	}
	avQueue := n.ctx.Statistics().AverageQueue(turningID, queueWindow)
	clearing := 0.
	if avQueue > 0 {
		clearing = avQueue + queueClearingTime
	}
	adjustment := int(clearing + 0.5)
	if adjustment > 0 {
		maxPhase := n.phaseDurationForTurning(turningID)
		cycle := int(n.junction.TrafficLight().Parameters().CycleTime())
		diff := cycle - maxPhase
		if diff <= 0 {
			diff = 1
		}
		adjustment *= cycle / diff * 2
		adjustment = min(adjustment, maxPhase/2)
	}
	n.queueBasedAdjustment = adjustment
}

// findBestTurning 进口路段上的走廊转向
// 说明：只有一个转向时直接返回；否则优先选择驶向主后继的转向，其次为流量最大的转向
func (n *Node) findBestTurning(sectionID int32) int32 {
	turnings := n.junction.TurningsForIncomingSection(sectionID)
	if len(turnings) == 1 {
		return turnings[0].ID
	}
	turningID, highest := int32(-1), int32(-1)
	sucSection := int32(-1)
	if n.primarySuccessor > 0 {
		if r, err := n.route(n.primarySuccessor); err == nil {
			sucSection = r.FirstSection()
		}
	}
	stream := -1.
	for _, t := range turnings {
		if !n.endOfPSS && sucSection > 0 && t.OutSection == sucSection {
			turningID = t.ID
		}
		if f := n.flow(t.ID); !math.IsNaN(f) && f > stream {
			stream = f
			highest = t.ID
		}
	}
	if turningID < 0 && highest < 0 {
		log.Errorf("node %d: no matching turnings from section %d", n.ID(), sectionID)
		return -1
	}
	if turningID >= 0 {
		return turningID
	}
	return highest
}

// phaseDurationForTurning 放行该转向的非过渡相位中最长的默认时长
func (n *Node) phaseDurationForTurning(turningID int32) int {
	res := 0
	for _, p := range n.junction.PhasesForTurning(turningID) {
		if !p.Interphase {
			res = max(res, int(p.DefaultDuration))
		}
	}
	return res
}

// determinePhaseForPSS 同步相位：放行走廊转向的第一个相位，没有时返回-1
func (n *Node) determinePhaseForPSS() int32 {
	var t *entity.Turning
	if n.beginOfPSS {
		t = n.findTurningWithStrongestFlow()
	} else {
		t = n.findNextTurningWithStrongestFlow()
	}
	if t == nil {
		return -1
	}
	phases := n.junction.PhasesForTurning(t.ID)
	if len(phases) == 0 {
		return -1
	}
	return phases[0].ID
}

// findTurningWithStrongestFlow 驶向主后继的流量最大的转向
func (n *Node) findTurningWithStrongestFlow() *entity.Turning {
	var res *entity.Turning
	maxFlow := 0.
	turnings := n.junction.TurningsForNeighbour(n.primarySuccessor)
	for i, t := range turnings {
		if f := n.flow(t.ID); maxFlow < f {
			maxFlow = f
			res = &turnings[i]
		}
	}
	return res
}

// findNextTurningWithStrongestFlow 从前驱方向进入的走廊转向
// 说明：非终点取驶向主后继第一条路段的转向，终点取该进口上流量最大的转向
func (n *Node) findNextTurningWithStrongestFlow() *entity.Turning {
	pred := n.peer(n.predecessor)
	if pred == nil {
		return nil
	}
	in, err := pred.route(n.ID())
	if err != nil {
		return nil
	}
	turnings := n.junction.TurningsForIncomingSection(in.LastSection())
	if !n.endOfPSS {
		out, err := n.route(n.primarySuccessor)
		if err != nil {
			return nil
		}
		for i, t := range turnings {
			if t.OutSection == out.FirstSection() {
				return &turnings[i]
			}
		}
		return nil
	}
	var res *entity.Turning
	maxFlow := 0.
	for i, t := range turnings {
		if f := n.flow(t.ID); maxFlow < f {
			maxFlow = f
			res = &turnings[i]
		}
	}
	return res
}

// CheckChangeDemand 检查已建立的走廊是否需要调整（只在走廊起点调用）
// 算法说明：
// 1. 正向遍历，检查每个成员的首选前驱是否变化，并计算期望周期的最大值
// 2. 反向遍历，伙伴关系不变且公共周期变化不超过容差时，允许成员局部更换方案
// 3. 回到起点后，伙伴关系变化则请求从阶段0重新协商，只有周期变化则请求从阶段6重新协商，并记录更新
func (n *Node) CheckChangeDemand() {
	if !n.beginOfPSS {
		return
	}
	members, err := n.corridor()
	if err != nil {
		log.Warnf("node %d: cannot check change demand: %v", n.ID(), err)
		return
	}
	actDiff := n.ctx.RuntimeConfig().PSS.ACTDiff

	newPartnerships := false
	newACT := -1
	for _, m := range members {
		if m.checkPartnerships() {
			newPartnerships = true
		}
		if d, err := m.desired(); err != nil {
			log.Errorf("node %d: desired cycle time: %v", m.ID(), err)
		} else {
			newACT = max(d, newACT)
		}
	}
	for i := len(members) - 1; i >= 0; i-- {
		m := members[i]
		if !newPartnerships && abs(newACT-m.agreedCycleTime) <= actDiff && m.checkTLC() {
			m.adaptTLCForActivePSS()
		}
	}

	reason := ReasonNone
	actForLog := n.agreedCycleTime
	if newPartnerships {
		n.runSynchPhase = true
		n.nextSynchPhase = 0
		reason = ReasonNewPartners
	} else if abs(newACT-n.agreedCycleTime) > actDiff {
		n.runSynchPhase = true
		n.nextSynchPhase = 6
		reason = ReasonNewCycleTime
		actForLog = newACT
	}
	n.net.logUpdate(UpdateRecord{
		Time:            n.now(),
		NodeID:          n.ID(),
		AgreedCycleTime: n.agreedCycleTime,
		NewCycleTime:    actForLog,
		Reason:          reason,
	})
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

// checkPartnerships 首选前驱是否与协商时不同
// 说明：不同时请求从阶段0重新协商
func (n *Node) checkPartnerships() bool {
	n.calculateStreams()
	neighbour, _ := n.calculatePredecessors(!n.ctx.RuntimeConfig().PSS.UseNeighbourStreamsValue())
	noSync := n.synchronisedStream == nil || n.synchronisedStream.Origin < 0
	if neighbour == nil && noSync {
		return false
	}
	if neighbour != nil && n.synchronisedStream != nil && neighbour.ID() == n.synchronisedStream.Origin {
		return false
	}
	n.runSynchPhase = true
	n.nextSynchPhase = 0
	n.timeToNextSynchPhase = 0
	return true
}

// checkTLC 距下次完整协商足够远且期望方案明显更好时返回true
func (n *Node) checkTLC() bool {
	if n.timeToNextSynchPhase-n.now() <= minTimeToNextPSSCalculation {
		return false
	}
	if n.verifyCurrentTLC() {
		log.Debugf("node %d would like to change its controller locally", n.ID())
		return true
	}
	return false
}

// verifyCurrentTLC 公共周期下的期望方案的预测评价是否比当前方案高出足够多
func (n *Node) verifyCurrentTLC() bool {
	selector := n.junction.Selector()
	tl := n.junction.TrafficLight()
	if selector == nil || tl == nil {
		return false
	}
	situation := n.junction.Situation()
	desired, err := selector.DesiredTLC(situation, n.agreedCycleTime)
	if err != nil {
		log.Errorf("node %d: unable to verify controller: %v", n.ID(), err)
		return false
	}
	current := tl.Parameters()
	if desired.Type != current.Type {
		log.Errorf("node %d: %v: %v vs %v", n.ID(), entity.ErrTLCTypeMismatch, desired.Type, current.Type)
		return false
	}
	if current.Hash() == desired.Hash() {
		return false
	}
	switch current.Type {
	case entity.FixedTime, entity.NEMA:
		cur := selector.PredictionForActiveAction(current.Hash())
		next := selector.PredictionForAction(desired.Hash(), situation, n.agreedCycleTime)
		if cur < 0 || next < 0 {
			log.Debugf("node %d: no prediction for current or desired controller", n.ID())
			return false
		}
		diff := next - cur
		return diff > 0 && diff > n.ctx.RuntimeConfig().PSS.MinPredictionDifference
	case entity.FixedTimeRecall:
		return false
	}
	log.Errorf("node %d: %v: %v", n.ID(), entity.ErrUnsupportedTLC, current.Type)
	return false
}

// adaptTLCForActivePSS 走廊内局部更换方案，调整相位差使同步相位开始时刻不变
func (n *Node) adaptTLCForActivePSS() {
	newTLC, err := n.selectForCycle(n.agreedCycleTime)
	if err != nil {
		log.Errorf("node %d: determining new controller: %v", n.ID(), err)
		return
	}
	if err := n.adjustOffsetForInternalTLCChange(newTLC); err != nil {
		log.Errorf("node %d: %v", n.ID(), err)
		return
	}
	if err := n.changeTLCWithOffset(newTLC); err != nil {
		log.Errorf("node %d: %v", n.ID(), err)
	}
}

// adjustOffsetForInternalTLCChange 按新旧方案同步相位开始时刻之差修正相位差
func (n *Node) adjustOffsetForInternalTLCChange(newTLC entity.TLCParameters) error {
	current := n.junction.TrafficLight().Parameters()
	if newTLC.Type != current.Type {
		return fmt.Errorf("%w: %v vs %v", entity.ErrTLCTypeMismatch, current.Type, newTLC.Type)
	}
	syncPhase := n.determinePhaseForPSS()
	adjustment := current.StartOfPhase(syncPhase) - newTLC.StartOfPhase(syncPhase)
	n.offset = normalizeOffset(n.offset+adjustment, n.agreedCycleTime)
	return nil
}
