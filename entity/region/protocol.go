package region

import (
	"cmp"
	"math"
	"slices"

	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/agentsociety-greenwave/entity"
)

// 选择后继时无法确定后继的返回码
const (
	noSuccessorTurning  int32 = -2 // 没有可用转向
	noSuccessorPath     int32 = -3 // 转向的出口路段没有后续路径
	noSuccessorJunction int32 = -4 // 后续路径不通往受控路口
)

// verifyTurningShare 后继转向至少承载来自前驱的流量的比例
const verifyTurningShare = 0.34

// RunSynchronisation 执行一个协商阶段
// 参数：phase-阶段编号
// 算法说明：
// 0. 清空协商状态
// 1. 计算流向各相邻路口的最强交通流
// 2. 选择流入最强的相邻路口作为前驱并向其登记
// 3. 对登记的候选后继给出试探性接受/拒绝
// 4. 给出最终接受/拒绝，确定主后继与走廊标志
// 5. 检查局部一致性
// 6. 走廊起点协商公共周期与相位差
func (n *Node) RunSynchronisation(phase int) {
	switch phase {
	case 0:
		n.Reset()
	case 1:
		n.calculateStreams()
	case 2:
		n.determineStreamForSynchronisation()
		if n.synchronisedStream != nil {
			if p := n.peer(n.synchronisedStream.Origin); p != nil {
				n.predecessor = p.ID()
				n.send(msgRegister, p.ID())
			} else {
				n.predecessor = 0
			}
			n.confirmedPredecessor = false
		}
	case 3:
		n.runSuccessorTest()
	case 4:
		n.calculateGreenWave()
	case 5:
		n.finalisePSSMechanism()
	case 6:
		n.negotiateCycleTime()
	default:
		log.Warnf("node %d: invalid synchronisation phase %d", n.ID(), phase)
	}
}

// calculateStreams 计算本路口流向每个相邻路口的最强交通流
// 说明：同步时刻取服务最强转向的相位的预计开始时刻，多个相位时取默认时长最长者
func (n *Node) calculateStreams() {
	n.trafficStreams = make(map[int32]TrafficStream, 5)
	for _, nb := range n.neighbours() {
		turnings := n.junction.TurningsForNeighbour(nb)
		if len(turnings) == 0 {
			s := invalidStream(nb)
			s.Origin = n.ID()
			n.trafficStreams[nb] = s
			continue
		}
		strongest := 0.
		var best *entity.Turning
		for i, t := range turnings {
			if f := n.flow(t.ID); !math.IsNaN(f) && f >= strongest {
				strongest = f
				best = &turnings[i]
			}
		}
		stream := TrafficStream{Origin: n.ID(), Target: nb, Strength: strongest}
		if best != nil && strongest > 0 {
			stream.SynchTime = n.synchTimeForTurning(best.ID)
		}
		n.trafficStreams[nb] = stream
	}
}

func (n *Node) synchTimeForTurning(turningID int32) float64 {
	phases := n.junction.PhasesForTurning(turningID)
	switch len(phases) {
	case 0:
		return math.NaN()
	case 1:
		return n.junction.EstimatedPhaseStart(phases[0].ID)
	}
	longest := lo.MaxBy(phases, func(a, b entity.Phase) bool { return a.DefaultDuration > b.DefaultDuration })
	return n.junction.EstimatedPhaseStart(longest.ID)
}

// TrafficStreamFor 本路口流向相邻路口的最强交通流，未知时返回无效交通流
func (n *Node) TrafficStreamFor(id int32) TrafficStream {
	if s, ok := n.trafficStreams[id]; ok {
		return s
	}
	return invalidStream(id)
}

// determineStreamForSynchronisation 确定首选与次选前驱的交通流
func (n *Node) determineStreamForSynchronisation() {
	n.synchronisedStream = nil
	n.secondaryStream = nil
	first, second := n.calculatePredecessors(!n.ctx.RuntimeConfig().PSS.UseNeighbourStreamsValue())
	if first != nil {
		s := first.TrafficStreamFor(n.ID())
		n.synchronisedStream = &s
	}
	if second != nil {
		s := second.TrafficStreamFor(n.ID())
		n.secondaryStream = &s
	}
}

// calculatePredecessors 首选与次选前驱
// 参数：local-只使用本地转向统计，否则使用相邻路口上报的交通流
func (n *Node) calculatePredecessors(local bool) (*Node, *Node) {
	if local {
		return n.findLocalPredecessors()
	}
	return n.findPredecessorsByStreams()
}

// findLocalPredecessors 按本路口各进口转向的流量确定前驱
// 说明：进口路段的上游路口取输送路口中id最大者
func (n *Node) findLocalPredecessors() (*Node, *Node) {
	bestStream, secondBestStream := 0., 0.
	nodeID, secNodeID := int32(-1), int32(-1)
	for _, sec := range n.junction.InSections() {
		neighbourID := int32(-1)
		for _, id := range n.junction.SendingNodes(sec) {
			neighbourID = max(neighbourID, id)
		}
		for _, t := range n.junction.TurningsForIncomingSection(sec) {
			stream := n.flow(t.ID)
			if stream > bestStream {
				secondBestStream = bestStream
				secNodeID = nodeID
				bestStream = stream
				nodeID = neighbourID
			} else if stream > secondBestStream {
				secondBestStream = stream
				secNodeID = neighbourID
			}
		}
	}
	return n.peer(nodeID), n.peer(secNodeID)
}

// findPredecessorsByStreams 按相邻路口流向本路口的交通流确定前驱
func (n *Node) findPredecessorsByStreams() (*Node, *Node) {
	bestFlow, secondBestFlow := 0., 0.
	var streamOne, streamTwo *TrafficStream
	for _, nb := range n.neighbours() {
		p := n.peer(nb)
		if p == nil {
			continue
		}
		ts := p.TrafficStreamFor(n.ID())
		stream := ts.Strength
		if math.IsNaN(stream) {
			continue
		}
		if stream >= bestFlow {
			if streamOne != nil {
				secondBestFlow = bestFlow
				streamTwo = streamOne
			}
			bestFlow = stream
			streamOne = &ts
		} else if stream > secondBestFlow && (streamOne == nil || streamOne.Origin != ts.Origin) {
			streamTwo = &ts
			secondBestFlow = stream
		}
	}
	var first, second *Node
	if streamOne != nil {
		first = n.peer(streamOne.Origin)
	}
	if streamTwo != nil {
		second = n.peer(streamTwo.Origin)
	}
	return first, second
}

// determineCurrentPredecessorID 当前前驱
// 返回：已确定的前驱，否则未被试探性拒绝时的首选前驱，都没有时返回-1
func (n *Node) determineCurrentPredecessorID() int32 {
	if n.predecessor > 0 {
		return n.predecessor
	}
	if !n.primStreamPreliminaryNo && n.synchronisedStream != nil {
		return n.synchronisedStream.Origin
	}
	return -1
}

// checkTurningOrigin 转向的进口路段是否接收来自predID的车辆
func (n *Node) checkTurningOrigin(t entity.Turning, predID int32) bool {
	if predID < 0 {
		return false
	}
	return slices.Contains(n.junction.SendingNodes(t.InSection), predID)
}

// runSuccessorTest 向全部候选后继发送试探性答复，只接受流量最强方向上的后继
func (n *Node) runSuccessorTest() {
	if len(n.successorList) == 0 {
		return
	}
	chosen := n.chooseTempSuccessorID()
	for _, id := range n.successorList {
		n.net.send(message{kind: msgNotify, from: n.ID(), to: id, answer: id == chosen, preliminary: true})
	}
}

// chooseTempSuccessorID 来自当前前驱的最强转向所通往的相邻路口
// 返回：路口id，或noSuccessorTurning/noSuccessorPath/noSuccessorJunction
func (n *Node) chooseTempSuccessorID() int32 {
	if len(n.successorList) == 0 {
		return -1
	}
	predID := n.determineCurrentPredecessorID()
	turnings := n.junction.Turnings()
	if predID > 0 {
		turnings = lo.Filter(turnings, func(t entity.Turning, _ int) bool { return n.checkTurningOrigin(t, predID) })
	}
	bestFlow := -1.
	var best *entity.Turning
	for i, t := range turnings {
		if f := n.flow(t.ID); f > bestFlow {
			bestFlow = f
			best = &turnings[i]
		}
	}
	if best == nil {
		return noSuccessorTurning
	}
	next, sections := n.junction.NextJunction(best.OutSection)
	if len(sections) == 0 {
		return noSuccessorPath
	}
	if next <= 0 {
		return noSuccessorJunction
	}
	return next
}

// notifySuccessor 处理前驱的接受/拒绝
// 参数：predID-发送方，answer-是否接受，preliminary-是否为试探性答复
// 返回：最终接受被本路口拒绝（已确认其他前驱或发送方不是候选前驱）时返回false
func (n *Node) notifySuccessor(predID int32, answer, preliminary bool) bool {
	switch {
	case n.synchronisedStream != nil && n.synchronisedStream.Origin == predID:
		return n.setPredecessor(predID, preliminary, answer)
	case n.secondaryStream != nil && n.secondaryStream.Origin == predID:
		if answer {
			if n.confirmedPredecessor && n.predecessor > 0 {
				return false
			}
			n.predecessor = predID
			n.confirmedPredecessor = !preliminary
			n.predecessorIsSecondChoice = true
		}
		return true
	}
	log.Debugf("node %d: notification from %d which is no predecessor candidate", n.ID(), predID)
	return false
}

// setPredecessor 处理首选前驱的答复
// 说明：试探性拒绝时向次选前驱登记（次选前驱的走廊链无环时），最终拒绝时若尚未登记则同样登记
func (n *Node) setPredecessor(predID int32, preliminary, answer bool) bool {
	if preliminary {
		if answer {
			n.predecessor = predID
			n.confirmedPredecessor = false
			return true
		}
		n.predecessor = 0
		n.confirmedPredecessor = false
		n.primStreamPreliminaryNo = true
		if n.secondaryStream != nil && n.secondaryStream.Origin != n.synchronisedStream.Origin &&
			n.secondaryStream.Origin != n.determineCurrentPredecessorID() {
			second := n.peer(n.secondaryStream.Origin)
			if second != nil && n.verifyPSSForNode(second) {
				n.send(msgRegister, second.ID())
				n.queriedSecondPred = true
			} else {
				log.Debugf("node %d: second predecessor %d rejected", n.ID(), n.secondaryStream.Origin)
			}
		}
		return true
	}

	if answer {
		if n.confirmedPredecessor && n.predecessor > 0 {
			return false
		}
		n.confirmedPredecessor = true
		n.predecessor = predID
		return true
	}
	if !n.predecessorIsSecondChoice {
		n.predecessor = 0
		n.confirmedPredecessor = true
		if !n.queriedSecondPred && n.secondaryStream != nil && n.secondaryStream.Origin != n.synchronisedStream.Origin {
			if second := n.peer(n.secondaryStream.Origin); second != nil {
				n.send(msgRegister, second.ID())
			}
		}
	}
	return true
}

// calculateGreenWave 确定主后继与前驱，向候选后继发送最终答复
func (n *Node) calculateGreenWave() {
	n.primarySuccessor = 0
	if succ := n.orderedSuccessorIDsForPred(-1); len(succ) > 0 && n.peer(succ[0]) != nil {
		n.primarySuccessor = succ[0]
	}

	switch {
	case n.predecessorIsSecondChoice && n.secondaryStream != nil && n.peer(n.secondaryStream.Origin) != nil:
		n.predecessor = n.secondaryStream.Origin
	case !n.predecessorIsSecondChoice && n.synchronisedStream != nil &&
		!(n.confirmedPredecessor && n.predecessor == 0) && n.peer(n.synchronisedStream.Origin) != nil:
		n.predecessor = n.synchronisedStream.Origin
	}

	for _, id := range n.successorList {
		n.net.send(message{kind: msgNotify, from: n.ID(), to: id, answer: id == n.primarySuccessor, preliminary: false})
	}
	n.updateFlags()
}

// updateFlags 根据前驱与主后继设置走廊标志
func (n *Node) updateFlags() {
	n.partOfPSS = n.predecessor > 0 || n.primarySuccessor > 0
	n.beginOfPSS = n.partOfPSS && n.predecessor == 0
	n.endOfPSS = n.partOfPSS && n.primarySuccessor == 0
}

// finalisePSSMechanism 前驱与主后继相同时放弃前驱，然后重新设置走廊标志
func (n *Node) finalisePSSMechanism() {
	if n.predecessor > 0 && n.predecessor == n.primarySuccessor {
		n.send(msgUnsubscribe, n.predecessor)
		n.predecessor = 0
	}
	n.updateFlags()
}

// orderedSuccessorIDsForPred 给定前驱时可用的后继，按可达流量降序
// 参数：givenPred-前驱，不大于0时使用当前前驱
func (n *Node) orderedSuccessorIDsForPred(givenPred int32) []int32 {
	predID := givenPred
	if predID <= 0 {
		predID = n.determineCurrentPredecessorID()
	}
	if len(n.successorList) == 0 {
		return nil
	}
	if len(n.successorList) == 1 {
		id := n.successorList[0]
		if predID <= 0 {
			return []int32{id}
		}
		var final *entity.Turning
		turnings := n.junction.TurningsForNeighbour(id)
		for i, t := range turnings {
			if n.checkTurningOrigin(t, predID) {
				final = &turnings[i]
			}
		}
		if final != nil && n.verifyTurning(*final, predID) {
			return []int32{id}
		}
		return nil
	}

	possible := lo.Filter(n.successorList, func(id int32, _ int) bool {
		if predID < 0 {
			return true
		}
		return lo.ContainsBy(n.junction.TurningsForNeighbour(id), func(t entity.Turning) bool {
			return n.checkTurningOrigin(t, predID) && n.verifyTurning(t, predID)
		})
	})
	return n.orderPossibleSuccessorsByFlow(possible, predID)
}

// orderPossibleSuccessorsByFlow 按通往各后继的最强转向流量降序排列，流量相同保持登记顺序
func (n *Node) orderPossibleSuccessorsByFlow(ids []int32, predID int32) []int32 {
	if len(ids) <= 1 {
		return slices.Clone(ids)
	}
	strength := make(map[int32]float64, len(ids))
	for _, id := range ids {
		best := -1.
		for _, t := range n.junction.TurningsForNeighbour(id) {
			if predID > 0 && !n.checkTurningOrigin(t, predID) {
				continue
			}
			if f := n.flow(t.ID); !math.IsNaN(f) && f > best {
				best = f
			}
		}
		strength[id] = best
	}
	res := slices.Clone(ids)
	slices.SortStableFunc(res, func(a, b int32) int { return cmp.Compare(strength[b], strength[a]) })
	return res
}

// verifyTurning 转向是否承载来自前驱的流量的足够比例
func (n *Node) verifyTurning(t entity.Turning, predID int32) bool {
	if predID < 0 {
		return false
	}
	flow := n.flow(t.ID)
	if !validFlow(flow) || flow <= 0 {
		return false
	}
	sum := 0.
	for _, other := range n.junction.Turnings() {
		if !n.checkTurningOrigin(other, predID) {
			continue
		}
		if f := n.flow(other.ID); validFlow(f) {
			sum += f
		}
	}
	return sum > 0 && flow/sum > verifyTurningShare
}

// chainByPredecessors 从本路口沿当前前驱上溯的路口序列
// 说明：遇到重复路口时把它再追加一次后停止，调用方据此识别环路
func (n *Node) chainByPredecessors() []int32 {
	res := make([]int32, 0, 4)
	seen := make(map[int32]bool)
	for cur := n; cur != nil; {
		res = append(res, cur.ID())
		if seen[cur.ID()] {
			break
		}
		seen[cur.ID()] = true
		predID := cur.determineCurrentPredecessorID()
		if predID <= 0 {
			break
		}
		cur = cur.peer(predID)
	}
	return res
}

// verifyPSSForNode 以posPred为前驱时形成的走廊链是否无环
func (n *Node) verifyPSSForNode(posPred *Node) bool {
	checked := make(map[int32]bool)
	for _, id := range posPred.chainByPredecessors() {
		if checked[id] {
			log.Warnf("node %d: invalid path through predecessor %d", n.ID(), posPred.ID())
			return false
		}
		checked[id] = true
	}
	succ := n.orderedSuccessorIDsForPred(posPred.ID())
	if len(succ) == 0 {
		return true
	}
	posSuc := n.peer(succ[0])
	if posSuc == nil {
		return true
	}
	for _, id := range posSuc.chainByPredecessors() {
		if checked[id] {
			log.Warnf("node %d: invalid path through successor %d", n.ID(), posSuc.ID())
			return false
		}
		checked[id] = true
	}
	return true
}
