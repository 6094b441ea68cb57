package region

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/agentsociety-greenwave/entity"
)

var (
	ErrUnknownNeighbour  = errors.New("unknown neighbour node")
	ErrNoRepresentations = errors.New("no node representations")
	ErrBrokenCorridor    = errors.New("broken corridor")
	ErrChangeDelayed     = errors.New("controller change delayed by pending switch")
)

// PhaseCount 协商阶段数（0到6）
const PhaseCount = 7

// Node 路口的绿波协调代理
// 功能：保存单个受控路口的协商状态，执行分布式协商的各个阶段，
// 计算公共周期与相位差并通过过渡方案切换信号灯
// 说明：前驱与后继以路口id引用（0表示无），代理只修改自身状态，
// 对其他代理的修改通过Negotiator投递的消息完成
type Node struct {
	ctx      entity.ITaskContext
	net      *Negotiator
	junction entity.IJunction

	partOfPSS  bool
	beginOfPSS bool
	endOfPSS   bool

	predecessor               int32
	primarySuccessor          int32
	confirmedPredecessor      bool
	predecessorIsSecondChoice bool
	primStreamPreliminaryNo   bool // 首选前驱已试探性拒绝
	queriedSecondPred         bool // 已向次选前驱登记
	successorList             []int32

	trafficStreams     map[int32]TrafficStream // 相邻路口->本路口流向它的最强交通流
	synchronisedStream *TrafficStream          // 首选前驱流向本路口的交通流
	secondaryStream    *TrafficStream          // 次选前驱流向本路口的交通流

	desiredCycleTime     int
	agreedCycleTime      int
	offset               int
	syncStart            int
	queueBasedAdjustment int
	timeZeroForPSS       float64

	runSynchPhase        bool
	nextSynchPhase       int
	timeToNextSynchPhase float64

	tempTLC                 entity.TLCParameters
	replaceTLC              entity.TLCParameters
	timeToActivateTempTLC   float64
	timeToDeactivateTempTLC float64
	changeDelay             float64 // 在此时刻之前不允许局部切换方案
}

func newNode(ctx entity.ITaskContext, net *Negotiator, j entity.IJunction) *Node {
	n := &Node{ctx: ctx, net: net, junction: j}
	n.Reset()
	if tl := j.TrafficLight(); tl != nil {
		n.desiredCycleTime = int(tl.Parameters().CycleTime())
	}
	log.Debugf("new node %d", j.ID())
	return n
}

// Reset 清空全部协商状态
// 说明：同时取消尚未执行的过渡方案与最终方案切换，保留局部切换延迟；重复调用结果相同
func (n *Node) Reset() {
	n.agreedCycleTime = 0
	n.desiredCycleTime = 0
	n.successorList = make([]int32, 0, 3)
	n.trafficStreams = make(map[int32]TrafficStream, 5)

	n.predecessor = 0
	n.primarySuccessor = 0
	n.confirmedPredecessor = false
	n.beginOfPSS = false
	n.endOfPSS = false
	n.predecessorIsSecondChoice = false
	n.queriedSecondPred = false
	n.primStreamPreliminaryNo = false

	n.runSynchPhase = false
	n.nextSynchPhase = -1
	n.timeToNextSynchPhase = -1

	n.offset = 0
	n.syncStart = 0
	n.queueBasedAdjustment = 0
	n.timeZeroForPSS = 0

	n.timeToActivateTempTLC = -1
	n.tempTLC = entity.TLCParameters{}
	n.timeToDeactivateTempTLC = -1
	n.replaceTLC = entity.TLCParameters{}

	n.synchronisedStream = nil
	n.secondaryStream = nil

	n.partOfPSS = false
}

func (n *Node) ID() int32                  { return n.junction.ID() }
func (n *Node) Junction() entity.IJunction { return n.junction }
func (n *Node) PartOfPSS() bool            { return n.partOfPSS }
func (n *Node) BeginOfPSS() bool           { return n.beginOfPSS }
func (n *Node) EndOfPSS() bool             { return n.endOfPSS }
func (n *Node) Predecessor() int32         { return n.predecessor }
func (n *Node) PrimarySuccessor() int32    { return n.primarySuccessor }
func (n *Node) AgreedCycleTime() int       { return n.agreedCycleTime }
func (n *Node) DesiredCycleTime() int      { return n.desiredCycleTime }
func (n *Node) Offset() int                { return n.offset }
func (n *Node) SyncStart() int             { return n.syncStart }
func (n *Node) QueueAdjustment() int       { return n.queueBasedAdjustment }
func (n *Node) RunSynchPhase() bool        { return n.runSynchPhase }
func (n *Node) NextSynchPhase() int        { return n.nextSynchPhase }

// SetTimeToNextSynchPhase 设置下一次完整协商的预计时刻
func (n *Node) SetTimeToNextSynchPhase(t float64) {
	n.timeToNextSynchPhase = t
}

// SuccessorList 登记为候选后继的路口
func (n *Node) SuccessorList() []int32 {
	return slices.Clone(n.successorList)
}

func (n *Node) now() float64 {
	return n.ctx.Clock().T
}

// flow 转向在交通流统计区间内的流量
func (n *Node) flow(turningID int32) float64 {
	return n.ctx.Statistics().TurningFlow(turningID, n.ctx.RuntimeConfig().PSS.IntervalLengthForStream)
}

// neighbours 已登记代理的相邻路口，按id升序
func (n *Node) neighbours() []int32 {
	return lo.Filter(n.junction.Neighbours(), func(id int32, _ int) bool {
		_, ok := n.net.Node(id)
		return ok
	})
}

// peer 相邻路口的代理，非相邻或未登记时返回nil
func (n *Node) peer(id int32) *Node {
	if id <= 0 || !n.junction.IsNeighbour(id) {
		return nil
	}
	p, ok := n.net.Node(id)
	if !ok {
		return nil
	}
	return p
}

// route 到相邻路口的最短路径
func (n *Node) route(id int32) (entity.Route, error) {
	routes := n.junction.RoutesToNeighbour(id)
	if len(routes) == 0 {
		return entity.Route{}, fmt.Errorf("%w: no route from %d to %d", ErrUnknownNeighbour, n.ID(), id)
	}
	return routes[0], nil
}

func (n *Node) send(kind messageKind, to int32) {
	n.net.send(message{kind: kind, from: n.ID(), to: to})
}

// receive 处理其他代理发来的消息
func (n *Node) receive(m message) {
	switch m.kind {
	case msgRegister:
		n.registerSuccessor(m.from)
	case msgUnsubscribe:
		n.unsubscribeSuccessor(m.from)
	case msgNotify:
		ok := n.notifySuccessor(m.from, m.answer, m.preliminary)
		if !ok && m.answer && !m.preliminary {
			n.net.send(message{kind: msgRefused, from: n.ID(), to: m.from})
		}
	case msgRefused:
		if n.primarySuccessor == m.from {
			log.Debugf("node %d: successor %d refused", n.ID(), m.from)
			n.primarySuccessor = 0
		}
	default:
		log.Warnf("node %d: unknown message %v", n.ID(), m.kind)
	}
}

// registerSuccessor 登记候选后继
func (n *Node) registerSuccessor(id int32) {
	if !slices.Contains(n.successorList, id) {
		n.successorList = append(n.successorList, id)
	}
}

// unsubscribeSuccessor 撤销候选后继的登记
func (n *Node) unsubscribeSuccessor(id int32) {
	n.successorList = slices.DeleteFunc(n.successorList, func(x int32) bool { return x == id })
	if n.primarySuccessor == id {
		n.primarySuccessor = 0
	} else {
		log.Warnf("node %d: %d unsubscribed but is not the primary successor", n.ID(), id)
	}
}

// ReceivePSSInfo 接收区域管理器的走廊决策
func (n *Node) ReceivePSSInfo(info PSSInfo) {
	if info.NodeID != n.ID() {
		log.Errorf("node %d received invalid information %v from regional manager", n.ID(), info)
	}
	n.predecessorIsSecondChoice = false
	if info.Active {
		n.partOfPSS = true
		n.beginOfPSS = info.Start
		n.endOfPSS = info.End
		n.confirmedPredecessor = true
		n.predecessor = lo.Ternary(info.Start, 0, info.Predecessor)
		n.primarySuccessor = lo.Ternary(info.End, 0, info.Successor)
	} else {
		n.partOfPSS = false
		n.beginOfPSS = false
		n.endOfPSS = false
		n.confirmedPredecessor = false
		n.predecessor = 0
		n.primarySuccessor = 0
	}
	log.Debugf("regional manager delivered %v", info)
}

// corridor 从本路口沿主后继到走廊终点的成员序列
func (n *Node) corridor() (corridor, error) {
	members := corridor{n}
	visited := map[int32]bool{n.ID(): true}
	for cur := n; !cur.endOfPSS; {
		next := cur.peer(cur.primarySuccessor)
		if next == nil {
			return nil, fmt.Errorf("%w: node %d has no successor %d", ErrBrokenCorridor, cur.ID(), cur.primarySuccessor)
		}
		if visited[next.ID()] {
			return nil, fmt.Errorf("%w: node %d visited twice", ErrBrokenCorridor, next.ID())
		}
		visited[next.ID()] = true
		members = append(members, next)
		cur = next
	}
	return members, nil
}

// corridor 走廊成员，从起点到终点
type corridor []*Node

func (c corridor) ids() []int32 {
	return lo.Map(c, func(n *Node, _ int) int32 { return n.ID() })
}

// Description 代理状态的文本描述
func (n *Node) Description() string {
	sb := strings.Builder{}
	id := n.ID()
	if n.partOfPSS {
		sb.WriteString(fmt.Sprintf("Node %d is active in a PSS.\n", id))
	} else {
		sb.WriteString(fmt.Sprintf("Node %d is not active in a PSS.\n", id))
	}
	sb.WriteString(fmt.Sprintf("Predecessor: %s, primary successor: %s\n", nodeName(n.predecessor), nodeName(n.primarySuccessor)))
	sb.WriteString(fmt.Sprintf("Begin of PSS: %v, end of PSS: %v\n", n.beginOfPSS, n.endOfPSS))
	if n.synchronisedStream != nil {
		sb.WriteString(fmt.Sprintf("Chosen stream: %v\n", *n.synchronisedStream))
	}
	if n.secondaryStream != nil {
		sb.WriteString(fmt.Sprintf("Second stream: %v\n", *n.secondaryStream))
	}
	sb.WriteString("Traffic streams:\n")
	keys := lo.Keys(n.trafficStreams)
	slices.Sort(keys)
	for _, k := range keys {
		sb.WriteString(fmt.Sprintf("  %v\n", n.trafficStreams[k]))
	}
	sb.WriteString(fmt.Sprintf("Neighbourhood: %v\n", n.neighbours()))
	sb.WriteString(fmt.Sprintf("Registered successors: %v\n", n.successorList))
	sb.WriteString(fmt.Sprintf("Desired cycle time: %d, agreed cycle time: %d\n", n.desiredCycleTime, n.agreedCycleTime))
	sb.WriteString(fmt.Sprintf("Offset: %d, synchronised phase start: %d, queue adjustment: %d\n", n.offset, n.syncStart, n.queueBasedAdjustment))
	if n.timeToActivateTempTLC > 0 {
		sb.WriteString(fmt.Sprintf("Temporary controller%s activated at %.2f\n", n.tempTLC, n.timeToActivateTempTLC))
	}
	if n.timeToDeactivateTempTLC > 0 {
		sb.WriteString(fmt.Sprintf("Final controller%s activated at %.2f\n", n.replaceTLC, n.timeToDeactivateTempTLC))
	}
	return sb.String()
}

func nodeName(id int32) string {
	if id <= 0 {
		return "none"
	}
	return fmt.Sprint(id)
}

// validFlow 流量可参与比较（非NaN且有限）
func validFlow(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
