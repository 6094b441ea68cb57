package region

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/tsinghua-fib-lab/agentsociety-greenwave/entity"
)

// messageKind 协商消息类型
type messageKind int

const (
	msgRegister    messageKind = iota // 后继向前驱登记为候选后继
	msgUnsubscribe                    // 后继撤销登记
	msgNotify                         // 前驱向候选后继发送接受/拒绝
	msgRefused                        // 后继拒绝前驱的最终接受
)

func (k messageKind) String() string {
	switch k {
	case msgRegister:
		return "register"
	case msgUnsubscribe:
		return "unsubscribe"
	case msgNotify:
		return "notify"
	case msgRefused:
		return "refused"
	}
	return fmt.Sprintf("messageKind(%d)", int(k))
}

// message 路口之间的协商消息
type message struct {
	kind        messageKind
	from, to    int32
	answer      bool // notify：是否接受
	preliminary bool // notify：是否为试探性答复
}

// maxDeliveries 单次投递的消息数上限，超过说明协商出现环路
const maxDeliveries = 1 << 16

// Negotiator 分布式协商的调度器
// 功能：持有全部路口代理，按阶段编号同步推进协商，在每个代理执行完当前阶段后投递其发出的消息
// 说明：所有代理完成阶段k之后才开始阶段k+1；代理只能读取其他代理的状态，修改只能通过消息
type Negotiator struct {
	ctx     entity.ITaskContext
	nodes   map[int32]*Node
	order   []*Node // 按id升序
	queue   []message
	updates UpdateLog
	runID   string
}

// NewNegotiator 创建调度器
func NewNegotiator(ctx entity.ITaskContext) *Negotiator {
	return &Negotiator{
		ctx:   ctx,
		nodes: make(map[int32]*Node),
		order: make([]*Node, 0),
		queue: make([]message, 0),
		runID: newRunID(),
	}
}

// Add 为受控路口创建代理，已存在时返回已有代理
func (g *Negotiator) Add(j entity.IJunction) *Node {
	if n, ok := g.nodes[j.ID()]; ok {
		return n
	}
	n := newNode(g.ctx, g, j)
	g.nodes[j.ID()] = n
	g.order = append(g.order, n)
	slices.SortFunc(g.order, func(a, b *Node) int { return cmp.Compare(a.ID(), b.ID()) })
	return n
}

// Node 根据路口id获取代理
func (g *Negotiator) Node(id int32) (*Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// Nodes 全部代理，按id升序
func (g *Negotiator) Nodes() []*Node {
	return g.order
}

func (g *Negotiator) send(m message) {
	log.Tracef("message %v %d->%d answer=%v preliminary=%v", m.kind, m.from, m.to, m.answer, m.preliminary)
	g.queue = append(g.queue, m)
}

// drain 按发送顺序投递消息，处理过程中产生的新消息同样被投递
func (g *Negotiator) drain() {
	for delivered := 0; len(g.queue) > 0; delivered++ {
		if delivered >= maxDeliveries {
			log.Errorf("dropping %d undelivered negotiation messages", len(g.queue))
			g.queue = g.queue[:0]
			return
		}
		m := g.queue[0]
		g.queue = g.queue[1:]
		to, ok := g.nodes[m.to]
		if !ok {
			log.Warnf("%v: message %v from %d to unknown node %d", ErrUnknownNeighbour, m.kind, m.from, m.to)
			continue
		}
		to.receive(m)
	}
}

// RunPhase 所有代理依次执行同一协商阶段
func (g *Negotiator) RunPhase(phase int) {
	for _, n := range g.order {
		n.RunSynchronisation(phase)
		g.drain()
	}
	phasesRun.WithLabelValues(fmt.Sprint(phase)).Inc()
}

// Run 完整执行阶段0到6
func (g *Negotiator) Run() {
	for phase := range PhaseCount {
		g.RunPhase(phase)
	}
}

// Corridors 当前已建立的走廊，每条为从起点到终点的路口id序列
func (g *Negotiator) Corridors() [][]int32 {
	res := make([][]int32, 0)
	for _, n := range g.order {
		if !n.partOfPSS || !n.beginOfPSS {
			continue
		}
		members, err := n.corridor()
		if err != nil {
			log.Warnf("skip corridor at node %d: %v", n.ID(), err)
			continue
		}
		res = append(res, members.ids())
	}
	return res
}
