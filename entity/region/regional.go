package region

import (
	"fmt"
	"math"
	"slices"

	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/agentsociety-greenwave/entity/region/graph"
	"github.com/tsinghua-fib-lab/agentsociety-greenwave/utils/container"
)

const (
	connectorCost     = 1.  // 路口间连接边的代价
	normalisationCost = 0.5 // 无效转向流量的替代值
)

// RegionalManager 集中式走廊计算
// 功能：收集全部登记路口的图表示，在子节点图上抽取候选走廊，
// 组合为互不冲突的走廊系统，选择收益最高的系统并下发给各路口
type RegionalManager struct {
	net   *Negotiator
	nodes map[int32]*Node

	highestCost     float64
	representations map[int32]*NodeDataStructure
	network         *graph.Graph
	paths           []*graph.Path // 子节点级候选走廊
	otcPaths        []*graph.Path // 路口级候选走廊
	systems         []*graph.System
	activeSystem    *graph.System
	infos           map[int32]PSSInfo
}

// NewRegionalManager 创建区域管理器
func NewRegionalManager(net *Negotiator) *RegionalManager {
	m := &RegionalManager{net: net, nodes: make(map[int32]*Node)}
	m.resetValues()
	return m
}

// Register 登记参与区域计算的路口，重复登记无效
func (m *RegionalManager) Register(n *Node) {
	if _, ok := m.nodes[n.ID()]; ok {
		return
	}
	m.nodes[n.ID()] = n
	log.Infof("regional manager registered node %d", n.ID())
}

// Registered 已登记的路口id，升序
func (m *RegionalManager) Registered() []int32 {
	ids := lo.Keys(m.nodes)
	slices.Sort(ids)
	return ids
}

// ActiveSystem 最近一次计算选中的走廊系统，可能为nil
func (m *RegionalManager) ActiveSystem() *graph.System {
	return m.activeSystem
}

// Systems 最近一次计算得到的全部走廊系统
func (m *RegionalManager) Systems() []*graph.System {
	return m.systems
}

// Candidates 最近一次计算得到的路口级候选走廊
func (m *RegionalManager) Candidates() []*graph.Path {
	return m.otcPaths
}

// Infos 最近一次计算下发的走廊决策
func (m *RegionalManager) Infos() map[int32]PSSInfo {
	return m.infos
}

func (m *RegionalManager) resetValues() {
	m.highestCost = -1
	m.representations = make(map[int32]*NodeDataStructure)
	m.network = nil
	m.paths = make([]*graph.Path, 0)
	m.otcPaths = make([]*graph.Path, 0)
	m.systems = make([]*graph.System, 0)
	m.activeSystem = nil
	m.infos = make(map[int32]PSSInfo)
}

// CalculatePSS 集中计算并下发走廊
// 算法说明：
// 1. 收集各路口的图表示，构建子节点图（转向边代价为流量，连接边代价为1）
// 2. 以最大代价为基准取反，按流量从大到小抽取候选走廊
// 3. 转换为路口级走廊，按收益组合为互不冲突的走廊系统
// 4. 选择收益最高的系统，向全部路口下发决策，由各走廊起点协商公共周期与相位差
func (m *RegionalManager) CalculatePSS() error {
	log.Infof("%.2f: calculating corridors", m.net.ctx.Clock().T)
	m.resetValues()
	if err := m.receiveNodeRepresentations(); err != nil {
		regionalRuns.WithLabelValues("no_nodes").Inc()
		return err
	}
	if err := m.calculate(); err != nil {
		regionalRuns.WithLabelValues("invalid_graph").Inc()
		return err
	}

	log.Debugf("regional manager created %d infos", len(m.infos))
	for _, id := range m.Registered() {
		m.nodes[id].ReceivePSSInfo(m.infos[id])
	}
	for _, id := range m.Registered() {
		if info := m.infos[id]; info.Active && info.Start {
			log.Debugf("starting synchronisation at node %d", id)
			m.nodes[id].RunSynchronisation(6)
			m.net.drain()
		}
	}
	if m.activeSystem == nil {
		regionalRuns.WithLabelValues("no_system").Inc()
	} else {
		regionalRuns.WithLabelValues("ok").Inc()
	}
	return nil
}

// calculate 根据已收集的图表示计算走廊系统与各路口的决策
func (m *RegionalManager) calculate() error {
	m.createGraph()
	if !(m.highestCost > connectorCost && m.highestCost > normalisationCost) {
		log.Warn("error creating the graph: invalid cost received")
		operatorWarnings.Inc()
		return fmt.Errorf("%w: highest cost %.2f", graph.ErrInvalidPath, m.highestCost)
	}
	m.network.InvertCosts(m.highestCost)

	m.determineStreams()
	m.filterPaths()
	for _, p := range m.paths {
		otc, err := m.generateOTCPath(p)
		if err != nil {
			log.Warnf("skip candidate %v: %v", p.Vertices(), err)
			continue
		}
		otc.InvertCost(m.highestCost)
		m.otcPaths = append(m.otcPaths, otc)
	}
	candidatePaths.Set(float64(len(m.otcPaths)))

	m.determineStreamSystems()
	m.chooseBestStreamSystem()
	m.generateNodeInformation()
	return nil
}

func (m *RegionalManager) receiveNodeRepresentations() error {
	if len(m.nodes) == 0 {
		log.Error("could not receive node representations: no registered nodes")
		operatorWarnings.Inc()
		return ErrNoRepresentations
	}
	for id, n := range m.nodes {
		m.representations[id] = n.Representation()
	}
	return nil
}

// createGraph 根据各路口的图表示构建子节点图
// 说明：相邻路口之间的连接边以 1000*上游路口+下游路口 为键收集两端子节点，两端都已知时才加入
func (m *RegionalManager) createGraph() {
	if len(m.representations) == 0 {
		m.network = nil
		m.highestCost = -1
		log.Error("couldn't create graph: no node representations")
		return
	}
	m.network = graph.New()
	m.highestCost = 0
	connectors := make(map[int32]*JunctionDataStructure)
	connector := func(key int32) *JunctionDataStructure {
		c, ok := connectors[key]
		if !ok {
			c = newJunctionDataStructure()
			connectors[key] = c
		}
		return c
	}

	ids := lo.Keys(m.representations)
	slices.Sort(ids)
	for _, id := range ids {
		rep := m.representations[id]
		for _, tds := range rep.TDS() {
			cost := tds.Weight
			if math.IsNaN(cost) || cost < 0 || math.IsInf(cost, 0) {
				cost = normalisationCost
			}
			m.network.AddEdge(tds.Origin, tds.Destination, cost, false)
			m.highestCost = max(m.highestCost, cost)
		}
		m.network.AddInSubNodeIDs(rep.InSubNodeIDs())
		m.network.AddOutSubNodeIDs(rep.OutSubNodeIDs())

		for _, pred := range rep.PredecessorNodes() {
			connector(1000*pred + id).Destination = rep.InNodeIDForNeighbour(pred)
		}
		for _, succ := range rep.SuccessorNodes() {
			connector(1000*id + succ).Origin = rep.OutNodeIDForNeighbour(succ)
		}
	}

	keys := lo.Keys(connectors)
	slices.Sort(keys)
	for _, k := range keys {
		c := connectors[k]
		if c.Origin >= 0 && c.Destination >= 0 {
			m.network.AddEdge(c.Origin, c.Destination, connectorCost, true)
			m.highestCost = max(m.highestCost, connectorCost)
		}
	}
	log.Debugf("graph with %d vertices and %d edges, highest cost %.2f", m.network.NumVertices(), m.network.NumEdges(), m.highestCost)
}

// determineStreams 抽取候选走廊
// 算法说明：
// 1. 在图的副本上按取反后的代价（即流量从大到小）依次取出边
// 2. 向上游反复选择流入当前起点的最强边，向下游反复选择当前终点的最强出边，
// 所选转向不能被同一出口的更强转向压制，也不能回到已经经过的路口
// 3. 计算走廊收益，从副本中删除走廊上的边以及流入这些边起点的全部边
// 4. 边队列为空时结束，最大收益作为之后取反的基准
func (m *RegionalManager) determineStreams() {
	m.paths = make([]*graph.Path, 0)
	g := m.network.Clone()
	queue := g.EdgeQueue()
	maxCost := -1.
	for !queue.Empty() {
		id, _ := queue.HeapPop()
		edge := g.Edge(id)

		preds, visited := m.determinePredecessors(g, edge)
		successors := m.determineSuccessors(g, edge, visited)

		edges := make([]graph.Edge, 0, len(preds)+1+len(successors))
		edges = append(edges, preds...)
		edges = append(edges, edge)
		edges = append(edges, successors...)
		p, err := graph.NewPathFromEdges(edges)
		if err != nil {
			log.Warnf("discard stream at %v: %v", edge, err)
		} else {
			cost := determineBenefitingCars(edges)
			maxCost = max(maxCost, cost)
			p.SetCost(cost)
			m.paths = append(m.paths, p)
		}

		for _, e := range edges {
			for _, in := range g.EdgesLeadingTo(e.From) {
				m.removeEdge(g, queue, in.ID)
			}
			m.removeEdge(g, queue, e.ID)
		}
	}
	m.highestCost = maxCost
	log.Debugf("determined %d streams, highest benefit %.2f", len(m.paths), maxCost)
}

func (m *RegionalManager) removeEdge(g *graph.Graph, queue *container.PriorityQueue[graph.EdgeID], id graph.EdgeID) {
	if err := g.RemoveEdge(id); err != nil {
		log.Debugf("remove edge %d: %v", id, err)
	}
	queue.RemoveFunc(func(x graph.EdgeID) bool { return x == id })
}

// determinePredecessors 从edge向上游扩展
// 返回：按行驶方向排列的上游边，以及走廊已经经过的路口
func (m *RegionalManager) determinePredecessors(g *graph.Graph, edge graph.Edge) ([]graph.Edge, map[int32]bool) {
	preds := make([]graph.Edge, 0)
	visited := map[int32]bool{edge.ToNode(): true, edge.FromNode(): true}
	cur := edge
	for cur.From > 0 && g.HasVertex(cur.From) {
		candidates := g.EdgesLeadingTo(cur.From)
		if len(candidates) == 0 {
			break
		}
		best := candidates[0]
		for _, c := range candidates[1:] {
			if c.TrueCost() > best.TrueCost() {
				best = c
			}
		}
		if from := best.FromNode(); from != cur.FromNode() && visited[from] {
			log.Debugf("end of search for predecessors: node %d already on the stream", from)
			break
		}
		if !m.verifyNextOTCNode(best, best.ToNode()) {
			log.Debug("end of search for predecessors due to conflicting edge")
			break
		}
		visited[best.FromNode()] = true
		preds = append(preds, best)
		cur = best
	}
	slices.Reverse(preds)
	return preds, visited
}

// determineSuccessors 从edge向下游扩展
func (m *RegionalManager) determineSuccessors(g *graph.Graph, edge graph.Edge, visited map[int32]bool) []graph.Edge {
	successors := make([]graph.Edge, 0)
	cur := edge
	for {
		node := cur.ToNode()
		var best *graph.Edge
		for _, c := range g.OutEdges(cur.To) {
			if !g.Alive(c.ID) {
				continue
			}
			if next := c.ToNode(); next != node && visited[next] {
				continue
			}
			if best == nil || c.TrueCost() > best.TrueCost() {
				best = &c
			}
		}
		if best == nil || !m.verifyNextOTCNode(*best, best.ToNode()) {
			break
		}
		visited[best.ToNode()] = true
		successors = append(successors, *best)
		cur = *best
	}
	return successors
}

// verifyNextOTCNode 所选边是否被路口内指向同一出口子节点的更强转向压制
// 返回：参数无效、路口没有转向或存在更强的竞争转向时返回false
func (m *RegionalManager) verifyNextOTCNode(edge graph.Edge, nodeID int32) bool {
	if edge.From <= 0 || nodeID <= 0 {
		log.Warn("cannot verify next node: invalid arguments")
		return false
	}
	candidates := m.network.EdgesForNode(nodeID)
	if len(candidates) == 0 {
		log.Debug("cannot verify next node: no edges found")
		return false
	}
	for _, c := range candidates {
		if c.TrueCost() > edge.TrueCost() && c.To == edge.To {
			log.Debugf("found conflicting edge %v", c)
			return false
		}
	}
	return true
}

// determineBenefitingCars 走廊收益：除第一个转向外，走廊上全部转向的流量之和
func determineBenefitingCars(edges []graph.Edge) float64 {
	if len(edges) == 0 {
		log.Debug("cannot determine benefiting cars: empty edge list")
		return -1
	}
	ignoredFirst := false
	sum := 0.
	for _, e := range edges {
		if e.Intermediate {
			continue
		}
		if !ignoredFirst {
			ignoredFirst = true
			continue
		}
		if c := e.TrueCost(); validFlow(c) {
			sum += c
		}
	}
	return sum
}

// filterPaths 去除顶点数小于2的候选
func (m *RegionalManager) filterPaths() {
	m.paths = lo.Filter(m.paths, func(p *graph.Path, _ int) bool { return p.Len() >= 2 })
}

// generateOTCPath 把子节点级路径转换为路口级路径
// 说明：相邻两个路口之间的边代价为上游路口在走廊上的转向流量
func (m *RegionalManager) generateOTCPath(p *graph.Path) (*graph.Path, error) {
	if p.Len() < 2 {
		return nil, fmt.Errorf("%w: sub-node path %v too short", graph.ErrInvalidPath, p.Vertices())
	}
	if p.IsOTC() {
		log.Debug("path is already a junction path")
		return p, nil
	}
	nodes := make([]int32, 0)
	edges := make([]graph.Edge, 0)
	last := int32(-1)
	if origin := p.Origin(); origin > 0 {
		last = origin / 100
		nodes = append(nodes, last)
	}
	var start int32 = -1
	for _, v := range p.Vertices() {
		if v < 0 {
			return nil, fmt.Errorf("%w: invalid vertex %d", graph.ErrInvalidPath, v)
		}
		if id := v / 100; id != last {
			if last > 0 {
				edges = append(edges, graph.Edge{
					ID:          graph.EdgeID(len(edges)),
					From:        last,
					To:          id,
					Cost:        determineEdgeCost(start, v, p),
					PrimaryCost: -1,
				})
			}
			last = id
			nodes = append(nodes, id)
		}
		start = v
	}
	if len(nodes) < 2 {
		return nil, fmt.Errorf("%w: junction path %v too short", graph.ErrInvalidPath, nodes)
	}
	otc := graph.NewPath(nodes, edges)
	otc.SetOTC(true)
	otc.SetCosts(generateCostList(p.Edges()))
	otc.SetCost(determineBenefitingCars(p.Edges()))
	return otc, nil
}

// determineEdgeCost 子节点start到end的转向流量，连接边时沿路径回溯到上游路口的转向
func determineEdgeCost(start, end int32, p *graph.Path) float64 {
	for range p.Len() {
		e, err := p.EdgeBetween(start, end)
		if err != nil {
			return 0
		}
		if !e.Intermediate {
			return e.TrueCost()
		}
		prev, err := p.Predecessor(start)
		if err != nil {
			return 0
		}
		start, end = prev, start
	}
	return 0
}

// generateCostList 路口id->该路口在走廊上的转向流量
func generateCostList(edges []graph.Edge) map[int32]float64 {
	costs := make(map[int32]float64)
	if len(edges) == 0 {
		log.Warn("received invalid edge list: cannot generate cost list")
		return costs
	}
	for _, e := range edges {
		if e.Intermediate {
			continue
		}
		c := e.TrueCost()
		if !validFlow(c) {
			c = 0
		}
		costs[e.FromNode()] = c
	}
	return costs
}

// determineStreamSystems 组合走廊系统
// 算法说明：
// 1. 主系统：按收益从高到低加入候选，冲突的候选进入反集合并在冲突路口处拆分，片段重新排队
// 2. 备选系统：依次以反集合中的候选为种子，其余候选按同样规则加入，
// 加入备选系统的未拆分候选从反集合中移除，反集合为空时结束
func (m *RegionalManager) determineStreamSystems() {
	m.systems = make([]*graph.System, 0)
	counter := container.NewPriorityQueue[*graph.Path]()
	m.findMainStream(counter)
	m.findAlternativeStreams(counter)
}

func (m *RegionalManager) filledQueue() *container.PriorityQueue[*graph.Path] {
	q := container.NewPriorityQueue[*graph.Path]()
	if len(m.otcPaths) == 0 {
		log.Error("cannot fill the queue for stream system calculation: no paths available")
		return q
	}
	for _, p := range m.otcPaths {
		q.Push(p, p.Cost())
	}
	q.Heapify()
	return q
}

func (m *RegionalManager) findMainStream(counter *container.PriorityQueue[*graph.Path]) {
	system := graph.NewSystem(1)
	queue := m.filledQueue()
	for !queue.Empty() {
		p, _ := queue.HeapPop()
		if p.Len() == 0 {
			continue
		}
		if system.VerifyAdditionalStream(p) {
			system.Add(p)
			continue
		}
		if !p.IsSplitted() {
			counter.HeapPush(p, p.Cost())
		}
		if p.Len() > 2 {
			for _, s := range m.splitPath(p, system.ConflictingVertexIDs(p)) {
				if s.Len() > 1 && s.Len() < p.Len() {
					queue.HeapPush(s, s.Cost())
				}
			}
		}
	}
	m.systems = append(m.systems, system)
}

func (m *RegionalManager) findAlternativeStreams(counter *container.PriorityQueue[*graph.Path]) {
	for id := 2; !counter.Empty(); id++ {
		seed, _ := counter.HeapPop()
		system := graph.NewSystem(id, seed)
		queue := m.filledQueue()
		queue.RemoveFunc(func(p *graph.Path) bool { return p == seed })
		for !queue.Empty() {
			p, _ := queue.HeapPop()
			if p.Len() == 0 {
				continue
			}
			if system.VerifyAdditionalStream(p) {
				system.Add(p)
				if !p.IsSplitted() {
					counter.RemoveFunc(func(x *graph.Path) bool { return x == p })
				}
				continue
			}
			for _, s := range m.splitPath(p, system.ConflictingVertexIDs(p)) {
				if s.Len() < p.Len() {
					queue.HeapPush(s, s.Cost())
				}
			}
		}
		m.systems = append(m.systems, system)
	}
}

// splitPath 在冲突路口处拆分路口级走廊
// 说明：保留顶点数不少于2的片段，片段收益由原走廊的代价表重新计算并取反
func (m *RegionalManager) splitPath(p *graph.Path, conflicting []int32) []*graph.Path {
	res := make([]*graph.Path, 0)
	segment := make([]int32, 0)
	flush := func() {
		if len(segment) >= 2 {
			s := graph.NewPath(segment, nil)
			s.SetOTC(true)
			s.AddCosts(p.Costs())
			s.UpdateCost()
			s.InvertCost(m.highestCost)
			s.SetSplitted(true)
			res = append(res, s)
		}
		segment = segment[:0]
	}
	for _, v := range p.Vertices() {
		if slices.Contains(conflicting, v) {
			flush()
			continue
		}
		segment = append(segment, v)
	}
	flush()
	return res
}

// chooseBestStreamSystem 选择收益最高且为正的系统
func (m *RegionalManager) chooseBestStreamSystem() {
	if len(m.systems) == 0 {
		log.Error("unable to choose best stream system: no systems available")
		return
	}
	best := 0.
	for _, s := range m.systems {
		if v := s.Benefit(); v > best {
			best = v
			m.activeSystem = s
		}
	}
	bestSystemBenefit.Set(best)
}

// generateNodeInformation 为全部登记路口生成走廊决策
func (m *RegionalManager) generateNodeInformation() {
	m.infos = make(map[int32]PSSInfo)
	if m.activeSystem == nil || m.activeSystem.Empty() {
		log.Debug("could not generate node infos: no active system")
	} else {
		for _, p := range m.activeSystem.Paths() {
			vs := p.Vertices()
			for i, v := range vs {
				if _, ok := m.nodes[v]; !ok || v <= 0 {
					log.Debugf("found invalid vertex %d while creating infos", v)
					continue
				}
				var pred, succ int32
				if i > 0 {
					pred = vs[i-1]
				}
				if i < len(vs)-1 {
					succ = vs[i+1]
				}
				m.infos[v] = NewActiveInfo(v, pred, succ, i == 0, i == len(vs)-1)
			}
		}
	}
	for id := range m.nodes {
		if _, ok := m.infos[id]; !ok {
			m.infos[id] = NewInactiveInfo(id)
		}
	}
}
