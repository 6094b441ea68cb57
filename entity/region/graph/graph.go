package graph

import (
	"errors"
	"fmt"
	"slices"

	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/agentsociety-greenwave/utils/container"
)

var (
	ErrNoEdge      = errors.New("no edge between vertices")
	ErrInvalidEdge = errors.New("edge has no valid start vertex")
	ErrInvalidPath = errors.New("invalid path")
)

// Graph 路网流量图
// 功能：保存一次计算快照中的全部顶点与边，支持代价取反、克隆与删边
// 说明：顶点与边存放在数组中，通过整数下标引用；删除的边以墓碑标记，
// 同时从顶点出边表和全局代价队列中移除
type Graph struct {
	vertices []vertex
	index    map[int32]int // 顶点id->顶点数组下标
	edges    []Edge
	alive    []bool
	order    *container.PriorityQueue[EdgeID] // 按当前代价排序的全局边队列

	inSubNodeIDs  []int32 // 路网入口子节点
	outSubNodeIDs []int32 // 路网出口子节点
}

// New 创建空图
func New() *Graph {
	return &Graph{
		vertices:      make([]vertex, 0),
		index:         make(map[int32]int),
		edges:         make([]Edge, 0),
		alive:         make([]bool, 0),
		order:         container.NewPriorityQueue[EdgeID](),
		inSubNodeIDs:  make([]int32, 0),
		outSubNodeIDs: make([]int32, 0),
	}
}

func (g *Graph) vertexWithUpdate(id int32) *vertex {
	i, ok := g.index[id]
	if !ok {
		i = len(g.vertices)
		g.vertices = append(g.vertices, vertex{id: id, out: make([]EdgeID, 0, 4)})
		g.index[id] = i
	}
	return &g.vertices[i]
}

// AddEdge 添加一条边
// 功能：按需创建起终点顶点，创建边并登记到起点出边表与全局代价队列
// 参数：from-起点id，to-终点id，cost-代价，intermediate-是否为路口间连接边
// 返回：新边的下标
func (g *Graph) AddEdge(from, to int32, cost float64, intermediate bool) EdgeID {
	id := EdgeID(len(g.edges))
	g.vertexWithUpdate(to)
	start := g.vertexWithUpdate(from)
	start.out = append(start.out, id)
	g.edges = append(g.edges, newEdge(id, from, to, cost, intermediate))
	g.alive = append(g.alive, true)
	g.order.HeapPush(id, cost)
	return id
}

// AddInSubNodeIDs 登记入口子节点（去重）
func (g *Graph) AddInSubNodeIDs(ids []int32) {
	for _, id := range ids {
		if !slices.Contains(g.inSubNodeIDs, id) {
			g.inSubNodeIDs = append(g.inSubNodeIDs, id)
		}
	}
}

// AddOutSubNodeIDs 登记出口子节点（去重）
func (g *Graph) AddOutSubNodeIDs(ids []int32) {
	for _, id := range ids {
		if !slices.Contains(g.outSubNodeIDs, id) {
			g.outSubNodeIDs = append(g.outSubNodeIDs, id)
		}
	}
}

func (g *Graph) InSubNodeIDs() []int32  { return g.inSubNodeIDs }
func (g *Graph) OutSubNodeIDs() []int32 { return g.outSubNodeIDs }

// HasVertex 顶点是否存在
func (g *Graph) HasVertex(id int32) bool {
	_, ok := g.index[id]
	return ok
}

// Edge 根据下标获取边（包括已删除的边）
func (g *Graph) Edge(id EdgeID) Edge {
	return g.edges[id]
}

// Alive 边是否仍在图中
func (g *Graph) Alive(id EdgeID) bool {
	return int(id) < len(g.alive) && g.alive[id]
}

// OutEdges 顶点的所有出边
func (g *Graph) OutEdges(vertexID int32) []Edge {
	i, ok := g.index[vertexID]
	if !ok {
		return nil
	}
	return lo.Map(g.vertices[i].out, func(id EdgeID, _ int) Edge { return g.edges[id] })
}

// EdgeBetween 获取两个顶点之间的第一条边
func (g *Graph) EdgeBetween(from, to int32) (Edge, error) {
	for _, e := range g.OutEdges(from) {
		if e.To == to {
			return e, nil
		}
	}
	return Edge{}, fmt.Errorf("%w: %d->%d", ErrNoEdge, from, to)
}

// Edges 图中所有未删除的边（按添加顺序）
func (g *Graph) Edges() []Edge {
	res := make([]Edge, 0, len(g.edges))
	for i, e := range g.edges {
		if g.alive[i] {
			res = append(res, e)
		}
	}
	return res
}

// NumEdges 未删除的边数
func (g *Graph) NumEdges() int {
	return g.order.Len()
}

// NumVertices 顶点数
func (g *Graph) NumVertices() int {
	return len(g.vertices)
}

// InvertCosts 以maxCost为基准对全部边代价取反，再次调用恢复原值
// 说明：代价变化后重建全局代价队列
func (g *Graph) InvertCosts(maxCost float64) {
	for i := range g.edges {
		g.edges[i].invert(maxCost)
	}
	g.rebuildOrder()
}

func (g *Graph) rebuildOrder() {
	g.order = container.NewPriorityQueue[EdgeID]()
	for i, e := range g.edges {
		if g.alive[i] {
			g.order.Push(e.ID, e.Cost)
		}
	}
	g.order.Heapify()
}

// Clone 结构独立的副本
// 功能：复制顶点、边与子节点列表，副本上的删边与取反不影响原图
func (g *Graph) Clone() *Graph {
	c := &Graph{
		vertices:      lo.Map(g.vertices, func(v vertex, _ int) vertex { return v.clone() }),
		index:         make(map[int32]int, len(g.index)),
		edges:         slices.Clone(g.edges),
		alive:         slices.Clone(g.alive),
		inSubNodeIDs:  slices.Clone(g.inSubNodeIDs),
		outSubNodeIDs: slices.Clone(g.outSubNodeIDs),
	}
	for k, v := range g.index {
		c.index[k] = v
	}
	c.rebuildOrder()
	return c
}

// EdgeQueue 按当前代价排序的边队列副本
// 说明：队列与图相互独立，出队不影响图
func (g *Graph) EdgeQueue() *container.PriorityQueue[EdgeID] {
	q := container.NewPriorityQueue[EdgeID]()
	if g.order.Len() == 0 {
		log.Warn("edge queue requested for a graph without edges")
		return q
	}
	for _, id := range g.order.Values() {
		q.Push(id, g.edges[id].Cost)
	}
	q.Heapify()
	return q
}

// EdgesForNode 获取某路口内部的全部转向边
// 功能：筛选起终点都属于同一路口nodeID的边，用于判断路口内相互竞争的转向
func (g *Graph) EdgesForNode(nodeID int32) []Edge {
	if nodeID <= 0 {
		log.Debugf("invalid node id %d for edge lookup", nodeID)
	}
	return lo.Filter(g.Edges(), func(e Edge, _ int) bool {
		if e.From <= 0 || e.To <= 0 {
			return false
		}
		return e.IsInternal() && e.ToNode() == nodeID
	})
}

// EdgesLeadingTo 获取以vertexID为终点的全部边
func (g *Graph) EdgesLeadingTo(vertexID int32) []Edge {
	return lo.Filter(g.Edges(), func(e Edge, _ int) bool {
		return e.To == vertexID
	})
}

// RemoveEdge 删除边
// 功能：从起点出边表、全局代价队列中移除该边并标记为已删除
// 返回：起点无效时返回ErrInvalidEdge
func (g *Graph) RemoveEdge(id EdgeID) error {
	if int(id) >= len(g.edges) {
		return fmt.Errorf("%w: unknown edge %d", ErrInvalidEdge, id)
	}
	e := g.edges[id]
	if e.From <= 0 {
		log.Warnf("cannot remove %v: edge has no start", e)
		return fmt.Errorf("%w: %v", ErrInvalidEdge, e)
	}
	if !g.alive[id] {
		return nil
	}
	if i, ok := g.index[e.From]; ok {
		g.vertices[i].removeOut(id)
	}
	g.alive[id] = false
	g.order.RemoveFunc(func(x EdgeID) bool { return x == id })
	return nil
}
