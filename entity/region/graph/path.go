package graph

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/samber/lo"
)

// Path 候选绿波走廊
// 功能：有序的顶点序列及其对应的边序列，附带收益代价与按路口拆分的代价表
// 说明：子节点级路径的顶点为子节点id，路口级路径（IsOTC）的顶点为路口id；
// 顶点数小于2的路径不可作为走廊使用
type Path struct {
	vertices []int32
	edges    []Edge

	cost        float64
	initialCost float64           // 取反前的代价，未取反时为-1
	costs       map[int32]float64 // 路口id->该路口真实转向的流量

	inverted bool
	otc      bool // 是否为路口级路径
	splitted bool // 是否为拆分得到的片段
}

// NewPathFromEdges 由连续的边序列构造路径
// 说明：顶点序列为第一条边的起点加上每条边的终点
func NewPathFromEdges(edges []Edge) (*Path, error) {
	if len(edges) == 0 {
		return nil, fmt.Errorf("%w: empty edge list", ErrInvalidPath)
	}
	vertices := make([]int32, 0, len(edges)+1)
	vertices = append(vertices, edges[0].From)
	for i, e := range edges {
		if i > 0 && edges[i-1].To != e.From {
			return nil, fmt.Errorf("%w: edge %v does not continue %v", ErrInvalidPath, e, edges[i-1])
		}
		vertices = append(vertices, e.To)
	}
	return newPath(vertices, slices.Clone(edges)), nil
}

// NewPath 由顶点序列和边序列构造路径
// 参数：vertices-顶点序列，edges-相邻顶点之间的边，缺失的边在查找时按无边处理
func NewPath(vertices []int32, edges []Edge) *Path {
	return newPath(slices.Clone(vertices), slices.Clone(edges))
}

func newPath(vertices []int32, edges []Edge) *Path {
	return &Path{
		vertices:    vertices,
		edges:       edges,
		initialCost: -1,
		costs:       make(map[int32]float64),
	}
}

func (p *Path) Vertices() []int32 { return p.vertices }
func (p *Path) Edges() []Edge     { return p.edges }

// Len 路径顶点数
func (p *Path) Len() int { return len(p.vertices) }

// Origin 起点，空路径返回-1
func (p *Path) Origin() int32 {
	if len(p.vertices) == 0 {
		return -1
	}
	return p.vertices[0]
}

func (p *Path) Cost() float64        { return p.cost }
func (p *Path) SetCost(c float64)    { p.cost = c }
func (p *Path) InitialCost() float64 { return p.initialCost }
func (p *Path) IsInverted() bool     { return p.inverted }
func (p *Path) IsOTC() bool          { return p.otc }
func (p *Path) SetOTC(v bool)        { p.otc = v }
func (p *Path) IsSplitted() bool     { return p.splitted }
func (p *Path) SetSplitted(v bool)   { p.splitted = v }

// Costs 路口id->流量代价表
func (p *Path) Costs() map[int32]float64 { return p.costs }

// SetCosts 替换代价表
func (p *Path) SetCosts(costs map[int32]float64) {
	if costs == nil {
		costs = make(map[int32]float64)
	}
	p.costs = costs
}

// AddCosts 从costs中复制属于本路径顶点的条目
func (p *Path) AddCosts(costs map[int32]float64) {
	for id, c := range costs {
		if p.Contains(id) {
			p.costs[id] = c
		}
	}
}

// Benefit 取反前的收益
func (p *Path) Benefit() float64 {
	if p.inverted {
		return p.initialCost
	}
	return p.cost
}

// InvertCost 以value为基准对路径代价取反，再次调用恢复原值
func (p *Path) InvertCost(value float64) {
	if p.inverted {
		p.inverted = false
		p.cost = p.initialCost
		p.initialCost = -1
		return
	}
	p.inverted = true
	p.initialCost = p.cost
	p.cost = value - p.cost
}

// UpdateCost 根据代价表重新计算路径收益
// 功能：对除第一个路口外的每个路口累加其流量（首个路口的车辆不计为收益）
// 说明：代价表缺少某个路口时记录调试信息并按0计
func (p *Path) UpdateCost() {
	if len(p.vertices) == 0 || len(p.costs) == 0 {
		log.Debugf("cannot update cost of path %v: no costs", p.vertices)
	}
	sum := 0.0
	for i, v := range p.vertices {
		c, ok := p.costs[v]
		if !ok {
			log.Debugf("path %v has no cost for node %d (known %v)", p.vertices, v, lo.Keys(p.costs))
			continue
		}
		if i == 0 || math.IsNaN(c) || math.IsInf(c, 0) {
			continue
		}
		sum += c
	}
	p.cost = sum
}

// Contains 路径是否包含顶点
func (p *Path) Contains(vertexID int32) bool {
	if slices.Contains(p.vertices, vertexID) {
		return true
	}
	return lo.ContainsBy(p.edges, func(e Edge) bool { return e.To == vertexID })
}

// ConflictFree 两条路径是否没有公共顶点
// 返回：other中任一有效顶点出现在本路径中时返回false
func (p *Path) ConflictFree(other *Path) bool {
	for _, v := range other.vertices {
		if v >= 0 && p.Contains(v) {
			return false
		}
	}
	return true
}

// EdgeBetween 获取路径内两个顶点间的边
func (p *Path) EdgeBetween(from, to int32) (Edge, error) {
	for _, e := range p.edges {
		if e.From == from && e.To == to {
			return e, nil
		}
	}
	return Edge{}, fmt.Errorf("%w: %d->%d", ErrNoEdge, from, to)
}

// Predecessor 路径中有边指向vertexID的第一个顶点
func (p *Path) Predecessor(vertexID int32) (int32, error) {
	for _, e := range p.edges {
		if e.To == vertexID {
			return e.From, nil
		}
	}
	return -1, fmt.Errorf("%w: no predecessor for vertex %d", ErrNoEdge, vertexID)
}

// String 路径描述
func (p *Path) String() string {
	ids := lo.Map(p.vertices, func(v int32, _ int) string { return fmt.Sprint(v) })
	return fmt.Sprintf("[%s] benefit %.2f", strings.Join(ids, ","), p.Benefit())
}
