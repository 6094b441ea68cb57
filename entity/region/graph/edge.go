package graph

import (
	"fmt"
	"math"
	"strings"
)

// EdgeID 边在图内边数组中的下标
type EdgeID int32

// Edge 有向带权边
// 功能：表示一个转向流量（真实边）或两个相邻路口子节点之间的连接边（中间边）
// 说明：代价可取反，取反时记录原始代价，再次取反恢复原值
type Edge struct {
	ID           EdgeID
	From         int32   // 起点顶点id
	To           int32   // 终点顶点id
	Cost         float64 // 当前代价
	PrimaryCost  float64 // 取反前的原始代价，未取反时为-1
	Intermediate bool    // 是否为路口间的连接边
	Inverted     bool    // 代价是否已取反
}

func newEdge(id EdgeID, from, to int32, cost float64, intermediate bool) Edge {
	return Edge{
		ID:           id,
		From:         from,
		To:           to,
		Cost:         cost,
		PrimaryCost:  -1,
		Intermediate: intermediate,
	}
}

// invert 以maxCost为基准对代价取反，第二次调用恢复原值
func (e *Edge) invert(maxCost float64) {
	if !e.Inverted {
		e.PrimaryCost = e.Cost
		e.Cost = maxCost - e.Cost
		e.Inverted = true
	} else {
		e.Cost = e.PrimaryCost
		e.PrimaryCost = -1
		e.Inverted = false
	}
}

// TrueCost 返回未取反的代价（即转向流量）
func (e Edge) TrueCost() float64 {
	if e.Inverted {
		return e.PrimaryCost
	}
	return e.Cost
}

// FromNode 起点所属路口id
func (e Edge) FromNode() int32 {
	return e.From / 100
}

// ToNode 终点所属路口id
func (e Edge) ToNode() int32 {
	return e.To / 100
}

// IsInternal 起终点是否属于同一路口
func (e Edge) IsInternal() bool {
	return e.From > 0 && e.To > 0 && e.FromNode() == e.ToNode()
}

func (e Edge) valid() bool {
	return !math.IsNaN(e.Cost) && !math.IsInf(e.Cost, 0)
}

// String 边的描述信息
func (e Edge) String() string {
	sb := strings.Builder{}
	sb.WriteString(fmt.Sprintf("edge %d->%d", e.From, e.To))
	if e.Inverted {
		sb.WriteString(fmt.Sprintf(" inverted (primary %.2f)", e.PrimaryCost))
	}
	sb.WriteString(fmt.Sprintf(" cost %.2f", e.Cost))
	if e.Intermediate {
		sb.WriteString(" connector")
	}
	return sb.String()
}
