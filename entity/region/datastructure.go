package region

import (
	"fmt"
	"slices"
)

// TurningDataStructure 路口内两个子节点之间的转向流量边
type TurningDataStructure struct {
	Origin      int32   // 进口子节点
	Destination int32   // 出口子节点
	Weight      float64 // 转向流量（辆/小时）
}

// JunctionDataStructure 两个相邻路口之间的连接边，-1表示端点未知
type JunctionDataStructure struct {
	Origin      int32 // 上游路口的出口子节点
	Destination int32 // 下游路口的进口子节点
}

func newJunctionDataStructure() *JunctionDataStructure {
	return &JunctionDataStructure{Origin: -1, Destination: -1}
}

// NodeDataStructure 单个路口在一次区域计算中的图表示
// 功能：把路口拆分为面向各相邻路口（或路网边界路段）的进口/出口子节点，并记录子节点之间的转向流量
// 说明：子节点id为 路口id*100+序号，进口序号从0开始，出口序号从10开始；
// 边界路段与相邻路口分别编号，两者共用同一序号计数器
type NodeDataStructure struct {
	nodeID int32

	inNodes     map[int32]int32 // 相邻路口->进口子节点
	outNodes    map[int32]int32 // 相邻路口->出口子节点
	inSections  map[int32]int32 // 边界进口路段->进口子节点
	outSections map[int32]int32 // 边界出口路段->出口子节点

	entrySubNodes []int32 // 路网入口子节点
	exitSubNodes  []int32 // 路网出口子节点

	incoming []int32 // 上游相邻路口（按登记顺序）
	outgoing []int32 // 下游相邻路口（按登记顺序）

	innerEdges map[int64]*TurningDataStructure
	edgeOrder  []int64

	maxInNodeID  int32
	maxOutNodeID int32
}

// NewNodeDataStructure 创建空的路口图表示
func NewNodeDataStructure(nodeID int32) *NodeDataStructure {
	return &NodeDataStructure{
		nodeID:        nodeID,
		inNodes:       make(map[int32]int32),
		outNodes:      make(map[int32]int32),
		inSections:    make(map[int32]int32),
		outSections:   make(map[int32]int32),
		entrySubNodes: make([]int32, 0, 3),
		exitSubNodes:  make([]int32, 0, 3),
		incoming:      make([]int32, 0, 3),
		outgoing:      make([]int32, 0, 3),
		innerEdges:    make(map[int64]*TurningDataStructure),
		edgeOrder:     make([]int64, 0, 10),
		maxOutNodeID:  10,
	}
}

// AddEntryUsingTurnings 登记一个转向
// 功能：按上下游路口（或边界路段）分配子节点，添加或更新两个子节点间的转向流量边
// 参数：origin-上游受控路口（0表示路网边界），target-下游受控路口（0表示路网边界），
// weight-转向流量，inSectionID/outSectionID-转向的进出口路段
func (n *NodeDataStructure) AddEntryUsingTurnings(origin, target int32, weight float64, inSectionID, outSectionID int32) {
	if origin > 0 && !slices.Contains(n.incoming, origin) {
		n.incoming = append(n.incoming, origin)
	}
	if target > 0 && !slices.Contains(n.outgoing, target) {
		n.outgoing = append(n.outgoing, target)
	}
	inNodeID := n.inNodeID(origin, inSectionID)
	outNodeID := n.outNodeID(target, outSectionID)

	key := 1000000*int64(n.nodeID) + 1000*int64(inSectionID) + int64(outSectionID)
	if tds, ok := n.innerEdges[key]; ok {
		tds.Weight = weight
		return
	}
	n.innerEdges[key] = &TurningDataStructure{Origin: inNodeID, Destination: outNodeID, Weight: weight}
	n.edgeOrder = append(n.edgeOrder, key)
}

func (n *NodeDataStructure) inNodeID(origin, inSectionID int32) int32 {
	if origin > 0 {
		return n.subNodeID(n.inNodes, origin, &n.maxInNodeID)
	}
	id := n.subNodeID(n.inSections, inSectionID, &n.maxInNodeID)
	if id >= 0 && !slices.Contains(n.entrySubNodes, id) {
		n.entrySubNodes = append(n.entrySubNodes, id)
	}
	return id
}

func (n *NodeDataStructure) outNodeID(target, outSectionID int32) int32 {
	if target > 0 {
		return n.subNodeID(n.outNodes, target, &n.maxOutNodeID)
	}
	id := n.subNodeID(n.outSections, outSectionID, &n.maxOutNodeID)
	if id >= 0 && !slices.Contains(n.exitSubNodes, id) {
		n.exitSubNodes = append(n.exitSubNodes, id)
	}
	return id
}

func (n *NodeDataStructure) subNodeID(m map[int32]int32, key int32, counter *int32) int32 {
	if key < 0 {
		return -1
	}
	if id, ok := m[key]; ok {
		return id
	}
	id := n.nodeID*100 + *counter
	m[key] = id
	*counter++
	return id
}

func (n *NodeDataStructure) NodeID() int32 { return n.nodeID }

// InNodeIDForNeighbour 面向上游相邻路口的进口子节点，不存在时返回-1
func (n *NodeDataStructure) InNodeIDForNeighbour(id int32) int32 {
	if v, ok := n.inNodes[id]; ok {
		return v
	}
	return -1
}

// OutNodeIDForNeighbour 面向下游相邻路口的出口子节点，不存在时返回-1
func (n *NodeDataStructure) OutNodeIDForNeighbour(id int32) int32 {
	if v, ok := n.outNodes[id]; ok {
		return v
	}
	return -1
}

func (n *NodeDataStructure) InSubNodeIDs() []int32     { return n.entrySubNodes }
func (n *NodeDataStructure) OutSubNodeIDs() []int32    { return n.exitSubNodes }
func (n *NodeDataStructure) PredecessorNodes() []int32 { return n.incoming }
func (n *NodeDataStructure) SuccessorNodes() []int32   { return n.outgoing }

// TDS 全部转向流量边（按登记顺序）
func (n *NodeDataStructure) TDS() []TurningDataStructure {
	res := make([]TurningDataStructure, 0, len(n.edgeOrder))
	for _, k := range n.edgeOrder {
		res = append(res, *n.innerEdges[k])
	}
	return res
}

func (n *NodeDataStructure) String() string {
	return fmt.Sprintf("NodeDataStructure{node %d, in %v, out %v, %d turnings}", n.nodeID, n.inNodes, n.outNodes, len(n.edgeOrder))
}
