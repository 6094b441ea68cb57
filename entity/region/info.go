package region

import "fmt"

// PSSInfo 区域管理器下发给单个路口的走廊决策（不可变）
type PSSInfo struct {
	NodeID      int32
	Active      bool  // 是否属于走廊
	Start       bool  // 是否为走廊起点
	End         bool  // 是否为走廊终点
	Predecessor int32 // 走廊中的前驱路口，0表示无
	Successor   int32 // 走廊中的后继路口，0表示无
}

// NewActiveInfo 走廊成员的决策
func NewActiveInfo(nodeID, pred, succ int32, start, end bool) PSSInfo {
	return PSSInfo{NodeID: nodeID, Active: true, Start: start, End: end, Predecessor: pred, Successor: succ}
}

// NewInactiveInfo 不属于任何走廊的路口的决策
func NewInactiveInfo(nodeID int32) PSSInfo {
	return PSSInfo{NodeID: nodeID}
}

func (i PSSInfo) String() string {
	if !i.Active {
		return fmt.Sprintf("PSSInfo{node %d inactive}", i.NodeID)
	}
	return fmt.Sprintf("PSSInfo{node %d pred %d succ %d start %v end %v}", i.NodeID, i.Predecessor, i.Successor, i.Start, i.End)
}
