package graph

import (
	"math"
	"slices"
)

// System 无冲突走廊组合
// 说明：任意两条成员路径不共享顶点
type System struct {
	id    int
	paths []*Path
}

// NewSystem 创建走廊组合
func NewSystem(id int, paths ...*Path) *System {
	log.Debugf("created system %d", id)
	return &System{id: id, paths: slices.Clone(paths)}
}

func (s *System) ID() int        { return s.id }
func (s *System) Paths() []*Path { return s.paths }
func (s *System) Len() int       { return len(s.paths) }
func (s *System) Add(path *Path) { s.paths = append(s.paths, path) }
func (s *System) Empty() bool    { return len(s.paths) == 0 }

// Benefit 组合收益
// 功能：累加成员路径取反前的代价，代价为NaN或无穷的路径跳过
func (s *System) Benefit() float64 {
	benefit := 0.0
	for _, p := range s.paths {
		c := p.Cost()
		if math.IsNaN(c) || math.IsInf(c, 0) {
			log.Debugf("system %d contains path %v with invalid cost", s.id, p.Vertices())
			continue
		}
		benefit += p.Benefit()
	}
	log.Debugf("system %d consists of %d paths, benefit %.2f", s.id, len(s.paths), benefit)
	return benefit
}

// VerifyAdditionalStream 候选路径是否与全部成员无冲突
func (s *System) VerifyAdditionalStream(candidate *Path) bool {
	for _, p := range s.paths {
		if !p.ConflictFree(candidate) {
			return false
		}
	}
	return true
}

// ConflictingVertexIDs 候选路径中已被成员占用的顶点
func (s *System) ConflictingVertexIDs(candidate *Path) []int32 {
	contained := make(map[int32]struct{})
	for _, p := range s.paths {
		for _, v := range p.Vertices() {
			contained[v] = struct{}{}
		}
	}
	res := make([]int32, 0)
	for _, v := range candidate.Vertices() {
		if v <= 0 {
			log.Debugf("invalid vertex %d in candidate path", v)
			continue
		}
		if _, ok := contained[v]; ok {
			res = append(res, v)
		}
	}
	return res
}

// Contains 组合中是否存在包含该顶点的路径
func (s *System) Contains(vertexID int32) bool {
	for _, p := range s.paths {
		if p.Contains(vertexID) {
			return true
		}
	}
	return false
}
