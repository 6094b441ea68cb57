package graph

import "slices"

// vertex 图中的顶点记录
// 说明：只保存出边下标，边本身存放在图的边数组中
type vertex struct {
	id  int32
	out []EdgeID
}

func (v *vertex) removeOut(id EdgeID) bool {
	i := slices.Index(v.out, id)
	if i < 0 {
		return false
	}
	v.out = slices.Delete(v.out, i, i+1)
	return true
}

func (v vertex) clone() vertex {
	return vertex{id: v.id, out: slices.Clone(v.out)}
}
