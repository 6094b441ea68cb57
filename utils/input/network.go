package input

import (
	"errors"
	"fmt"
	"slices"

	"github.com/samber/lo"
)

var ErrInvalidNetwork = errors.New("invalid network")

// Road 路段
// 说明：Predecessor/Successor为上下游路口id，0表示路网边界（起讫点）
type Road struct {
	ID          int32   `yaml:"id" bson:"id"`
	Name        string  `yaml:"name,omitempty" bson:"name,omitempty"`
	Length      float64 `yaml:"length" bson:"length"`       // 长度（米）
	MaxSpeed    float64 `yaml:"max_speed" bson:"max_speed"` // 限速（米/秒）
	Predecessor int32   `yaml:"predecessor" bson:"predecessor"`
	Successor   int32   `yaml:"successor" bson:"successor"`
}

// Turning 转向，从进口路段到出口路段
type Turning struct {
	ID  int32 `yaml:"id" bson:"id"`
	In  int32 `yaml:"in" bson:"in"`
	Out int32 `yaml:"out" bson:"out"`
}

// Phase 相位，相位id为其在列表中的位置（从1开始）
type Phase struct {
	Duration   float64 `yaml:"duration" bson:"duration"`
	Interphase bool    `yaml:"interphase,omitempty" bson:"interphase,omitempty"`
	Turnings   []int32 `yaml:"turnings,omitempty" bson:"turnings,omitempty"`
}

// Junction 路口
type Junction struct {
	ID         int32     `yaml:"id" bson:"id"`
	Name       string    `yaml:"name,omitempty" bson:"name,omitempty"`
	Controlled bool      `yaml:"controlled" bson:"controlled"`
	Controller string    `yaml:"controller,omitempty" bson:"controller,omitempty"` // fixed_time|fixed_time_recall|nema
	Turnings   []Turning `yaml:"turnings" bson:"turnings"`
	Phases     []Phase   `yaml:"phases,omitempty" bson:"phases,omitempty"`
}

// Sample 需求曲线上的一个采样点，流量保持到下一个采样点
type Sample struct {
	Time float64 `yaml:"time" bson:"time"` // 开始时刻（秒）
	Flow float64 `yaml:"flow" bson:"flow"` // 流量（辆/小时）
}

// Demand 一个转向的流量需求曲线
type Demand struct {
	Turning int32    `yaml:"turning" bson:"turning"`
	Profile []Sample `yaml:"profile" bson:"profile"`
}

// Network 路网、信控与需求数据
type Network struct {
	Roads     []Road     `yaml:"roads" bson:"roads"`
	Junctions []Junction `yaml:"junctions" bson:"junctions"`
	Demands   []Demand   `yaml:"demands,omitempty" bson:"demands,omitempty"`
}

// networkIDs 路网ID集合
// 功能：存储各种路网元素的ID集合，用于引用校验
type networkIDs struct {
	roadIDs     map[int32]struct{} // 路段ID集合
	junctionIDs map[int32]struct{} // 路口ID集合
	turningIDs  map[int32]int32    // 转向ID->所属路口ID
}

// Validate 检查路网数据的一致性
// 功能：检查ID唯一性、路段与路口的引用关系、转向与相位的引用关系
// 算法说明：
// 1. 构建ID集合，发现重复ID时返回错误
// 2. 路段的上下游路口必须存在（0除外）
// 3. 转向的进口路段必须以该路口为下游，出口路段必须以该路口为上游
// 4. 相位只能引用本路口的转向，受控路口必须至少有一个非过渡相位
// 5. 需求只能引用已存在的转向，采样点按时间升序
func (n *Network) Validate() error {
	ids := networkIDs{
		roadIDs:     make(map[int32]struct{}),
		junctionIDs: make(map[int32]struct{}),
		turningIDs:  make(map[int32]int32),
	}
	roads := make(map[int32]Road, len(n.Roads))
	for _, r := range n.Roads {
		if _, ok := ids.roadIDs[r.ID]; ok {
			return fmt.Errorf("%w: duplicated road id %d", ErrInvalidNetwork, r.ID)
		}
		ids.roadIDs[r.ID] = struct{}{}
		roads[r.ID] = r
	}
	for _, j := range n.Junctions {
		if j.ID <= 0 {
			return fmt.Errorf("%w: junction id %d must be positive", ErrInvalidNetwork, j.ID)
		}
		if _, ok := ids.junctionIDs[j.ID]; ok {
			return fmt.Errorf("%w: duplicated junction id %d", ErrInvalidNetwork, j.ID)
		}
		ids.junctionIDs[j.ID] = struct{}{}
	}
	for _, r := range n.Roads {
		for _, jid := range []int32{r.Predecessor, r.Successor} {
			if _, ok := ids.junctionIDs[jid]; jid != 0 && !ok {
				return fmt.Errorf("%w: road %d references unknown junction %d", ErrInvalidNetwork, r.ID, jid)
			}
		}
	}
	for _, j := range n.Junctions {
		for _, t := range j.Turnings {
			if _, ok := ids.turningIDs[t.ID]; ok {
				return fmt.Errorf("%w: duplicated turning id %d", ErrInvalidNetwork, t.ID)
			}
			ids.turningIDs[t.ID] = j.ID
			in, ok := roads[t.In]
			if !ok || in.Successor != j.ID {
				return fmt.Errorf("%w: turning %d in-section %d does not end at junction %d", ErrInvalidNetwork, t.ID, t.In, j.ID)
			}
			out, ok := roads[t.Out]
			if !ok || out.Predecessor != j.ID {
				return fmt.Errorf("%w: turning %d out-section %d does not start at junction %d", ErrInvalidNetwork, t.ID, t.Out, j.ID)
			}
		}
		own := lo.Map(j.Turnings, func(t Turning, _ int) int32 { return t.ID })
		for i, p := range j.Phases {
			for _, tid := range p.Turnings {
				if !slices.Contains(own, tid) {
					return fmt.Errorf("%w: phase %d of junction %d serves foreign turning %d", ErrInvalidNetwork, i+1, j.ID, tid)
				}
			}
			if p.Duration < 0 {
				return fmt.Errorf("%w: phase %d of junction %d has negative duration", ErrInvalidNetwork, i+1, j.ID)
			}
		}
		if j.Controlled && !lo.ContainsBy(j.Phases, func(p Phase) bool { return !p.Interphase && p.Duration > 0 }) {
			return fmt.Errorf("%w: controlled junction %d has no green phase", ErrInvalidNetwork, j.ID)
		}
	}
	for _, d := range n.Demands {
		if _, ok := ids.turningIDs[d.Turning]; !ok {
			return fmt.Errorf("%w: demand references unknown turning %d", ErrInvalidNetwork, d.Turning)
		}
		if !slices.IsSortedFunc(d.Profile, func(a, b Sample) int {
			switch {
			case a.Time < b.Time:
				return -1
			case a.Time > b.Time:
				return 1
			}
			return 0
		}) {
			return fmt.Errorf("%w: demand profile of turning %d is not sorted by time", ErrInvalidNetwork, d.Turning)
		}
	}
	return nil
}
