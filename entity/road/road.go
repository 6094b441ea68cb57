package road

import (
	"fmt"
	"math"

	"github.com/tsinghua-fib-lab/agentsociety-greenwave/entity"
	"github.com/tsinghua-fib-lab/agentsociety-greenwave/utils/input"
)

// 限速缺失时使用的默认车速（米/秒，50km/h）
const defaultMaxSpeed = 50 / 3.6

// Road 路段实体
// 功能：表示两个路口之间的一条有向路段
type Road struct {
	id       int32
	name     string
	length   float64
	maxSpeed float64

	predecessor int32 // 上游路口，0表示路网边界
	successor   int32 // 下游路口，0表示路网边界
}

// newRoad 创建并初始化一个新的Road实例
// 说明：长度为负或非数时按0计，限速缺失时使用默认车速
func newRoad(base input.Road) *Road {
	r := &Road{
		id:          base.ID,
		name:        base.Name,
		length:      base.Length,
		maxSpeed:    base.MaxSpeed,
		predecessor: base.Predecessor,
		successor:   base.Successor,
	}
	if math.IsNaN(r.length) || r.length < 0 {
		log.Warnf("road %d has invalid length %v, use 0", r.id, base.Length)
		r.length = 0
	}
	if r.maxSpeed <= 0 {
		r.maxSpeed = defaultMaxSpeed
	}
	return r
}

// ID 获取Road的唯一标识符
// 返回：Road的ID，如果Road为nil则返回-1
func (r *Road) ID() int32 {
	if r == nil {
		return -1
	}
	return r.id
}

// String 获取Road的字符串表示
func (r *Road) String() string {
	if r.name != "" {
		return fmt.Sprintf("Road %d (%s)", r.id, r.name)
	}
	return fmt.Sprintf("Road %d", r.id)
}

func (r *Road) Length() float64            { return r.length }
func (r *Road) MaxSpeed() float64          { return r.maxSpeed }
func (r *Road) PredecessorJunction() int32 { return r.predecessor }
func (r *Road) SuccessorJunction() int32   { return r.successor }

// TravelTime 以限速通过路段的时间（秒）
func (r *Road) TravelTime() float64 {
	return r.length / r.maxSpeed
}

var _ entity.IRoad = (*Road)(nil)
