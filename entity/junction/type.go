package junction

import (
	"github.com/tsinghua-fib-lab/agentsociety-greenwave/entity"
)

// 依赖倒置，表达junction对信号灯实现的接口需求

// 信号灯接口
type ITrafficLight interface {
	entity.ITrafficLight
	Prepare()               // 准备阶段，写入snapshot
	Update(dt float64)      // 更新阶段，更新信控结果
	Step() int32            // 当前相位下标
	RemainingTime() float64 // 当前相位剩余时长
}
