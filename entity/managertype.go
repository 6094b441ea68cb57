package entity

import (
	"github.com/tsinghua-fib-lab/agentsociety-greenwave/utils/input"
)

// Manager依赖倒置

// entity/road/manager.go的依赖倒置
type IRoadManager interface {
	Init(roads []input.Road) // 初始化

	// 输入Road ID，查找Road，如果不存在则panic
	Get(id int32) IRoad
	// 输入Road ID，查找Road，如果不存在则返回error
	GetOrError(id int32) (IRoad, error)
}

// entity/junction/manager.go的依赖倒置
type IJunctionManager interface {
	Init(junctions []input.Junction, roadManager IRoadManager) // 初始化

	// 输入Junction ID，查找Junction，如果不存在则panic
	Get(id int32) IJunction
	// 输入Junction ID，查找Junction，如果不存在则返回error
	GetOrError(id int32) (IJunction, error)
	// 全部受控路口，按id升序
	ControlledJunctions() []IJunction

	Prepare()          // 准备阶段
	Update(dt float64) // 更新阶段
}

// entity/statistics/statistics.go的依赖倒置，提供转向级流量与排队统计
// 说明：无数据时返回NaN
type IStatistics interface {
	Init(demands []input.Demand, junctionManager IJunctionManager) // 初始化

	// 转向在最近interval秒内的平均流量（辆/小时）
	TurningFlow(turningID int32, interval float64) float64
	// 转向在最近interval秒内的平均排队长度（辆）
	AverageQueue(turningID int32, interval float64) float64
}
