package entity

import (
	"fmt"
	"math"
)

// Turning 路口内从一个进口路段到一个出口路段的转向
type Turning struct {
	ID         int32
	InSection  int32
	OutSection int32
}

func (t Turning) String() string {
	return fmt.Sprintf("Turning{%d: %d->%d}", t.ID, t.InSection, t.OutSection)
}

// Phase 信号相位
type Phase struct {
	ID              int32
	DefaultDuration float64
	Interphase      bool
	Turnings        []int32 // 该相位放行的转向
}

// Serves 相位是否放行该转向
func (p Phase) Serves(turningID int32) bool {
	for _, t := range p.Turnings {
		if t == turningID {
			return true
		}
	}
	return false
}

// Route 从本路口到相邻受控路口的一条路段序列
type Route struct {
	Neighbour  int32   // 目标路口
	Sections   []int32 // 经过的路段，第一个为本路口的出口路段，最后一个为目标路口的进口路段
	Length     float64 // 总长度（米），无效长度按0计
	TravelTime float64 // 自由流行驶时间（秒）
}

// Offset 行驶时间取整后的时差（秒）
func (r Route) Offset() int {
	return int(math.Round(r.TravelTime))
}

// FirstSection 第一条路段，空路径返回-1
func (r Route) FirstSection() int32 {
	if len(r.Sections) == 0 {
		return -1
	}
	return r.Sections[0]
}

// LastSection 最后一条路段，空路径返回-1
func (r Route) LastSection() int32 {
	if len(r.Sections) == 0 {
		return -1
	}
	return r.Sections[len(r.Sections)-1]
}

// Situation 路口交通状况，按相位顺序给出各相位服务的流量（辆/小时）
type Situation []float64

// entity/road/road.go的依赖倒置
type IRoad interface {
	ID() int32
	Length() float64
	MaxSpeed() float64
	TravelTime() float64
	PredecessorJunction() int32 // 上游路口id，0表示路网边界
	SuccessorJunction() int32   // 下游路口id，0表示路网边界
}

// 信号灯运行时接口
type ITrafficLight interface {
	Parameters() TLCParameters                  // 当前执行的参数集
	CurrentPhaseID() int32                      // 当前相位id（从1开始）
	TimeOfLastChange() float64                  // 当前相位开始时刻
	Activate(params TLCParameters, now float64) // 切换到新参数集并从第一个相位开始
}

// 信控方案选择机制接口
type IControllerSelector interface {
	DistributeReward(evaluation float64)
	SelectAction(situation Situation, cycle int) (TLCParameters, error)
	DesiredCycleTime(situation Situation) (int, error)
	DesiredTLC(situation Situation, cycle int) (TLCParameters, error)
	PredictionForActiveAction(hash uint64) float64
	PredictionForAction(hash uint64, situation Situation, cycle int) float64
}

// entity/junction/junction.go的依赖倒置，提供路口拓扑与信控
type IJunction interface {
	ID() int32
	Name() string
	Controlled() bool

	Neighbours() []int32                                  // 相邻受控路口（上下游），按id升序
	IsNeighbour(id int32) bool                            // 是否为相邻受控路口
	Turnings() []Turning                                  // 全部转向
	InSections() []int32                                  // 全部进口路段
	TurningsForIncomingSection(sectionID int32) []Turning // 从该进口路段出发的转向
	TurningsForNeighbour(id int32) []Turning              // 通往相邻路口的转向
	SendingNodes(sectionID int32) []int32                 // 向该进口路段输送车辆的上游受控路口
	NextJunction(outSectionID int32) (int32, []int32)     // 沿出口路段到达的下一个受控路口及路段序列，0表示路网边界
	PreviousJunction(inSectionID int32) (int32, []int32)  // 沿进口路段上溯到的上一个受控路口及路段序列
	RoutesToNeighbour(id int32) []Route                   // 到相邻路口的全部路径

	PhasesForTurning(turningID int32) []Phase  // 放行该转向的相位
	Phase(id int32) (Phase, bool)              // 根据id获取相位
	PhaseIDs() []int32                         // 全部相位id
	EstimatedPhaseStart(phaseID int32) float64 // 相位在当前周期中的预计开始时刻

	TrafficLight() ITrafficLight   // 信号灯运行时
	Selector() IControllerSelector // 信控方案选择机制
	Situation() Situation          // 当前交通状况
	Evaluation() float64           // 当前信控效果评价（越大越好）
}
