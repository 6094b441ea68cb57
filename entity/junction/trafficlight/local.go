package trafficlight

import (
	"fmt"

	"github.com/tsinghua-fib-lab/agentsociety-greenwave/clock"
	"github.com/tsinghua-fib-lab/agentsociety-greenwave/entity"
)

// localTlRuntime 本地信号灯运行时数据结构
// 功能：存储定周期信号灯的运行时状态，包括参数集、相位索引、时间控制等
type localTlRuntime struct {
	params       entity.TLCParameters
	tlStep       int32   // 当前相位下标（从0开始）
	tlTotalTime  float64 // 当前相位总时长
	tlRemainingT float64 // 当前相位剩余时长
	lastChange   float64 // 当前相位开始时刻
}

// LocalTrafficLight 本地定周期信号灯控制器
// 功能：按照参数集的相位顺序和时长循环切换
// 说明：新参数集写入buffer，在下一次Update开始时生效
type LocalTrafficLight struct {
	clock *clock.Clock

	junctionID int32

	snapshot localTlRuntime  // snapshot，用于保存输出的数据
	runtime  localTlRuntime  // 运行时数据
	buffer   *localTlRuntime // 数据buffer，用于切换指令写入
}

// NewLocalTrafficLight 创建定周期信号灯控制器
// 参数：clock-仿真时钟，junctionID-路口ID，params-初始参数集
func NewLocalTrafficLight(clock *clock.Clock, junctionID int32, params entity.TLCParameters) (*LocalTrafficLight, error) {
	l := &LocalTrafficLight{
		clock:      clock,
		junctionID: junctionID,
	}
	if err := l.check(params); err != nil {
		return nil, err
	}
	l.runtime = l.start(params, clock.T)
	l.snapshot = l.runtime
	return l, nil
}

func (l *LocalTrafficLight) check(params entity.TLCParameters) error {
	if params.IsZero() {
		return fmt.Errorf("set junction %d with empty traffic light", l.junctionID)
	}
	if len(params.Durations) != len(params.Interphase) || len(params.Durations) != len(params.PhaseIDs) {
		return fmt.Errorf("junction %d: inconsistent parameter lengths", l.junctionID)
	}
	if params.CycleTime() <= 0 && params.Type != entity.FixedTimeRecall {
		return fmt.Errorf("junction %d: cycle time must be positive", l.junctionID)
	}
	return nil
}

func (l *LocalTrafficLight) start(params entity.TLCParameters, now float64) localTlRuntime {
	return localTlRuntime{
		params:       params,
		tlStep:       0,
		tlTotalTime:  params.Durations[0],
		tlRemainingT: params.Durations[0],
		lastChange:   now,
	}
}

// current 最新的运行时状态（包括尚未生效的buffer）
func (l *LocalTrafficLight) current() *localTlRuntime {
	if l.buffer != nil {
		return l.buffer
	}
	return &l.runtime
}

// Prepare 准备阶段，写入snapshot
func (l *LocalTrafficLight) Prepare() {
	l.snapshot = l.runtime
}

// Update 更新阶段，执行定周期信号灯的核心逻辑
// 参数：dt-时间步长
// 算法说明：
// 1. 处理buffer中的新参数集
// 2. 扣减当前相位剩余时间
// 3. 剩余时间耗尽时切换到下一相位，跳过时长为0的相位，记录相位开始时刻
func (l *LocalTrafficLight) Update(dt float64) {
	if l.buffer != nil {
		l.runtime = *l.buffer
		l.buffer = nil
	}
	if l.runtime.params.IsZero() {
		return
	}
	end := l.clock.T + dt
	l.runtime.tlRemainingT -= dt
	if l.runtime.tlRemainingT <= 0 {
		n := int32(len(l.runtime.params.Durations))
		// 防止全部相位时长为0时死循环
		for range n {
			l.runtime.tlStep = (l.runtime.tlStep + 1) % n
			d := l.runtime.params.Durations[l.runtime.tlStep]
			if d <= 0 {
				continue
			}
			l.runtime.lastChange = end + l.runtime.tlRemainingT
			l.runtime.tlRemainingT += d
			if l.runtime.tlRemainingT > 0 {
				l.runtime.tlTotalTime = d
				break
			}
		}
	}
}

// Activate 切换到新的参数集，从第一个相位开始
// 参数：params-新参数集，now-切换时刻
func (l *LocalTrafficLight) Activate(params entity.TLCParameters, now float64) {
	if err := l.check(params); err != nil {
		log.Errorf("activate: %v", err)
		return
	}
	rt := l.start(params, now)
	l.buffer = &rt
}

// Parameters 当前参数集
func (l *LocalTrafficLight) Parameters() entity.TLCParameters {
	return l.current().params
}

// CurrentPhaseID 当前相位id（从1开始）
func (l *LocalTrafficLight) CurrentPhaseID() int32 {
	rt := l.current()
	return rt.params.PhaseIDs[rt.tlStep]
}

// TimeOfLastChange 当前相位开始时刻
func (l *LocalTrafficLight) TimeOfLastChange() float64 {
	return l.current().lastChange
}

// RemainingTime 当前相位剩余时长（snapshot）
func (l *LocalTrafficLight) RemainingTime() float64 {
	return l.snapshot.tlRemainingT
}

// Step 当前相位下标（snapshot）
func (l *LocalTrafficLight) Step() int32 {
	return l.snapshot.tlStep
}

var _ entity.ITrafficLight = (*LocalTrafficLight)(nil)
