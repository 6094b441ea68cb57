package region

import (
	"fmt"
	"math"

	"github.com/tsinghua-fib-lab/agentsociety-greenwave/entity"
)

// CommandKind 信号灯切换指令的类型
type CommandKind int

const (
	CommandTemporary CommandKind = iota // 切换到过渡方案
	CommandFinal                        // 切换到协商得到的最终方案
	CommandLocal                        // 非走廊路口自行选择的方案
)

func (k CommandKind) String() string {
	switch k {
	case CommandTemporary:
		return "temp"
	case CommandFinal:
		return "final"
	case CommandLocal:
		return "local"
	}
	return fmt.Sprintf("CommandKind(%d)", int(k))
}

// Command 需要立即执行的信号灯切换
type Command struct {
	JunctionID int32
	Params     entity.TLCParameters
	Kind       CommandKind
}

// changeTLCWithOffset 安排按相位差切换到新方案
// 功能：记录最终方案，并计算在当前周期结束时启用、在新相位差生效时停用的过渡方案
func (n *Node) changeTLCWithOffset(params entity.TLCParameters) error {
	switch params.Type {
	case entity.FixedTime, entity.NEMA:
		n.replaceTLC = params
		return n.determineTempTLCParams()
	case entity.FixedTimeRecall:
		return fmt.Errorf("%w: offsets for %v", entity.ErrUnsupportedTLC, params.Type)
	}
	return fmt.Errorf("%w: %v", entity.ErrUnsupportedTLC, params.Type)
}

// determineTempTLCParams 计算过渡方案及其启用、停用时刻
// 算法说明：
// 1. 过渡方案在当前方案的本周期结束时启用
// 2. 在 当前时刻+公共周期+相位差 时停用并切换到最终方案
// 3. 过渡方案的周期为两者之差；周期过短无法构造时延长一个公共周期
func (n *Node) determineTempTLCParams() error {
	tl := n.junction.TrafficLight()
	active := tl.Parameters()
	if active.Type != entity.FixedTime && active.Type != entity.NEMA {
		return fmt.Errorf("%w: bridging from %v", entity.ErrUnsupportedTLC, active.Type)
	}
	now := n.now()
	remaining := 0.
	for i := int(tl.CurrentPhaseID()) - 1; i >= 0 && i < len(active.Durations); i++ {
		remaining += active.Durations[i]
	}
	remaining -= now - tl.TimeOfLastChange()

	n.timeToActivateTempTLC = now + remaining
	n.changeDelay = n.timeToActivateTempTLC
	n.timeToDeactivateTempTLC = now + float64(n.agreedCycleTime+n.offset)
	cycle := int(math.Floor(n.timeToDeactivateTempTLC - n.timeToActivateTempTLC))
	temp, err := active.AdaptCycleTime(cycle)
	if err != nil {
		cycle += n.agreedCycleTime
		if temp, err = active.AdaptCycleTime(cycle); err != nil {
			n.timeToActivateTempTLC = -1
			n.timeToDeactivateTempTLC = -1
			return fmt.Errorf("bridge controller of %ds for node %d: %w", cycle, n.ID(), err)
		}
		n.timeToDeactivateTempTLC = now + float64(2*n.agreedCycleTime+n.offset)
	}
	n.tempTLC = temp
	log.Debugf("node %d: temporary controller from %.2f, final controller from %.2f", n.ID(), n.timeToActivateTempTLC, n.timeToDeactivateTempTLC)
	return nil
}

// ReplaceTempTLC 到达计划时刻时生成切换指令（每个时间步调用）
// 说明：每次切换只生成一次，生成后清除对应的待执行状态
func (n *Node) ReplaceTempTLC(now float64) []Command {
	var res []Command
	if n.timeToActivateTempTLC > 0 && n.timeToActivateTempTLC <= now {
		res = append(res, Command{JunctionID: n.ID(), Params: n.tempTLC, Kind: CommandTemporary})
		n.changeDelay = n.timeToDeactivateTempTLC
		n.timeToActivateTempTLC = -1
		n.tempTLC = entity.TLCParameters{}
	}
	if n.timeToDeactivateTempTLC > 0 && n.timeToDeactivateTempTLC <= now {
		res = append(res, Command{JunctionID: n.ID(), Params: n.replaceTLC, Kind: CommandFinal})
		n.timeToDeactivateTempTLC = -1
		n.replaceTLC = entity.TLCParameters{}
	}
	return res
}

// SelectLocalTLC 不属于走廊的路口自行选择方案
// 返回：方案与当前方案不同时返回切换指令与true；尚有待执行的切换时返回ErrChangeDelayed
func (n *Node) SelectLocalTLC() (Command, bool, error) {
	tl := n.junction.TrafficLight()
	if n.partOfPSS || tl == nil {
		return Command{}, false, nil
	}
	params, err := n.selectForCycle(0)
	if err != nil {
		return Command{}, false, err
	}
	if params.Hash() == tl.Parameters().Hash() {
		return Command{}, false, nil
	}
	if now := n.now(); now < n.changeDelay {
		return Command{}, false, fmt.Errorf("%w: node %d until %.2f", ErrChangeDelayed, n.ID(), n.changeDelay)
	}
	return Command{JunctionID: n.ID(), Params: params, Kind: CommandLocal}, true, nil
}
