package task

import (
	"flag"

	"github.com/sirupsen/logrus"
)

var (
	heartBeatInterval = flag.Int("log.heartbeat_interval", 100, "心跳日志间隔步数")

	log = logrus.WithField("module", "task")
)

// prepare 准备阶段，每步执行一次
// 功能：推进时钟，定期输出心跳日志，执行路口信号灯的准备工作
func (ctx *Context) prepare() {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	ctx.clock.Step()
	if *heartBeatInterval > 0 && ctx.clock.InternalStep%int32(*heartBeatInterval) == 0 {
		hour, minute, second := ctx.clock.GetHourMinuteSecond()
		log.Infof(
			"STEP: %d(%d:%d:%.2f) corridors: %v",
			ctx.clock.InternalStep,
			hour, minute, second,
			ctx.dpss.EstablishedCorridors(),
		)
	}
	ctx.junctionManager.Prepare()
}

// update 更新阶段，每步执行一次
// 算法说明：
// 1. 绿波协调：执行协商阶段、一致性检查、方案切换与非走廊路口的方案选择
// 2. 推进所有受控路口的信号灯
func (ctx *Context) update() {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	ctx.dpss.Execute(ctx.clock.T)
	ctx.junctionManager.Update(ctx.clock.DT)
}

// Step 执行一个时间步
func (ctx *Context) Step() {
	ctx.prepare()
	ctx.update()
}

// Run 运行到结束步或收到停止指令，结束后关闭输出
// 说明：需在Init之后调用
func (ctx *Context) Run() {
	for !ctx.clock.Finished() && !ctx.closed.Load() {
		ctx.Step()
	}
	log.Infof("engine complete, corridors: %v", ctx.dpss.EstablishedCorridors())
	ctx.Close()
}

// Stop 请求在当前时间步结束后停止
func (ctx *Context) Stop() {
	ctx.closed.Store(true)
}
