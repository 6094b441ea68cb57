package region

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsinghua-fib-lab/agentsociety-greenwave/utils/config"
)

func checkingManager(ctx *fakeContext, net *Negotiator) *DPSSManager {
	return &DPSSManager{
		ctx:                 ctx,
		net:                 net,
		pss:                 ctx.rc.PSS,
		updateFromPhase:     -1,
		nextTimeForPSSCheck: 50,
	}
}

func TestPerformDPSSUpdateRenegotiatesCycleTime(t *testing.T) {
	local := false
	ctx, net, _, j2 := corridorFixture(t, config.PSS{Decentral: true, UseNeighbourStreams: &local}, 100)
	j2.selector.desired = 75
	n1, n2 := mustNode(t, net, 1), mustNode(t, net, 2)
	n1.CheckChangeDemand()
	require.True(t, n1.RunSynchPhase())

	m := checkingManager(ctx, net)
	m.performDPSSUpdate(ctx.clock.T)

	assert.False(t, m.ActiveRun())
	assert.False(t, n1.RunSynchPhase())
	assert.Equal(t, -1, m.updateFromPhase)
	assert.Equal(t, 75, n1.AgreedCycleTime())
	assert.Equal(t, 75, n2.AgreedCycleTime())
	assert.Equal(t, 0, n1.Offset())
	// 行驶时间20秒，两路口同步相位均从0秒开始，无排队修正
	assert.Equal(t, 20, n2.Offset())
	assert.Equal(t, offsetFor(n1.Offset(), n1.SyncStart(), 20, n2.SyncStart(), n2.QueueAdjustment(), 75), n2.Offset())

	// 当前周期在160秒结束，最终方案在 当前时刻+公共周期+相位差 生效
	assert.Equal(t, 160., n1.timeToActivateTempTLC)
	assert.Equal(t, 175., n1.timeToDeactivateTempTLC)
	assert.Equal(t, 195., n2.timeToDeactivateTempTLC)
	assert.Equal(t, 75., n1.replaceTLC.CycleTime())
	assert.Equal(t, [][]int32{{1, 2}}, net.Corridors())
}

func TestPerformDPSSUpdateRestartsOnNewPartners(t *testing.T) {
	local := false
	ctx, net, _, _ := corridorFixture(t, config.PSS{Decentral: true, UseNeighbourStreams: &local}, 100)
	n1, n2 := mustNode(t, net, 1), mustNode(t, net, 2)
	n2.synchronisedStream.Origin = 9
	n1.CheckChangeDemand()

	m := checkingManager(ctx, net)
	m.performDPSSUpdate(ctx.clock.T)

	assert.True(t, m.ActiveRun())
	assert.Equal(t, 0, m.nextPhase)
	assert.Equal(t, 100.25, m.NextTimeForPSSRun())
	// 协商开始前不改变走廊
	assert.Equal(t, 60, n2.AgreedCycleTime())
	assert.Equal(t, -1., n1.timeToDeactivateTempTLC)
}

func TestPerformDPSSUpdateWaitsForCheckTime(t *testing.T) {
	ctx, net, _, _ := corridorFixture(t, config.PSS{Decentral: true}, 100)
	n1 := mustNode(t, net, 1)
	n1.runSynchPhase = true
	n1.nextSynchPhase = 0

	m := checkingManager(ctx, net)
	m.nextTimeForPSSCheck = 200
	m.performDPSSUpdate(ctx.clock.T)
	assert.False(t, m.ActiveRun())

	m.activeRunForPSS = true
	m.nextTimeForPSSCheck = 50
	m.performDPSSUpdate(ctx.clock.T)
	assert.Equal(t, -1, m.updateFromPhase)
	assert.True(t, n1.RunSynchPhase())
}
