package region

import (
	"errors"
	"sync"

	"github.com/tsinghua-fib-lab/agentsociety-greenwave/entity"
	"github.com/tsinghua-fib-lab/agentsociety-greenwave/utils/config"
)

const (
	regionRegisterDelay = 200. // 预热结束后向区域管理器登记的时刻
	regionRunDelay      = 250. // 预热结束后首次集中计算的时刻
	regionInfoDelay     = 300. // 预热结束后开始输出状态描述的时刻
	decentralRunDelay   = 100. // 预热结束后首次分布式协商的时刻
	regionInfoLag       = 50.  // 每次集中计算后延迟输出状态描述的时长
	restartDelay        = 0.25 // 重新协商在下一时间步开始
)

// DPSSManager 绿波协调的调度器
// 功能：每个时间步决定执行集中式或分布式协调，按间隔触发完整计算与一致性检查，
// 执行过渡方案与最终方案的切换，并为不属于走廊的路口选择方案
type DPSSManager struct {
	ctx      entity.ITaskContext
	net      *Negotiator
	regional *RegionalManager

	pss     config.PSS
	mu      sync.Mutex
	pending *config.PSS // 热更新后等待下个时间步生效的配置

	activeRunForPSS       bool
	nextPhase             int
	nextTimeForPSSCheck   float64
	nextTimeForPSSRun     float64
	nextTimeForRegionRun  float64
	nextTimeForRegionInfo float64
	registered            bool
	updateDPSS            bool
	updateFromPhase       int
}

// NewDPSSManager 创建调度器并为每个受控路口创建代理
// 说明：首次协商与检查的时刻由预热时间确定
func NewDPSSManager(ctx entity.ITaskContext, net *Negotiator, regional *RegionalManager) *DPSSManager {
	m := &DPSSManager{
		ctx:             ctx,
		net:             net,
		regional:        regional,
		pss:             ctx.RuntimeConfig().PSS,
		updateFromPhase: -1,
	}
	for _, j := range ctx.JunctionManager().ControlledJunctions() {
		net.Add(j)
	}
	warmup := m.pss.Warmup
	m.nextTimeForPSSRun = warmup + decentralRunDelay
	m.nextTimeForPSSCheck = warmup + decentralRunDelay + m.pss.CheckInterval
	m.nextTimeForRegionRun = warmup + regionRunDelay
	m.nextTimeForRegionInfo = warmup + regionInfoDelay
	log.Infof("dpss manager: %d nodes, region=%v decentral=%v", len(net.Nodes()), m.pss.Region, m.decentral())
	return m
}

// Negotiator 分布式协商调度器
func (m *DPSSManager) Negotiator() *Negotiator { return m.net }

// Regional 区域管理器
func (m *DPSSManager) Regional() *RegionalManager { return m.regional }

// decentral 分布式模式是否生效（集中式优先）
func (m *DPSSManager) decentral() bool {
	return m.pss.Decentral && !m.pss.Region
}

// ApplyConfig 记录新的绿波协调配置，在下一个时间步生效
// 说明：可在其他协程中调用
func (m *DPSSManager) ApplyConfig(c config.Config) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c.ApplyDefaults()
	pss := c.PSS
	m.pending = &pss
}

func (m *DPSSManager) applyPending() {
	m.mu.Lock()
	pending := m.pending
	m.pending = nil
	m.mu.Unlock()
	if pending == nil {
		return
	}
	m.pss = *pending
	m.ctx.RuntimeConfig().PSS = *pending
	log.Infof("pss config updated: region=%v decentral=%v check=%.0f recalculate=%.0f", m.pss.Region, m.decentral(), m.pss.CheckInterval, m.pss.RecalculateInterval)
}

// Execute 每个时间步调用一次
// 算法说明：
// 1. 集中式模式到达计算时刻时由区域管理器计算并下发走廊
// 2. 分布式模式到达协商时刻时开始新一轮协商，每次执行一个阶段，阶段之间间隔phase_spacing
// 3. 没有协商时按检查间隔由走廊起点检查是否需要更新
// 4. 执行到期的方案切换，不属于走廊的路口自行选择方案
func (m *DPSSManager) Execute(time float64) {
	m.applyPending()

	if m.pss.Region && time > m.nextTimeForRegionRun && m.nextTimeForRegionRun > 0 {
		m.net.beginCycle()
		if err := m.regional.CalculatePSS(); err != nil {
			log.Errorf("%.2f: regional calculation failed: %v", time, err)
		}
		m.nextTimeForRegionRun = time + m.pss.RecalculateInterval
		m.refreshCorridorMetrics()
	}
	if m.decentral() && !m.activeRunForPSS && time > m.nextTimeForPSSRun && m.nextTimeForPSSRun > 0 {
		m.activeRunForPSS = true
		m.nextPhase = 0
	}

	if m.pss.Region {
		m.executeRegion(time)
	} else if m.decentral() {
		m.recalculateDPSS(time)
		for _, n := range m.net.Nodes() {
			m.apply(n.ReplaceTempTLC(time))
		}
	}
	for _, n := range m.net.Nodes() {
		cmd, ok, err := n.SelectLocalTLC()
		switch {
		case errors.Is(err, ErrChangeDelayed):
			log.Tracef("%v", err)
		case err != nil:
			log.Debugf("node %d: local controller selection: %v", n.ID(), err)
		case ok:
			m.apply([]Command{cmd})
		}
	}

	if m.decentral() {
		m.performDPSSUpdate(time)
		m.updateControlVariables(time)
	} else if m.pss.Region && time > m.nextTimeForRegionInfo {
		m.nextTimeForRegionInfo = m.nextTimeForRegionRun + regionInfoLag
	}
}

func (m *DPSSManager) executeRegion(time float64) {
	register := !m.registered && time >= m.pss.Warmup+regionRegisterDelay
	for _, n := range m.net.Nodes() {
		if register {
			m.regional.Register(n)
		} else if time > m.nextTimeForRegionInfo && m.pss.Log {
			log.Infof("%.2f: %s", time, n.Description())
		}
		m.apply(n.ReplaceTempTLC(time))
	}
	if register {
		m.registered = true
	}
}

// recalculateDPSS 执行当前协商阶段，或在检查时刻由走廊起点检查更新需求
func (m *DPSSManager) recalculateDPSS(time float64) {
	if m.activeRunForPSS && time > m.nextTimeForPSSRun && m.nextTimeForPSSRun > 0 {
		switch {
		case m.nextPhase == 0:
			log.Infof("%.2f: start negotiation run %s", time, m.net.beginCycle())
			m.net.RunPhase(0)
		case m.nextPhase > 0 && m.nextPhase < PhaseCount:
			m.net.RunPhase(m.nextPhase)
		case m.nextPhase == PhaseCount:
			for _, n := range m.net.Nodes() {
				if m.pss.Log {
					log.Info(n.Description())
				}
				n.SetTimeToNextSynchPhase(time + m.pss.RecalculateInterval)
			}
			m.refreshCorridorMetrics()
		}
		return
	}
	if !m.activeRunForPSS && time > m.nextTimeForPSSCheck && m.nextTimeForPSSCheck > 0 {
		for _, n := range m.net.Nodes() {
			if n.BeginOfPSS() {
				n.CheckChangeDemand()
			}
		}
	}
}

// performDPSSUpdate 汇总走廊起点的更新需求
// 说明：需要新的伙伴关系时从阶段0重新协商，只需新的公共周期时由相关起点重新执行阶段6
func (m *DPSSManager) performDPSSUpdate(time float64) {
	if m.activeRunForPSS || time <= m.nextTimeForPSSCheck || m.nextTimeForPSSCheck <= 0 {
		return
	}
	for _, n := range m.net.Nodes() {
		if n.BeginOfPSS() && n.RunSynchPhase() {
			m.updateDPSS = true
			if m.updateFromPhase == -1 {
				m.updateFromPhase = n.NextSynchPhase()
			} else {
				m.updateFromPhase = min(m.updateFromPhase, n.NextSynchPhase())
			}
		}
	}
	if !m.updateDPSS {
		return
	}
	switch m.updateFromPhase {
	case 0:
		m.activeRunForPSS = true
		m.nextPhase = 0
		m.nextTimeForPSSRun = time + restartDelay
	case 6:
		for _, n := range m.net.Nodes() {
			if n.BeginOfPSS() && n.RunSynchPhase() {
				n.RunSynchronisation(6)
				m.net.drain()
			}
		}
		m.refreshCorridorMetrics()
	}
	m.updateFromPhase = -1
	m.updateDPSS = false
}

func (m *DPSSManager) updateControlVariables(time float64) {
	if m.activeRunForPSS && time > m.nextTimeForPSSRun && m.nextTimeForPSSRun > 0 {
		if m.nextPhase < PhaseCount {
			m.nextPhase++
			m.nextTimeForPSSRun = time + m.pss.PhaseSpacing
		} else {
			m.activeRunForPSS = false
			m.nextPhase = 0
			m.nextTimeForPSSRun = time + m.pss.RecalculateInterval
			m.nextTimeForPSSCheck = time + m.pss.CheckInterval
		}
	} else if !m.activeRunForPSS && time > m.nextTimeForPSSCheck && m.nextTimeForPSSCheck > 0 {
		m.nextTimeForPSSCheck = time + m.pss.CheckInterval
	}
}

// apply 执行信号灯切换指令
func (m *DPSSManager) apply(cmds []Command) {
	now := m.ctx.Clock().T
	for _, cmd := range cmds {
		j, err := m.ctx.JunctionManager().GetOrError(cmd.JunctionID)
		if err != nil {
			log.Errorf("apply %v controller: %v", cmd.Kind, err)
			continue
		}
		tl := j.TrafficLight()
		if tl == nil {
			log.Errorf("apply %v controller: junction %d has no traffic light", cmd.Kind, cmd.JunctionID)
			continue
		}
		tl.Activate(cmd.Params, now)
		controllerSwitches.WithLabelValues(cmd.Kind.String()).Inc()
		log.Debugf("%.2f: junction %d switched to %v controller%s", now, cmd.JunctionID, cmd.Kind, cmd.Params)
	}
}

// EstablishedCorridors 已建立的走廊，每条为从起点到终点的路口id序列
func (m *DPSSManager) EstablishedCorridors() [][]int32 {
	return m.net.Corridors()
}

// NextTimeForPSSCheck 下一次一致性检查的时刻
func (m *DPSSManager) NextTimeForPSSCheck() float64 { return m.nextTimeForPSSCheck }

// NextTimeForPSSRun 下一次完整协商的时刻
func (m *DPSSManager) NextTimeForPSSRun() float64 { return m.nextTimeForPSSRun }

// ActiveRun 是否正在进行分布式协商
func (m *DPSSManager) ActiveRun() bool { return m.activeRunForPSS }

func (m *DPSSManager) refreshCorridorMetrics() {
	corridors := m.net.Corridors()
	members := 0
	for _, c := range corridors {
		members += len(c)
	}
	corridorsActive.Set(float64(len(corridors)))
	corridorMembers.Set(float64(members))
}
