package task

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tsinghua-fib-lab/agentsociety-greenwave/clock"
	"github.com/tsinghua-fib-lab/agentsociety-greenwave/entity"
	"github.com/tsinghua-fib-lab/agentsociety-greenwave/entity/junction"
	"github.com/tsinghua-fib-lab/agentsociety-greenwave/entity/region"
	"github.com/tsinghua-fib-lab/agentsociety-greenwave/entity/road"
	"github.com/tsinghua-fib-lab/agentsociety-greenwave/entity/statistics"
	"github.com/tsinghua-fib-lab/agentsociety-greenwave/utils/config"
	"github.com/tsinghua-fib-lab/agentsociety-greenwave/utils/input"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Context 仿真任务上下文
// 功能：包含一次仿真任务的所有变量和状态，替代全局单例
// 说明：管理时钟、路网管理器、统计数据源、绿波协调的各个管理器与输出
type Context struct {
	// 停止指令
	closed    atomic.Bool
	closeOnce sync.Once
	// 仿真状态锁，时间步推进时持有写锁，HTTP查询持有读锁
	mu sync.RWMutex

	// 时钟
	clock *clock.Clock

	// Road管理器
	roadManager *road.RoadManager
	// Junction管理器
	junctionManager *junction.JunctionManager
	// 转向统计
	statistics *statistics.Statistics

	// 分布式协商调度器
	negotiator *region.Negotiator
	// 集中式区域管理器
	regional *region.RegionalManager
	// 绿波协调调度器
	dpss *region.DPSSManager
	// 走廊更新记录
	updates region.UpdateLog

	// 运行时配置
	runtimeConfig *config.RuntimeConfig

	// 用于初始化的输入
	initRes *input.Input
}

// NewContext 创建新的仿真任务上下文
// 功能：加载输入数据并创建各个组件
// 参数：c-配置对象
// 返回：创建完成的Context实例，输入或配置无效时panic
func NewContext(c config.Config) *Context {
	return NewContextWithInput(c, input.Init(c))
}

// NewContextWithInput 使用已加载的输入创建上下文
// 算法说明：
// 1. 补全并校验配置，创建时钟
// 2. 创建道路、路口管理器与统计数据源（尚未初始化）
// 3. Init阶段完成初始化并创建绿波协调管理器
func NewContextWithInput(c config.Config, in *input.Input) *Context {
	rc, err := config.NewRuntimeConfig(c)
	if err != nil {
		log.Panicf("config: %v", err)
	}
	ctx := &Context{
		runtimeConfig: rc,
		initRes:       in,
	}
	ctx.clock = clock.New(rc.C.Step)
	ctx.roadManager = road.NewManager()
	ctx.junctionManager = junction.NewManager(ctx)
	ctx.statistics = statistics.New(ctx)
	return ctx
}

func (ctx *Context) GetInput() *input.Input {
	return ctx.initRes
}

func (ctx *Context) Clock() *clock.Clock {
	return ctx.clock
}

func (ctx *Context) RoadManager() entity.IRoadManager {
	return ctx.roadManager
}

func (ctx *Context) JunctionManager() entity.IJunctionManager {
	return ctx.junctionManager
}

func (ctx *Context) Statistics() entity.IStatistics {
	return ctx.statistics
}

func (ctx *Context) RuntimeConfig() *config.RuntimeConfig {
	return ctx.runtimeConfig
}

func (ctx *Context) Negotiator() *region.Negotiator {
	return ctx.negotiator
}

func (ctx *Context) Regional() *region.RegionalManager {
	return ctx.regional
}

func (ctx *Context) DPSS() *region.DPSSManager {
	return ctx.dpss
}

// Init 初始化全部组件
// 说明：路口拓扑依赖道路，统计依赖路口，绿波协调依赖三者
func (ctx *Context) Init() {
	ctx.clock.Init()

	network := ctx.initRes.Network
	log.Infof("Road: %v", len(network.Roads))
	log.Infof("Junction: %v", len(network.Junctions))
	log.Infof("Demand: %v", len(network.Demands))

	ctx.roadManager.Init(network.Roads)
	ctx.junctionManager.Init(network.Junctions, ctx.roadManager)
	ctx.statistics.Init(network.Demands, ctx.junctionManager)

	ctx.negotiator = region.NewNegotiator(ctx)
	ctx.regional = region.NewRegionalManager(ctx.negotiator)
	ctx.dpss = region.NewDPSSManager(ctx, ctx.negotiator, ctx.regional)
	ctx.updates = ctx.openUpdateLog()
	if ctx.updates != nil {
		ctx.negotiator.SetUpdateLog(ctx.updates)
	}
}

// openUpdateLog 按输出配置打开走廊更新记录，未配置时返回nil
func (ctx *Context) openUpdateLog() region.UpdateLog {
	out := ctx.runtimeConfig.All.Output
	logs := make(region.MultiUpdateLog, 0, 2)
	if out.UpdateLog != "" {
		l, err := region.NewCSVUpdateLog(out.UpdateLog)
		if err != nil {
			log.Panicf("update log: %v", err)
		}
		logs = append(logs, l)
	}
	if out.MongoCol != "" {
		c, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		client, err := mongo.Connect(c, options.Client().ApplyURI(ctx.runtimeConfig.All.Input.URI))
		if err != nil {
			log.Panicf("failed to connect to mongodb: %v", err)
		}
		db := out.MongoDB
		if db == "" {
			db = ctx.runtimeConfig.All.Input.Network.DB
		}
		logs = append(logs, region.NewMongoUpdateLog(client.Database(db).Collection(out.MongoCol)))
		log.Infof("update records go to %s.%s", db, out.MongoCol)
	}
	switch len(logs) {
	case 0:
		return nil
	case 1:
		return logs[0]
	}
	return logs
}

// Register 将查询接口注册到mux
// 说明：需在Init之后调用
func (ctx *Context) Register(mux *http.ServeMux) {
	ctx.clock.Register(mux)
	ctx.junctionManager.Register(mux, ctx.mu.RLocker())
	ctx.dpss.Register(mux, ctx.mu.RLocker())
}

// OnConfigChange 配置文件变化时调用，绿波协调参数在下一个时间步生效
func (ctx *Context) OnConfigChange(c config.Config) {
	if ctx.dpss == nil {
		return
	}
	ctx.dpss.ApplyConfig(c)
}

// Close 停止运行并关闭输出
func (ctx *Context) Close() {
	ctx.closed.Store(true)
	ctx.closeOnce.Do(func() {
		if ctx.updates == nil {
			return
		}
		c, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := ctx.updates.Close(c); err != nil {
			log.Errorf("close update log: %v", err)
		}
	})
}
