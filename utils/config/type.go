package config

// InputPath 指定输入数据来源的配置（MongoDB、文件系统）
// 功能：定义数据输入路径的配置结构，支持多种数据源
// 说明：File优先于MongoDB
type InputPath struct {
	DB   string `yaml:"db,omitempty"`   // 数据库名
	Col  string `yaml:"col,omitempty"`  // 集合名
	File string `yaml:"file,omitempty"` // 文件路径（优先级高于MongoDB）
}

// GetDb 获取数据库名
func (p InputPath) GetDb() string {
	return p.DB
}

// GetColl 获取集合名
func (p InputPath) GetColl() string {
	return p.Col
}

// Input 指定所有输入数据的配置项
type Input struct {
	URI     string    `yaml:"uri,omitempty"` // MongoDB连接字符串
	Network InputPath `yaml:"network"`       // 路网、信控与需求
}

// ControlStep 指定模拟时间范围和间隔的配置项
// 功能：定义仿真时间控制参数
// 说明：控制仿真的时间范围、步长和精度
type ControlStep struct {
	Start    int32   `yaml:"start"`    // 开始步数
	Total    int32   `yaml:"total"`    // 总步数
	Interval float64 `yaml:"interval"` // 每步的时间间隔
}

// Control 模拟器控制配置
type Control struct {
	Step ControlStep `yaml:"step"`
	Seed uint64      `yaml:"seed,omitempty"` // 统计扰动随机数种子
	// 流量观测的相对扰动幅度，0表示无扰动
	FlowJitter float64 `yaml:"flow_jitter,omitempty"`
}

// PSS 绿波协调配置
// 功能：集中式与分布式两种模式的开关、周期性任务的间隔与各类容差
type PSS struct {
	Decentral bool `yaml:"decentral"` // 启用分布式协商
	Region    bool `yaml:"region"`    // 启用集中式区域管理（优先于分布式）
	// 开始协调前的预热时间（秒），区域管理在预热结束后注册路口
	Warmup float64 `yaml:"warmup,omitempty"`
	// 分布式模式下一致性检查的间隔（秒）
	CheckInterval float64 `yaml:"check_interval,omitempty"`
	// 完整重新计算的间隔（秒）
	RecalculateInterval float64 `yaml:"recalculate_interval,omitempty"`
	// 新协商周期与当前公共周期的差距不超过该值时不重新协商（秒）
	ACTDiff int `yaml:"act_diff,omitempty"`
	// 走廊内局部更换信控方案所需的最小预测收益提升
	MinPredictionDifference float64 `yaml:"min_prediction_difference,omitempty"`
	// 计算交通流强度的统计区间（秒）
	IntervalLengthForStream float64 `yaml:"interval_length_for_stream,omitempty"`
	// 信控效果评价的统计区间（秒）
	EvaluationInterval float64 `yaml:"evaluation_interval,omitempty"`
	// 使用邻居上报的交通流确定前驱，否则只使用本地转向统计
	UseNeighbourStreams *bool `yaml:"use_neighbour_streams,omitempty"`
	// 协商各阶段之间的间隔（秒）
	PhaseSpacing float64 `yaml:"phase_spacing,omitempty"`
	// 输出路口的绿波状态描述
	Log bool `yaml:"log,omitempty"`
}

// Output 输出配置
type Output struct {
	UpdateLog string `yaml:"update_log,omitempty"` // 走廊更新记录CSV文件路径（追加写入）
	MongoCol  string `yaml:"mongo_col,omitempty"`  // 走廊更新记录的MongoDB集合，使用Input.URI
	MongoDB   string `yaml:"mongo_db,omitempty"`   // 走廊更新记录的MongoDB数据库
}

// Server 报告服务配置
type Server struct {
	Listen string `yaml:"listen,omitempty"` // HTTP监听地址，为空则不启动
}

// Config YAML配置文件的根结构
type Config struct {
	Input   Input   `yaml:"input"`            // 输入
	Control Control `yaml:"control"`          // 模拟过程控制
	PSS     PSS     `yaml:"pss"`              // 绿波协调
	Output  Output  `yaml:"output,omitempty"` // 输出
	Server  Server  `yaml:"server,omitempty"` // 报告服务
}
