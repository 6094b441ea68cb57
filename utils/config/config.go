package config

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"
)

var log = logrus.WithField("module", "config")

var ErrInvalidConfig = errors.New("invalid config")

const (
	DefaultCheckInterval           = 1000.
	DefaultRecalculateInterval     = 54000.
	DefaultACTDiff                 = 5
	DefaultMinPredictionDifference = 5.
	DefaultIntervalLengthForStream = 900.
	DefaultEvaluationInterval      = 900.
	DefaultPhaseSpacing            = 5.
)

// RuntimeConfig 运行时配置
// 功能：存储补全默认值后的配置信息
type RuntimeConfig struct {
	All Config  // 全部配置
	C   Control // 全局控制配置
	PSS PSS     // 绿波协调配置
}

// NewRuntimeConfig 根据配置初始化运行时配置
// 功能：补全默认值并校验
// 参数：config-原始配置对象
// 返回：初始化的运行时配置指针，配置无效时返回错误
func NewRuntimeConfig(config Config) (*RuntimeConfig, error) {
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &RuntimeConfig{
		All: config,
		C:   config.Control,
		PSS: config.PSS,
	}, nil
}

// Parse 解析YAML配置（严格模式，未知字段报错）
func Parse(data []byte) (Config, error) {
	var c Config
	if err := yaml.UnmarshalStrict(data, &c); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	c.ApplyDefaults()
	return c, nil
}

// ApplyDefaults 补全未设置的配置项
func (c *Config) ApplyDefaults() {
	if c.Control.Step.Interval == 0 {
		c.Control.Step.Interval = 1
	}
	p := &c.PSS
	if p.CheckInterval == 0 {
		p.CheckInterval = DefaultCheckInterval
	}
	if p.RecalculateInterval == 0 {
		p.RecalculateInterval = DefaultRecalculateInterval
	}
	if p.ACTDiff == 0 {
		p.ACTDiff = DefaultACTDiff
	}
	if p.MinPredictionDifference == 0 {
		p.MinPredictionDifference = DefaultMinPredictionDifference
	}
	if p.IntervalLengthForStream == 0 {
		p.IntervalLengthForStream = DefaultIntervalLengthForStream
	}
	if p.EvaluationInterval == 0 {
		p.EvaluationInterval = DefaultEvaluationInterval
	}
	if p.UseNeighbourStreams == nil {
		v := true
		p.UseNeighbourStreams = &v
	}
	if p.PhaseSpacing == 0 {
		p.PhaseSpacing = DefaultPhaseSpacing
	}
}

// Validate 校验配置
func (c Config) Validate() error {
	if c.Control.Step.Total <= 0 {
		return fmt.Errorf("%w: control.step.total must be positive", ErrInvalidConfig)
	}
	if c.Control.Step.Interval <= 0 {
		return fmt.Errorf("%w: control.step.interval must be positive", ErrInvalidConfig)
	}
	if c.Input.Network.File == "" && (c.Input.URI == "" || c.Input.Network.DB == "" || c.Input.Network.Col == "") {
		return fmt.Errorf("%w: input.network needs a file or uri+db+col", ErrInvalidConfig)
	}
	if c.Output.MongoCol != "" && c.Input.URI == "" {
		return fmt.Errorf("%w: output.mongo_col requires input.uri", ErrInvalidConfig)
	}
	p := c.PSS
	if p.CheckInterval < 0 || p.RecalculateInterval < 0 || p.PhaseSpacing < 0 {
		return fmt.Errorf("%w: pss intervals must not be negative", ErrInvalidConfig)
	}
	if p.Region && p.Decentral {
		log.Warn("pss.region and pss.decentral both set, region mode takes precedence")
	}
	return nil
}

// UseNeighbourStreamsValue 读取是否使用邻居上报的交通流
func (p PSS) UseNeighbourStreamsValue() bool {
	return p.UseNeighbourStreams == nil || *p.UseNeighbourStreams
}
