package entity

import (
	"github.com/tsinghua-fib-lab/agentsociety-greenwave/clock"
	"github.com/tsinghua-fib-lab/agentsociety-greenwave/utils/config"
)

type ITaskContext interface {
	Clock() *clock.Clock
	RoadManager() IRoadManager
	JunctionManager() IJunctionManager
	Statistics() IStatistics
	RuntimeConfig() *config.RuntimeConfig
}
