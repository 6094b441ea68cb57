package region

import (
	"fmt"
	"math"
)

// TrafficStream 从一个路口流向相邻路口的最强交通流
type TrafficStream struct {
	Origin    int32   // 起点路口，-1表示无效
	Target    int32   // 终点路口
	Strength  float64 // 流量（辆/小时），无数据为NaN
	SynchTime float64 // 服务该流的相位在周期中的预计开始时刻，无数据为NaN
}

func invalidStream(target int32) TrafficStream {
	return TrafficStream{Origin: -1, Target: target, Strength: math.NaN(), SynchTime: math.NaN()}
}

// Valid 起点有效且流量不是NaN
func (s TrafficStream) Valid() bool {
	return s.Origin > 0 && !math.IsNaN(s.Strength)
}

func (s TrafficStream) String() string {
	return fmt.Sprintf("Traffic stream from node %d to node %d has strength of %.2f veh/hour and synchronisation time %.2f",
		s.Origin, s.Target, s.Strength, s.SynchTime)
}
