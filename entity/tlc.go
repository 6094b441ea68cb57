package entity

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/cespare/xxhash/v2"
)

var (
	ErrCycleTooShort    = errors.New("cycle time not longer than interphases")
	ErrInvalidPhaseTime = errors.New("invalid phase duration after cycle adaptation")
	ErrUnsupportedTLC   = errors.New("unsupported controller type")
	ErrTLCTypeMismatch  = errors.New("controller types differ")
)

// TLCType 信号控制器类型
type TLCType int32

const (
	FixedTime       TLCType = 1 // 定周期
	FixedTimeRecall TLCType = 2 // 带请求的定周期
	NEMA            TLCType = 3 // NEMA感应控制
)

func (t TLCType) String() string {
	switch t {
	case FixedTime:
		return "FIXEDTIME"
	case FixedTimeRecall:
		return "FIXEDTIMERECALL"
	case NEMA:
		return "NEMA"
	}
	return fmt.Sprintf("TLCType(%d)", int32(t))
}

// ParseTLCType 解析配置中的控制器类型名
func ParseTLCType(s string) (TLCType, error) {
	switch strings.ToLower(s) {
	case "", "fixed_time", "fixedtime":
		return FixedTime, nil
	case "fixed_time_recall", "fixedtimerecall":
		return FixedTimeRecall, nil
	case "nema":
		return NEMA, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnsupportedTLC, s)
}

// TLCParameters 信号控制器参数集
// 功能：描述一个信控方案，包括类型、相位序列、相位时长与过渡相位标记
// 说明：相位id与其在序列中的位置一致（从1开始），值类型，修改时返回副本
type TLCParameters struct {
	Type       TLCType
	PhaseIDs   []int32
	Durations  []float64
	Interphase []bool
}

// NewTLCParameters 创建参数集（复制输入切片）
func NewTLCParameters(t TLCType, ids []int32, durations []float64, interphase []bool) TLCParameters {
	return TLCParameters{
		Type:       t,
		PhaseIDs:   slices.Clone(ids),
		Durations:  slices.Clone(durations),
		Interphase: slices.Clone(interphase),
	}
}

// IsZero 是否为空参数集
func (p TLCParameters) IsZero() bool {
	return len(p.Durations) == 0
}

// CycleTime 周期时长
// 说明：带请求的定周期控制器没有固定周期，返回0
func (p TLCParameters) CycleTime() float64 {
	if p.Type == FixedTimeRecall {
		return 0
	}
	cycle := 0.0
	for _, d := range p.Durations {
		cycle += d
	}
	return cycle
}

// InterphaseDuration 过渡相位总时长
func (p TLCParameters) InterphaseDuration() float64 {
	sum := 0.0
	for i, d := range p.Durations {
		if p.Interphase[i] {
			sum += d
		}
	}
	return sum
}

// StartOfPhase 相位在周期内的起始时刻
// 功能：累加该相位之前所有相位的时长（相位id为序列位置，从1开始）
func (p TLCParameters) StartOfPhase(phaseID int32) int {
	start := 0
	if p.Type != FixedTime && p.Type != NEMA {
		return start
	}
	for i := 0; i < int(phaseID)-1 && i < len(p.Durations); i++ {
		start = int(float64(start) + p.Durations[i])
	}
	return start
}

// AdaptCycleTime 派生指定周期的参数集
// 功能：过渡相位时长不变，其余相位按比例缩放并四舍五入，舍入误差修正到第一个可调整的相位
// 参数：newCycle-新周期，0表示不调整
// 返回：新参数集；周期不大于过渡相位总时长、无法修正误差或相位短于1秒时返回错误
func (p TLCParameters) AdaptCycleTime(newCycle int) (TLCParameters, error) {
	if newCycle == 0 {
		return p, nil
	}
	inter := p.InterphaseDuration()
	if float64(newCycle) <= inter {
		return TLCParameters{}, fmt.Errorf("%w: cycle %d, interphases %.1f", ErrCycleTooShort, newCycle, inter)
	}
	if p.Type != FixedTime && p.Type != NEMA {
		return TLCParameters{}, fmt.Errorf("%w: %v", ErrUnsupportedTLC, p.Type)
	}

	oldCycle := p.CycleTime()
	factor := (float64(newCycle) - inter) / (oldCycle - inter)
	durations := make([]float64, len(p.Durations))
	total := 0
	for i, d := range p.Durations {
		if p.Interphase[i] {
			durations[i] = d
			total += int(d)
		} else {
			nd := math.Round(factor * d)
			durations[i] = nd
			total += int(nd)
		}
	}
	if total != newCycle {
		diff := float64(newCycle - total)
		for i := range durations {
			if !p.Interphase[i] && durations[i]+diff > 0 {
				durations[i] += diff
				diff = 0
				break
			}
		}
		if diff != 0 {
			return TLCParameters{}, fmt.Errorf("%w: negative duration adapting %.0f to %d", ErrInvalidPhaseTime, oldCycle, newCycle)
		}
	}
	for i, d := range durations {
		if !p.Interphase[i] && d < 1 {
			return TLCParameters{}, fmt.Errorf("%w: phase %d shorter than 1s adapting %.0f to %d", ErrInvalidPhaseTime, p.PhaseIDs[i], oldCycle, newCycle)
		}
	}
	return NewTLCParameters(p.Type, p.PhaseIDs, durations, p.Interphase), nil
}

// String 参数集的文本表示，用于比较与哈希
func (p TLCParameters) String() string {
	sb := strings.Builder{}
	for _, d := range p.Durations {
		sb.WriteString(fmt.Sprintf(", %4.1f", d))
	}
	for _, b := range p.Interphase {
		sb.WriteString(fmt.Sprintf(", %v", b))
	}
	return sb.String()
}

// Hash 参数集哈希，时长与过渡相位标记相同的参数集哈希相同
func (p TLCParameters) Hash() uint64 {
	return xxhash.Sum64String(p.String())
}
