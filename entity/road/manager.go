package road

import (
	"errors"
	"fmt"

	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/agentsociety-greenwave/entity"
	"github.com/tsinghua-fib-lab/agentsociety-greenwave/utils/input"
)

var ErrUnknownRoad = errors.New("unknown road")

// RoadManager 路段管理器
// 功能：保存全部路段，供路口沿路段上溯或下行查找相邻受控路口
type RoadManager struct {
	byID  map[int32]*Road
	roads []*Road // 输入顺序
}

// NewManager 创建路段管理器
func NewManager() *RoadManager {
	return &RoadManager{byID: make(map[int32]*Road)}
}

// Init 根据输入创建全部路段，重复id保留最后一个
func (m *RoadManager) Init(roads []input.Road) {
	m.roads = lo.Map(roads, func(base input.Road, _ int) *Road { return newRoad(base) })
	m.byID = lo.KeyBy(m.roads, func(r *Road) int32 { return r.id })
	if dup := len(m.roads) - len(m.byID); dup > 0 {
		log.Warnf("%d duplicated road ids ignored", dup)
	}
	boundary := lo.CountBy(m.roads, func(r *Road) bool { return r.predecessor <= 0 || r.successor <= 0 })
	log.Infof("init %d roads, %d at the network boundary", len(m.byID), boundary)
}

// Get 根据id获取路段，不存在时panic
func (m *RoadManager) Get(id int32) entity.IRoad {
	r, err := m.GetOrError(id)
	if err != nil {
		log.Panicf("%v", err)
	}
	return r
}

// GetOrError 根据id获取路段
func (m *RoadManager) GetOrError(id int32) (entity.IRoad, error) {
	r, ok := m.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownRoad, id)
	}
	return r, nil
}

var _ entity.IRoadManager = (*RoadManager)(nil)
