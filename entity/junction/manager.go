package junction

import (
	"cmp"
	"errors"
	"fmt"
	"slices"

	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/agentsociety-greenwave/entity"
	"github.com/tsinghua-fib-lab/agentsociety-greenwave/utils/input"
)

var ErrUnknownJunction = errors.New("unknown junction")

// JunctionManager 路口管理器
// 功能：创建全部路口，按id升序推进受控路口的信号灯
type JunctionManager struct {
	ctx entity.ITaskContext

	data       map[int32]*Junction
	junctions  []*Junction // 输入顺序
	controlled []*Junction // 受控路口，按id升序
}

// NewManager 创建路口管理器，路口在Init中创建
func NewManager(ctx entity.ITaskContext) *JunctionManager {
	return &JunctionManager{ctx: ctx, data: make(map[int32]*Junction)}
}

// Init 初始化所有Junction及其信控
// 功能：根据输入数据创建所有Junction对象，再计算相邻受控路口与路径
// 参数：junctions-路口输入数据，roadManager-道路管理器
// 说明：拓扑计算需要全部路口已创建，因此分两步进行
func (m *JunctionManager) Init(junctions []input.Junction, roadManager entity.IRoadManager) {
	m.junctions = lo.Map(junctions, func(base input.Junction, _ int) *Junction {
		return newJunction(m.ctx, m, base, roadManager)
	})
	m.data = lo.SliceToMap(m.junctions, func(j *Junction) (int32, *Junction) {
		return j.id, j
	})
	for _, j := range m.junctions {
		if j.controlled {
			j.link()
		}
	}
	m.controlled = lo.Filter(m.junctions, func(j *Junction, _ int) bool { return j.controlled })
	slices.SortFunc(m.controlled, func(a, b *Junction) int { return cmp.Compare(a.id, b.id) })
	log.Infof("init %d junctions, %d controlled", len(m.junctions), len(m.controlled))
}

// Get 根据ID获取Junction实例，不存在时panic
func (m *JunctionManager) Get(id int32) entity.IJunction {
	j, err := m.GetOrError(id)
	if err != nil {
		log.Panicf("%v", err)
	}
	return j
}

// GetOrError 根据ID获取Junction实例
// 返回：不存在时返回包装ErrUnknownJunction的错误
func (m *JunctionManager) GetOrError(id int32) (entity.IJunction, error) {
	j, ok := m.data[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownJunction, id)
	}
	return j, nil
}

// ControlledJunctions 全部受控路口，按id升序
func (m *JunctionManager) ControlledJunctions() []entity.IJunction {
	return lo.Map(m.controlled, func(j *Junction, _ int) entity.IJunction { return j })
}

// Prepare 准备阶段，处理所有受控路口信号灯的准备工作
func (m *JunctionManager) Prepare() {
	for _, j := range m.controlled {
		j.prepare()
	}
}

// Update 更新阶段，推进所有受控路口的信号灯
// 参数：dt-时间步长
func (m *JunctionManager) Update(dt float64) {
	for _, j := range m.controlled {
		j.update(dt)
	}
}

var _ entity.IJunctionManager = (*JunctionManager)(nil)
