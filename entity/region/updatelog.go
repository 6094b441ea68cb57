package region

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/mongo"
)

// UpdateReason 走廊更新的原因
type UpdateReason int

const (
	ReasonNone         UpdateReason = 0 // 无需更新
	ReasonNewCycleTime UpdateReason = 2 // 期望公共周期变化超过阈值
	ReasonNewPartners  UpdateReason = 4 // 交通流变化导致伙伴关系变化
)

func (r UpdateReason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonNewCycleTime:
		return "new_cycle_time"
	case ReasonNewPartners:
		return "new_partners"
	}
	return fmt.Sprintf("UpdateReason(%d)", int(r))
}

// UpdateRecord 走廊起点路口的一次更新检查
type UpdateRecord struct {
	RunID           string       `bson:"run_id"`
	Time            float64      `bson:"time"`
	NodeID          int32        `bson:"node_id"`
	AgreedCycleTime int          `bson:"agreed_cycle_time"`
	NewCycleTime    int          `bson:"new_cycle_time"`
	Reason          UpdateReason `bson:"reason"`
}

// UpdateLog 更新记录的输出目标
type UpdateLog interface {
	Append(ctx context.Context, r UpdateRecord) error
	Close(ctx context.Context) error
}

// CSVUpdateLog 以分号分隔追加写入文件
// 格式：每条记录两行，"时间; 路口id; 公共周期; 原因;"，第一行为当前公共周期，第二行为新的公共周期
type CSVUpdateLog struct {
	mu   sync.Mutex
	file *os.File
}

// NewCSVUpdateLog 以追加方式打开文件
func NewCSVUpdateLog(path string) (*CSVUpdateLog, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open update log %s: %w", path, err)
	}
	return &CSVUpdateLog{file: f}, nil
}

func (l *CSVUpdateLog) Append(_ context.Context, r UpdateRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, err := fmt.Fprintf(l.file, "%.2f; %d; %d; %d;\n%.2f; %d; %d; %d;\n",
		r.Time, r.NodeID, r.AgreedCycleTime, int(r.Reason),
		r.Time, r.NodeID, r.NewCycleTime, int(r.Reason),
	)
	return err
}

func (l *CSVUpdateLog) Close(context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}

// MongoUpdateLog 将记录写入MongoDB集合
type MongoUpdateLog struct {
	col *mongo.Collection
}

func NewMongoUpdateLog(col *mongo.Collection) *MongoUpdateLog {
	return &MongoUpdateLog{col: col}
}

func (l *MongoUpdateLog) Append(ctx context.Context, r UpdateRecord) error {
	if _, err := l.col.InsertOne(ctx, r); err != nil {
		return fmt.Errorf("insert update record: %w", err)
	}
	return nil
}

func (l *MongoUpdateLog) Close(ctx context.Context) error {
	return l.col.Database().Client().Disconnect(ctx)
}

// MemoryUpdateLog 保存在内存中，用于报告服务与测试
type MemoryUpdateLog struct {
	mu      sync.RWMutex
	records []UpdateRecord
}

func (l *MemoryUpdateLog) Append(_ context.Context, r UpdateRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, r)
	return nil
}

func (l *MemoryUpdateLog) Close(context.Context) error { return nil }

// Records 已保存记录的副本
func (l *MemoryUpdateLog) Records() []UpdateRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()
	res := make([]UpdateRecord, len(l.records))
	copy(res, l.records)
	return res
}

// MultiUpdateLog 同时写入多个输出目标
type MultiUpdateLog []UpdateLog

func (m MultiUpdateLog) Append(ctx context.Context, r UpdateRecord) error {
	var errs []error
	for _, l := range m {
		if err := l.Append(ctx, r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m MultiUpdateLog) Close(ctx context.Context) error {
	var errs []error
	for _, l := range m {
		if err := l.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// SetUpdateLog 设置更新记录的输出目标，nil表示不记录
func (g *Negotiator) SetUpdateLog(l UpdateLog) {
	g.updates = l
}

// RunID 当前计算周期的标识，写入每条更新记录
func (g *Negotiator) RunID() string {
	return g.runID
}

// beginCycle 开始新的计算周期并返回其标识
func (g *Negotiator) beginCycle() string {
	g.runID = newRunID()
	return g.runID
}

func (g *Negotiator) logUpdate(r UpdateRecord) {
	updateChecks.WithLabelValues(r.Reason.String()).Inc()
	if g.updates == nil {
		return
	}
	r.RunID = g.runID
	if err := g.updates.Append(context.Background(), r); err != nil {
		log.Errorf("append update record of node %d: %v", r.NodeID, err)
	}
}

func newRunID() string {
	return uuid.NewString()
}
