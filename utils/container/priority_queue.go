package container

import (
	"container/heap"
	"slices"
)

// entry 堆中的单个元素
// 说明：seq为入队序号，优先级相同时先入队者先出队，保证结果可复现
type entry[T any] struct {
	value    T
	priority float64
	seq      uint64
	index    int
}

type entryHeap[T any] []*entry[T]

func (h entryHeap[T]) Len() int { return len(h) }

func (h entryHeap[T]) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority < h[j].priority
	}
	return h[i].seq < h[j].seq
}

func (h entryHeap[T]) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *entryHeap[T]) Push(x any) {
	e := x.(*entry[T])
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *entryHeap[T]) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// PriorityQueue 稳定最小优先队列
// 功能：按优先级从小到大出队，优先级相同按入队顺序
// 说明：用于图的边代价队列、候选走廊队列、流量排序等场景
type PriorityQueue[T any] struct {
	heap entryHeap[T]
	next uint64
}

// NewPriorityQueue 创建优先队列
func NewPriorityQueue[T any]() *PriorityQueue[T] {
	return &PriorityQueue[T]{heap: make(entryHeap[T], 0)}
}

// Len 获取当前队列长度
func (q *PriorityQueue[T]) Len() int {
	return len(q.heap)
}

// Empty 队列是否为空
func (q *PriorityQueue[T]) Empty() bool {
	return len(q.heap) == 0
}

// Peek 查看优先级最小的元素（不出队）
// 返回：元素值、优先级、是否存在
func (q *PriorityQueue[T]) Peek() (value T, priority float64, ok bool) {
	if len(q.heap) == 0 {
		return value, 0, false
	}
	return q.heap[0].value, q.heap[0].priority, true
}

// Push 加入元素（不维护堆结构）
// 说明：批量加入后需调用Heapify
func (q *PriorityQueue[T]) Push(value T, priority float64) {
	q.heap = append(q.heap, &entry[T]{value: value, priority: priority, seq: q.next, index: len(q.heap)})
	q.next++
}

// Heapify 重新构建堆
func (q *PriorityQueue[T]) Heapify() {
	heap.Init(&q.heap)
}

// HeapPush 加入元素并维护堆结构
func (q *PriorityQueue[T]) HeapPush(value T, priority float64) {
	heap.Push(&q.heap, &entry[T]{value: value, priority: priority, seq: q.next})
	q.next++
}

// HeapPop 弹出优先级最小的元素
// 说明：队列为空时panic，调用方需先检查Len
func (q *PriorityQueue[T]) HeapPop() (value T, priority float64) {
	e := heap.Pop(&q.heap).(*entry[T])
	return e.value, e.priority
}

// RemoveFunc 删除所有满足条件的元素
// 功能：从队列中移除match返回true的元素并维护堆结构
// 返回：被删除的元素个数
func (q *PriorityQueue[T]) RemoveFunc(match func(T) bool) int {
	removed := 0
	for i := len(q.heap) - 1; i >= 0; i-- {
		if i < len(q.heap) && match(q.heap[i].value) {
			heap.Remove(&q.heap, i)
			removed++
			// heap.Remove可能把后方元素移动到i之前，从末尾重新检查
			i = len(q.heap)
		}
	}
	return removed
}

// Contains 队列中是否存在满足条件的元素
func (q *PriorityQueue[T]) Contains(match func(T) bool) bool {
	for _, e := range q.heap {
		if match(e.value) {
			return true
		}
	}
	return false
}

// Values 按出队顺序返回所有元素（不修改队列）
func (q *PriorityQueue[T]) Values() []T {
	sorted := slices.Clone(q.heap)
	slices.SortFunc(sorted, func(a, b *entry[T]) int {
		switch {
		case a.priority < b.priority:
			return -1
		case a.priority > b.priority:
			return 1
		case a.seq < b.seq:
			return -1
		case a.seq > b.seq:
			return 1
		}
		return 0
	})
	values := make([]T, len(sorted))
	for i, e := range sorted {
		values[i] = e.value
	}
	return values
}
