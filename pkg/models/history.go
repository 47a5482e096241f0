package models

// History 固定容量的FIFO历史记录，写满后淘汰最旧的条目
type History[T any] struct {
	slots []T
	head  int // 最旧条目所在槽位
	size  int
}

// NewHistory 创建指定容量的历史记录
func NewHistory[T any](capacity int) History[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return History[T]{slots: make([]T, capacity)}
}

// Push 追加一条记录
func (h *History[T]) Push(item T) {
	capacity := len(h.slots)
	if h.size < capacity {
		h.slots[(h.head+h.size)%capacity] = item
		h.size++
		return
	}
	h.slots[h.head] = item
	h.head = (h.head + 1) % capacity
}

// Len 当前条目数
func (h *History[T]) Len() int {
	return h.size
}

// Cap 容量
func (h *History[T]) Cap() int {
	return len(h.slots)
}

// At 按时间顺序获取第i条，0为最旧
func (h *History[T]) At(i int) T {
	if i < 0 || i >= h.size {
		panic("history index out of range")
	}
	return h.slots[(h.head+i)%len(h.slots)]
}

// Latest 获取最新一条
func (h *History[T]) Latest() (T, bool) {
	if h.size == 0 {
		var zero T
		return zero, false
	}
	return h.At(h.size - 1), true
}

// LastTwo 获取最新两条，用于计算趋势
func (h *History[T]) LastTwo() (previous, latest T, ok bool) {
	if h.size < 2 {
		return previous, latest, false
	}
	return h.At(h.size - 2), h.At(h.size - 1), true
}

// Items 按从旧到新的顺序返回所有条目
func (h *History[T]) Items() []T {
	items := make([]T, h.size)
	for i := range items {
		items[i] = h.At(i)
	}
	return items
}

// Clone 深拷贝
func (h *History[T]) Clone() History[T] {
	slots := make([]T, len(h.slots))
	copy(slots, h.slots)
	return History[T]{slots: slots, head: h.head, size: h.size}
}

// rawSlots 按物理顺序返回槽位，用于序列化
func (h *History[T]) rawSlots() []T {
	return h.slots
}

// restore 从序列化的物理布局恢复
func (h *History[T]) restore(slots []T, head, size int) {
	h.slots = slots
	h.head = head
	h.size = size
}
