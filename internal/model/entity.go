package model

import "sync"

// 实体属性名，用于 Changed 信号
const (
	PropData        = "data"
	PropToBeDeleted = "to-be-deleted"
	PropSelected    = "selected"
)

// Entity 列表可以管理的实体
// update 不导出：快照只能由所属列表替换
type Entity[D any] interface {
	ID() string
	Data() D
	update(D)
	Selected() bool
	SetSelected(bool)
	ToBeDeleted() bool
	SetToBeDeleted(bool)
}

// base 所有实体共用的部分
type base[D any] struct {
	id string

	mu          sync.RWMutex
	data        D
	toBeDeleted bool
	selected    bool

	// Changed 属性变化通知，参数为属性名
	Changed Signal[string]
}

func newBase[D any](id string, data D) base[D] {
	return base[D]{id: id, data: data}
}

// ID 返回实体 ID
func (b *base[D]) ID() string {
	return b.id
}

// Data 返回最近一次检查得到的快照
func (b *base[D]) Data() D {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.data
}

func (b *base[D]) update(data D) {
	b.mu.Lock()
	b.data = data
	b.mu.Unlock()
	b.Changed.Emit(PropData)
}

// ToBeDeleted 删除请求已发出但尚未完成
func (b *base[D]) ToBeDeleted() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.toBeDeleted
}

// SetToBeDeleted 设置乐观删除标记
func (b *base[D]) SetToBeDeleted(v bool) {
	if b.set(&b.toBeDeleted, v) {
		b.Changed.Emit(PropToBeDeleted)
	}
}

// Selected 是否被选中
func (b *base[D]) Selected() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.selected
}

// SetSelected 设置选中状态
func (b *base[D]) SetSelected(v bool) {
	if b.set(&b.selected, v) {
		b.Changed.Emit(PropSelected)
	}
}

func (b *base[D]) set(field *bool, v bool) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if *field == v {
		return false
	}
	*field = v
	return true
}
