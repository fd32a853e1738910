package model

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"podsync/internal/engine"
)

// 列表属性名，用于 PropertyChanged 信号
const (
	PropFetched     = "fetched"
	PropToFetch     = "to-fetch"
	PropListing     = "listing"
	PropInitialized = "initialized"
	PropLen         = "len"
)

// DefaultConcurrency 单次刷新中并发检查的上限
const DefaultConcurrency = 8

// ItemsChanged 列表区间变化：从 Position 开始删除 Removed 个，再插入 Added 个
type ItemsChanged struct {
	Position int
	Removed  int
	Added    int
}

// Option 列表配置
type Option func(*options)

type options struct {
	concurrency int
	logger      *logrus.Entry
}

// WithConcurrency 设置并发检查上限
func WithConcurrency(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.concurrency = n
		}
	}
}

// WithLogger 设置日志记录器
func WithLogger(l *logrus.Entry) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// List 与运行时全量列表保持同步的有序集合
// 按 ID 索引，保持插入顺序；刷新时先同步删除消失的 ID，再并发检查所有列出的 ID
type List[D any, E Entity[D]] struct {
	kind    engine.Kind
	source  engine.Source[D]
	newItem func(id string, data D) E
	limit   int
	log     *logrus.Entry

	// skip 为 true 的快照不进入列表，已在列表中的会被移除
	skip func(D) bool

	mu          sync.RWMutex
	ids         []string
	items       map[string]E
	failed      map[string]struct{}
	fetched     int
	toFetch     int
	generation  uint64
	listings    int
	initialized bool

	ItemsChanged Signal[ItemsChanged]
	Added        Signal[E]
	Removed      Signal[E]

	// EntityChanged 已有实体的数据被新快照替换，ItemsChanged 不会触发
	EntityChanged   Signal[E]
	PropertyChanged Signal[string]
	// Errors 列出或检查失败时触发，参数为 *ListError 或 *InspectError
	Errors Signal[error]
}

func newList[D any, E Entity[D]](kind engine.Kind, source engine.Source[D], newItem func(string, D) E, opts ...Option) *List[D, E] {
	o := options{
		concurrency: DefaultConcurrency,
		logger:      logrus.NewEntry(logrus.StandardLogger()),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &List[D, E]{
		kind:    kind,
		source:  source,
		newItem: newItem,
		limit:   o.concurrency,
		log:     o.logger.WithField("list", string(kind)),
		items:   make(map[string]E),
		failed:  make(map[string]struct{}),
	}
}

// Kind 实体种类
func (l *List[D, E]) Kind() engine.Kind {
	return l.kind
}

// Len 实体数量
func (l *List[D, E]) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.ids)
}

// At 按位置获取实体
func (l *List[D, E]) At(i int) (E, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if i < 0 || i >= len(l.ids) {
		var zero E
		return zero, false
	}
	return l.items[l.ids[i]], true
}

// Get 按 ID 获取实体
func (l *List[D, E]) Get(id string) (E, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	item, ok := l.items[id]
	return item, ok
}

// Items 按顺序返回所有实体的副本切片
func (l *List[D, E]) Items() []E {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]E, 0, len(l.ids))
	for _, id := range l.ids {
		out = append(out, l.items[id])
	}
	return out
}

// Fetched 本轮刷新已完成的检查数
func (l *List[D, E]) Fetched() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.fetched
}

// ToFetch 本轮刷新需要检查的总数
func (l *List[D, E]) ToFetch() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.toFetch
}

// Listing 是否有刷新正在进行
func (l *List[D, E]) Listing() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.listings > 0
}

// Initialized 首次刷新是否已完成
func (l *List[D, E]) Initialized() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.initialized
}

// Failed 该 ID 最近一次检查是否失败
func (l *List[D, E]) Failed(id string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.failed[id]
	return ok
}

// Refresh 全量刷新
// 列出失败时返回 *ListError，集合不做任何修改；单个检查失败只通过 Errors 上报
func (l *List[D, E]) Refresh(ctx context.Context) error {
	l.beginListing()
	defer l.endListing()

	ids, err := l.source.List(ctx)
	if err != nil {
		lerr := &ListError{Kind: l.kind, Err: err}
		l.log.WithError(err).Error("error on listing")
		l.Errors.Emit(lerr)
		return lerr
	}

	listed := make(map[string]struct{}, len(ids))
	unique := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, dup := listed[id]; dup {
			continue
		}
		listed[id] = struct{}{}
		unique = append(unique, id)
	}

	l.mu.Lock()
	var stale []string
	for _, id := range l.ids {
		if _, ok := listed[id]; !ok {
			stale = append(stale, id)
		}
	}
	// 从未成功检查过的 id 不在 ids 里，消失后同样要清掉失败记录
	for id := range l.failed {
		if _, ok := listed[id]; !ok {
			delete(l.failed, id)
		}
	}
	l.mu.Unlock()
	for _, id := range stale {
		l.Remove(id)
	}

	gen := l.resetProgress(len(unique))

	var g errgroup.Group
	g.SetLimit(l.limit)
	for _, id := range unique {
		g.Go(func() error {
			data, err := l.source.Inspect(ctx, id)
			l.apply(id, data, err)
			l.progress(gen)
			return nil
		})
	}
	_ = g.Wait()

	l.markInitialized()
	return nil
}

// Reinspect 重新检查单个实体，不影响进度计数
func (l *List[D, E]) Reinspect(ctx context.Context, id string) error {
	data, err := l.source.Inspect(ctx, id)
	l.apply(id, data, err)
	if err != nil {
		return &InspectError{Kind: l.kind, ID: id, Err: err}
	}
	return nil
}

// Remove 删除实体，不存在时什么也不做
func (l *List[D, E]) Remove(id string) bool {
	l.mu.Lock()
	delete(l.failed, id)
	item, ok := l.items[id]
	if !ok {
		l.mu.Unlock()
		return false
	}
	idx := l.indexOf(id)
	l.ids = append(l.ids[:idx], l.ids[idx+1:]...)
	delete(l.items, id)
	l.mu.Unlock()

	l.ItemsChanged.Emit(ItemsChanged{Position: idx, Removed: 1})
	l.Removed.Emit(item)
	l.PropertyChanged.Emit(PropLen)
	return true
}

// HandleEvent remove 事件直接删除，其余事件触发一次全量刷新
func (l *List[D, E]) HandleEvent(ctx context.Context, ev engine.Event) error {
	if ev.Action == engine.ActionRemove {
		l.Remove(ev.Actor.ID)
		return nil
	}
	return l.Refresh(ctx)
}

// NumSelected 被选中的实体数量
func (l *List[D, E]) NumSelected() int {
	n := 0
	for _, item := range l.Items() {
		if item.Selected() {
			n++
		}
	}
	return n
}

// SelectAll 全选或全不选
func (l *List[D, E]) SelectAll(v bool) {
	for _, item := range l.Items() {
		item.SetSelected(v)
	}
}

// SelectedItems 所有被选中的实体
func (l *List[D, E]) SelectedItems() []E {
	var out []E
	for _, item := range l.Items() {
		if item.Selected() {
			out = append(out, item)
		}
	}
	return out
}

func (l *List[D, E]) apply(id string, data D, err error) {
	if err != nil {
		l.mu.Lock()
		_, already := l.failed[id]
		l.failed[id] = struct{}{}
		l.mu.Unlock()

		if !already {
			ierr := &InspectError{Kind: l.kind, ID: id, Err: err}
			l.log.WithField("id", id).WithError(err).Warn("error on inspecting")
			l.Errors.Emit(ierr)
		}
		return
	}

	if l.skip != nil && l.skip(data) {
		l.Remove(id)
		return
	}

	l.mu.Lock()
	delete(l.failed, id)
	if item, ok := l.items[id]; ok {
		l.mu.Unlock()
		item.update(data)
		l.EntityChanged.Emit(item)
		return
	}
	item := l.newItem(id, data)
	l.items[id] = item
	l.ids = append(l.ids, id)
	pos := len(l.ids) - 1
	l.mu.Unlock()

	l.ItemsChanged.Emit(ItemsChanged{Position: pos, Added: 1})
	l.Added.Emit(item)
	l.PropertyChanged.Emit(PropLen)
}

func (l *List[D, E]) indexOf(id string) int {
	for i, v := range l.ids {
		if v == id {
			return i
		}
	}
	return -1
}

func (l *List[D, E]) resetProgress(n int) uint64 {
	l.mu.Lock()
	l.generation++
	gen := l.generation
	l.fetched = 0
	l.toFetch = n
	l.mu.Unlock()

	l.PropertyChanged.Emit(PropToFetch)
	l.PropertyChanged.Emit(PropFetched)
	return gen
}

// progress 只统计最新一轮刷新，旧刷新的迟到结果不会让 fetched 超过 toFetch
func (l *List[D, E]) progress(gen uint64) {
	l.mu.Lock()
	if gen != l.generation || l.fetched >= l.toFetch {
		l.mu.Unlock()
		return
	}
	l.fetched++
	l.mu.Unlock()

	l.PropertyChanged.Emit(PropFetched)
}

func (l *List[D, E]) beginListing() {
	l.mu.Lock()
	l.listings++
	first := l.listings == 1
	l.mu.Unlock()

	if first {
		l.PropertyChanged.Emit(PropListing)
	}
}

func (l *List[D, E]) endListing() {
	l.mu.Lock()
	l.listings--
	last := l.listings == 0
	l.mu.Unlock()

	if last {
		l.PropertyChanged.Emit(PropListing)
	}
}

func (l *List[D, E]) markInitialized() {
	l.mu.Lock()
	changed := !l.initialized
	l.initialized = true
	l.mu.Unlock()

	if changed {
		l.PropertyChanged.Emit(PropInitialized)
	}
}
