package action

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"podsync/internal/engine"
	"podsync/internal/model"
)

// Event 动作状态变化事件，供通道订阅者使用
type Event struct {
	Num   uint32
	Name  string
	Type  Type
	State State
	Time  time.Time
}

// Counts 各状态的动作数量
type Counts struct {
	Ongoing   int
	Finished  int
	Cancelled int
	Failed    int
}

// Deps 动作流水线依赖的运行时和列表，Pods 相关字段可以为空
type Deps struct {
	Runtime    engine.Runtime
	Images     *model.ImageList
	Containers *model.ContainerList
	Pods       *model.PodList
	Volumes    *model.VolumeList
	Logger     *logrus.Entry
}

type entry struct {
	action  *Action
	handler model.HandlerID
}

// List 按编号排序的动作列表
type List struct {
	deps Deps
	log  *logrus.Entry

	mu      sync.RWMutex
	counter uint32
	entries []entry

	subMu       sync.RWMutex
	subscribers []chan Event

	ItemsChanged  model.Signal[model.ItemsChanged]
	CountsChanged model.Signal[Counts]
}

// NewList 创建动作列表
func NewList(deps Deps) *List {
	logger := deps.Logger
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &List{
		deps: deps,
		log:  logger.WithField("component", "actions"),
	}
}

// Counter 下一个可用编号
func (l *List) Counter() uint32 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.counter
}

// Len 动作数量
func (l *List) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// At 按位置获取动作
func (l *List) At(i int) (*Action, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if i < 0 || i >= len(l.entries) {
		return nil, false
	}
	return l.entries[i].action, true
}

// Get 按编号获取动作
func (l *List) Get(num uint32) (*Action, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if i := l.indexOf(num); i >= 0 {
		return l.entries[i].action, true
	}
	return nil, false
}

// Items 按顺序返回所有动作
func (l *List) Items() []*Action {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]*Action, 0, len(l.entries))
	for _, e := range l.entries {
		out = append(out, e.action)
	}
	return out
}

// Insert 加入动作
// 编号已被占用时改用当前计数器；计数器始终大于所有已插入的编号
func (l *List) Insert(a *Action) {
	hid := a.StateChanged.Connect(func(s State) {
		l.CountsChanged.Emit(l.Counts())
		l.publish(Event{Num: a.Num(), Name: a.Name(), Type: a.Type(), State: s, Time: time.Now()})
	})

	l.mu.Lock()
	if l.indexOf(a.Num()) >= 0 {
		a.setNum(l.counter)
	}
	if next := a.Num() + 1; next > l.counter {
		l.counter = next
	}
	pos := len(l.entries)
	l.entries = append(l.entries, entry{action: a, handler: hid})
	l.mu.Unlock()

	l.ItemsChanged.Emit(model.ItemsChanged{Position: pos, Added: 1})
	l.CountsChanged.Emit(l.Counts())
	l.publish(Event{Num: a.Num(), Name: a.Name(), Type: a.Type(), State: a.State(), Time: time.Now()})
}

// Remove 按编号删除动作，不存在时返回 false
func (l *List) Remove(num uint32) bool {
	l.mu.Lock()
	i := l.indexOf(num)
	if i < 0 {
		l.mu.Unlock()
		return false
	}
	e := l.entries[i]
	l.entries = append(l.entries[:i], l.entries[i+1:]...)
	l.mu.Unlock()

	l.release(e)
	l.ItemsChanged.Emit(model.ItemsChanged{Position: i, Removed: 1})
	l.CountsChanged.Emit(l.Counts())
	return true
}

// CleanUp 删除所有非进行中的动作，按位置倒序删除，每个位置通知一次
func (l *List) CleanUp() int {
	l.mu.Lock()
	var positions []int
	var removed []entry
	for i := len(l.entries) - 1; i >= 0; i-- {
		if l.entries[i].action.State() == StateOngoing {
			continue
		}
		removed = append(removed, l.entries[i])
		positions = append(positions, i)
		l.entries = append(l.entries[:i], l.entries[i+1:]...)
	}
	l.mu.Unlock()

	for i, e := range removed {
		l.release(e)
		l.ItemsChanged.Emit(model.ItemsChanged{Position: positions[i], Removed: 1})
	}
	if len(removed) > 0 {
		l.CountsChanged.Emit(l.Counts())
	}
	return len(removed)
}

// Counts 按状态统计，动作数量很少，每次现算
func (l *List) Counts() Counts {
	var c Counts
	for _, a := range l.Items() {
		switch a.State() {
		case StateOngoing:
			c.Ongoing++
		case StateFinished:
			c.Finished++
		case StateCancelled:
			c.Cancelled++
		case StateFailed:
			c.Failed++
		}
	}
	return c
}

// Ongoing 进行中的动作数量
func (l *List) Ongoing() int { return l.Counts().Ongoing }

// Finished 已完成的动作数量
func (l *List) Finished() int { return l.Counts().Finished }

// Cancelled 已取消的动作数量
func (l *List) Cancelled() int { return l.Counts().Cancelled }

// Failed 失败的动作数量
func (l *List) Failed() int { return l.Counts().Failed }

// Subscribe 订阅动作事件，通道满时事件被丢弃
func (l *List) Subscribe() <-chan Event {
	ch := make(chan Event, 50)
	l.subMu.Lock()
	l.subscribers = append(l.subscribers, ch)
	l.subMu.Unlock()
	return ch
}

// Unsubscribe 取消订阅并关闭通道
func (l *List) Unsubscribe(ch <-chan Event) {
	l.subMu.Lock()
	defer l.subMu.Unlock()

	for i, sub := range l.subscribers {
		if sub == ch {
			l.subscribers = append(l.subscribers[:i], l.subscribers[i+1:]...)
			close(sub)
			break
		}
	}
}

func (l *List) publish(ev Event) {
	l.subMu.RLock()
	defer l.subMu.RUnlock()
	for _, sub := range l.subscribers {
		select {
		case sub <- ev:
		default:
			// 订阅者通道已满，跳过
		}
	}
}

func (l *List) release(e entry) {
	e.action.StateChanged.Disconnect(e.handler)
	e.action.detach()
}

func (l *List) indexOf(num uint32) int {
	for i, e := range l.entries {
		if e.action.Num() == num {
			return i
		}
	}
	return -1
}

// create 以当前计数器为编号创建并插入动作
func (l *List) create(typ Type, name string) *Action {
	l.mu.RLock()
	num := l.counter
	l.mu.RUnlock()

	a := New(num, typ, name)
	l.Insert(a)
	return a
}
