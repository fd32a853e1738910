package model

import (
	"context"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"podsync/internal/engine"
)

// fakeContainers 内存中的容器运行时
type fakeContainers struct {
	mu         sync.Mutex
	ids        []string
	listErr    error
	inspectErr map[string]error
	states     map[string]string
	infra      map[string]bool
	lists      int
	inspects   map[string]int
	onList     func()
}

func newFakeContainers(ids ...string) *fakeContainers {
	return &fakeContainers{
		ids:        ids,
		inspectErr: make(map[string]error),
		states:     make(map[string]string),
		infra:      make(map[string]bool),
		inspects:   make(map[string]int),
	}
}

func (f *fakeContainers) List(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	f.lists++
	hook := f.onList
	ids := append([]string(nil), f.ids...)
	err := f.listErr
	f.mu.Unlock()

	if hook != nil {
		hook()
	}
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (f *fakeContainers) Inspect(ctx context.Context, id string) (engine.ContainerData, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inspects[id]++
	if err := f.inspectErr[id]; err != nil {
		return engine.ContainerData{}, err
	}
	state := f.states[id]
	if state == "" {
		state = "running"
	}
	return engine.ContainerData{ID: id, Name: "/" + id, State: state, IsInfra: f.infra[id]}, nil
}

func (f *fakeContainers) set(ids ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ids = ids
}

func (f *fakeContainers) failInspect(id string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.inspectErr, id)
		return
	}
	f.inspectErr[id] = err
}

// recorder 记录列表发出的通知
type recorder struct {
	mu      sync.Mutex
	changes []ItemsChanged
	added   []string
	removed []string
	errs    []error
	fetched []int
}

func record(l *List[engine.ContainerData, *Container]) *recorder {
	r := &recorder{}
	l.ItemsChanged.Connect(func(c ItemsChanged) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.changes = append(r.changes, c)
	})
	l.Added.Connect(func(c *Container) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.added = append(r.added, c.ID())
	})
	l.Removed.Connect(func(c *Container) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.removed = append(r.removed, c.ID())
	})
	l.Errors.Connect(func(err error) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.errs = append(r.errs, err)
	})
	l.PropertyChanged.Connect(func(prop string) {
		if prop != PropFetched {
			return
		}
		v := l.Fetched()
		r.mu.Lock()
		defer r.mu.Unlock()
		r.fetched = append(r.fetched, v)
	})
	return r
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes, r.added, r.removed, r.errs, r.fetched = nil, nil, nil, nil, nil
}

func ids(l *ContainerList) []string {
	var out []string
	for _, c := range l.Items() {
		out = append(out, c.ID())
	}
	return out
}

func TestList_RefreshAddsInOrder(t *testing.T) {
	src := newFakeContainers("1")
	l := NewContainerList(src)
	r := record(l.List)

	require.NoError(t, l.Refresh(context.Background()))

	assert.Equal(t, []string{"1"}, ids(l))
	assert.Equal(t, []string{"1"}, r.added)
	assert.Equal(t, []ItemsChanged{{Position: 0, Added: 1}}, r.changes)
	assert.Equal(t, []int{0, 1}, r.fetched)
	assert.Equal(t, 1, l.Fetched())
	assert.Equal(t, 1, l.ToFetch())
	assert.True(t, l.Initialized())
	assert.False(t, l.Listing())
}

func TestList_RefreshIsIdempotent(t *testing.T) {
	src := newFakeContainers("1")
	l := NewContainerList(src)
	r := record(l.List)

	require.NoError(t, l.Refresh(context.Background()))
	r.reset()
	require.NoError(t, l.Refresh(context.Background()))

	assert.Empty(t, r.changes)
	assert.Empty(t, r.added)
	assert.Empty(t, r.removed)
	// 第二次刷新仍然重新检查
	assert.Equal(t, []int{0, 1}, r.fetched)
	assert.Equal(t, 2, src.inspects["1"])
}

func TestList_RefreshDiff(t *testing.T) {
	src := newFakeContainers("a", "b", "c")
	l := NewContainerList(src)
	require.NoError(t, l.Refresh(context.Background()))

	b, _ := l.Get("b")
	var bChanged int
	b.Changed.Connect(func(prop string) {
		if prop == PropData {
			bChanged++
		}
	})

	r := record(l.List)
	src.set("b", "c", "d")
	require.NoError(t, l.Refresh(context.Background()))

	assert.ElementsMatch(t, []string{"b", "c", "d"}, ids(l))
	assert.Equal(t, []string{"a"}, r.removed)
	assert.Equal(t, []string{"d"}, r.added)
	assert.Equal(t, []ItemsChanged{
		{Position: 0, Removed: 1},
		{Position: 2, Added: 1},
	}, r.changes)

	same, _ := l.Get("b")
	assert.Same(t, b, same)
	assert.Equal(t, 1, bChanged)
}

func TestList_ListErrorLeavesCollection(t *testing.T) {
	src := newFakeContainers("a", "b")
	l := NewContainerList(src, WithConcurrency(1))
	require.NoError(t, l.Refresh(context.Background()))

	r := record(l.List)
	src.mu.Lock()
	src.listErr = errors.New("connection refused")
	src.mu.Unlock()

	err := l.Refresh(context.Background())
	var lerr *ListError
	require.ErrorAs(t, err, &lerr)
	assert.Equal(t, engine.KindContainer, lerr.Kind)

	assert.Equal(t, []string{"a", "b"}, ids(l))
	assert.Empty(t, r.changes)
	require.Len(t, r.errs, 1)
	assert.False(t, l.Listing())
}

func TestList_FailedInspectReportedOnce(t *testing.T) {
	src := newFakeContainers("x")
	src.failInspect("x", errors.New("no such container"))
	l := NewContainerList(src)
	r := record(l.List)

	require.NoError(t, l.Refresh(context.Background()))
	require.NoError(t, l.Refresh(context.Background()))

	require.Len(t, r.errs, 1)
	var ierr *InspectError
	require.ErrorAs(t, r.errs[0], &ierr)
	assert.Equal(t, "x", ierr.ID)
	assert.True(t, l.Failed("x"))
	assert.Equal(t, 0, l.Len())
	assert.Equal(t, 1, l.Fetched())

	// 成功一次后，新的失败会再次上报
	src.failInspect("x", nil)
	require.NoError(t, l.Refresh(context.Background()))
	assert.False(t, l.Failed("x"))
	assert.Equal(t, 1, l.Len())

	src.failInspect("x", errors.New("boom"))
	require.NoError(t, l.Refresh(context.Background()))
	assert.Len(t, r.errs, 2)
}

func TestList_FailedInspectForgottenWhenUnlisted(t *testing.T) {
	src := newFakeContainers("x")
	src.failInspect("x", errors.New("no such container"))
	l := NewContainerList(src)
	r := record(l.List)

	require.NoError(t, l.Refresh(context.Background()))
	require.True(t, l.Failed("x"))

	src.set()
	require.NoError(t, l.Refresh(context.Background()))
	assert.False(t, l.Failed("x"))

	// 重新出现后再次失败，需要重新上报
	src.set("x")
	require.NoError(t, l.Refresh(context.Background()))
	assert.True(t, l.Failed("x"))
	assert.Len(t, r.errs, 2)
}

func TestList_UpdateEmitsEntityChanged(t *testing.T) {
	src := newFakeContainers("a", "b")
	l := NewContainerList(src)
	require.NoError(t, l.Refresh(context.Background()))

	r := record(l.List)
	var changed []string
	l.EntityChanged.Connect(func(c *Container) { changed = append(changed, c.ID()) })

	src.states["b"] = "exited"
	require.NoError(t, l.Reinspect(context.Background(), "b"))

	assert.Equal(t, []string{"b"}, changed)
	assert.Empty(t, r.changes)
	assert.Empty(t, r.added)
	c, ok := l.Get("b")
	require.True(t, ok)
	assert.Equal(t, ContainerStatusExited, c.Status())
}

func TestList_FailedInspectKeepsExisting(t *testing.T) {
	src := newFakeContainers("a")
	l := NewContainerList(src)
	require.NoError(t, l.Refresh(context.Background()))

	src.failInspect("a", errors.New("timeout"))
	r := record(l.List)
	require.NoError(t, l.Refresh(context.Background()))

	assert.Equal(t, []string{"a"}, ids(l))
	assert.Empty(t, r.removed)
	assert.True(t, l.Failed("a"))
}

func TestList_RemoveIsIdempotent(t *testing.T) {
	src := newFakeContainers("a", "b", "c")
	l := NewContainerList(src, WithConcurrency(1))
	require.NoError(t, l.Refresh(context.Background()))
	r := record(l.List)

	assert.True(t, l.Remove("b"))
	assert.False(t, l.Remove("b"))
	assert.False(t, l.Remove("missing"))

	assert.Equal(t, []ItemsChanged{{Position: 1, Removed: 1}}, r.changes)
	assert.Equal(t, []string{"b"}, r.removed)
	assert.Equal(t, []string{"a", "c"}, ids(l))
}

func TestList_RemoveClearsFailed(t *testing.T) {
	src := newFakeContainers("x")
	src.failInspect("x", errors.New("boom"))
	l := NewContainerList(src)
	require.NoError(t, l.Refresh(context.Background()))
	require.True(t, l.Failed("x"))

	l.Remove("x")
	assert.False(t, l.Failed("x"))
}

func TestList_ListingFlag(t *testing.T) {
	src := newFakeContainers("a")
	l := NewContainerList(src)

	var during bool
	src.onList = func() { during = l.Listing() }

	require.NoError(t, l.Refresh(context.Background()))
	assert.True(t, during)
	assert.False(t, l.Listing())
}

func TestList_DuplicateIDsInspectedOnce(t *testing.T) {
	src := newFakeContainers("a", "a", "b")
	l := NewContainerList(src)
	require.NoError(t, l.Refresh(context.Background()))

	assert.Equal(t, 2, l.Len())
	assert.Equal(t, 2, l.ToFetch())
	assert.Equal(t, 1, src.inspects["a"])
}

func TestList_HandleEvent(t *testing.T) {
	src := newFakeContainers("a", "b")
	l := NewContainerList(src)
	require.NoError(t, l.Refresh(context.Background()))

	require.NoError(t, l.HandleEvent(context.Background(), engine.Event{
		Type:   engine.KindContainer,
		Action: engine.ActionRemove,
		Actor:  engine.Actor{ID: "a"},
	}))
	assert.Equal(t, []string{"b"}, ids(l))
	assert.Equal(t, 1, src.lists)

	src.set("b", "c")
	require.NoError(t, l.HandleEvent(context.Background(), engine.Event{
		Type:   engine.KindContainer,
		Action: "start",
		Actor:  engine.Actor{ID: "c"},
	}))
	assert.Equal(t, []string{"b", "c"}, ids(l))
	assert.Equal(t, 2, src.lists)
}

func TestContainerList_HealthStatusReinspects(t *testing.T) {
	src := newFakeContainers("a")
	l := NewContainerList(src)
	require.NoError(t, l.Refresh(context.Background()))

	require.NoError(t, l.HandleEvent(context.Background(), engine.Event{
		Type:   engine.KindContainer,
		Action: engine.ActionHealthStatus,
		Actor:  engine.Actor{ID: "a"},
	}))

	assert.Equal(t, 1, src.lists)
	assert.Equal(t, 2, src.inspects["a"])
}

func TestContainerList_SkipsInfra(t *testing.T) {
	src := newFakeContainers("web", "p1-infra")
	src.infra["p1-infra"] = true
	l := NewContainerList(src)
	r := record(l.List)

	require.NoError(t, l.Refresh(context.Background()))
	assert.Equal(t, []string{"web"}, ids(l))
	assert.Equal(t, []string{"web"}, r.added)
	assert.Empty(t, r.errs)

	require.NoError(t, l.Reinspect(context.Background(), "p1-infra"))
	assert.Equal(t, []string{"web"}, ids(l))

	// 实体变成 infra 时从列表移除
	src.infra["web"] = true
	require.NoError(t, l.Refresh(context.Background()))
	assert.Equal(t, 0, l.Len())
	assert.Equal(t, []string{"web"}, r.removed)
}

func TestContainerList_CountByStatus(t *testing.T) {
	src := newFakeContainers("a", "b", "c")
	src.states["b"] = "exited"
	l := NewContainerList(src)
	require.NoError(t, l.Refresh(context.Background()))

	counts := l.CountByStatus()
	assert.Equal(t, 2, counts[ContainerStatusRunning])
	assert.Equal(t, 1, counts[ContainerStatusExited])
	assert.Equal(t, 2, l.Running())
}

func TestList_Selection(t *testing.T) {
	src := newFakeContainers("a", "b")
	l := NewContainerList(src)
	require.NoError(t, l.Refresh(context.Background()))

	l.SelectAll(true)
	assert.Equal(t, 2, l.NumSelected())

	a, _ := l.Get("a")
	a.SetSelected(false)
	assert.Equal(t, 1, l.NumSelected())
	require.Len(t, l.SelectedItems(), 1)
	assert.Equal(t, "b", l.SelectedItems()[0].ID())
}
