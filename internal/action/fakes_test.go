package action

import (
	"context"
	"sync"
	"time"

	"podsync/internal/engine"
	"podsync/internal/model"
)

type fakeImages struct {
	mu     sync.Mutex
	images map[string]engine.ImageData
	pulls  []engine.PullOptions

	pull  func(ctx context.Context, opts engine.PullOptions) (<-chan engine.PullReport, error)
	build func(ctx context.Context, opts engine.BuildOptions) (<-chan engine.BuildChunk, error)
	push  func(ctx context.Context, opts engine.PushOptions) (<-chan engine.PushReport, error)
	prune func(ctx context.Context, opts engine.PruneOptions) (engine.PruneReport, error)
}

func (f *fakeImages) add(img engine.ImageData) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.images == nil {
		f.images = make(map[string]engine.ImageData)
	}
	f.images[img.ID] = img
}

func (f *fakeImages) List(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []string
	for id := range f.images {
		ids = append(ids, id)
	}
	return ids, nil
}

func (f *fakeImages) Inspect(ctx context.Context, id string) (engine.ImageData, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.images[id], nil
}

func (f *fakeImages) Remove(ctx context.Context, id string, force bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.images, id)
	return nil
}

func (f *fakeImages) Pull(ctx context.Context, opts engine.PullOptions) (<-chan engine.PullReport, error) {
	f.mu.Lock()
	f.pulls = append(f.pulls, opts)
	f.mu.Unlock()
	return f.pull(ctx, opts)
}

func (f *fakeImages) Build(ctx context.Context, opts engine.BuildOptions) (<-chan engine.BuildChunk, error) {
	return f.build(ctx, opts)
}

func (f *fakeImages) Push(ctx context.Context, opts engine.PushOptions) (<-chan engine.PushReport, error) {
	return f.push(ctx, opts)
}

func (f *fakeImages) Prune(ctx context.Context, opts engine.PruneOptions) (engine.PruneReport, error) {
	return f.prune(ctx, opts)
}

func (f *fakeImages) numPulls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pulls)
}

type fakeContainers struct {
	mu         sync.Mutex
	containers map[string]engine.ContainerData
	created    []engine.ContainerCreateOptions
	started    []string

	create func(ctx context.Context, opts engine.ContainerCreateOptions) (string, error)
	start  func(ctx context.Context, id string) error
}

func (f *fakeContainers) List(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []string
	for id := range f.containers {
		ids = append(ids, id)
	}
	return ids, nil
}

func (f *fakeContainers) Inspect(ctx context.Context, id string) (engine.ContainerData, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.containers[id], nil
}

func (f *fakeContainers) Remove(ctx context.Context, id string, force bool) error {
	return nil
}

func (f *fakeContainers) Top(ctx context.Context, id string, delay time.Duration) (<-chan engine.TopSnapshot, error) {
	return nil, engine.ErrNotSupported
}

func (f *fakeContainers) Create(ctx context.Context, opts engine.ContainerCreateOptions) (string, error) {
	f.mu.Lock()
	f.created = append(f.created, opts)
	f.mu.Unlock()
	id, err := f.create(ctx, opts)
	if err == nil {
		f.mu.Lock()
		if f.containers == nil {
			f.containers = make(map[string]engine.ContainerData)
		}
		f.containers[id] = engine.ContainerData{ID: id, Name: opts.Name, ImageID: opts.Image, State: "created"}
		f.mu.Unlock()
	}
	return id, err
}

func (f *fakeContainers) Start(ctx context.Context, id string) error {
	f.mu.Lock()
	f.started = append(f.started, id)
	f.mu.Unlock()
	if f.start != nil {
		return f.start(ctx, id)
	}
	return nil
}

func (f *fakeContainers) Prune(ctx context.Context, opts engine.PruneOptions) (engine.PruneReport, error) {
	return engine.PruneReport{Deleted: []string{"c1", "c2"}, SpaceReclaimed: 2048}, nil
}

type fakeVolumes struct {
	mu      sync.Mutex
	volumes map[string]engine.VolumeData
}

func (f *fakeVolumes) List(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var names []string
	for n := range f.volumes {
		names = append(names, n)
	}
	return names, nil
}

func (f *fakeVolumes) Inspect(ctx context.Context, id string) (engine.VolumeData, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.volumes[id], nil
}

func (f *fakeVolumes) Remove(ctx context.Context, id string, force bool) error {
	return nil
}

func (f *fakeVolumes) Create(ctx context.Context, opts engine.VolumeCreateOptions) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.volumes == nil {
		f.volumes = make(map[string]engine.VolumeData)
	}
	f.volumes[opts.Name] = engine.VolumeData{Name: opts.Name, Driver: "local"}
	return opts.Name, nil
}

func (f *fakeVolumes) Prune(ctx context.Context, opts engine.PruneOptions) (engine.PruneReport, error) {
	return engine.PruneReport{}, nil
}

type fakeRuntime struct {
	images     *fakeImages
	containers *fakeContainers
	volumes    *fakeVolumes
}

func (r *fakeRuntime) Events(ctx context.Context) (<-chan engine.Event, <-chan error) {
	return nil, nil
}

func (r *fakeRuntime) Images() engine.ImageRuntime         { return r.images }
func (r *fakeRuntime) Containers() engine.ContainerRuntime { return r.containers }
func (r *fakeRuntime) Pods() engine.PodRuntime             { return nil }
func (r *fakeRuntime) Volumes() engine.VolumeRuntime       { return r.volumes }
func (r *fakeRuntime) Networks() engine.NetworkRuntime     { return nil }
func (r *fakeRuntime) Close() error                        { return nil }

type fixture struct {
	rt         *fakeRuntime
	images     *model.ImageList
	containers *model.ContainerList
	volumes    *model.VolumeList
	actions    *List
}

func newFixture() *fixture {
	rt := &fakeRuntime{
		images:     &fakeImages{},
		containers: &fakeContainers{},
		volumes:    &fakeVolumes{},
	}
	f := &fixture{
		rt:         rt,
		images:     model.NewImageList(rt.images),
		containers: model.NewContainerList(rt.containers),
		volumes:    model.NewVolumeList(rt.volumes),
	}
	f.actions = NewList(Deps{
		Runtime:    rt,
		Images:     f.images,
		Containers: f.containers,
		Volumes:    f.volumes,
	})
	return f
}

// scriptedPull 依次发送给定的报告，ctx 取消时停止
func scriptedPull(reports ...engine.PullReport) func(context.Context, engine.PullOptions) (<-chan engine.PullReport, error) {
	return func(ctx context.Context, opts engine.PullOptions) (<-chan engine.PullReport, error) {
		ch := make(chan engine.PullReport)
		go func() {
			defer close(ch)
			for _, r := range reports {
				select {
				case ch <- r:
				case <-ctx.Done():
					return
				}
			}
		}()
		return ch, nil
	}
}
