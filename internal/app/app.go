package app

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"podsync/internal/action"
	"podsync/internal/config"
	"podsync/internal/engine"
	"podsync/internal/model"
	"podsync/internal/router"
)

// ErrNotFound 列表中没有该实体
var ErrNotFound = errors.New("entity not found")

// App 把运行时、实体列表、动作列表和事件路由组装在一起
type App struct {
	cfg *config.Config
	rt  engine.Runtime
	log *logrus.Entry

	Images     *model.ImageList
	Containers *model.ContainerList
	// Pods 未启用时为 nil
	Pods     *model.PodList
	Volumes  *model.VolumeList
	Networks *model.NetworkList
	Actions  *action.List

	Router *router.Router
	Syncer *router.Syncer

	wg      sync.WaitGroup
	mu      sync.Mutex
	runErr  error
	started bool
}

// New 根据配置和运行时创建 App，此时还不会访问运行时
func New(cfg *config.Config, rt engine.Runtime, logger *logrus.Entry) *App {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	opts := []model.Option{
		model.WithConcurrency(cfg.InspectConcurrency),
		model.WithLogger(logger),
	}

	a := &App{
		cfg:        cfg,
		rt:         rt,
		log:        logger.WithField("component", "app"),
		Images:     model.NewImageList(rt.Images(), opts...),
		Containers: model.NewContainerList(rt.Containers(), opts...),
		Volumes:    model.NewVolumeList(rt.Volumes(), opts...),
		Networks:   model.NewNetworkList(rt.Networks(), opts...),
		Router:     router.New(logger),
		Syncer:     router.NewSyncer(cfg.SyncInterval, logger),
	}
	if pods := rt.Pods(); pods != nil && cfg.PodsEnabled() {
		a.Pods = model.NewPodList(pods, opts...)
	}

	a.Actions = action.NewList(action.Deps{
		Runtime:    rt,
		Images:     a.Images,
		Containers: a.Containers,
		Pods:       a.Pods,
		Volumes:    a.Volumes,
		Logger:     logger,
	})

	a.Router.Register(engine.KindImage, a.Images)
	a.Router.Register(engine.KindContainer, a.Containers)
	a.Router.Register(engine.KindVolume, a.Volumes)
	a.Router.Register(engine.KindNetwork, a.Networks)
	a.Syncer.Add(a.Images, a.Containers, a.Volumes, a.Networks)
	if a.Pods != nil {
		a.Router.Register(engine.KindPod, a.Pods)
		a.Syncer.Add(a.Pods)
	}
	return a
}

// Refresh 并行刷新所有列表，单个列表失败只记录日志，返回第一个错误
func (a *App) Refresh(ctx context.Context) error {
	var g errgroup.Group
	refresh := func(kind engine.Kind, fn func(context.Context) error) {
		g.Go(func() error {
			if err := fn(ctx); err != nil {
				a.log.WithField("kind", kind).WithError(err).Error("initial refresh failed")
				return err
			}
			return nil
		})
	}

	refresh(engine.KindImage, a.Images.Refresh)
	refresh(engine.KindContainer, a.Containers.Refresh)
	refresh(engine.KindVolume, a.Volumes.Refresh)
	refresh(engine.KindNetwork, a.Networks.Refresh)
	if a.Pods != nil {
		refresh(engine.KindPod, a.Pods.Refresh)
	}
	return g.Wait()
}

// Start 首次刷新后启动事件路由和定期同步，ctx 结束时两者一起停止
func (a *App) Start(ctx context.Context) {
	a.mu.Lock()
	if a.started {
		a.mu.Unlock()
		return
	}
	a.started = true
	a.mu.Unlock()

	_ = a.Refresh(ctx)

	events, errs := a.rt.Events(ctx)
	a.wg.Add(2)
	go func() {
		defer a.wg.Done()
		if err := a.Router.Run(ctx, events, errs); err != nil {
			a.mu.Lock()
			a.runErr = err
			a.mu.Unlock()
		}
	}()
	go func() {
		defer a.wg.Done()
		a.Syncer.Run(ctx)
	}()
}

// Wait 等待事件路由和同步结束，返回事件流的错误
func (a *App) Wait() error {
	a.wg.Wait()
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.runErr
}

// Top 启动一个进程列表，ctx 结束时停止刷新
func (a *App) Top(ctx context.Context, kind engine.Kind, id string) (*model.ProcessList, error) {
	var src engine.TopSource
	switch kind {
	case engine.KindContainer:
		src = a.rt.Containers()
	case engine.KindPod:
		if pods := a.rt.Pods(); pods != nil {
			src = pods
		}
	}
	if src == nil {
		return nil, errors.Wrapf(engine.ErrNotSupported, "top for %s", kind)
	}

	snapshots, err := src.Top(ctx, id, a.cfg.TopInterval)
	if err != nil {
		return nil, err
	}
	pl := model.NewProcessList(a.log.WithFields(logrus.Fields{"kind": kind, "id": id}))
	go pl.Run(ctx, snapshots)
	return pl, nil
}

// Delete 乐观删除：先标记 to_be_deleted，删除成功后从列表移除，失败时恢复标记
func (a *App) Delete(ctx context.Context, kind engine.Kind, id string, force bool) error {
	switch kind {
	case engine.KindImage:
		return remove(ctx, a.Images.List, a.rt.Images(), id, force)
	case engine.KindContainer:
		return remove(ctx, a.Containers.List, a.rt.Containers(), id, force)
	case engine.KindVolume:
		return remove(ctx, a.Volumes.List, a.rt.Volumes(), id, force)
	case engine.KindNetwork:
		return remove(ctx, a.Networks.List, a.rt.Networks(), id, force)
	case engine.KindPod:
		if a.Pods == nil {
			return errors.Wrap(engine.ErrNotSupported, "pods")
		}
		return remove(ctx, a.Pods.List, a.rt.Pods(), id, force)
	}
	return errors.Errorf("unknown kind %q", kind)
}

func remove[D any, E model.Entity[D]](ctx context.Context, l *model.List[D, E], r engine.Remover, id string, force bool) error {
	item, ok := l.Get(id)
	if !ok {
		return errors.Wrapf(ErrNotFound, "%s %s", l.Kind(), id)
	}

	item.SetToBeDeleted(true)
	if err := r.Remove(ctx, id, force); err != nil {
		item.SetToBeDeleted(false)
		return err
	}
	l.Remove(id)
	return nil
}

// Close 关闭运行时连接
func (a *App) Close() error {
	return a.rt.Close()
}
