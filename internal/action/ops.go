package action

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"podsync/internal/engine"
)

// ErrIncompleteStream 流在最终报告之前就结束了
var ErrIncompleteStream = errors.New("stream ended before a final report")

// PruneImages 清理镜像
func (l *List) PruneImages(opts engine.PruneOptions) *Action {
	a := l.create(TypePruneImages, "Prune images")
	go l.prune(a, func(ctx context.Context) (engine.PruneReport, error) {
		return l.deps.Runtime.Images().Prune(ctx, opts)
	})
	return a
}

// PruneContainers 清理已停止的容器
func (l *List) PruneContainers(opts engine.PruneOptions) *Action {
	a := l.create(TypePruneContainers, "Prune containers")
	go l.prune(a, func(ctx context.Context) (engine.PruneReport, error) {
		return l.deps.Runtime.Containers().Prune(ctx, opts)
	})
	return a
}

// PrunePods 清理已停止的 Pod
func (l *List) PrunePods() *Action {
	a := l.create(TypePrunePods, "Prune pods")
	go l.prune(a, func(ctx context.Context) (engine.PruneReport, error) {
		pods := l.deps.Runtime.Pods()
		if pods == nil {
			return engine.PruneReport{}, engine.ErrNotSupported
		}
		return pods.Prune(ctx)
	})
	return a
}

// PruneVolumes 清理未使用的卷
func (l *List) PruneVolumes(opts engine.PruneOptions) *Action {
	a := l.create(TypePruneVolumes, "Prune volumes")
	go l.prune(a, func(ctx context.Context) (engine.PruneReport, error) {
		return l.deps.Runtime.Volumes().Prune(ctx, opts)
	})
	return a
}

// DownloadImage 拉取镜像，完成后把镜像设为产出
func (l *List) DownloadImage(opts engine.PullOptions) *Action {
	a := l.create(TypeDownloadImage, fmt.Sprintf("Pull image %s", opts.Reference))
	go func() {
		id, ok := l.pull(a, opts)
		if !ok {
			return
		}
		a.finish()
		if l.deps.Images != nil {
			resolveArtifact(a, engine.KindImage, l.deps.Images.List, id)
		}
	}()
	return a
}

// BuildImage 构建镜像，按约定最后一段输出的第一行是镜像 ID
func (l *List) BuildImage(opts engine.BuildOptions) *Action {
	name := strings.Join(opts.Tags, ", ")
	if name == "" {
		name = "<none>"
	}
	a := l.create(TypeBuildImage, fmt.Sprintf("Build image %s", name))
	go func() {
		ctx, ok := a.step()
		if !ok {
			return
		}
		a.insertLine("Generating tarball of context directory...")

		chunks, err := l.deps.Runtime.Images().Build(ctx, opts)
		if err != nil {
			a.stepFailed(ctx, err)
			return
		}

		var last string
		for {
			select {
			case <-ctx.Done():
				return
			case chunk, more := <-chunks:
				if !more {
					id := firstLine(last)
					if id == "" {
						a.stepFailed(ctx, errors.New("build did not report an image id"))
						return
					}
					a.finish()
					if l.deps.Images != nil {
						resolveArtifact(a, engine.KindImage, l.deps.Images.List, id)
					}
					return
				}
				if chunk.Err != nil {
					a.stepFailed(ctx, chunk.Err)
					return
				}
				if chunk.Stream != "" {
					a.insert(chunk.Stream)
					last = chunk.Stream
				}
			}
		}
	}()
	return a
}

// PushImage 推送镜像
func (l *List) PushImage(opts engine.PushOptions) *Action {
	a := l.create(TypePushImage, fmt.Sprintf("Push image %s", opts.Reference))
	go func() {
		ctx, ok := a.step()
		if !ok {
			return
		}

		reports, err := l.deps.Runtime.Images().Push(ctx, opts)
		if err != nil {
			a.stepFailed(ctx, err)
			return
		}
		for {
			select {
			case <-ctx.Done():
				return
			case r, more := <-reports:
				if !more {
					a.finish()
					return
				}
				if r.Err != nil {
					a.stepFailed(ctx, r.Err)
					return
				}
				a.insert(r.Stream)
			}
		}
	}()
	return a
}

// CreateContainer 创建容器；本地没有镜像时先拉取，再用拉取到的镜像 ID 创建
// run 为 true 时创建后立即启动
func (l *List) CreateContainer(opts engine.ContainerCreateOptions, run bool) *Action {
	verb := "Create container"
	if run {
		verb = "Start new container"
	}
	name := opts.Name
	if name == "" {
		name = opts.Image
	}
	a := l.create(TypeContainer, fmt.Sprintf("%s %s", verb, name))

	go func() {
		image, ok := l.ensureImage(a, opts.Image)
		if !ok {
			return
		}
		opts.Image = image

		ctx, ok := a.step()
		if !ok {
			return
		}
		id, err := l.deps.Runtime.Containers().Create(ctx, opts)
		if err != nil {
			a.stepFailed(ctx, err)
			return
		}
		if l.deps.Containers != nil {
			resolveArtifact(a, engine.KindContainer, l.deps.Containers.List, id)
		}

		if run {
			ctx, ok = a.step()
			if !ok {
				return
			}
			if err := l.deps.Runtime.Containers().Start(ctx, id); err != nil {
				a.stepFailed(ctx, errors.Wrap(err, "error on starting container"))
				return
			}
		}
		a.finish()
	}()
	return a
}

// CreatePod 创建 Pod；infra 镜像不在本地时先拉取
func (l *List) CreatePod(opts engine.PodCreateOptions) *Action {
	a := l.create(TypePod, fmt.Sprintf("Create pod %s", opts.Name))

	go func() {
		pods := l.deps.Runtime.Pods()
		if pods == nil {
			a.fail(engine.ErrNotSupported)
			return
		}

		if !opts.NoInfra && opts.InfraImage != "" {
			image, ok := l.ensureImage(a, opts.InfraImage)
			if !ok {
				return
			}
			opts.InfraImage = image
		}

		ctx, ok := a.step()
		if !ok {
			return
		}
		id, err := pods.Create(ctx, opts)
		if err != nil {
			a.stepFailed(ctx, err)
			return
		}
		a.finish()
		if l.deps.Pods != nil {
			resolveArtifact(a, engine.KindPod, l.deps.Pods.List, id)
		}
	}()
	return a
}

// CreateVolume 创建卷
func (l *List) CreateVolume(opts engine.VolumeCreateOptions) *Action {
	a := l.create(TypeVolume, fmt.Sprintf("Create volume %s", opts.Name))

	go func() {
		ctx, ok := a.step()
		if !ok {
			return
		}
		name, err := l.deps.Runtime.Volumes().Create(ctx, opts)
		if err != nil {
			a.stepFailed(ctx, err)
			return
		}
		a.finish()
		if l.deps.Volumes != nil {
			resolveArtifact(a, engine.KindVolume, l.deps.Volumes.List, name)
		}
	}()
	return a
}

// ensureImage 本地已有镜像时直接返回其 ID，否则拉取
func (l *List) ensureImage(a *Action, ref string) (string, bool) {
	if l.deps.Images != nil {
		if img, ok := l.deps.Images.FindByReference(ref); ok {
			return img.ID(), true
		}
	}
	a.insertLine(fmt.Sprintf("Image %s not found locally, pulling", ref))
	id, ok := l.pull(a, engine.PullOptions{Reference: ref})
	if ok && id == "" {
		id = ref
	}
	return id, ok
}

// pull 拉取步骤，返回最终报告中的镜像 ID
func (l *List) pull(a *Action, opts engine.PullOptions) (string, bool) {
	ctx, ok := a.step()
	if !ok {
		return "", false
	}

	reports, err := l.deps.Runtime.Images().Pull(ctx, opts)
	if err != nil {
		a.stepFailed(ctx, err)
		return "", false
	}

	for {
		select {
		case <-ctx.Done():
			return "", false
		case r, more := <-reports:
			if !more {
				a.stepFailed(ctx, ErrIncompleteStream)
				return "", false
			}
			if r.Err != nil {
				a.stepFailed(ctx, r.Err)
				return "", false
			}
			if !r.Final() {
				a.insert(r.Stream)
				continue
			}
			return r.ID, true
		}
	}
}

func (l *List) prune(a *Action, op func(ctx context.Context) (engine.PruneReport, error)) {
	ctx, ok := a.step()
	if !ok {
		return
	}

	report, err := op(ctx)
	if err != nil {
		a.stepFailed(ctx, err)
		return
	}

	out, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		a.fail(err)
		return
	}
	a.insertLine(string(out))
	a.finish()
}

func firstLine(s string) string {
	s = strings.TrimLeft(s, "\r\n")
	if i := strings.IndexAny(s, "\r\n"); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
