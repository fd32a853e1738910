package engine

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// ErrNotSupported 当前运行时不提供该能力
var ErrNotSupported = errors.New("operation not supported by runtime")

// Source 列表同步所需的最小能力：全量列出 ID、逐个检查
type Source[D any] interface {
	List(ctx context.Context) ([]string, error)
	Inspect(ctx context.Context, id string) (D, error)
}

// Remover 删除单个实体
type Remover interface {
	Remove(ctx context.Context, id string, force bool) error
}

// TopSource 周期性进程快照
type TopSource interface {
	Top(ctx context.Context, id string, delay time.Duration) (<-chan TopSnapshot, error)
}

// ImageRuntime 镜像能力
type ImageRuntime interface {
	Source[ImageData]
	Remover
	Pull(ctx context.Context, opts PullOptions) (<-chan PullReport, error)
	Build(ctx context.Context, opts BuildOptions) (<-chan BuildChunk, error)
	Push(ctx context.Context, opts PushOptions) (<-chan PushReport, error)
	Prune(ctx context.Context, opts PruneOptions) (PruneReport, error)
}

// ContainerRuntime 容器能力
type ContainerRuntime interface {
	Source[ContainerData]
	Remover
	TopSource
	Create(ctx context.Context, opts ContainerCreateOptions) (string, error)
	Start(ctx context.Context, id string) error
	Prune(ctx context.Context, opts PruneOptions) (PruneReport, error)
}

// PodRuntime Pod 能力
type PodRuntime interface {
	Source[PodData]
	Remover
	TopSource
	Create(ctx context.Context, opts PodCreateOptions) (string, error)
	Prune(ctx context.Context) (PruneReport, error)
}

// VolumeRuntime 卷能力
type VolumeRuntime interface {
	Source[VolumeData]
	Remover
	Create(ctx context.Context, opts VolumeCreateOptions) (string, error)
	Prune(ctx context.Context, opts PruneOptions) (PruneReport, error)
}

// NetworkRuntime 网络能力
type NetworkRuntime interface {
	Source[NetworkData]
	Remover
}

// EventSource 运行时事件流
// 事件通道关闭或错误通道有值时，事件流结束
type EventSource interface {
	Events(ctx context.Context) (<-chan Event, <-chan error)
}

// Runtime 聚合所有能力，Pods 在不支持时返回 nil
type Runtime interface {
	EventSource
	Images() ImageRuntime
	Containers() ContainerRuntime
	Pods() PodRuntime
	Volumes() VolumeRuntime
	Networks() NetworkRuntime
	Close() error
}
