package model

import (
	"context"
	"strings"

	"podsync/internal/engine"
)

// ContainerStatus 容器状态
type ContainerStatus int

const (
	ContainerStatusUnknown ContainerStatus = iota
	ContainerStatusConfigured
	ContainerStatusCreated
	ContainerStatusDead
	ContainerStatusExited
	ContainerStatusInitialized
	ContainerStatusPaused
	ContainerStatusRemoving
	ContainerStatusRestarting
	ContainerStatusRunning
	ContainerStatusStopped
	ContainerStatusStopping
)

var containerStatusNames = map[ContainerStatus]string{
	ContainerStatusUnknown:     "unknown",
	ContainerStatusConfigured:  "configured",
	ContainerStatusCreated:     "created",
	ContainerStatusDead:        "dead",
	ContainerStatusExited:      "exited",
	ContainerStatusInitialized: "initialized",
	ContainerStatusPaused:      "paused",
	ContainerStatusRemoving:    "removing",
	ContainerStatusRestarting:  "restarting",
	ContainerStatusRunning:     "running",
	ContainerStatusStopped:     "stopped",
	ContainerStatusStopping:    "stopping",
}

// String 返回状态字符串
func (s ContainerStatus) String() string {
	if name, ok := containerStatusNames[s]; ok {
		return name
	}
	return "unknown"
}

// ParseContainerStatus 解析运行时返回的状态字符串，无法识别时返回 Unknown
func ParseContainerStatus(s string) ContainerStatus {
	s = strings.ToLower(strings.TrimSpace(s))
	for status, name := range containerStatusNames {
		if name == s {
			return status
		}
	}
	return ContainerStatusUnknown
}

// HealthStatus 健康检查状态
type HealthStatus int

const (
	HealthStatusUnknown HealthStatus = iota
	HealthStatusStarting
	HealthStatusHealthy
	HealthStatusUnhealthy
	HealthStatusUnconfigured
)

// String 返回健康状态字符串
func (s HealthStatus) String() string {
	switch s {
	case HealthStatusStarting:
		return "starting"
	case HealthStatusHealthy:
		return "healthy"
	case HealthStatusUnhealthy:
		return "unhealthy"
	case HealthStatusUnconfigured:
		return "unconfigured"
	default:
		return "unknown"
	}
}

// ParseHealthStatus 空字符串表示未配置健康检查
func ParseHealthStatus(s string) HealthStatus {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return HealthStatusUnconfigured
	case "starting":
		return HealthStatusStarting
	case "healthy":
		return HealthStatusHealthy
	case "unhealthy":
		return HealthStatusUnhealthy
	default:
		return HealthStatusUnknown
	}
}

// Container 容器实体
type Container struct {
	base[engine.ContainerData]
}

func newContainer(id string, data engine.ContainerData) *Container {
	return &Container{base: newBase(id, data)}
}

// Name 容器名称
func (c *Container) Name() string {
	return strings.TrimPrefix(c.Data().Name, "/")
}

// Status 容器状态
func (c *Container) Status() ContainerStatus {
	return ParseContainerStatus(c.Data().State)
}

// HealthStatus 健康检查状态
func (c *Container) HealthStatus() HealthStatus {
	return ParseHealthStatus(c.Data().Health)
}

// ImageID 容器使用的镜像 ID
func (c *Container) ImageID() string {
	return c.Data().ImageID
}

// PodID 所属 Pod，可为空
func (c *Container) PodID() string {
	return c.Data().PodID
}

// ContainerList 容器列表
type ContainerList struct {
	*List[engine.ContainerData, *Container]
}

// NewContainerList 创建容器列表，Pod 的 infra 容器不会出现在列表中
func NewContainerList(source engine.Source[engine.ContainerData], opts ...Option) *ContainerList {
	l := newList(engine.KindContainer, source, newContainer, opts...)
	l.skip = func(d engine.ContainerData) bool { return d.IsInfra }
	return &ContainerList{List: l}
}

// HandleEvent health_status 事件只重新检查对应容器
func (l *ContainerList) HandleEvent(ctx context.Context, ev engine.Event) error {
	if ev.Action == engine.ActionHealthStatus {
		return l.Reinspect(ctx, ev.Actor.ID)
	}
	return l.List.HandleEvent(ctx, ev)
}

// CountByStatus 按状态统计
func (l *ContainerList) CountByStatus() map[ContainerStatus]int {
	counts := make(map[ContainerStatus]int)
	for _, c := range l.Items() {
		counts[c.Status()]++
	}
	return counts
}

// Running 运行中的容器数量
func (l *ContainerList) Running() int {
	return l.CountByStatus()[ContainerStatusRunning]
}

// ByPod 属于指定 Pod 的容器
func (l *ContainerList) ByPod(podID string) []*Container {
	var out []*Container
	for _, c := range l.Items() {
		if c.PodID() == podID {
			out = append(out, c)
		}
	}
	return out
}
