package model

import (
	"strings"

	"podsync/internal/engine"
)

// PodStatus Pod 状态
type PodStatus int

const (
	PodStatusUnknown PodStatus = iota
	PodStatusCreated
	PodStatusDead
	PodStatusDegraded
	PodStatusError
	PodStatusExited
	PodStatusPaused
	PodStatusRestarting
	PodStatusRunning
	PodStatusStopped
)

var podStatusNames = map[PodStatus]string{
	PodStatusUnknown:    "unknown",
	PodStatusCreated:    "created",
	PodStatusDead:       "dead",
	PodStatusDegraded:   "degraded",
	PodStatusError:      "error",
	PodStatusExited:     "exited",
	PodStatusPaused:     "paused",
	PodStatusRestarting: "restarting",
	PodStatusRunning:    "running",
	PodStatusStopped:    "stopped",
}

// String 返回状态字符串
func (s PodStatus) String() string {
	if name, ok := podStatusNames[s]; ok {
		return name
	}
	return "unknown"
}

// ParsePodStatus libpod 返回首字母大写的状态，如 Running、Degraded
func ParsePodStatus(s string) PodStatus {
	s = strings.ToLower(strings.TrimSpace(s))
	for status, name := range podStatusNames {
		if name == s {
			return status
		}
	}
	return PodStatusUnknown
}

// Pod Pod 实体
type Pod struct {
	base[engine.PodData]
}

func newPod(id string, data engine.PodData) *Pod {
	return &Pod{base: newBase(id, data)}
}

// Name Pod 名称
func (p *Pod) Name() string {
	return p.Data().Name
}

// Status Pod 状态
func (p *Pod) Status() PodStatus {
	return ParsePodStatus(p.Data().Status)
}

// InfraID infra 容器 ID
func (p *Pod) InfraID() string {
	return p.Data().InfraID
}

// NumContainers 容器数量（含 infra 容器）
func (p *Pod) NumContainers() int {
	return len(p.Data().Containers)
}

// PodList Pod 列表
type PodList struct {
	*List[engine.PodData, *Pod]
}

// NewPodList 创建 Pod 列表
func NewPodList(source engine.Source[engine.PodData], opts ...Option) *PodList {
	return &PodList{List: newList(engine.KindPod, source, newPod, opts...)}
}

// CountByStatus 按状态统计
func (l *PodList) CountByStatus() map[PodStatus]int {
	counts := make(map[PodStatus]int)
	for _, p := range l.Items() {
		counts[p.Status()]++
	}
	return counts
}
