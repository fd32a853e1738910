package engine

import (
	"strings"
	"time"
)

// Kind 实体种类
type Kind string

const (
	KindContainer Kind = "container"
	KindImage     Kind = "image"
	KindPod       Kind = "pod"
	KindVolume    Kind = "volume"
	KindNetwork   Kind = "network"
)

// ContainerData 容器检查结果（与运行时无关）
type ContainerData struct {
	ID        string
	Name      string
	ImageID   string
	ImageName string
	PodID     string
	State     string // configured, created, running, exited ...
	Health    string // starting, healthy, unhealthy, 空表示未配置
	Command   string
	Created   time.Time
	Ports     []string
	Labels    map[string]string
	IsInfra   bool
}

// ImageData 镜像检查结果
type ImageData struct {
	ID           string
	RepoTags     []string
	RepoDigests  []string
	Size         int64
	Created      time.Time
	Containers   int // 使用该镜像的容器数量
	Architecture string
	OS           string
	Author       string
	Labels       map[string]string
}

// PodContainer Pod 内的容器摘要
type PodContainer struct {
	ID     string
	Name   string
	Status string
}

// PodData Pod 检查结果
type PodData struct {
	ID         string
	Name       string
	Status     string // Created, Running, Degraded ...
	InfraID    string
	Created    time.Time
	Containers []PodContainer
	Labels     map[string]string
}

// VolumeData 卷检查结果，卷以名称作为 ID
type VolumeData struct {
	Name       string
	Driver     string
	Mountpoint string
	Scope      string
	Created    time.Time
	Labels     map[string]string
}

// NetworkData 网络检查结果
type NetworkData struct {
	ID         string
	Name       string
	Driver     string
	Scope      string
	Internal   bool
	IPv6       bool
	Created    time.Time
	Labels     map[string]string
	Containers int
}

// 事件动作（已归一化）
const (
	ActionCreate       = "create"
	ActionRemove       = "remove"
	ActionHealthStatus = "health_status"
	ActionPull         = "pull"
	ActionBuild        = "build"
)

// Actor 事件主体
type Actor struct {
	ID         string
	Attributes map[string]string
}

// Event 运行时事件
type Event struct {
	Type   Kind
	Action string
	Actor  Actor
	Time   time.Time
}

// NormalizeAction 把 Docker 的事件动作映射到统一的动作名
// destroy/delete -> remove，"health_status: healthy" -> health_status
func NormalizeAction(action string) string {
	if i := strings.Index(action, ":"); i >= 0 {
		action = action[:i]
	}
	action = strings.TrimSpace(action)
	switch action {
	case "destroy", "delete":
		return ActionRemove
	}
	return action
}
