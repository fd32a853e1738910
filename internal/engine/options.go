package engine

import "time"

// PullOptions 镜像拉取选项
type PullOptions struct {
	Reference string // 例如 docker.io/library/alpine:latest
	Platform  string
	Quiet     bool
}

// BuildOptions 镜像构建选项
type BuildOptions struct {
	ContextDir string // 构建上下文目录
	Dockerfile string // 相对于上下文目录
	Tags       []string
	BuildArgs  map[string]*string
	Labels     map[string]string
	NoCache    bool
	Pull       bool
}

// PushOptions 镜像推送选项
type PushOptions struct {
	Reference    string
	RegistryAuth string // base64 编码的认证信息，可为空
}

// ContainerCreateOptions 容器创建选项
type ContainerCreateOptions struct {
	Name       string
	Image      string
	Cmd        []string
	Env        []string
	Ports      []string // 例如 "8080:80/tcp"
	Labels     map[string]string
	PodID      string
	AutoRemove bool
}

// PodCreateOptions Pod 创建选项
type PodCreateOptions struct {
	Name       string
	Hostname   string
	Labels     map[string]string
	NoInfra    bool
	InfraImage string
}

// VolumeCreateOptions 卷创建选项
type VolumeCreateOptions struct {
	Name       string
	Driver     string
	DriverOpts map[string]string
	Labels     map[string]string
}

// PruneOptions 清理选项
type PruneOptions struct {
	All    bool          // 镜像：同时清理未被使用的带标签镜像
	Until  time.Duration // 只清理早于该时长创建的对象，0 表示不限
	Labels []string      // label 过滤，形如 key=value
}

// PruneReport 清理结果
type PruneReport struct {
	Deleted        []string `json:"deleted"`
	SpaceReclaimed uint64   `json:"space_reclaimed"`
}
