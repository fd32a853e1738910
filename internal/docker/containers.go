package docker

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/docker/docker/api/types/container"
	sdk "github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
	"github.com/pkg/errors"

	"podsync/internal/docker/pod"
	"podsync/internal/docker/prune"
	"podsync/internal/engine"
)

// memberSource 提供容器所属 Pod 和 infra 标记，Docker 兼容接口本身不返回这些信息
type memberSource interface {
	Members(ctx context.Context) (map[string]pod.Member, error)
}

// Containers 容器操作客户端
type Containers struct {
	cli     *sdk.Client
	timeout time.Duration

	// pods 为 nil 时不区分 Pod
	pods    memberSource
	mu      sync.Mutex
	members map[string]pod.Member
}

// NewContainers 创建容器客户端，timeout 作用于列出和检查请求
func NewContainers(cli *sdk.Client, timeout time.Duration) *Containers {
	return &Containers{cli: cli, timeout: timeout}
}

func (c *Containers) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.timeout)
}

// List 获取所有容器（包括停止的）的 ID
func (c *Containers) List(ctx context.Context) ([]string, error) {
	if c == nil || c.cli == nil {
		return nil, errNotInitialized
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	containers, err := c.cli.ContainerList(ctx, container.ListOptions{All: true})
	if err != nil {
		return nil, errors.Wrap(err, "failed to get container list")
	}

	members, err := c.refreshMembers(ctx)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(containers))
	for _, ctr := range containers {
		if members[ctr.ID].IsInfra {
			continue
		}
		ids = append(ids, ctr.ID)
	}
	return ids, nil
}

// refreshMembers 重新获取 Pod 成员关系并缓存
func (c *Containers) refreshMembers(ctx context.Context) (map[string]pod.Member, error) {
	if c.pods == nil {
		return nil, nil
	}
	members, err := c.pods.Members(ctx)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.members = members
	c.mu.Unlock()
	return members, nil
}

// member 优先读缓存，缓存里没有时（例如事件触发的新容器）重新获取一次
func (c *Containers) member(ctx context.Context, id string) (pod.Member, bool) {
	if c.pods == nil {
		return pod.Member{}, false
	}
	c.mu.Lock()
	m, ok := c.members[id]
	c.mu.Unlock()
	if ok {
		return m, true
	}

	members, err := c.refreshMembers(ctx)
	if err != nil {
		return pod.Member{}, false
	}
	m, ok = members[id]
	return m, ok
}

// Inspect 获取容器详情
func (c *Containers) Inspect(ctx context.Context, id string) (engine.ContainerData, error) {
	if c == nil || c.cli == nil {
		return engine.ContainerData{}, errNotInitialized
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	resp, err := c.cli.ContainerInspect(ctx, id)
	if err != nil {
		return engine.ContainerData{}, errors.Wrap(err, "failed to get container details")
	}

	data := toContainerData(resp)
	if m, ok := c.member(ctx, id); ok {
		data.PodID = m.PodID
		data.IsInfra = m.IsInfra
	}
	return data, nil
}

// toContainerData 把 inspect 结果转换为与运行时无关的数据
func toContainerData(resp container.InspectResponse) engine.ContainerData {
	var data engine.ContainerData
	if base := resp.ContainerJSONBase; base != nil {
		data.ID = base.ID
		data.Name = strings.TrimPrefix(base.Name, "/")
		data.ImageID = base.Image
		data.Command = strings.TrimSpace(base.Path + " " + strings.Join(base.Args, " "))
		if t, err := time.Parse(time.RFC3339Nano, base.Created); err == nil {
			data.Created = t
		}
		if base.State != nil {
			data.State = string(base.State.Status)
			if base.State.Health != nil {
				data.Health = string(base.State.Health.Status)
			}
		}
	}

	if resp.Config != nil {
		data.ImageName = resp.Config.Image
		data.Labels = resp.Config.Labels
	}

	if resp.NetworkSettings != nil {
		data.Ports = formatPorts(resp.NetworkSettings.Ports)
	}
	return data
}

// formatPorts 格式化端口映射，和 docker ps 一样：0.0.0.0:6379->6379/tcp
func formatPorts(ports nat.PortMap) []string {
	if len(ports) == 0 {
		return nil
	}

	out := make([]string, 0, len(ports))
	for port, bindings := range ports {
		if len(bindings) == 0 {
			// 只暴露端口
			out = append(out, string(port))
			continue
		}
		for _, b := range bindings {
			ip := b.HostIP
			if ip == "" {
				ip = "0.0.0.0"
			}
			out = append(out, fmt.Sprintf("%s:%s->%s", ip, b.HostPort, port))
		}
	}
	sort.Strings(out)
	return out
}

// createConfig 根据创建选项生成容器配置
func createConfig(opts engine.ContainerCreateOptions) (*container.Config, *container.HostConfig, error) {
	exposed, bindings, err := nat.ParsePortSpecs(opts.Ports)
	if err != nil {
		return nil, nil, errors.Wrap(err, "invalid port spec")
	}

	config := &container.Config{
		Image:        opts.Image,
		Cmd:          opts.Cmd,
		Env:          opts.Env,
		Labels:       opts.Labels,
		ExposedPorts: exposed,
	}
	hostConfig := &container.HostConfig{
		PortBindings: bindings,
		AutoRemove:   opts.AutoRemove,
	}
	return config, hostConfig, nil
}

// Create 创建容器，返回容器 ID
// Docker 兼容接口无法把容器加入 Pod
func (c *Containers) Create(ctx context.Context, opts engine.ContainerCreateOptions) (string, error) {
	if c == nil || c.cli == nil {
		return "", errNotInitialized
	}
	if opts.PodID != "" {
		return "", errors.Wrap(engine.ErrNotSupported, "creating a container inside a pod")
	}

	config, hostConfig, err := createConfig(opts)
	if err != nil {
		return "", err
	}

	resp, err := c.cli.ContainerCreate(ctx, config, hostConfig, nil, nil, opts.Name)
	if err != nil {
		return "", errors.Wrap(err, "failed to create container")
	}
	return resp.ID, nil
}

// Start 启动容器
func (c *Containers) Start(ctx context.Context, id string) error {
	if c == nil || c.cli == nil {
		return errNotInitialized
	}

	if err := c.cli.ContainerStart(ctx, id, container.StartOptions{}); err != nil {
		return errors.Wrap(err, "failed to start container")
	}
	return nil
}

// Remove 删除容器
// force: 是否强制删除（即使容器正在运行）
func (c *Containers) Remove(ctx context.Context, id string, force bool) error {
	if c == nil || c.cli == nil {
		return errNotInitialized
	}

	err := c.cli.ContainerRemove(ctx, id, container.RemoveOptions{Force: force})
	if err != nil {
		return errors.Wrap(err, "failed to remove container")
	}
	return nil
}

// Prune 清理已停止的容器
func (c *Containers) Prune(ctx context.Context, opts engine.PruneOptions) (engine.PruneReport, error) {
	if c == nil || c.cli == nil {
		return engine.PruneReport{}, errNotInitialized
	}

	report, err := c.cli.ContainersPrune(ctx, prune.Filters(opts, engine.KindContainer))
	if err != nil {
		return engine.PruneReport{}, errors.Wrap(err, "failed to prune containers")
	}
	return engine.PruneReport{Deleted: report.ContainersDeleted, SpaceReclaimed: report.SpaceReclaimed}, nil
}
