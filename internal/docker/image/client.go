package image

import (
	"context"
	"sync"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	dockerimage "github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/registry"
	sdk "github.com/docker/docker/client"
	"github.com/docker/docker/pkg/archive"
	"github.com/pkg/errors"

	"podsync/internal/docker/prune"
	"podsync/internal/engine"
)

var errNotInitialized = errors.New("Docker client not initialized")

// Client 镜像操作客户端
type Client struct {
	cli     *sdk.Client
	timeout time.Duration

	mu sync.RWMutex
	// 镜像 ID 到使用它的容器数量，每次 List 时重建
	usage map[string]int
}

// NewClient 创建镜像客户端，timeout 作用于列出和检查请求
func NewClient(cli *sdk.Client, timeout time.Duration) *Client {
	return &Client{cli: cli, timeout: timeout, usage: map[string]int{}}
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.timeout)
}

// List 获取镜像 ID 列表，同时统计每个镜像被多少容器使用
func (c *Client) List(ctx context.Context) ([]string, error) {
	if c == nil || c.cli == nil {
		return nil, errNotInitialized
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	images, err := c.cli.ImageList(ctx, dockerimage.ListOptions{})
	if err != nil {
		return nil, errors.Wrap(err, "failed to get image list")
	}

	// 获取所有容器，用于判断镜像是否被使用
	containers, err := c.cli.ContainerList(ctx, container.ListOptions{All: true})
	if err != nil {
		return nil, errors.Wrap(err, "failed to get container list")
	}
	usage := make(map[string]int, len(images))
	for _, cont := range containers {
		usage[cont.ImageID]++
	}
	c.mu.Lock()
	c.usage = usage
	c.mu.Unlock()

	ids := make([]string, 0, len(images))
	for _, img := range images {
		ids = append(ids, img.ID)
	}
	return ids, nil
}

// Inspect 获取镜像详情
func (c *Client) Inspect(ctx context.Context, id string) (engine.ImageData, error) {
	if c == nil || c.cli == nil {
		return engine.ImageData{}, errNotInitialized
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	resp, _, err := c.cli.ImageInspectWithRaw(ctx, id)
	if err != nil {
		return engine.ImageData{}, errors.Wrap(err, "failed to get image details")
	}

	var labels map[string]string
	if resp.Config != nil {
		labels = resp.Config.Labels
	}

	var created time.Time
	if resp.Created != "" {
		if t, err := time.Parse(time.RFC3339Nano, resp.Created); err == nil {
			created = t
		}
	}

	c.mu.RLock()
	used := c.usage[resp.ID]
	c.mu.RUnlock()

	return engine.ImageData{
		ID:           resp.ID,
		RepoTags:     resp.RepoTags,
		RepoDigests:  resp.RepoDigests,
		Size:         resp.Size,
		Created:      created,
		Containers:   used,
		Architecture: resp.Architecture,
		OS:           resp.Os,
		Author:       resp.Author,
		Labels:       labels,
	}, nil
}

// Remove 删除镜像
func (c *Client) Remove(ctx context.Context, id string, force bool) error {
	if c == nil || c.cli == nil {
		return errNotInitialized
	}

	_, err := c.cli.ImageRemove(ctx, id, dockerimage.RemoveOptions{
		Force:         force,
		PruneChildren: true,
	})
	if err != nil {
		return errors.Wrap(err, "failed to remove image")
	}
	return nil
}

// Prune 清理镜像，默认只清理悬垂镜像
func (c *Client) Prune(ctx context.Context, opts engine.PruneOptions) (engine.PruneReport, error) {
	if c == nil || c.cli == nil {
		return engine.PruneReport{}, errNotInitialized
	}

	report, err := c.cli.ImagesPrune(ctx, prune.Filters(opts, engine.KindImage))
	if err != nil {
		return engine.PruneReport{}, errors.Wrap(err, "failed to prune images")
	}

	out := engine.PruneReport{SpaceReclaimed: report.SpaceReclaimed}
	for _, d := range report.ImagesDeleted {
		if d.Deleted != "" {
			out.Deleted = append(out.Deleted, d.Deleted)
		}
	}
	return out, nil
}

// Pull 拉取镜像
// 通道依次收到进度行和一个携带镜像 ID 的最终报告；出错时收到带 Err 的报告
func (c *Client) Pull(ctx context.Context, opts engine.PullOptions) (<-chan engine.PullReport, error) {
	if c == nil || c.cli == nil {
		return nil, errNotInitialized
	}

	reader, err := c.cli.ImagePull(ctx, opts.Reference, dockerimage.PullOptions{Platform: opts.Platform})
	if err != nil {
		return nil, errors.Wrap(err, "failed to pull image")
	}

	out := make(chan engine.PullReport, 10)
	go func() {
		defer close(out)
		defer reader.Close()
		pullReports(ctx, reader, opts.Quiet, out, func(ctx context.Context) (string, error) {
			resp, _, err := c.cli.ImageInspectWithRaw(ctx, opts.Reference)
			if err != nil {
				return "", err
			}
			return resp.ID, nil
		})
	}()
	return out, nil
}

// Build 打包构建上下文并构建镜像，最后一段输出是镜像 ID
func (c *Client) Build(ctx context.Context, opts engine.BuildOptions) (<-chan engine.BuildChunk, error) {
	if c == nil || c.cli == nil {
		return nil, errNotInitialized
	}

	buildCtx, err := archive.TarWithOptions(opts.ContextDir, &archive.TarOptions{})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to archive build context %s", opts.ContextDir)
	}

	resp, err := c.cli.ImageBuild(ctx, buildCtx, types.ImageBuildOptions{
		Tags:        opts.Tags,
		Dockerfile:  opts.Dockerfile,
		BuildArgs:   opts.BuildArgs,
		Labels:      opts.Labels,
		NoCache:     opts.NoCache,
		PullParent:  opts.Pull,
		Remove:      true,
		ForceRemove: true,
	})
	if err != nil {
		buildCtx.Close()
		return nil, errors.Wrap(err, "failed to build image")
	}

	out := make(chan engine.BuildChunk, 10)
	go func() {
		defer close(out)
		defer buildCtx.Close()
		defer resp.Body.Close()
		buildChunks(ctx, resp.Body, out)
	}()
	return out, nil
}

// Push 推送镜像到 registry
func (c *Client) Push(ctx context.Context, opts engine.PushOptions) (<-chan engine.PushReport, error) {
	if c == nil || c.cli == nil {
		return nil, errNotInitialized
	}

	auth := opts.RegistryAuth
	if auth == "" {
		// 守护进程要求带上认证头，匿名推送使用空凭据
		encoded, err := registry.EncodeAuthConfig(registry.AuthConfig{})
		if err != nil {
			return nil, errors.Wrap(err, "failed to encode registry auth")
		}
		auth = encoded
	}

	reader, err := c.cli.ImagePush(ctx, opts.Reference, dockerimage.PushOptions{RegistryAuth: auth})
	if err != nil {
		return nil, errors.Wrap(err, "failed to push image")
	}

	out := make(chan engine.PushReport, 10)
	go func() {
		defer close(out)
		defer reader.Close()
		pushReports(ctx, reader, out)
	}()
	return out, nil
}
