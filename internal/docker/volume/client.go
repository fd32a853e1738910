package volume

import (
	"context"
	"time"

	"github.com/docker/docker/api/types/volume"
	sdk "github.com/docker/docker/client"
	"github.com/pkg/errors"

	"podsync/internal/docker/prune"
	"podsync/internal/engine"
)

var errNotInitialized = errors.New("Docker client not initialized")

// Client 卷操作客户端，卷以名称作为 ID
type Client struct {
	cli     *sdk.Client
	timeout time.Duration
}

// NewClient 创建卷客户端
func NewClient(cli *sdk.Client, timeout time.Duration) *Client {
	return &Client{cli: cli, timeout: timeout}
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.timeout)
}

// List 获取卷名称列表
func (c *Client) List(ctx context.Context) ([]string, error) {
	if c == nil || c.cli == nil {
		return nil, errNotInitialized
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	resp, err := c.cli.VolumeList(ctx, volume.ListOptions{})
	if err != nil {
		return nil, errors.Wrap(err, "failed to get volume list")
	}

	names := make([]string, 0, len(resp.Volumes))
	for _, v := range resp.Volumes {
		names = append(names, v.Name)
	}
	return names, nil
}

// Inspect 获取卷详情
func (c *Client) Inspect(ctx context.Context, name string) (engine.VolumeData, error) {
	if c == nil || c.cli == nil {
		return engine.VolumeData{}, errNotInitialized
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	v, err := c.cli.VolumeInspect(ctx, name)
	if err != nil {
		return engine.VolumeData{}, errors.Wrap(err, "failed to get volume details")
	}
	return toData(v), nil
}

// Create 创建卷，返回卷名称
func (c *Client) Create(ctx context.Context, opts engine.VolumeCreateOptions) (string, error) {
	if c == nil || c.cli == nil {
		return "", errNotInitialized
	}

	v, err := c.cli.VolumeCreate(ctx, volume.CreateOptions{
		Name:       opts.Name,
		Driver:     opts.Driver,
		DriverOpts: opts.DriverOpts,
		Labels:     opts.Labels,
	})
	if err != nil {
		return "", errors.Wrap(err, "failed to create volume")
	}
	return v.Name, nil
}

// Remove 删除卷
func (c *Client) Remove(ctx context.Context, name string, force bool) error {
	if c == nil || c.cli == nil {
		return errNotInitialized
	}

	if err := c.cli.VolumeRemove(ctx, name, force); err != nil {
		return errors.Wrap(err, "failed to remove volume")
	}
	return nil
}

// Prune 清理未使用的卷
func (c *Client) Prune(ctx context.Context, opts engine.PruneOptions) (engine.PruneReport, error) {
	if c == nil || c.cli == nil {
		return engine.PruneReport{}, errNotInitialized
	}

	report, err := c.cli.VolumesPrune(ctx, prune.Filters(opts, engine.KindVolume))
	if err != nil {
		return engine.PruneReport{}, errors.Wrap(err, "failed to prune volumes")
	}
	return engine.PruneReport{Deleted: report.VolumesDeleted, SpaceReclaimed: report.SpaceReclaimed}, nil
}

func toData(v volume.Volume) engine.VolumeData {
	var created time.Time
	if v.CreatedAt != "" {
		if t, err := time.Parse(time.RFC3339, v.CreatedAt); err == nil {
			created = t
		}
	}
	return engine.VolumeData{
		Name:       v.Name,
		Driver:     v.Driver,
		Mountpoint: v.Mountpoint,
		Scope:      v.Scope,
		Created:    created,
		Labels:     v.Labels,
	}
}
