package network

import (
	"context"
	"time"

	"github.com/docker/docker/api/types/network"
	sdk "github.com/docker/docker/client"
	"github.com/pkg/errors"

	"podsync/internal/engine"
)

var errNotInitialized = errors.New("Docker client not initialized")

// Client 网络操作客户端
type Client struct {
	cli     *sdk.Client
	timeout time.Duration
}

// NewClient 创建网络客户端
func NewClient(cli *sdk.Client, timeout time.Duration) *Client {
	return &Client{cli: cli, timeout: timeout}
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.timeout)
}

// List 获取网络 ID 列表
func (c *Client) List(ctx context.Context) ([]string, error) {
	if c == nil || c.cli == nil {
		return nil, errNotInitialized
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	networks, err := c.cli.NetworkList(ctx, network.ListOptions{})
	if err != nil {
		return nil, errors.Wrap(err, "failed to get network list")
	}

	ids := make([]string, 0, len(networks))
	for _, n := range networks {
		ids = append(ids, n.ID)
	}
	return ids, nil
}

// Inspect 获取网络详情
func (c *Client) Inspect(ctx context.Context, id string) (engine.NetworkData, error) {
	if c == nil || c.cli == nil {
		return engine.NetworkData{}, errNotInitialized
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	n, err := c.cli.NetworkInspect(ctx, id, network.InspectOptions{})
	if err != nil {
		return engine.NetworkData{}, errors.Wrap(err, "failed to get network details")
	}

	return engine.NetworkData{
		ID:         n.ID,
		Name:       n.Name,
		Driver:     n.Driver,
		Scope:      n.Scope,
		Internal:   n.Internal,
		IPv6:       n.EnableIPv6,
		Created:    n.Created,
		Labels:     n.Labels,
		Containers: len(n.Containers),
	}, nil
}

// Remove 删除网络，Docker 的网络删除没有强制选项
func (c *Client) Remove(ctx context.Context, id string, force bool) error {
	if c == nil || c.cli == nil {
		return errNotInitialized
	}

	if err := c.cli.NetworkRemove(ctx, id); err != nil {
		return errors.Wrap(err, "failed to remove network")
	}
	return nil
}
