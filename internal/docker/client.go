package docker

import (
	"context"
	"time"

	sdk "github.com/docker/docker/client"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"podsync/internal/config"
	"podsync/internal/docker/image"
	"podsync/internal/docker/network"
	"podsync/internal/docker/pod"
	"podsync/internal/docker/volume"
	"podsync/internal/engine"
)

// Docker Endpoint 配置说明：
//
// 1. **本地 Docker（默认）**
//    - 不设置 DOCKER_HOST，SDK 使用 unix:///var/run/docker.sock 或 Windows named pipe
//
// 2. **远程 Docker（TCP）**
//    - DOCKER_HOST=tcp://主机:2375，启用 TLS 时配合 DOCKER_TLS_VERIFY / DOCKER_CERT_PATH
//
// 3. **Podman**
//    - DOCKER_HOST=unix:///run/user/1000/podman/podman.sock
//    - Docker 兼容接口提供容器、镜像、卷、网络，Pod 走同一套接字上的 libpod 接口

var errNotInitialized = errors.New("Docker client not initialized")

// LocalClient 基于 Docker SDK 的运行时实现
type LocalClient struct {
	cli     *sdk.Client
	timeout time.Duration
	log     *logrus.Entry

	images     *image.Client
	containers *Containers
	pods       *pod.Client
	volumes    *volume.Client
	networks   *network.Client
}

// NewLocalClient 按配置创建客户端并开启 API 版本协商
// 配置启用 Pod 时，同时连接 libpod 接口
func NewLocalClient(cfg *config.Config, logger *logrus.Entry) (*LocalClient, error) {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}

	opts := []sdk.Opt{sdk.FromEnv, sdk.WithAPIVersionNegotiation()}
	if cfg.DockerHost != "" {
		opts = append(opts, sdk.WithHost(cfg.DockerHost))
	}
	cli, err := sdk.NewClientWithOpts(opts...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create Docker client")
	}

	c := &LocalClient{
		cli:        cli,
		timeout:    cfg.RequestTimeout,
		log:        logger.WithField("component", "docker"),
		images:     image.NewClient(cli, cfg.RequestTimeout),
		containers: NewContainers(cli, cfg.RequestTimeout),
		volumes:    volume.NewClient(cli, cfg.RequestTimeout),
		networks:   network.NewClient(cli, cfg.RequestTimeout),
	}

	if cfg.PodsEnabled() {
		host := cfg.DockerHost
		if host == "" {
			host = cli.DaemonHost()
		}
		pods, err := pod.NewFromHost(host, cfg.RequestTimeout)
		if err != nil {
			cli.Close()
			return nil, err
		}
		c.pods = pods
		c.containers.pods = pods
	}
	return c, nil
}

// Ping 用于验证守护进程是否可用
func (c *LocalClient) Ping(ctx context.Context) error {
	if c == nil || c.cli == nil {
		return errNotInitialized
	}
	_, err := c.cli.Ping(ctx)
	return err
}

// Images 镜像能力
func (c *LocalClient) Images() engine.ImageRuntime { return c.images }

// Containers 容器能力
func (c *LocalClient) Containers() engine.ContainerRuntime { return c.containers }

// Pods Pod 能力，未启用时返回 nil
func (c *LocalClient) Pods() engine.PodRuntime {
	if c.pods == nil {
		return nil
	}
	return c.pods
}

// Volumes 卷能力
func (c *LocalClient) Volumes() engine.VolumeRuntime { return c.volumes }

// Networks 网络能力
func (c *LocalClient) Networks() engine.NetworkRuntime { return c.networks }

// Close 关闭客户端连接，释放资源
func (c *LocalClient) Close() error {
	if c == nil || c.cli == nil {
		return nil
	}
	return c.cli.Close()
}
