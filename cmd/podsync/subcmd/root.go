package subcmd

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/michaelquigley/pfxlog"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"podsync/internal/action"
	"podsync/internal/app"
	"podsync/internal/config"
	"podsync/internal/docker"
	"podsync/internal/engine"
)

// RuntimeFactory 根据配置连接运行时
type RuntimeFactory func(cfg *config.Config, logger *logrus.Entry) (engine.Runtime, error)

func dockerRuntime(cfg *config.Config, logger *logrus.Entry) (engine.Runtime, error) {
	c, err := docker.NewLocalClient(cfg, logger)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// env 所有子命令共享的全局选项
type env struct {
	configPath string
	host       string
	logLevel   string

	cfg        *config.Config
	newRuntime RuntimeFactory
}

// NewRootCommand 创建连接 Docker 的根命令
func NewRootCommand() *cobra.Command {
	return newRootCommand(dockerRuntime)
}

func newRootCommand(factory RuntimeFactory) *cobra.Command {
	e := &env{newRuntime: factory}

	cmd := &cobra.Command{
		Use:           "podsync",
		Short:         "Keep container runtime entities in sync and run long operations",
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return e.load()
		},
	}
	cmd.PersistentFlags().StringVarP(&e.configPath, "config", "c", "", "path to YAML configuration file")
	cmd.PersistentFlags().StringVarP(&e.host, "host", "H", "", "daemon socket to connect to (overrides DOCKER_HOST)")
	cmd.PersistentFlags().StringVar(&e.logLevel, "log-level", "", "log level (trace, debug, info, warn, error)")

	cmd.AddCommand(
		newWatchCommand(e),
		newLsCommand(e),
		newPullCommand(e),
		newBuildCommand(e),
		newPushCommand(e),
		newCreateCommand(e),
		newPruneCommand(e),
		newTopCommand(e),
		newRmCommand(e),
	)
	return cmd
}

// load 读取配置并初始化日志
func (e *env) load() error {
	var cfg *config.Config
	var err error
	if e.configPath != "" {
		cfg, err = config.LoadFile(e.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return err
	}

	if e.host != "" {
		cfg.DockerHost = e.host
	}
	if e.logLevel != "" {
		cfg.LogLevel = e.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return errors.Wrapf(err, "invalid log level %q", cfg.LogLevel)
	}
	pfxlog.GlobalInit(level, pfxlog.DefaultOptions().SetTrimPrefix("podsync/"))

	e.cfg = cfg
	return nil
}

// open 连接运行时并组装 App，调用方负责 Close
func (e *env) open() (*app.App, error) {
	logger := logrus.WithField("component", "cli")
	rt, err := e.newRuntime(e.cfg, logger)
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to runtime")
	}
	return app.New(e.cfg, rt, logger), nil
}

// parseKind 解析命令行里的实体种类，接受单复数
func parseKind(s string) (engine.Kind, error) {
	s = strings.TrimSuffix(strings.ToLower(s), "s")
	switch engine.Kind(s) {
	case engine.KindContainer, engine.KindImage, engine.KindPod, engine.KindVolume, engine.KindNetwork:
		return engine.Kind(s), nil
	}
	return "", errors.Errorf("unknown kind %q", s)
}

// runAction 等待动作结束并按时间顺序输出日志；ctx 结束时取消动作
func runAction(ctx context.Context, out io.Writer, a *action.Action) error {
	select {
	case <-a.Done():
	case <-ctx.Done():
		a.Cancel()
		<-a.Done()
	}

	fmt.Fprint(out, a.Transcript())
	switch a.State() {
	case action.StateFailed:
		return errors.Errorf("%s failed", a.Name())
	case action.StateCancelled:
		return errors.Errorf("%s cancelled", a.Name())
	}
	return nil
}
