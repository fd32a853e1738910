package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

// Config 描述 podsync 运行所需的配置。
// 字段先取默认值，再依次被 YAML 文件和环境变量覆盖。
type Config struct {
	DockerHost         string        `yaml:"docker_host"`         // 守护进程地址，留空走 Docker SDK 默认行为
	RequestTimeout     time.Duration `yaml:"request_timeout"`     // 单次请求超时
	SyncInterval       time.Duration `yaml:"sync_interval"`       // 定期全量刷新的间隔
	TopInterval        time.Duration `yaml:"top_interval"`        // 进程列表刷新间隔
	InspectConcurrency int           `yaml:"inspect_concurrency"` // 刷新时并行检查的上限
	EnablePods         *bool         `yaml:"enable_pods"`         // 为空时按 DockerHost 推断
	LogLevel           string        `yaml:"log_level"`
}

const (
	envDockerHost         = "DOCKER_HOST"
	envRequestTimeout     = "PODSYNC_REQUEST_TIMEOUT"
	envSyncInterval       = "PODSYNC_SYNC_INTERVAL"
	envTopInterval        = "PODSYNC_TOP_INTERVAL"
	envInspectConcurrency = "PODSYNC_INSPECT_CONCURRENCY"
	envPods               = "PODSYNC_PODS"
	envLogLevel           = "PODSYNC_LOG_LEVEL"
)

// Default 返回默认配置
func Default() *Config {
	return &Config{
		RequestTimeout:     10 * time.Second,
		SyncInterval:       15 * time.Second,
		TopInterval:        time.Second,
		InspectConcurrency: 8,
		LogLevel:           "info",
	}
}

// Load 从 .env（可选）和环境变量加载配置
func Load() (*Config, error) {
	// .env 不存在时直接使用环境变量
	_ = godotenv.Load()

	cfg := Default()
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

// LoadFile 先读取 YAML 文件，再用 .env 和环境变量覆盖
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading config %s", path)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrapf(err, "parsing config %s", path)
	}

	_ = godotenv.Load()
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

// PodsEnabled 是否启用 Pod 列表；未显式配置时，连接 Podman 套接字才启用
func (c *Config) PodsEnabled() bool {
	if c.EnablePods != nil {
		return *c.EnablePods
	}
	return strings.Contains(c.DockerHost, "podman")
}

// Validate 检查配置是否可用
func (c *Config) Validate() error {
	if c.RequestTimeout <= 0 {
		return errors.Errorf("request timeout must be positive, got %s", c.RequestTimeout)
	}
	if c.SyncInterval <= 0 {
		return errors.Errorf("sync interval must be positive, got %s", c.SyncInterval)
	}
	if c.TopInterval <= 0 {
		return errors.Errorf("top interval must be positive, got %s", c.TopInterval)
	}
	if c.InspectConcurrency <= 0 {
		return errors.Errorf("inspect concurrency must be positive, got %d", c.InspectConcurrency)
	}
	return nil
}

func (c *Config) applyEnv() error {
	if v, ok := os.LookupEnv(envDockerHost); ok {
		c.DockerHost = v
	}
	if v, ok := os.LookupEnv(envLogLevel); ok && v != "" {
		c.LogLevel = v
	}

	durations := map[string]*time.Duration{
		envRequestTimeout: &c.RequestTimeout,
		envSyncInterval:   &c.SyncInterval,
		envTopInterval:    &c.TopInterval,
	}
	for name, field := range durations {
		v := os.Getenv(name)
		if v == "" {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return errors.Wrapf(err, "invalid %s", name)
		}
		*field = d
	}

	if v := os.Getenv(envInspectConcurrency); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrapf(err, "invalid %s", envInspectConcurrency)
		}
		c.InspectConcurrency = n
	}

	if v := os.Getenv(envPods); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return errors.Wrapf(err, "invalid %s", envPods)
		}
		c.EnablePods = &b
	}
	return nil
}
