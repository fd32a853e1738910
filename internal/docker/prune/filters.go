package prune

import (
	"strings"

	"github.com/docker/docker/api/types/filters"

	"podsync/internal/engine"
)

// Filters 把清理选项转换为 Docker 过滤参数
// all 对镜像表示同时清理未被使用的有标签镜像，对卷表示同时清理具名卷
func Filters(opts engine.PruneOptions, kind engine.Kind) filters.Args {
	args := filters.NewArgs()
	if opts.Until > 0 {
		args.Add("until", opts.Until.String())
	}
	for _, label := range opts.Labels {
		if label = strings.TrimSpace(label); label != "" {
			args.Add("label", label)
		}
	}
	switch kind {
	case engine.KindImage:
		if opts.All {
			args.Add("dangling", "false")
		} else {
			args.Add("dangling", "true")
		}
	case engine.KindVolume:
		if opts.All {
			args.Add("all", "true")
		}
	}
	return args
}
