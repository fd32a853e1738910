package docker

import (
	"context"
	"time"

	"github.com/docker/docker/errdefs"
	"github.com/pkg/errors"

	"podsync/internal/engine"
)

// topArgs 传给 ps 的参数，列顺序和 Process 的解析顺序一致
var topArgs = []string{"-o", "user,pid,ppid,pcpu,etime,tty,time,args"}

// Top 按 delay 轮询容器进程列表
// 首次快照立即发送；查询出错时发送带 Err 的快照
// 容器不存在或未运行时流结束，其他错误下一轮重试
func (c *Containers) Top(ctx context.Context, id string, delay time.Duration) (<-chan engine.TopSnapshot, error) {
	if c == nil || c.cli == nil {
		return nil, errNotInitialized
	}
	if delay <= 0 {
		delay = time.Second
	}

	out := make(chan engine.TopSnapshot, 1)
	go func() {
		defer close(out)

		ticker := time.NewTicker(delay)
		defer ticker.Stop()

		for {
			snap := engine.TopSnapshot{}
			resp, err := c.cli.ContainerTop(ctx, id, topArgs)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				snap.Err = errors.Wrap(err, "failed to get container processes")
			} else {
				snap.Processes = resp.Processes
			}

			select {
			case out <- snap:
			case <-ctx.Done():
				return
			}
			if err != nil && topStopped(err) {
				return
			}

			select {
			case <-ticker.C:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// topStopped 容器已删除（404）或未运行（409），再查询也不会成功
func topStopped(err error) bool {
	return errdefs.IsNotFound(err) || errdefs.IsConflict(err)
}
