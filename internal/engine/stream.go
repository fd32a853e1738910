package engine

// PullReport 拉取流中的一条记录
// Stream 非空为进度文本；Err 非空为失败；两者皆空为最终报告，ID 为镜像 ID
type PullReport struct {
	Stream string
	ID     string
	Err    error
}

// Final 是否为最终报告
func (r PullReport) Final() bool {
	return r.Err == nil && r.Stream == ""
}

// BuildChunk 构建流中的一段输出
// 按约定，最后一段的第一行是构建出的镜像 ID
type BuildChunk struct {
	Stream string
	Err    error
}

// PushReport 推送流中的一条记录
type PushReport struct {
	Stream string
	Err    error
}

// TopSnapshot 一次进程快照，每行按
// user, pid, ppid, cpu, elapsed, tty, time, command 排列
type TopSnapshot struct {
	Processes [][]string
	Err       error
}
