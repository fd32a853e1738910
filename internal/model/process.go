package model

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"podsync/internal/engine"
)

// processFields 一行进程数据的列数：user pid ppid cpu elapsed tty time command
const processFields = 8

// ProcessInfo 解析后的一行进程数据
type ProcessInfo struct {
	User    string
	PID     int
	PPID    int
	CPU     float64
	Elapsed time.Duration
	TTY     string
	Time    time.Duration
	Command string
}

// ParseProcess 解析一行 top 输出
func ParseProcess(fields []string) (ProcessInfo, error) {
	if len(fields) < processFields {
		return ProcessInfo{}, errors.Errorf("expected %d fields, got %d", processFields, len(fields))
	}

	pid, err := strconv.Atoi(strings.TrimSpace(fields[1]))
	if err != nil {
		return ProcessInfo{}, errors.Wrap(err, "invalid pid")
	}
	ppid, err := strconv.Atoi(strings.TrimSpace(fields[2]))
	if err != nil {
		return ProcessInfo{}, errors.Wrap(err, "invalid ppid")
	}
	cpu, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(fields[3]), "%"), 64)
	if err != nil {
		return ProcessInfo{}, errors.Wrap(err, "invalid cpu")
	}
	elapsed, err := ParseProcessTime(fields[4])
	if err != nil {
		return ProcessInfo{}, errors.Wrap(err, "invalid elapsed time")
	}
	cpuTime, err := ParseProcessTime(fields[6])
	if err != nil {
		return ProcessInfo{}, errors.Wrap(err, "invalid cpu time")
	}

	return ProcessInfo{
		User:    fields[0],
		PID:     pid,
		PPID:    ppid,
		CPU:     cpu,
		Elapsed: elapsed,
		TTY:     fields[5],
		Time:    cpuTime,
		// 命令里可能有空格，被拆成多列时重新拼起来
		Command: strings.Join(fields[7:], " "),
	}, nil
}

// ParseProcessTime 同时支持两种格式：
// libpod 的 Go duration（1h2m3.5s、12ms）和 ps 的 [[dd-]hh:]mm:ss
func ParseProcessTime(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "-" || s == "?" {
		return 0, nil
	}
	if !strings.Contains(s, ":") {
		return time.ParseDuration(s)
	}

	var days int
	if i := strings.Index(s, "-"); i >= 0 {
		d, err := strconv.Atoi(s[:i])
		if err != nil {
			return 0, errors.Wrapf(err, "invalid days in '%s'", s)
		}
		days = d
		s = s[i+1:]
	}

	parts := strings.Split(s, ":")
	if len(parts) > 3 {
		return 0, errors.Errorf("invalid time '%s'", s)
	}
	var total time.Duration
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return 0, errors.Wrapf(err, "invalid time '%s'", s)
		}
		total = total*60 + time.Duration(n)
	}
	return time.Duration(days)*24*time.Hour + total*time.Second, nil
}

// Process 容器或 Pod 内的一个进程，以 pid 为键
type Process struct {
	pid string

	mu   sync.RWMutex
	info ProcessInfo

	Changed Signal[string]
}

// PID 进程号
func (p *Process) PID() string {
	return p.pid
}

// Info 当前进程数据
func (p *Process) Info() ProcessInfo {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.info
}

func (p *Process) update(info ProcessInfo) {
	p.mu.Lock()
	changed := p.info != info
	p.info = info
	p.mu.Unlock()
	if changed {
		p.Changed.Emit(PropData)
	}
}

// ProcessList 由 top 快照流驱动的进程列表
// 每个快照：删除消失的 pid，插入新 pid，原地更新已有 pid，最后触发一次 Updated
type ProcessList struct {
	log *logrus.Entry

	mu    sync.RWMutex
	pids  []string
	items map[string]*Process

	ItemsChanged Signal[ItemsChanged]
	Updated      Signal[struct{}]
}

// NewProcessList 创建进程列表
func NewProcessList(logger *logrus.Entry) *ProcessList {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &ProcessList{
		log:   logger.WithField("list", "process"),
		items: make(map[string]*Process),
	}
}

// Len 进程数量
func (l *ProcessList) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.pids)
}

// At 按位置获取进程
func (l *ProcessList) At(i int) (*Process, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if i < 0 || i >= len(l.pids) {
		return nil, false
	}
	return l.items[l.pids[i]], true
}

// Get 按 pid 获取进程
func (l *ProcessList) Get(pid string) (*Process, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	p, ok := l.items[pid]
	return p, ok
}

// Items 按顺序返回所有进程
func (l *ProcessList) Items() []*Process {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]*Process, 0, len(l.pids))
	for _, pid := range l.pids {
		out = append(out, l.items[pid])
	}
	return out
}

// Run 消费快照流直到流结束或 ctx 取消，流中的错误只记录日志
func (l *ProcessList) Run(ctx context.Context, snapshots <-chan engine.TopSnapshot) {
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-snapshots:
			if !ok {
				return
			}
			if snap.Err != nil {
				l.log.WithError(snap.Err).Warn("failed to read top stream element")
				continue
			}
			l.Apply(snap.Processes)
		}
	}
}

// Apply 用一次快照协调列表
func (l *ProcessList) Apply(rows [][]string) {
	infos := make([]ProcessInfo, 0, len(rows))
	present := make(map[string]struct{}, len(rows))
	for _, row := range rows {
		info, err := ParseProcess(row)
		if err != nil {
			l.log.WithError(err).WithField("row", strings.Join(row, " ")).Warn("skipping malformed process row")
			continue
		}
		infos = append(infos, info)
		present[strconv.Itoa(info.PID)] = struct{}{}
	}

	l.mu.RLock()
	var gone []string
	for _, pid := range l.pids {
		if _, ok := present[pid]; !ok {
			gone = append(gone, pid)
		}
	}
	l.mu.RUnlock()
	for _, pid := range gone {
		l.remove(pid)
	}

	for _, info := range infos {
		pid := strconv.Itoa(info.PID)

		l.mu.Lock()
		if p, ok := l.items[pid]; ok {
			l.mu.Unlock()
			p.update(info)
			continue
		}
		l.items[pid] = &Process{pid: pid, info: info}
		l.pids = append(l.pids, pid)
		pos := len(l.pids) - 1
		l.mu.Unlock()

		l.ItemsChanged.Emit(ItemsChanged{Position: pos, Added: 1})
	}

	l.Updated.Emit(struct{}{})
}

func (l *ProcessList) remove(pid string) {
	l.mu.Lock()
	idx := -1
	for i, p := range l.pids {
		if p == pid {
			idx = i
			break
		}
	}
	if idx < 0 {
		l.mu.Unlock()
		return
	}
	l.pids = append(l.pids[:idx], l.pids[idx+1:]...)
	delete(l.items, pid)
	l.mu.Unlock()

	l.ItemsChanged.Emit(ItemsChanged{Position: idx, Removed: 1})
}
