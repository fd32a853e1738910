package action

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"podsync/internal/engine"
	"podsync/internal/model"
)

// State 动作状态
type State int

const (
	StateOngoing State = iota
	StateFinished
	StateCancelled
	StateFailed
)

// String 返回状态字符串
func (s State) String() string {
	switch s {
	case StateOngoing:
		return "Ongoing"
	case StateFinished:
		return "Finished"
	case StateCancelled:
		return "Cancelled"
	case StateFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// IsTerminal 是否为终态
func (s State) IsTerminal() bool {
	return s != StateOngoing
}

// Type 动作类型
type Type int

const (
	TypeUndefined Type = iota
	TypePruneImages
	TypeDownloadImage
	TypeBuildImage
	TypePushImage
	TypeContainer
	TypePruneContainers
	TypePod
	TypePrunePods
	TypeVolume
	TypePruneVolumes
)

// String 返回类型字符串
func (t Type) String() string {
	switch t {
	case TypePruneImages:
		return "PruneImages"
	case TypeDownloadImage:
		return "DownloadImage"
	case TypeBuildImage:
		return "BuildImage"
	case TypePushImage:
		return "PushImage"
	case TypeContainer:
		return "Container"
	case TypePruneContainers:
		return "PruneContainers"
	case TypePod:
		return "Pod"
	case TypePrunePods:
		return "PrunePods"
	case TypeVolume:
		return "Volume"
	case TypePruneVolumes:
		return "PruneVolumes"
	default:
		return "Undefined"
	}
}

// Artifact 动作产出的实体，只保存种类和 ID，通过所属列表查找
type Artifact struct {
	Kind engine.Kind
	ID   string
}

// IsZero 尚未设置
func (a Artifact) IsZero() bool {
	return a.ID == ""
}

// Action 一个可取消的长时间操作
type Action struct {
	num   uint32
	id    string
	typ   Type
	name  string
	start int64

	mu         sync.RWMutex
	log        *logrus.Entry
	state      State
	end        int64
	artifact   Artifact
	output     []string // 按时间顺序保存，读取时倒序拼接
	root       context.Context
	rootCancel context.CancelFunc
	stepCancel context.CancelFunc
	done       chan struct{}
	detachers  []func()

	StateChanged    model.Signal[State]
	ArtifactChanged model.Signal[Artifact]
	// OutputChanged 参数为新插入的文本
	OutputChanged model.Signal[string]
}

// New 创建一个进行中的动作
func New(num uint32, typ Type, name string) *Action {
	ctx, cancel := context.WithCancel(context.Background())
	id := uuid.New().String()[:8]
	return &Action{
		num:        num,
		id:         id,
		typ:        typ,
		name:       name,
		start:      time.Now().Unix(),
		log:        logrus.WithFields(logrus.Fields{"action": num, "correlation": id, "type": typ.String()}),
		state:      StateOngoing,
		root:       ctx,
		rootCancel: cancel,
		done:       make(chan struct{}),
	}
}

// Num 列表内唯一的编号
func (a *Action) Num() uint32 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.num
}

// CorrelationID 日志关联 ID
func (a *Action) CorrelationID() string {
	return a.id
}

// Type 动作类型
func (a *Action) Type() Type {
	return a.typ
}

// Name 动作描述
func (a *Action) Name() string {
	return a.name
}

// State 当前状态
func (a *Action) State() State {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state
}

// StartTimestamp 开始时间（unix 秒）
func (a *Action) StartTimestamp() int64 {
	return a.start
}

// EndTimestamp 结束时间（unix 秒），进行中时为 0
func (a *Action) EndTimestamp() int64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.end
}

// Artifact 动作产出的实体
func (a *Action) Artifact() Artifact {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.artifact
}

// Output 输出日志，最新的文本在最前
func (a *Action) Output() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	var b strings.Builder
	for i := len(a.output) - 1; i >= 0; i-- {
		b.WriteString(a.output[i])
	}
	return b.String()
}

// Transcript 按时间顺序拼接的输出
func (a *Action) Transcript() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return strings.Join(a.output, "")
}

// Done 进入终态时关闭
func (a *Action) Done() <-chan struct{} {
	return a.done
}

// Cancel 取消进行中的动作，对终态动作无效
// 状态先于 context 改变，步骤看到 ctx 被取消时状态已是 Cancelled
func (a *Action) Cancel() bool {
	return a.setState(StateCancelled)
}

// step 为流水线的下一步重新生成取消句柄；动作已结束时返回 false
func (a *Action) step() (context.Context, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state != StateOngoing {
		return nil, false
	}
	if a.stepCancel != nil {
		a.stepCancel()
	}
	ctx, cancel := context.WithCancel(a.root)
	a.stepCancel = cancel
	return ctx, true
}

// setState 状态只能从 Ongoing 进入终态一次，结束时间只记录一次
func (a *Action) setState(s State) bool {
	a.mu.Lock()
	if a.state == s || a.state.IsTerminal() {
		a.mu.Unlock()
		return false
	}
	a.state = s
	if s.IsTerminal() {
		if a.end == 0 {
			a.end = time.Now().Unix()
		}
		a.rootCancel()
		close(a.done)
	}
	a.mu.Unlock()

	a.logger().WithField("state", s.String()).Debug("state changed")
	a.StateChanged.Emit(s)
	return true
}

// setArtifact 先到先得，之后的调用被忽略
func (a *Action) setArtifact(art Artifact) bool {
	a.mu.Lock()
	if !a.artifact.IsZero() || art.IsZero() {
		a.mu.Unlock()
		return false
	}
	a.artifact = art
	a.mu.Unlock()

	a.insertLine("Finished")
	a.ArtifactChanged.Emit(art)
	return true
}

// insert 在输出最前面插入文本，取消后不再接受输出
func (a *Action) insert(text string) {
	if text == "" {
		return
	}
	a.mu.Lock()
	if a.state == StateCancelled {
		a.mu.Unlock()
		return
	}
	a.output = append(a.output, text)
	a.mu.Unlock()

	a.OutputChanged.Emit(text)
}

func (a *Action) insertLine(text string) {
	a.insert(text + "\n")
}

// fail 记录错误并进入 Failed；已取消的动作保持 Cancelled
func (a *Action) fail(err error) {
	a.logger().WithError(err).Error("action failed")
	a.insertLine(err.Error())
	a.setState(StateFailed)
}

// stepFailed 步骤出错；因取消而中断的步骤不算失败
func (a *Action) stepFailed(ctx context.Context, err error) {
	if ctx.Err() != nil && a.State() == StateCancelled {
		return
	}
	a.fail(err)
}

func (a *Action) finish() {
	a.setState(StateFinished)
}

// onDetach 注册从列表移除时的清理函数
func (a *Action) onDetach(fn func()) {
	a.mu.Lock()
	a.detachers = append(a.detachers, fn)
	a.mu.Unlock()
}

func (a *Action) detach() {
	a.mu.Lock()
	fns := a.detachers
	a.detachers = nil
	a.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

func (a *Action) setNum(num uint32) {
	a.mu.Lock()
	a.num = num
	a.log = a.log.WithField("action", num)
	a.mu.Unlock()
}

// logger 编号可能被列表重新分配，日志字段随之更新
func (a *Action) logger() *logrus.Entry {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.log
}
