package model

import (
	"context"

	"podsync/internal/engine"
)

// Volume 卷实体，ID 即卷名
type Volume struct {
	base[engine.VolumeData]
}

func newVolume(id string, data engine.VolumeData) *Volume {
	return &Volume{base: newBase(id, data)}
}

// Name 卷名
func (v *Volume) Name() string {
	return v.ID()
}

// Driver 卷驱动
func (v *Volume) Driver() string {
	return v.Data().Driver
}

// Mountpoint 宿主机挂载点
func (v *Volume) Mountpoint() string {
	return v.Data().Mountpoint
}

// VolumeList 卷列表
type VolumeList struct {
	*List[engine.VolumeData, *Volume]
}

// NewVolumeList 创建卷列表
func NewVolumeList(source engine.Source[engine.VolumeData], opts ...Option) *VolumeList {
	return &VolumeList{List: newList(engine.KindVolume, source, newVolume, opts...)}
}

// HandleEvent 卷事件的主体 ID 不一定是卷名，优先取 name 属性
// mount/unmount 等事件不影响列表，只记录日志
func (l *VolumeList) HandleEvent(ctx context.Context, ev engine.Event) error {
	switch ev.Action {
	case engine.ActionRemove:
		name := ev.Actor.Attributes["name"]
		if name == "" {
			name = ev.Actor.ID
		}
		l.Remove(name)
		return nil
	case engine.ActionCreate:
		return l.Refresh(ctx)
	default:
		l.log.WithField("action", ev.Action).Debug("unhandled volume action")
		return nil
	}
}
