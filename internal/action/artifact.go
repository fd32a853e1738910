package action

import (
	"sync/atomic"

	"podsync/internal/engine"
	"podsync/internal/model"
)

// resolveArtifact 把列表中 ID 为 id 的实体设为动作的产出
// 先订阅 Added 再直接查找，实体无论先于还是晚于订阅出现都只会被设置一次
func resolveArtifact[D any, E model.Entity[D]](a *Action, kind engine.Kind, l *model.List[D, E], id string) {
	if l == nil || id == "" {
		return
	}

	var hid atomic.Uint64
	disconnect := func() {
		l.Added.Disconnect(model.HandlerID(hid.Load()))
	}

	hid.Store(uint64(l.Added.Connect(func(e E) {
		if e.ID() != id {
			return
		}
		a.setArtifact(Artifact{Kind: kind, ID: id})
		disconnect()
	})))
	a.onDetach(disconnect)

	if _, ok := l.Get(id); ok {
		a.setArtifact(Artifact{Kind: kind, ID: id})
	}
	if !a.Artifact().IsZero() {
		disconnect()
	}
}
