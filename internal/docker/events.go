package docker

import (
	"context"
	"time"

	"github.com/docker/docker/api/types/events"
	"github.com/pkg/errors"

	"podsync/internal/engine"
)

// eventKinds 关注的事件类型
var eventKinds = map[events.Type]engine.Kind{
	events.ContainerEventType: engine.KindContainer,
	events.ImageEventType:     engine.KindImage,
	events.VolumeEventType:    engine.KindVolume,
	events.NetworkEventType:   engine.KindNetwork,
	events.Type("pod"):        engine.KindPod,
}

// toEvent 转换 Docker 事件，不关注的类型返回 false
func toEvent(msg events.Message) (engine.Event, bool) {
	kind, ok := eventKinds[msg.Type]
	if !ok {
		return engine.Event{}, false
	}

	ts := time.Unix(msg.Time, 0)
	if msg.TimeNano != 0 {
		ts = time.Unix(0, msg.TimeNano)
	}
	return engine.Event{
		Type:   kind,
		Action: engine.NormalizeAction(string(msg.Action)),
		Actor:  engine.Actor{ID: msg.Actor.ID, Attributes: msg.Actor.Attributes},
		Time:   ts,
	}, true
}

// Events 监听运行时事件
// 返回事件通道和错误通道，ctx 结束时两个通道都会关闭
func (c *LocalClient) Events(ctx context.Context) (<-chan engine.Event, <-chan error) {
	eventChan := make(chan engine.Event, 10)
	errorChan := make(chan error, 1)

	go func() {
		defer close(eventChan)
		defer close(errorChan)

		if c == nil || c.cli == nil {
			errorChan <- errNotInitialized
			return
		}

		msgChan, errChan := c.cli.Events(ctx, events.ListOptions{})
		for {
			select {
			case <-ctx.Done():
				return
			case err := <-errChan:
				if err != nil && ctx.Err() == nil {
					errorChan <- errors.Wrap(err, "failed to watch events")
				}
				return
			case msg := <-msgChan:
				ev, ok := toEvent(msg)
				if !ok {
					continue
				}
				select {
				case eventChan <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return eventChan, errorChan
}
