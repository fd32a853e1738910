package router

import (
	"context"

	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"podsync/internal/engine"
)

// ErrUnhandled 没有为该事件类型注册处理器
var ErrUnhandled = errors.New("no handler for event type")

// Handler 处理一类实体的运行时事件，各实体列表实现了它
type Handler interface {
	HandleEvent(ctx context.Context, ev engine.Event) error
}

// HandlerFunc 函数形式的 Handler
type HandlerFunc func(ctx context.Context, ev engine.Event) error

// HandleEvent 调用 f
func (f HandlerFunc) HandleEvent(ctx context.Context, ev engine.Event) error {
	return f(ctx, ev)
}

// Router 按事件类型把运行时事件分发给对应的列表
type Router struct {
	handlers cmap.ConcurrentMap[string, Handler]
	log      *logrus.Entry
}

// New 创建路由器，logger 为空时使用标准 logger
func New(logger *logrus.Entry) *Router {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Router{
		handlers: cmap.New[Handler](),
		log:      logger.WithField("component", "router"),
	}
}

// Register 注册处理器，同类型重复注册时覆盖
func (r *Router) Register(kind engine.Kind, h Handler) {
	r.handlers.Set(string(kind), h)
}

// Unregister 移除处理器
func (r *Router) Unregister(kind engine.Kind) {
	r.handlers.Remove(string(kind))
}

// Kinds 已注册的事件类型
func (r *Router) Kinds() []string {
	return r.handlers.Keys()
}

// Dispatch 分发单个事件；处理器出错只记录并返回，不影响后续事件
func (r *Router) Dispatch(ctx context.Context, ev engine.Event) error {
	log := r.log.WithFields(logrus.Fields{"type": ev.Type, "action": ev.Action, "id": ev.Actor.ID})

	h, ok := r.handlers.Get(string(ev.Type))
	if !ok {
		log.Warn("unhandled event")
		return errors.Wrapf(ErrUnhandled, "type %q", ev.Type)
	}

	log.Debug("dispatching event")
	if err := h.HandleEvent(ctx, ev); err != nil {
		log.WithError(err).Warn("error on handling event")
		return err
	}
	return nil
}

// Run 消费事件流直到 ctx 结束或事件流关闭
// 事件流报错时停止并返回该错误
func (r *Router) Run(ctx context.Context, events <-chan engine.Event, errs <-chan error) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if err == nil {
				continue
			}
			r.log.WithError(err).Error("stopping event stream")
			return errors.Wrap(err, "event stream")
		case ev, ok := <-events:
			if !ok {
				r.log.Info("event stream closed")
				return nil
			}
			_ = r.Dispatch(ctx, ev)
		}
	}
}
