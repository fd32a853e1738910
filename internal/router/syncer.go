package router

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"podsync/internal/engine"
)

// Refresher 可以全量刷新的列表
type Refresher interface {
	Kind() engine.Kind
	Refresh(ctx context.Context) error
}

// Syncer 定期全量刷新所有列表，补上事件流漏掉的变化
type Syncer struct {
	interval time.Duration
	log      *logrus.Entry

	mu      sync.Mutex
	targets []Refresher
}

// NewSyncer 创建同步器
func NewSyncer(interval time.Duration, logger *logrus.Entry) *Syncer {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Syncer{
		interval: interval,
		log:      logger.WithField("component", "syncer"),
	}
}

// Add 加入需要定期刷新的列表
func (s *Syncer) Add(targets ...Refresher) {
	s.mu.Lock()
	s.targets = append(s.targets, targets...)
	s.mu.Unlock()
}

// SyncOnce 并行刷新一次所有列表，返回第一个错误
func (s *Syncer) SyncOnce(ctx context.Context) error {
	s.mu.Lock()
	targets := append([]Refresher(nil), s.targets...)
	s.mu.Unlock()

	var g errgroup.Group
	for _, t := range targets {
		g.Go(func() error {
			if err := t.Refresh(ctx); err != nil {
				s.log.WithField("kind", t.Kind()).WithError(err).Warn("sync failed")
				return err
			}
			return nil
		})
	}
	return g.Wait()
}

// Run 按间隔刷新直到 ctx 结束
func (s *Syncer) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.log.Debug("syncing lists")
			_ = s.SyncOnce(ctx)
		}
	}
}
