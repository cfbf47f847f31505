package catalog

import (
	"context"
	"sync"
	"time"

	"AmbientFM/logger"
	"AmbientFM/metrics"
	"AmbientFM/model"

	"golang.org/x/sync/errgroup"
)

// Changes 分类到最新音轨列表
type Changes map[string][]model.Track

// Notifier 定期轮询目录并把每个分类的最新列表交给 apply
type Notifier struct {
	supplier   Supplier
	categories []string
	interval   time.Duration
	apply      func(Changes)
	trigger    chan struct{}
}

// NewNotifier 创建目录轮询器，interval 默认为 30s
func NewNotifier(supplier Supplier, categories []string, interval time.Duration, apply func(Changes)) *Notifier {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Notifier{
		supplier:   supplier,
		categories: categories,
		interval:   interval,
		apply:      apply,
		trigger:    make(chan struct{}, 1),
	}
}

// Trigger 请求立即轮询一次，多次请求会合并
func (n *Notifier) Trigger() {
	select {
	case n.trigger <- struct{}{}:
	default:
	}
}

// Run 阻塞直到 ctx 结束
func (n *Notifier) Run(ctx context.Context) {
	ticker := time.NewTicker(n.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-n.trigger:
		}
		n.Poll(ctx)
	}
}

// Poll 并发列出所有分类并交付结果
func (n *Notifier) Poll(ctx context.Context) {
	changes := make(Changes, len(n.categories))
	var mu sync.Mutex
	var g errgroup.Group
	for _, c := range n.categories {
		g.Go(func() error {
			tracks := n.supplier.ListTracks(ctx, c)
			mu.Lock()
			changes[c] = tracks
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	if ctx.Err() != nil {
		metrics.CatalogPolls.WithLabelValues("cancelled").Inc()
		return
	}
	outcome := "ok"
	for _, tracks := range changes {
		if len(tracks) == 0 {
			outcome = "empty"
		}
	}
	metrics.CatalogPolls.WithLabelValues(outcome).Inc()
	logger.Debug("目录轮询完成", logger.String("outcome", outcome), logger.Int("categories", len(changes)))
	n.apply(changes)
}
