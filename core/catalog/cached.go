package catalog

import (
	"context"
	"time"

	"AmbientFM/logger"
	"AmbientFM/model"
)

// Store 目录列表缓存，*cache.CatalogCache 实现了它
type Store interface {
	GetTracks(ctx context.Context, category string) ([]model.Track, bool, error)
	SetTracks(ctx context.Context, category string, tracks []model.Track, ttl time.Duration) error
}

// CachedSupplier 在 ttl 内复用上一次的列表。缓存不可用时直接访问下游。
type CachedSupplier struct {
	next  Supplier
	store Store
	ttl   time.Duration
}

// NewCachedSupplier 创建带缓存的目录源，ttl <= 0 时直接返回 next
func NewCachedSupplier(next Supplier, store Store, ttl time.Duration) Supplier {
	if ttl <= 0 || store == nil {
		return next
	}
	return &CachedSupplier{next: next, store: store, ttl: ttl}
}

func (s *CachedSupplier) ListTracks(ctx context.Context, category string) []model.Track {
	tracks, ok, err := s.store.GetTracks(ctx, category)
	if err != nil {
		logger.Warn("读取目录缓存失败", logger.String("category", category), logger.ErrorField(err))
	}
	if ok {
		return tracks
	}

	tracks = s.next.ListTracks(ctx, category)
	// 空列表通常意味着下游出错，不缓存
	if len(tracks) == 0 {
		return tracks
	}
	if err := s.store.SetTracks(ctx, category, tracks, s.ttl); err != nil {
		logger.Warn("写入目录缓存失败", logger.String("category", category), logger.ErrorField(err))
	}
	return tracks
}
