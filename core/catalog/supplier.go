package catalog

import (
	"context"
	"math/rand/v2"
	"path"

	"AmbientFM/model"
)

// Supplier 列出分类下的音轨。失败时返回空列表，不返回错误。
type Supplier interface {
	ListTracks(ctx context.Context, category string) []model.Track
}

// SupplierFunc 把普通函数适配为 Supplier
type SupplierFunc func(ctx context.Context, category string) []model.Track

func (f SupplierFunc) ListTracks(ctx context.Context, category string) []model.Track {
	return f(ctx, category)
}

// DefaultArtist 目录中没有艺术家信息时使用
const DefaultArtist = "Unknown"

// newTrack 以文件名作为标题
func newTrack(category, uniquePath, locator string) model.Track {
	return model.Track{
		Locator:    locator,
		Title:      path.Base(uniquePath),
		Artist:     DefaultArtist,
		Category:   category,
		UniquePath: uniquePath,
	}
}

// pick 打乱后取前 limit 个，limit <= 0 时全部保留
func pick[T any](items []T, limit int) []T {
	out := make([]T, len(items))
	copy(out, items)
	rand.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
