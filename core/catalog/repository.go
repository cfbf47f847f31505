package catalog

import (
	"context"

	"AmbientFM/logger"
	"AmbientFM/model"
	"AmbientFM/repository"
)

// RepositorySupplier 从 MySQL 音轨表随机读取
type RepositorySupplier struct {
	repo  repository.TrackRepository
	limit int
}

// NewRepositorySupplier 创建数据库目录源
func NewRepositorySupplier(repo repository.TrackRepository, limit int) *RepositorySupplier {
	return &RepositorySupplier{repo: repo, limit: limit}
}

func (s *RepositorySupplier) ListTracks(ctx context.Context, category string) []model.Track {
	records, err := s.repo.RandomByCategory(ctx, category, s.limit)
	if err != nil {
		logger.Warn("查询分类音轨失败", logger.String("category", category), logger.ErrorField(err))
		return []model.Track{}
	}
	tracks := make([]model.Track, 0, len(records))
	for _, r := range records {
		tracks = append(tracks, r.ToTrack())
	}
	return tracks
}
