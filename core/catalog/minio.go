package catalog

import (
	"context"
	"fmt"

	"AmbientFM/core/audio"
	"AmbientFM/logger"
	"AmbientFM/model"
	"AmbientFM/storage"
)

// ObjectLister 对象存储的列举与签名，*storage.MinioClient 实现了它
type ObjectLister interface {
	Bucket() string
	ListObjects(ctx context.Context, prefix string) ([]storage.ObjectInfo, error)
	PresignedURL(ctx context.Context, key string) (string, error)
}

// MinioSupplier 以 "<分类>/" 为前缀从存储桶中随机挑选音轨
type MinioSupplier struct {
	objects ObjectLister
	limit   int
}

// NewMinioSupplier 创建对象存储目录源
func NewMinioSupplier(objects ObjectLister, limit int) *MinioSupplier {
	return &MinioSupplier{objects: objects, limit: limit}
}

func (s *MinioSupplier) ListTracks(ctx context.Context, category string) []model.Track {
	objects, err := s.objects.ListObjects(ctx, category+"/")
	if err != nil {
		logger.Warn("列出分类音轨失败", logger.String("category", category), logger.ErrorField(err))
		return []model.Track{}
	}

	var playable []storage.ObjectInfo
	for _, o := range objects {
		if audio.SupportedExt(o.Key) {
			playable = append(playable, o)
		}
	}

	tracks := make([]model.Track, 0, min(len(playable), max(s.limit, 0)))
	for _, o := range pick(playable, s.limit) {
		locator, err := s.objects.PresignedURL(ctx, o.Key)
		if err != nil {
			// 签名失败时由 Fetcher 直接读取对象
			logger.Warn("生成下载地址失败，改为直接读取",
				logger.String("key", o.Key), logger.ErrorField(err))
			locator = fmt.Sprintf("minio://%s/%s", s.objects.Bucket(), o.Key)
		}
		tracks = append(tracks, newTrack(category, o.Key, locator))
	}
	return tracks
}
