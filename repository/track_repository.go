package repository

import (
	"context"

	"AmbientFM/model"

	"gorm.io/gorm"
)

// TrackRepository 目录音轨数据访问接口
type TrackRepository interface {
	Create(ctx context.Context, record *model.TrackRecord) error
	// RandomByCategory 随机返回分类下最多 limit 条启用的音轨，limit <= 0 时不限制
	RandomByCategory(ctx context.Context, category string, limit int) ([]*model.TrackRecord, error)
	Categories(ctx context.Context) ([]string, error)
}

// gormTrackRepository GORM 实现
type gormTrackRepository struct {
	db *gorm.DB
}

// NewGormTrackRepository 创建 GORM 音轨仓库
func NewGormTrackRepository(db *gorm.DB) TrackRepository {
	return &gormTrackRepository{db: db}
}

// Create 新增音轨
func (r *gormTrackRepository) Create(ctx context.Context, record *model.TrackRecord) error {
	return r.db.WithContext(ctx).Create(record).Error
}

// RandomByCategory 随机取出分类下的音轨
func (r *gormTrackRepository) RandomByCategory(ctx context.Context, category string, limit int) ([]*model.TrackRecord, error) {
	var records []*model.TrackRecord
	q := r.db.WithContext(ctx).
		Where("category = ? AND state = ?", category, 1).
		Order("RAND()")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// Categories 返回所有存在启用音轨的分类
func (r *gormTrackRepository) Categories(ctx context.Context) ([]string, error) {
	var categories []string
	err := r.db.WithContext(ctx).Model(&model.TrackRecord{}).
		Where("state = ?", 1).
		Distinct().
		Order("category").
		Pluck("category", &categories).Error
	return categories, err
}
