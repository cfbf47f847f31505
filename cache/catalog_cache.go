package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"AmbientFM/model"

	"github.com/go-redis/redis/v8"
)

const catalogKeyPrefix = "ambientfm:catalog:"

// CatalogCache 按分类缓存目录列表
type CatalogCache struct {
	client *redis.Client
}

// NewCatalogCache 使用全局 Redis 客户端创建目录缓存
func NewCatalogCache() *CatalogCache {
	return &CatalogCache{client: RedisClient}
}

// NewCatalogCacheWithClient 使用指定客户端创建目录缓存
func NewCatalogCacheWithClient(client *redis.Client) *CatalogCache {
	return &CatalogCache{client: client}
}

// CatalogKey 返回分类对应的 Redis 键
func CatalogKey(category string) string {
	return catalogKeyPrefix + model.Slug(category)
}

// GetTracks 读取缓存的列表，未命中时 ok 为 false
func (c *CatalogCache) GetTracks(ctx context.Context, category string) (tracks []model.Track, ok bool, err error) {
	if c.client == nil {
		return nil, false, errors.New("Redis client not initialized")
	}
	data, err := c.client.Get(ctx, CatalogKey(category)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("读取目录缓存失败: %w", err)
	}
	if err := json.Unmarshal(data, &tracks); err != nil {
		return nil, false, fmt.Errorf("解析目录缓存失败: %w", err)
	}
	return tracks, true, nil
}

// SetTracks 写入列表并设置过期时间
func (c *CatalogCache) SetTracks(ctx context.Context, category string, tracks []model.Track, ttl time.Duration) error {
	if c.client == nil {
		return errors.New("Redis client not initialized")
	}
	data, err := json.Marshal(tracks)
	if err != nil {
		return fmt.Errorf("序列化目录失败: %w", err)
	}
	if err := c.client.Set(ctx, CatalogKey(category), data, ttl).Err(); err != nil {
		return fmt.Errorf("写入目录缓存失败: %w", err)
	}
	return nil
}

// Flush 删除所有目录缓存，返回删除的键数量
func (c *CatalogCache) Flush(ctx context.Context) (int, error) {
	if c.client == nil {
		return 0, errors.New("Redis client not initialized")
	}
	var deleted int
	iter := c.client.Scan(ctx, 0, catalogKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			return deleted, fmt.Errorf("删除缓存键失败: %w", err)
		}
		deleted++
	}
	if err := iter.Err(); err != nil {
		return deleted, fmt.Errorf("扫描缓存键失败: %w", err)
	}
	return deleted, nil
}
