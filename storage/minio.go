package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
	"time"

	"AmbientFM/config"
	"AmbientFM/logger"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ObjectInfo 文件信息
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
	ContentType  string
}

// Name 返回对象键的最后一段
func (o ObjectInfo) Name() string { return path.Base(o.Key) }

// MinioClient 封装了 MinIO 客户端，所有操作限定在一个存储桶内
type MinioClient struct {
	client     *minio.Client
	bucketName string
	presignTTL time.Duration
}

// NewMinioClient 创建一个新的 MinIO 客户端
func NewMinioClient(cfg *config.Config) (*MinioClient, error) {
	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
		Secure: cfg.MinioUseSSL,
		Region: cfg.MinioRegion,
	})
	if err != nil {
		return nil, fmt.Errorf("创建 MinIO 客户端失败: %w", err)
	}

	ttl := cfg.MinioPresignTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &MinioClient{
		client:     client,
		bucketName: cfg.MinioBucket,
		presignTTL: ttl,
	}, nil
}

// Bucket 返回存储桶名称
func (m *MinioClient) Bucket() string { return m.bucketName }

// Ping 检查存储桶是否存在
func (m *MinioClient) Ping(ctx context.Context) error {
	exists, err := m.client.BucketExists(ctx, m.bucketName)
	if err != nil {
		return fmt.Errorf("检查存储桶是否存在失败: %w", err)
	}
	if !exists {
		return fmt.Errorf("存储桶 %s 不存在", m.bucketName)
	}
	logger.Info("MinIO 连接成功", logger.String("bucket", m.bucketName))
	return nil
}

// ListObjects 递归列出前缀下的所有对象
func (m *MinioClient) ListObjects(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	var objects []ObjectInfo
	objectCh := m.client.ListObjects(ctx, m.bucketName, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	})
	for object := range objectCh {
		if object.Err != nil {
			return nil, fmt.Errorf("列出对象失败: %w", object.Err)
		}
		if strings.HasSuffix(object.Key, "/") {
			continue
		}
		objects = append(objects, ObjectInfo{
			Key:          object.Key,
			Size:         object.Size,
			LastModified: object.LastModified,
			ContentType:  object.ContentType,
		})
	}
	return objects, nil
}

// PresignedURL 生成对象的临时下载地址
func (m *MinioClient) PresignedURL(ctx context.Context, key string) (string, error) {
	u, err := m.client.PresignedGetObject(ctx, m.bucketName, key, m.presignTTL, url.Values{})
	if err != nil {
		return "", fmt.Errorf("生成预签名地址失败: %w", err)
	}
	return u.String(), nil
}

// GetObject 读取对象内容，bucket 为空时使用默认存储桶
func (m *MinioClient) GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, int64, error) {
	if bucket == "" {
		bucket = m.bucketName
	}
	object, err := m.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, 0, fmt.Errorf("读取对象失败: %w", err)
	}
	stat, err := object.Stat()
	if err != nil {
		object.Close()
		return nil, 0, fmt.Errorf("读取对象信息失败: %w", err)
	}
	return object, stat.Size, nil
}

// FormatSize 格式化文件大小
func FormatSize(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}
	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(size)/float64(div), "KMGTPE"[exp])
}
