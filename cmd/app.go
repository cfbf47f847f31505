package cmd

import (
	"context"
	"fmt"
	"time"

	"AmbientFM/cache"
	"AmbientFM/config"
	"AmbientFM/core/audio"
	"AmbientFM/core/audiocache"
	"AmbientFM/core/catalog"
	"AmbientFM/core/crossfade"
	"AmbientFM/core/player"
	"AmbientFM/db"
	"AmbientFM/logger"
	"AmbientFM/repository"
	"AmbientFM/storage"

	"github.com/gopxl/beep/v2"
)

// app 持有一次运行所需的全部组件
type app struct {
	cfg      *config.Config
	graph    *audio.Graph
	cache    *audiocache.Cache
	engine   *crossfade.Engine
	player   *player.Player
	supplier catalog.Supplier
	// 仅在本地目录源下非空
	local   *catalog.LocalSupplier
	closers []func()
}

// newDevice 按配置选择声卡或空输出
func newDevice(cfg *config.Config) func() audio.Device {
	buffer := time.Duration(cfg.AudioBufferMS) * time.Millisecond
	return func() audio.Device {
		if cfg.AudioOutput == "null" {
			return &audio.NullDevice{BufferSize: buffer}
		}
		return &audio.SpeakerDevice{BufferSize: buffer}
	}
}

// newMinio 连接对象存储并确认存储桶存在
func newMinio(ctx context.Context, cfg *config.Config) (*storage.MinioClient, error) {
	client, err := storage.NewMinioClient(cfg)
	if err != nil {
		return nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx); err != nil {
		return nil, err
	}
	return client, nil
}

// newSupplier 根据 CATALOG_SOURCE 创建目录源，Redis 可用时外包一层列表缓存
func (a *app) newSupplier(ctx context.Context, objects *storage.MinioClient) (catalog.Supplier, error) {
	cfg := a.cfg
	var base catalog.Supplier

	switch cfg.CatalogSource {
	case "local":
		a.local = catalog.NewLocalSupplier(cfg.CatalogDir, cfg.CatalogTrackLimit)
		base = a.local
		// 本地目录的变化由文件监听驱动，不需要缓存
		return base, nil

	case "minio":
		if objects == nil {
			return nil, fmt.Errorf("目录源 minio 需要可用的 MinIO 连接")
		}
		base = catalog.NewMinioSupplier(objects, cfg.CatalogTrackLimit)

	case "mysql":
		if err := db.ConnectGormDB(cfg); err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() {
			if err := db.CloseGormDB(); err != nil {
				logger.Warn("关闭数据库连接失败", logger.ErrorField(err))
			}
		})
		base = catalog.NewRepositorySupplier(repository.NewGormTrackRepository(db.GormDB), cfg.CatalogTrackLimit)

	default:
		return nil, fmt.Errorf("未知的目录源: %s", cfg.CatalogSource)
	}

	if cfg.CatalogCacheTTL <= 0 {
		return base, nil
	}
	if err := cache.ConnectRedis(cfg); err != nil {
		logger.Warn("Redis 不可用，目录列表不做缓存", logger.ErrorField(err))
		return base, nil
	}
	a.closers = append(a.closers, func() {
		if err := cache.CloseRedis(); err != nil {
			logger.Warn("关闭 Redis 连接失败", logger.ErrorField(err))
		}
	})
	return catalog.NewCachedSupplier(base, cache.NewCatalogCache(), cfg.CatalogCacheTTL), nil
}

// newApp 组装音频图、缓存、交叉淡化引擎和播放器
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg}

	var objects *storage.MinioClient
	if cfg.CatalogSource == "minio" || cfg.MinioAccessKey != "" {
		client, err := newMinio(ctx, cfg)
		if err != nil {
			if cfg.CatalogSource == "minio" {
				return nil, err
			}
			logger.Warn("MinIO 不可用，minio:// 音轨将无法加载", logger.ErrorField(err))
		} else {
			objects = client
		}
	}

	supplier, err := a.newSupplier(ctx, objects)
	if err != nil {
		a.close()
		return nil, err
	}
	a.supplier = supplier

	sr := beep.SampleRate(cfg.AudioSampleRate)
	var getter audio.ObjectGetter
	if objects != nil {
		getter = objects
	}
	fetcher := audio.NewFetcher(sr, getter)

	a.graph = audio.NewGraph(sr, newDevice(cfg))
	a.cache = audiocache.New(fetcher, audiocache.Config{
		RequiredReady:         cfg.CacheRequiredReady,
		MaxRetries:            cfg.CacheMaxRetries,
		RetryDelay:            cfg.CacheRetryDelay,
		BackgroundConcurrency: int64(cfg.CacheBackgroundConcurrency),
	})
	a.cache.OnEvict(a.graph.Forget)
	a.engine = crossfade.NewEngine(a.graph, a.cache, crossfade.Config{
		FadeIn:     cfg.FadeIn,
		FadeOut:    cfg.FadeOut,
		VolumeRamp: cfg.VolumeRamp,
	})
	a.player = player.New(player.Config{
		DefaultVolume:  cfg.DefaultVolume,
		PlayRetries:    cfg.PlayRetries,
		PlayRetryDelay: cfg.PlayRetryDelay,
	}, a.cache, a.engine, a.supplier, cfg.CatalogCategories)

	logger.Info("播放器已创建",
		logger.String("source", cfg.CatalogSource),
		logger.Strings("categories", cfg.CatalogCategories),
		logger.String("output", cfg.AudioOutput))
	return a, nil
}

// watchCatalog 启动目录轮询，本地目录源额外监听文件变化
func (a *app) watchCatalog(ctx context.Context) {
	notifier := catalog.NewNotifier(a.supplier, a.cfg.CatalogCategories, a.cfg.CatalogPollInterval, a.player.ApplyCatalogChanges)
	go notifier.Run(ctx)

	if a.local != nil {
		go func() {
			if err := a.local.Watch(ctx, a.cfg.CatalogCategories, notifier.Trigger); err != nil {
				logger.Warn("本地目录监听已停止", logger.ErrorField(err))
			}
		}()
	}
}

// initialize 在后台完成首次初始化，失败只记录，客户端可以通过 /api/retry 重试
func (a *app) initialize(ctx context.Context) {
	start := time.Now()
	if err := a.player.RetryInitialization(ctx); err != nil {
		logger.Warn("初始化失败", logger.ErrorField(err))
		return
	}
	logger.Info("初始化完成", logger.Duration("elapsed", time.Since(start)), logger.String("run", a.player.RunID()))
}

func (a *app) close() {
	if a.player != nil {
		a.player.Close()
	}
	if a.graph != nil {
		a.graph.Teardown()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}
