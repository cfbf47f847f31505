package audiocache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"AmbientFM/core/audio"
	"AmbientFM/logger"
	"AmbientFM/metrics"
	"AmbientFM/model"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Config 缓存配置
type Config struct {
	// 每个分类至少需要就绪的音轨数
	RequiredReady int
	// 首次失败后的最大重试次数
	MaxRetries int
	// 两次尝试之间的固定间隔
	RetryDelay time.Duration
	// 后台加载的最大并发数
	BackgroundConcurrency int64
}

// DefaultConfig 默认缓存配置
func DefaultConfig() Config {
	return Config{
		RequiredReady:         2,
		MaxRetries:            3,
		RetryDelay:            time.Second,
		BackgroundConcurrency: 4,
	}
}

// Status 单个音轨的加载状态
type Status struct {
	IsLoading bool   `json:"isLoading"`
	Error     string `json:"error,omitempty"`
	Progress  int    `json:"progress"`
}

type entryState int

const (
	stateLoading entryState = iota
	stateReady
	stateFailed
)

type entry struct {
	track    model.Track
	state    entryState
	handle   *audio.Handle
	err      error
	progress int
	// 加载结束（成功或最终失败）时关闭
	done chan struct{}
}

// Cache 预加载并持有可播放的音轨，按唯一路径索引
type Cache struct {
	loader audio.Loader
	cfg    Config
	sem    *semaphore.Weighted

	mu         sync.Mutex
	entries    map[string]*entry
	readyCount map[string]int
	categories []string
	epoch      context.Context
	cancel     context.CancelFunc
	readyCh    chan struct{}
	readyDone  bool
	onEvict    func(*audio.Handle)
}

// New 创建缓存
func New(loader audio.Loader, cfg Config) *Cache {
	if cfg.RequiredReady <= 0 {
		cfg.RequiredReady = 1
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.BackgroundConcurrency <= 0 {
		cfg.BackgroundConcurrency = 1
	}
	c := &Cache{
		loader: loader,
		cfg:    cfg,
		sem:    semaphore.NewWeighted(cfg.BackgroundConcurrency),
	}
	c.reset()
	return c
}

// OnEvict 设置清空缓存时对每个 Handle 的回调
func (c *Cache) OnEvict(fn func(*audio.Handle)) {
	c.mu.Lock()
	c.onEvict = fn
	c.mu.Unlock()
}

// RequiredReady 返回就绪阈值
func (c *Cache) RequiredReady() int { return c.cfg.RequiredReady }

func (c *Cache) reset() {
	c.entries = make(map[string]*entry)
	c.readyCount = make(map[string]int)
	c.categories = nil
	c.epoch, c.cancel = context.WithCancel(context.Background())
	c.readyCh = make(chan struct{})
	c.readyDone = false
}

// Initialize 清空旧状态后按分类分组加载：每个分类前 K 首优先加载，其余后台加载。
// 所有优先加载结束后返回；只有某个分类的优先加载全部失败时才返回错误，此时不启动后台加载。
func (c *Cache) Initialize(ctx context.Context, tracks []model.Track) error {
	c.Clear()

	groups := make(map[string][]model.Track)
	var order []string
	for _, t := range tracks {
		if _, ok := groups[t.Category]; !ok {
			order = append(order, t.Category)
		}
		groups[t.Category] = append(groups[t.Category], t)
	}

	c.mu.Lock()
	for _, cat := range order {
		c.readyCount[cat] = 0
		metrics.CacheReady.WithLabelValues(cat).Set(0)
	}
	c.categories = order
	epoch := c.epoch
	c.checkReadyLocked()
	c.mu.Unlock()

	logger.Info("开始初始化音频缓存",
		logger.Int("tracks", len(tracks)),
		logger.Int("categories", len(order)),
		logger.Int("requiredReady", c.cfg.RequiredReady))

	var (
		g          errgroup.Group
		background []model.Track
	)
	for _, cat := range order {
		list := groups[cat]
		k := min(c.cfg.RequiredReady, len(list))
		background = append(background, list[k:]...)
		g.Go(func() error {
			return c.loadPriority(ctx, cat, list[:k])
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	// 所有分类的优先加载结束后才开始后台加载
	for _, t := range background {
		c.loadBackground(epoch, t)
	}
	return nil
}

func (c *Cache) loadPriority(ctx context.Context, category string, tracks []model.Track) error {
	var (
		g        errgroup.Group
		mu       sync.Mutex
		loaded   int
		firstErr error
	)
	for _, t := range tracks {
		g.Go(func() error {
			_, err := c.LoadWithRetry(ctx, t)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				return nil
			}
			loaded++
			return nil
		})
	}
	_ = g.Wait()

	if len(tracks) > 0 && loaded == 0 {
		cause := firstErr
		return audio.NewError(audio.ErrLoad, "initialize",
			fmt.Sprintf("Failed to load any track for %s", category), cause)
	}
	return nil
}

// loadBackground 后台加载，错误只记录日志
func (c *Cache) loadBackground(epoch context.Context, track model.Track) {
	go func() {
		if err := c.sem.Acquire(epoch, 1); err != nil {
			return
		}
		defer c.sem.Release(1)
		if _, err := c.LoadWithRetry(epoch, track); err != nil {
			logger.Warn("后台加载音轨失败",
				logger.String("path", track.UniquePath),
				logger.ErrorField(err))
		}
	}()
}

// LoadInBackground 把音轨加入后台加载队列
func (c *Cache) LoadInBackground(track model.Track) {
	c.mu.Lock()
	epoch := c.epoch
	c.mu.Unlock()
	c.loadBackground(epoch, track)
}

// Load 返回可播放的 Handle：已就绪时等待完全缓冲，正在加载时等待结果，否则重新加载
func (c *Cache) Load(ctx context.Context, track model.Track) (*audio.Handle, error) {
	c.mu.Lock()
	e := c.entries[track.UniquePath]
	c.mu.Unlock()

	if e != nil {
		if h, ok, err := c.await(ctx, e); ok {
			if err != nil {
				return nil, err
			}
			if err := h.WaitReady(ctx); err != nil {
				return nil, err
			}
			return h, nil
		}
	}
	return c.LoadWithRetry(ctx, track)
}

// await 等待已有条目结束，ok 为 false 表示条目失败需要重新加载
func (c *Cache) await(ctx context.Context, e *entry) (*audio.Handle, bool, error) {
	select {
	case <-e.done:
	case <-ctx.Done():
		return nil, true, audio.NewError(audio.ErrLoad, "load", "Failed to load audio", ctx.Err())
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if e.state == stateReady {
		return e.handle, true, nil
	}
	return nil, false, nil
}

// LoadWithRetry 加载音轨，失败后按固定间隔重试，最多尝试 MaxRetries+1 次
func (c *Cache) LoadWithRetry(ctx context.Context, track model.Track) (*audio.Handle, error) {
	key := track.UniquePath

	c.mu.Lock()
	if e, ok := c.entries[key]; ok && e.state != stateFailed {
		c.mu.Unlock()
		if h, ok, err := c.await(ctx, e); ok {
			return h, err
		}
		return c.LoadWithRetry(ctx, track)
	}
	e := &entry{track: track, state: stateLoading, done: make(chan struct{})}
	c.entries[key] = e
	c.mu.Unlock()

	progress := func(p int) {
		c.mu.Lock()
		if c.entries[key] == e && p > e.progress {
			e.progress = p
		}
		c.mu.Unlock()
	}

	var lastErr error
attempts:
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			metrics.CacheLoads.WithLabelValues("retry").Inc()
			logger.Warn("音轨加载失败，准备重试",
				logger.String("path", key),
				logger.Int("attempt", attempt),
				logger.ErrorField(lastErr))
			timer := time.NewTimer(c.cfg.RetryDelay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				lastErr = ctx.Err()
				break attempts
			}
		}

		start := time.Now()
		h, err := c.loader.Load(ctx, track, progress)
		if err == nil {
			err = h.WaitReady(ctx)
		}
		metrics.CacheLoadDuration.Observe(time.Since(start).Seconds())
		if err == nil {
			metrics.CacheLoads.WithLabelValues("success").Inc()
			if err := c.finish(e, h, nil); err != nil {
				return nil, err
			}
			return h, nil
		}
		metrics.CacheLoads.WithLabelValues("failure").Inc()
		lastErr = err
	}

	loadErr := audio.NewError(audio.ErrLoad, "load", "Failed to load audio", lastErr)
	logger.Error("音轨加载最终失败",
		logger.String("path", key),
		logger.Int("attempts", c.cfg.MaxRetries+1),
		logger.ErrorField(lastErr))
	return nil, c.finish(e, nil, loadErr)
}

func (c *Cache) finish(e *entry, h *audio.Handle, err error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	defer close(e.done)

	// 加载期间缓存已被清空
	if c.entries[e.track.UniquePath] != e {
		if h != nil {
			h.Release()
		}
		if err == nil {
			err = audio.NewError(audio.ErrLoad, "load", "Audio cache was cleared", nil)
		}
		e.state, e.err, e.progress = stateFailed, err, 0
		return err
	}

	if err != nil {
		e.state, e.err, e.progress = stateFailed, err, 0
		return err
	}
	e.state, e.handle, e.progress = stateReady, h, 100
	cat := e.track.Category
	if n, ok := c.readyCount[cat]; ok {
		c.readyCount[cat] = n + 1
		metrics.CacheReady.WithLabelValues(cat).Set(float64(n + 1))
	}
	c.checkReadyLocked()
	return nil
}

func (c *Cache) checkReadyLocked() {
	if !c.readyDone && c.fullyReadyLocked() {
		c.readyDone = true
		close(c.readyCh)
		logger.Info("音频缓存已就绪", logger.Any("readyCount", c.readyCount))
	}
}

func (c *Cache) fullyReadyLocked() bool {
	if len(c.readyCount) == 0 {
		return false
	}
	for _, n := range c.readyCount {
		if n < c.cfg.RequiredReady {
			return false
		}
	}
	return true
}

// IsFullyReady 每个分类的就绪数都达到阈值时返回 true
func (c *Cache) IsFullyReady() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fullyReadyLocked()
}

// Ready 返回在缓存完全就绪时关闭的通道，Clear 之后需要重新获取
func (c *Cache) Ready() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.readyCh
}

// ReadyCount 返回分类的就绪音轨数
func (c *Cache) ReadyCount(category string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.readyCount[category]
}

// Categories 返回初始化时登记的分类
func (c *Cache) Categories() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.categories...)
}

// Status 返回音轨的加载状态，未知音轨返回零值
func (c *Cache) Status(track model.Track) Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[track.UniquePath]
	if !ok {
		return Status{}
	}
	s := Status{IsLoading: e.state == stateLoading, Progress: e.progress}
	if e.state == stateFailed && e.err != nil {
		s.Error = e.err.Error()
	}
	return s
}

// Clear 停止并释放所有 Handle，重置全部状态
func (c *Cache) Clear() {
	c.mu.Lock()
	c.cancel()
	var handles []*audio.Handle
	for _, e := range c.entries {
		if e.handle != nil {
			handles = append(handles, e.handle)
		}
	}
	for cat := range c.readyCount {
		metrics.CacheReady.DeleteLabelValues(cat)
	}
	evict := c.onEvict
	c.reset()
	c.mu.Unlock()

	for _, h := range handles {
		h.Release()
		if evict != nil {
			evict(h)
		}
	}
	if len(handles) > 0 {
		logger.Info("音频缓存已清空", logger.Int("released", len(handles)))
	}
}
