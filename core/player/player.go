package player

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"AmbientFM/core/audio"
	"AmbientFM/core/audiocache"
	"AmbientFM/core/catalog"
	"AmbientFM/core/crossfade"
	"AmbientFM/logger"
	"AmbientFM/model"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Config 播放通道配置
type Config struct {
	DefaultVolume  int
	PlayRetries    int
	PlayRetryDelay time.Duration
}

// DefaultConfig 默认音量 50，播放失败重试 3 次，间隔 100ms
func DefaultConfig() Config {
	return Config{
		DefaultVolume:  50,
		PlayRetries:    3,
		PlayRetryDelay: 100 * time.Millisecond,
	}
}

// Player 管理所有分类通道，负责初始化、双通道随机播放和目录合并
type Player struct {
	cache    *audiocache.Cache
	engine   *crossfade.Engine
	supplier catalog.Supplier

	lanes  []*Lane
	bySlug map[string]*Lane

	shuffling atomic.Bool

	mu          sync.RWMutex
	initialized bool
	errMsg      string
	runID       string

	subMu  sync.Mutex
	nextID int
	subs   map[int]chan struct{}
}

// New 为每个分类创建一个通道
func New(cfg Config, cache *audiocache.Cache, engine *crossfade.Engine, supplier catalog.Supplier, categories []string) *Player {
	p := &Player{
		cache:    cache,
		engine:   engine,
		supplier: supplier,
		bySlug:   make(map[string]*Lane),
		subs:     make(map[int]chan struct{}),
	}
	for _, cat := range categories {
		if _, ok := p.bySlug[model.Slug(cat)]; ok {
			continue
		}
		l := newLane(cat, engine, cache, cfg)
		l.changed = p.notify
		l.report = p.setError
		p.lanes = append(p.lanes, l)
		p.bySlug[l.slug] = l
	}
	return p
}

// Lanes 返回全部通道
func (p *Player) Lanes() []*Lane { return p.lanes }

// Lane 按标识或分类名查找通道
func (p *Player) Lane(slugOrCategory string) (*Lane, error) {
	if l, ok := p.bySlug[model.Slug(slugOrCategory)]; ok {
		return l, nil
	}
	return nil, audio.NewError(audio.ErrState, "lane", "Audio controller not found", nil)
}

// Subscribe 订阅状态变化通知，返回的函数用于取消订阅
func (p *Player) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	p.subMu.Lock()
	id := p.nextID
	p.nextID++
	p.subs[id] = ch
	p.subMu.Unlock()
	return ch, func() {
		p.subMu.Lock()
		delete(p.subs, id)
		p.subMu.Unlock()
	}
}

// notify 非阻塞通知，连续的变化会被合并
func (p *Player) notify() {
	p.subMu.Lock()
	defer p.subMu.Unlock()
	for _, ch := range p.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (p *Player) setError(err error) {
	msg := audio.Message(err)
	if err != nil {
		logger.Warn("播放器错误", logger.ErrorField(err))
	}
	p.mu.Lock()
	p.errMsg = msg
	p.mu.Unlock()
	p.notify()
}

// Status 返回全局状态快照
func (p *Player) Status() model.PlayerStatus {
	p.mu.RLock()
	st := model.PlayerStatus{
		IsInitialized: p.initialized,
		Error:         p.errMsg,
	}
	p.mu.RUnlock()
	st.IsShuffling = p.shuffling.Load()
	st.FullyReady = p.cache.IsFullyReady()
	for _, l := range p.lanes {
		st.Lanes = append(st.Lanes, l.Status())
	}
	return st
}

// RunID 返回最近一次初始化的标识
func (p *Player) RunID() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.runID
}

// RetryInitialization 重新拉取目录并初始化缓存，缓存完全就绪后标记为已初始化
func (p *Player) RetryInitialization(ctx context.Context) error {
	runID := uuid.NewString()
	p.mu.Lock()
	p.errMsg = ""
	p.initialized = false
	p.runID = runID
	p.mu.Unlock()
	p.notify()

	logger.Info("开始初始化播放器", logger.String("runId", runID))
	if err := p.initialize(ctx); err != nil {
		logger.Error("初始化失败", logger.String("runId", runID), logger.ErrorField(err))
		p.setError(audio.NewError(audio.ErrState, "initialize", "Failed to initialize. Please try again.", err))
		return err
	}

	p.mu.Lock()
	p.initialized = true
	p.mu.Unlock()
	logger.Info("播放器初始化完成", logger.String("runId", runID))
	p.notify()
	return nil
}

func (p *Player) initialize(ctx context.Context) error {
	lists := make([][]model.Track, len(p.lanes))
	g, gctx := errgroup.WithContext(ctx)
	for i, l := range p.lanes {
		g.Go(func() error {
			lists[i] = p.supplier.ListTracks(gctx, l.category)
			return nil
		})
	}
	_ = g.Wait()

	var all []model.Track
	for i, l := range p.lanes {
		// 列表里可能混入其他分类的音轨
		var own []model.Track
		for _, t := range lists[i] {
			if t.Category == l.category {
				own = append(own, t)
			}
		}
		l.reset(own)
		all = append(all, own...)
	}
	if len(all) == 0 {
		return audio.NewError(audio.ErrState, "initialize", "No tracks available", nil)
	}

	if err := p.cache.Initialize(ctx, all); err != nil {
		return err
	}
	select {
	case <-p.cache.Ready():
		return nil
	case <-ctx.Done():
		return audio.NewError(audio.ErrLoad, "initialize", "Timed out waiting for tracks", ctx.Err())
	}
}

// Toggle 切换通道的播放状态
func (p *Player) Toggle(ctx context.Context, slug string) error {
	l, err := p.Lane(slug)
	if err == nil {
		err = l.TogglePlayback(ctx)
	}
	if err != nil {
		p.setError(err)
	}
	return err
}

// SetVolume 设置通道音量
func (p *Player) SetVolume(slug string, volume int) error {
	l, err := p.Lane(slug)
	if err != nil {
		p.setError(err)
		return err
	}
	l.SetVolume(volume)
	return nil
}

// Shuffle 同时打乱所有通道。正在打乱时再次调用直接返回。
func (p *Player) Shuffle(ctx context.Context) error {
	if !p.shuffling.CompareAndSwap(false, true) {
		return nil
	}
	defer func() {
		p.shuffling.Store(false)
		p.notify()
	}()
	p.setError(nil)

	if err := p.shuffle(ctx); err != nil {
		p.setError(err)
		return err
	}
	return nil
}

func (p *Player) shuffle(ctx context.Context) error {
	if !p.cache.IsFullyReady() {
		return audio.NewError(audio.ErrState, "shuffle", "Please wait for all tracks to load before shuffling", nil)
	}

	// 索引重置先于淡入淡出，之后的失败不会回滚
	var playing []*Lane
	for _, l := range p.lanes {
		l.shuffle()
		if l.State().IsPlaying {
			playing = append(playing, l)
		}
	}
	logger.Info("随机播放", logger.Int("playingLanes", len(playing)))
	if len(playing) == 0 {
		return nil
	}

	for _, l := range playing {
		tracks := l.Tracks()
		if len(tracks) == 0 {
			continue
		}
		if _, err := p.cache.Load(ctx, tracks[0]); err != nil {
			return err
		}
	}

	cfg := p.engine.Config()
	if err := p.phase(ctx, playing, (*Lane).FadeOut, cfg.FadeOut); err != nil {
		return err
	}
	return p.phase(ctx, playing, (*Lane).FadeIn, cfg.FadeIn)
}

// phase 并发地对每个通道执行同一步骤，然后等待淡入淡出时长
func (p *Player) phase(ctx context.Context, lanes []*Lane, step func(*Lane, context.Context) error, wait time.Duration) error {
	var g errgroup.Group
	for _, l := range lanes {
		g.Go(func() error { return step(l, ctx) })
	}
	err := g.Wait()

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
		return errors.Join(err, ctx.Err())
	}
	return err
}

// ApplyCatalogChanges 合并目录变更，并把尚未加载的新音轨放入后台加载
func (p *Player) ApplyCatalogChanges(changes catalog.Changes) {
	for cat, tracks := range changes {
		l, err := p.Lane(cat)
		if err != nil {
			continue
		}
		l.MergeTracks(tracks)
	}
	for _, tracks := range changes {
		for _, t := range tracks {
			st := p.cache.Status(t)
			if !st.IsLoading && st.Progress == 0 {
				p.cache.LoadInBackground(t)
			}
		}
	}
}

// Close 停止所有通道并释放音频资源
func (p *Player) Close() {
	for _, l := range p.lanes {
		l.reset(nil)
	}
	p.cache.Clear()
}
