package player

import (
	"context"
	"math/rand/v2"
	"slices"
	"sync"
	"time"

	"AmbientFM/core/audio"
	"AmbientFM/core/audiocache"
	"AmbientFM/core/crossfade"
	"AmbientFM/logger"
	"AmbientFM/metrics"
	"AmbientFM/model"
)

// Lane 单个分类的播放通道。同一通道上的过渡由 op 串行化，
// 不同通道之间互不影响。
type Lane struct {
	category string
	slug     string
	engine   *crossfade.Engine
	cache    *audiocache.Cache
	cfg      Config
	changed  func()
	report   func(error)

	op sync.Mutex

	mu     sync.RWMutex
	state  model.PlaybackState
	tracks []model.Track
	source *crossfade.Source
}

func newLane(category string, engine *crossfade.Engine, cache *audiocache.Cache, cfg Config) *Lane {
	l := &Lane{
		category: category,
		slug:     model.Slug(category),
		engine:   engine,
		cache:    cache,
		cfg:      cfg,
		changed:  func() {},
		report:   func(error) {},
		state:    model.PlaybackState{Volume: cfg.DefaultVolume},
	}
	metrics.LaneVolume.WithLabelValues(category).Set(float64(cfg.DefaultVolume))
	metrics.LanePlaying.WithLabelValues(category).Set(0)
	return l
}

// Category 返回通道对应的分类
func (l *Lane) Category() string { return l.category }

// Slug 返回通道标识
func (l *Lane) Slug() string { return l.slug }

// State 返回播放状态快照
func (l *Lane) State() model.PlaybackState {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// Tracks 返回当前的音轨顺序
func (l *Lane) Tracks() []model.Track {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]model.Track(nil), l.tracks...)
}

// Source 返回当前音源，未创建时为 nil
func (l *Lane) Source() *crossfade.Source {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.source
}

// Status 返回通道状态快照
func (l *Lane) Status() model.LaneStatus {
	l.mu.RLock()
	defer l.mu.RUnlock()
	st := model.LaneStatus{
		Category:      l.category,
		Slug:          l.slug,
		PlaybackState: l.state,
		Tracks:        append([]model.Track{}, l.tracks...),
	}
	if idx := l.state.CurrentTrackIndex; idx < len(l.tracks) {
		t := l.tracks[idx]
		st.Track = &t
	}
	return st
}

func (l *Lane) snapshot() (model.PlaybackState, []model.Track, *crossfade.Source) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state, l.tracks, l.source
}

func (l *Lane) setPlaying(playing bool) {
	l.mu.Lock()
	l.state.IsPlaying = playing
	l.mu.Unlock()
	v := 0.0
	if playing {
		v = 1
	}
	metrics.LanePlaying.WithLabelValues(l.category).Set(v)
}

// adopt 把音源设为当前音源，调用方持有 op
func (l *Lane) adopt(src *crossfade.Source) {
	l.mu.Lock()
	l.source = src
	single := len(l.tracks) == 1
	l.mu.Unlock()

	// 只有一首时直接循环，不和自己做交叉淡入淡出
	src.Handle.SetLoop(single)
	src.Handle.OnEnded(l.engine.Config().FadeOut, func() {
		if err := l.advance(context.Background(), src); err != nil {
			l.report(err)
		}
	})
}

// TogglePlayback 切换播放与暂停
func (l *Lane) TogglePlayback(ctx context.Context) error {
	l.op.Lock()
	defer l.op.Unlock()

	if !l.engine.EnsureContext() {
		return audio.NewError(audio.ErrContext, "toggle", "Audio output is unavailable", nil)
	}

	st, tracks, src := l.snapshot()
	if src == nil {
		if len(tracks) == 0 {
			return audio.NewError(audio.ErrState, "toggle", "No tracks available", nil)
		}
		if st.CurrentTrackIndex >= len(tracks) {
			return audio.NewError(audio.ErrState, "toggle", "Playback is not initialized", nil)
		}
		track := tracks[st.CurrentTrackIndex]
		if _, err := l.cache.Load(ctx, track); err != nil {
			return err
		}
		created, err := l.engine.NewSource(ctx, track, st.Volume)
		if err != nil {
			return err
		}
		l.adopt(created)
		src = created
	}

	if st.IsPlaying {
		src.Handle.Pause()
		if out := src.Outgoing(); out != nil && out.Handle != src.Handle {
			out.Handle.Pause()
		}
		if next, _ := src.Pending(); next != nil && next != src.Handle {
			next.Pause()
		}
		l.setPlaying(false)
		logger.Info("通道已暂停", logger.String("category", l.category))
		l.changed()
		return nil
	}

	l.engine.SetVolume(src, st.Volume)
	if err := src.Handle.WaitReady(ctx); err != nil {
		return err
	}
	// 暂停期间到达的结束信号已被丢弃，恢复时重新注册
	l.adopt(src)
	if err := l.play(ctx, src.Handle); err != nil {
		return err
	}
	l.setPlaying(true)
	logger.Info("通道开始播放",
		logger.String("category", l.category),
		logger.String("track", src.Track.UniquePath),
		logger.Int("volume", st.Volume))
	l.changed()
	return nil
}

// play 启动播放，失败时按固定间隔重试
func (l *Lane) play(ctx context.Context, h *audio.Handle) error {
	retries := max(1, l.cfg.PlayRetries)
	var err error
	for attempt := 1; attempt <= retries; attempt++ {
		if err = h.Play(); err == nil {
			return nil
		}
		logger.Warn("播放失败",
			logger.String("category", l.category),
			logger.Int("attempt", attempt),
			logger.ErrorField(err))
		if attempt == retries {
			break
		}
		select {
		case <-time.After(l.cfg.PlayRetryDelay):
		case <-ctx.Done():
			return audio.NewError(audio.ErrPlayback, "play", "Failed to play audio after multiple attempts", ctx.Err())
		}
	}
	return audio.NewError(audio.ErrPlayback, "play", "Failed to play audio after multiple attempts", err)
}

// OnTrackEnded 播放中时交叉淡入淡出到下一首
func (l *Lane) OnTrackEnded(ctx context.Context) error {
	return l.advance(ctx, nil)
}

// advance from 不为空时，只有它仍是当前音源才会切换
func (l *Lane) advance(ctx context.Context, from *crossfade.Source) error {
	l.op.Lock()
	defer l.op.Unlock()

	st, tracks, src := l.snapshot()
	if src == nil || (from != nil && src != from) || !st.IsPlaying || len(tracks) == 0 {
		return nil
	}
	next := (st.CurrentTrackIndex + 1) % len(tracks)
	track := tracks[next]

	if _, err := l.cache.Load(ctx, track); err != nil {
		// 下一首不可用时循环当前音轨，避免静音
		src.Handle.SetLoop(true)
		return audio.NewError(audio.ErrLoad, "advance", "Failed to transition to next track. Please try again.", err)
	}
	result := l.engine.Crossfade(ctx, src, track, st.Volume)
	if result == src {
		src.Handle.SetLoop(true)
		return audio.NewError(audio.ErrPlayback, "advance", "Failed to transition to next track. Please try again.", nil)
	}

	l.adopt(result)
	l.mu.Lock()
	l.state.CurrentTrackIndex = next
	l.mu.Unlock()
	logger.Info("切换到下一首",
		logger.String("category", l.category),
		logger.Int("index", next),
		logger.String("track", track.UniquePath))
	l.changed()
	return nil
}

// SetVolume 设置音量并平滑过渡，没有音源时只记录音量
func (l *Lane) SetVolume(volume int) {
	volume = max(0, min(100, volume))
	l.mu.Lock()
	l.state.Volume = volume
	src := l.source
	l.mu.Unlock()

	l.engine.SetVolume(src, volume)
	metrics.LaneVolume.WithLabelValues(l.category).Set(float64(volume))
	l.changed()
}

// FadeOut 把当前音源淡出到静音，音源本身保持不变
func (l *Lane) FadeOut(ctx context.Context) error {
	l.op.Lock()
	defer l.op.Unlock()

	_, tracks, src := l.snapshot()
	if src == nil {
		return audio.NewError(audio.ErrState, "fade out", "Audio source not initialized", nil)
	}
	if len(tracks) == 0 {
		return audio.NewError(audio.ErrState, "fade out", "No tracks available", nil)
	}
	l.engine.Crossfade(ctx, src, tracks[0], 0)
	return nil
}

// FadeIn 以当前音量淡入新顺序中的第一首
func (l *Lane) FadeIn(ctx context.Context) error {
	l.op.Lock()
	defer l.op.Unlock()

	st, tracks, src := l.snapshot()
	if src == nil {
		return audio.NewError(audio.ErrState, "fade in", "Audio source not initialized", nil)
	}
	if len(tracks) == 0 {
		return audio.NewError(audio.ErrState, "fade in", "No tracks available", nil)
	}
	result := l.engine.Crossfade(ctx, src, tracks[0], st.Volume)
	if result == src && st.Volume > 0 {
		return audio.NewError(audio.ErrPlayback, "fade in", "Failed to shuffle track. Please try again.", nil)
	}
	if result == src && src.Track != tracks[0] {
		// 音量为 0 时没有淡入，直接换到新顺序的第一首
		swapped, err := l.engine.NewSource(ctx, tracks[0], 0)
		if err != nil {
			l.mu.Lock()
			l.state.CurrentTrackIndex = max(0, slices.Index(tracks, src.Track))
			l.mu.Unlock()
			l.changed()
			return err
		}
		swapped.Handle.Rewind()
		l.engine.Dispose(src)
		result = swapped
	}
	l.adopt(result)
	if st.IsPlaying && result.Paused() {
		if err := l.play(ctx, result.Handle); err != nil {
			return err
		}
	}
	l.mu.Lock()
	l.state.CurrentTrackIndex = 0
	l.mu.Unlock()
	l.changed()
	return nil
}

// shuffle 均匀打乱音轨并把索引重置为 0。
// 未在播放的通道丢弃旧音源，下次播放从新顺序的第一首开始。
func (l *Lane) shuffle() {
	l.op.Lock()
	defer l.op.Unlock()

	l.mu.Lock()
	shuffled := append([]model.Track(nil), l.tracks...)
	for i := len(shuffled) - 1; i > 0; i-- {
		j := rand.IntN(i + 1)
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	}
	l.tracks = shuffled
	l.state.CurrentTrackIndex = 0
	var stale *crossfade.Source
	if !l.state.IsPlaying {
		stale, l.source = l.source, nil
	}
	l.mu.Unlock()

	l.engine.Dispose(stale)
	l.changed()
}

// reset 停止播放并换上新的音轨列表，音量保持不变
func (l *Lane) reset(tracks []model.Track) {
	l.op.Lock()
	defer l.op.Unlock()

	l.mu.Lock()
	src := l.source
	l.source = nil
	l.tracks = append([]model.Track(nil), tracks...)
	l.state.CurrentTrackIndex = 0
	l.state.IsPlaying = false
	l.mu.Unlock()

	if src != nil {
		l.engine.Dispose(src.Outgoing())
		l.engine.Dispose(src)
	}
	metrics.LanePlaying.WithLabelValues(l.category).Set(0)
	l.changed()
}

// MergeTracks 合并目录变更。列表没有变化，或新列表会让当前索引越界时保留旧列表。
func (l *Lane) MergeTracks(tracks []model.Track) bool {
	l.mu.Lock()
	if model.SameTracks(l.tracks, tracks) || l.state.CurrentTrackIndex >= len(tracks) {
		l.mu.Unlock()
		return false
	}
	l.tracks = append([]model.Track(nil), tracks...)
	src := l.source
	single := len(tracks) == 1
	l.mu.Unlock()

	if src != nil {
		src.Handle.SetLoop(single)
	}
	logger.Info("通道音轨已更新",
		logger.String("category", l.category),
		logger.Int("tracks", len(tracks)))
	l.changed()
	return true
}
