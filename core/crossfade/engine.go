package crossfade

import (
	"context"
	"sync"
	"time"

	"AmbientFM/core/audio"
	"AmbientFM/logger"
	"AmbientFM/metrics"
	"AmbientFM/model"
)

// Config 淡入淡出时长
type Config struct {
	FadeIn     time.Duration
	FadeOut    time.Duration
	VolumeRamp time.Duration
}

// DefaultConfig 默认时长：淡入 300ms，淡出 200ms，音量调节 50ms
func DefaultConfig() Config {
	return Config{
		FadeIn:     300 * time.Millisecond,
		FadeOut:    200 * time.Millisecond,
		VolumeRamp: 50 * time.Millisecond,
	}
}

// Loader 返回已就绪的 Handle，通常是 *audiocache.Cache
type Loader interface {
	Load(ctx context.Context, track model.Track) (*audio.Handle, error)
}

// Engine 负责音源之间的增益过渡以及过渡后的清理
type Engine struct {
	graph  *audio.Graph
	loader Loader
	cfg    Config

	mu sync.Mutex
	// 每个 Handle 被多少个未清理的音源使用
	users map[*audio.Handle]int
}

// NewEngine 创建淡入淡出引擎
func NewEngine(graph *audio.Graph, loader Loader, cfg Config) *Engine {
	return &Engine{
		graph:  graph,
		loader: loader,
		cfg:    cfg,
		users:  make(map[*audio.Handle]int),
	}
}

// EnsureContext 确保输出上下文可用
func (e *Engine) EnsureContext() bool { return e.graph.EnsureContext() }

// Config 返回引擎使用的时长配置
func (e *Engine) Config() Config { return e.cfg }

func gainFor(volume int) float64 {
	return float64(max(0, min(100, volume))) / 100
}

// NewSource 加载音轨并创建一个按 volume 设置增益、尚未开始播放的音源
func (e *Engine) NewSource(ctx context.Context, track model.Track, volume int) (*Source, error) {
	if !e.graph.EnsureContext() {
		return nil, audio.NewError(audio.ErrContext, "new source", "Audio output is unavailable", nil)
	}
	h, err := e.loader.Load(ctx, track)
	if err != nil {
		return nil, err
	}
	src, err := e.attach(h, track)
	if err != nil {
		return nil, err
	}
	now := src.Gain.Now()
	src.Gain.Gain.SetValueAtTime(gainFor(volume), now)
	return src, nil
}

// attach 为 Handle 创建新的增益节点并接到输出端
func (e *Engine) attach(h *audio.Handle, track model.Track) (*Source, error) {
	node, err := e.graph.GetOrCreateNode(h)
	if err != nil {
		return nil, err
	}
	c := e.graph.Context()
	gain := c.CreateGain()
	if err := c.Connect(node, gain); err != nil {
		return nil, err
	}
	e.mu.Lock()
	e.users[h]++
	e.mu.Unlock()
	return &Source{Handle: h, Node: node, Gain: gain, Track: track}, nil
}

func (e *Engine) inUse(h *audio.Handle) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.users[h] > 0
}

// Dispose 暂停并断开音源，可重复调用。仍被其他音源使用的 Handle 不会被暂停。
func (e *Engine) Dispose(src *Source) {
	if src == nil {
		return
	}
	src.mu.Lock()
	if src.disposed {
		src.mu.Unlock()
		return
	}
	src.disposed = true
	src.mu.Unlock()

	src.Gain.Disconnect()

	e.mu.Lock()
	e.users[src.Handle]--
	last := e.users[src.Handle] <= 0
	if last {
		delete(e.users, src.Handle)
	}
	e.mu.Unlock()
	if last {
		src.Handle.Pause()
	}
}

// rampTo 先在 now 固定当前值，再线性过渡到 value
func rampTo(g *audio.GainNode, value float64, now, d time.Duration) {
	p := g.Gain
	current := p.ValueAt(now)
	p.CancelScheduledValues(now)
	p.SetValueAtTime(current, now)
	p.LinearRampToValueAtTime(value, now+d)
}

// SetVolume 在短时间内把音源增益过渡到新音量，src 为空时什么也不做
func (e *Engine) SetVolume(src *Source, volume int) {
	if src == nil {
		return
	}
	rampTo(src.Gain, gainFor(volume), src.Gain.Now(), e.cfg.VolumeRamp)
}

// Crossfade 把 current 过渡到 next：
// volume 为 0 时只淡出当前音源并返回原音源；当前音源暂停时直接淡入新音源；
// 否则同时淡出当前音源、淡入新音源，并在淡入淡出都结束后清理旧音源。
// 任何失败都返回原音源。
func (e *Engine) Crossfade(ctx context.Context, current *Source, next model.Track, volume int) *Source {
	if current == nil {
		return nil
	}
	src, err := e.transition(ctx, current, next, volume)
	if err != nil {
		logger.Warn("淡入淡出失败，保留当前音源",
			logger.String("from", current.Track.UniquePath),
			logger.String("to", next.UniquePath),
			logger.ErrorField(err))
		return current
	}
	return src
}

func (e *Engine) transition(ctx context.Context, current *Source, next model.Track, volume int) (*Source, error) {
	if !e.graph.EnsureContext() {
		return nil, audio.NewError(audio.ErrContext, "crossfade", "Audio output is unavailable", nil)
	}
	h, err := e.loader.Load(ctx, next)
	if err != nil {
		return nil, err
	}
	gen := current.bump()
	now := e.graph.Context().CurrentTime()

	switch {
	case volume <= 0:
		if !current.Paused() {
			rampTo(current.Gain, 0, now, e.cfg.FadeOut)
		}
		if h != current.Handle && !e.inUse(h) {
			h.Pause()
		}
		metrics.Crossfades.WithLabelValues("silence").Inc()
		logger.Debug("淡出到静音", logger.String("track", current.Track.UniquePath))
		return current, nil

	case current.Paused():
		src, err := e.start(h, next, volume, now)
		if err != nil {
			return nil, err
		}
		e.Dispose(current)
		metrics.Crossfades.WithLabelValues("fade_in").Inc()
		logger.Debug("从暂停状态淡入", logger.String("track", next.UniquePath))
		return src, nil
	}

	src, err := e.start(h, next, volume, now)
	if err != nil {
		return nil, err
	}
	// 淡出与淡入使用同一个起点
	rampTo(current.Gain, 0, now, e.cfg.FadeOut)
	current.setPending(h, src.Gain)
	src.setOutgoing(current)

	time.AfterFunc(max(e.cfg.FadeOut, e.cfg.FadeIn), func() {
		if current.Generation() != gen {
			logger.Debug("音源已发起新的过渡，跳过清理",
				logger.String("track", current.Track.UniquePath))
			return
		}
		e.Dispose(current)
		current.setPending(nil, nil)
		src.clearOutgoing(current)
	})
	metrics.Crossfades.WithLabelValues("crossfade").Inc()
	logger.Debug("交叉淡入淡出",
		logger.String("from", current.Track.UniquePath),
		logger.String("to", next.UniquePath),
		logger.Int("volume", volume))
	return src, nil
}

// start 静音启动目标音轨，并在 FadeIn 内过渡到目标音量
func (e *Engine) start(h *audio.Handle, track model.Track, volume int, now time.Duration) (*Source, error) {
	fresh := !e.inUse(h)
	src, err := e.attach(h, track)
	if err != nil {
		return nil, err
	}
	src.Gain.Gain.SetValueAtTime(0, now)
	src.Gain.Gain.LinearRampToValueAtTime(gainFor(volume), now+e.cfg.FadeIn)
	if fresh {
		h.Rewind()
	}
	if err := h.Play(); err != nil {
		e.Dispose(src)
		return nil, err
	}
	return src, nil
}
