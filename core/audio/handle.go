package audio

import (
	"context"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
)

// Handle 是完整解码后的音轨，可以播放、暂停和循环。
// 每个 Handle 只通过一个 SourceNode 接入音频图。
type Handle struct {
	key    string
	buffer *beep.Buffer
	ready  chan struct{}

	mu       sync.Mutex
	stream   beep.StreamSeeker
	paused   bool
	released bool
	loop     bool
	endLead  int
	endFired bool
	onEnded  func()
}

// NewHandle 包装解码后的缓冲区，初始为暂停状态
func NewHandle(key string, buffer *beep.Buffer) *Handle {
	h := &Handle{
		key:    key,
		buffer: buffer,
		ready:  make(chan struct{}),
		stream: buffer.Streamer(0, buffer.Len()),
		paused: true,
	}
	close(h.ready)
	return h
}

// Key 返回加载时使用的唯一路径
func (h *Handle) Key() string { return h.key }

// Duration 返回音轨时长
func (h *Handle) Duration() time.Duration {
	return h.buffer.Format().SampleRate.D(h.buffer.Len())
}

// Position 返回当前播放位置
func (h *Handle) Position() time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.buffer.Format().SampleRate.D(h.stream.Position())
}

// Ready 在可以无卡顿完整播放时关闭
func (h *Handle) Ready() <-chan struct{} { return h.ready }

// WaitReady 阻塞直到完全缓冲
func (h *Handle) WaitReady(ctx context.Context) error {
	select {
	case <-h.ready:
	case <-ctx.Done():
		return NewError(ErrLoad, "wait ready", "Failed to load audio", ctx.Err())
	}
	if h.Released() {
		return NewError(ErrLoad, "wait ready", "Failed to load audio", nil)
	}
	return nil
}

// Play 开始播放，已播放到结尾的音轨从头开始
func (h *Handle) Play() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released {
		return NewError(ErrPlayback, "play", "Audio resource was released", nil)
	}
	if h.stream.Position() >= h.buffer.Len() {
		if err := h.stream.Seek(0); err != nil {
			return NewError(ErrPlayback, "play", "Failed to rewind audio", err)
		}
		h.endFired = false
	}
	h.paused = false
	return nil
}

// Pause 暂停播放，重复暂停无副作用
func (h *Handle) Pause() {
	h.mu.Lock()
	h.paused = true
	h.mu.Unlock()
}

func (h *Handle) Paused() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.paused || h.released
}

// Rewind 回到开头
func (h *Handle) Rewind() {
	h.mu.Lock()
	defer h.mu.Unlock()
	_ = h.stream.Seek(0)
	h.endFired = false
}

// SetLoop 设置循环播放
func (h *Handle) SetLoop(loop bool) {
	h.mu.Lock()
	h.loop = loop
	h.mu.Unlock()
}

// OnEnded 注册结束回调，距离结尾不足 lead 时触发一次。
// lead 为 0 时在真正结束时触发，回调在独立的 goroutine 中执行。
func (h *Handle) OnEnded(lead time.Duration, fn func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.endLead = h.buffer.Format().SampleRate.N(lead)
	h.onEnded = fn
	h.endFired = false
}

// Release 永久停止，释放后只输出静音
func (h *Handle) Release() {
	h.mu.Lock()
	h.released = true
	h.paused = true
	h.onEnded = nil
	h.mu.Unlock()
}

func (h *Handle) Released() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.released
}

// read 渲染下一块采样
func (h *Handle) read(samples [][2]float64) {
	h.mu.Lock()
	if h.paused || h.released {
		h.mu.Unlock()
		clear(samples)
		return
	}

	filled := 0
	for filled < len(samples) {
		n, ok := h.stream.Stream(samples[filled:])
		filled += n
		if ok && n > 0 {
			continue
		}
		if h.loop && h.buffer.Len() > 0 {
			_ = h.stream.Seek(0)
			continue
		}
		break
	}
	clear(samples[filled:])

	var fire func()
	remaining := h.buffer.Len() - h.stream.Position()
	if !h.loop && !h.endFired && h.onEnded != nil && (remaining <= h.endLead || filled < len(samples)) {
		h.endFired = true
		fire = h.onEnded
	}
	if filled < len(samples) && !h.loop {
		h.paused = true
	}
	h.mu.Unlock()

	if fire != nil {
		go fire()
	}
}
