package audio

import (
	"errors"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/speaker"
)

// Device 是上下文的输出设备，负责周期性地拉取采样
type Device interface {
	Start(sr beep.SampleRate, src beep.Streamer) error
	Suspend() error
	Resume() error
	Close() error
}

// SpeakerDevice 通过 beep/speaker 输出到声卡
type SpeakerDevice struct {
	BufferSize time.Duration
}

func (d *SpeakerDevice) Start(sr beep.SampleRate, src beep.Streamer) error {
	size := d.BufferSize
	if size <= 0 {
		size = 100 * time.Millisecond
	}
	if err := speaker.Init(sr, sr.N(size)); err != nil {
		return err
	}
	speaker.Play(src)
	return nil
}

func (d *SpeakerDevice) Suspend() error { return speaker.Suspend() }

func (d *SpeakerDevice) Resume() error { return speaker.Resume() }

func (d *SpeakerDevice) Close() error {
	speaker.Clear()
	speaker.Close()
	return nil
}

// NullDevice 按实时节奏拉取采样并丢弃，用于没有声卡的服务器
type NullDevice struct {
	BufferSize time.Duration

	mu        sync.Mutex
	suspended bool
	stop      chan struct{}
	done      chan struct{}
}

func (d *NullDevice) Start(sr beep.SampleRate, src beep.Streamer) error {
	size := d.BufferSize
	if size <= 0 {
		size = 100 * time.Millisecond
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stop != nil {
		return errors.New("null device already started")
	}
	d.stop = make(chan struct{})
	d.done = make(chan struct{})
	go d.run(src, sr.N(size), size, d.stop, d.done)
	return nil
}

func (d *NullDevice) run(src beep.Streamer, n int, period time.Duration, stop, done chan struct{}) {
	defer close(done)
	buf := make([][2]float64, n)
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			d.mu.Lock()
			suspended := d.suspended
			d.mu.Unlock()
			if !suspended {
				src.Stream(buf)
			}
		}
	}
}

func (d *NullDevice) Suspend() error {
	d.mu.Lock()
	d.suspended = true
	d.mu.Unlock()
	return nil
}

func (d *NullDevice) Resume() error {
	d.mu.Lock()
	d.suspended = false
	d.mu.Unlock()
	return nil
}

func (d *NullDevice) Close() error {
	d.mu.Lock()
	stop, done := d.stop, d.done
	d.stop, d.done = nil, nil
	d.mu.Unlock()
	if stop == nil {
		return nil
	}
	close(stop)
	<-done
	return nil
}

// ManualDevice 只在调用 Render 时拉取采样，供测试和离线渲染使用
type ManualDevice struct {
	// StartErr 不为空时 Start 直接失败
	StartErr error

	mu        sync.Mutex
	sr        beep.SampleRate
	src       beep.Streamer
	suspended bool
	closed    bool
}

func (d *ManualDevice) Start(sr beep.SampleRate, src beep.Streamer) error {
	if d.StartErr != nil {
		return d.StartErr
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sr, d.src, d.closed = sr, src, false
	return nil
}

// Render 渲染 dur 时长的采样并返回，挂起或关闭时返回 nil
func (d *ManualDevice) Render(dur time.Duration) [][2]float64 {
	d.mu.Lock()
	src, suspended, closed, sr := d.src, d.suspended, d.closed, d.sr
	d.mu.Unlock()
	if src == nil || suspended || closed {
		return nil
	}
	out := make([][2]float64, sr.N(dur))
	const chunk = 512
	for i := 0; i < len(out); i += chunk {
		src.Stream(out[i:min(i+chunk, len(out))])
	}
	return out
}

func (d *ManualDevice) Suspend() error {
	d.mu.Lock()
	d.suspended = true
	d.mu.Unlock()
	return nil
}

func (d *ManualDevice) Resume() error {
	d.mu.Lock()
	d.suspended = false
	d.mu.Unlock()
	return nil
}

func (d *ManualDevice) Close() error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	return nil
}
