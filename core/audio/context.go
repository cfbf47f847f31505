package audio

import (
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
)

// State 输出上下文状态
type State int

const (
	StateRunning State = iota
	StateSuspended
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateSuspended:
		return "suspended"
	default:
		return "closed"
	}
}

// Context 是音频图的输出端。它本身是一个 beep.Streamer，由设备拉取，
// 并按已渲染的采样帧数维护时间轴。
type Context struct {
	sr     beep.SampleRate
	device Device

	mu      sync.Mutex
	state   State
	frames  int
	quantum uint64
	gains   []*GainNode
	values  []float64
}

// NewContext 创建上下文并启动输出设备
func NewContext(sr beep.SampleRate, device Device) (*Context, error) {
	c := &Context{sr: sr, device: device}
	if err := device.Start(sr, c); err != nil {
		return nil, NewError(ErrContext, "create context", "Audio output is unavailable", err)
	}
	return c, nil
}

// SampleRate 返回上下文采样率
func (c *Context) SampleRate() beep.SampleRate { return c.sr }

// CurrentTime 返回上下文时间轴上的当前时间
func (c *Context) CurrentTime() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sr.D(c.frames)
}

func (c *Context) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Resume 恢复被挂起的上下文
func (c *Context) Resume() error {
	c.mu.Lock()
	state := c.state
	c.mu.Unlock()
	switch state {
	case StateClosed:
		return NewError(ErrContext, "resume", "Audio output is closed", nil)
	case StateRunning:
		return nil
	}
	// 设备调用必须在锁外进行，设备回调 Stream 时会持有它自己的锁
	if err := c.device.Resume(); err != nil {
		return NewError(ErrContext, "resume", "Failed to resume audio output", err)
	}
	c.mu.Lock()
	if c.state == StateSuspended {
		c.state = StateRunning
	}
	c.mu.Unlock()
	return nil
}

// Suspend 挂起上下文，时间轴停止推进
func (c *Context) Suspend() error {
	c.mu.Lock()
	state := c.state
	c.mu.Unlock()
	if state != StateRunning {
		return nil
	}
	if err := c.device.Suspend(); err != nil {
		return NewError(ErrContext, "suspend", "Failed to suspend audio output", err)
	}
	c.mu.Lock()
	if c.state == StateRunning {
		c.state = StateSuspended
	}
	c.mu.Unlock()
	return nil
}

// Close 关闭上下文并断开所有节点，重复关闭返回 nil
func (c *Context) Close() error {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return nil
	}
	c.state = StateClosed
	c.gains = nil
	c.mu.Unlock()

	if err := c.device.Close(); err != nil {
		return NewError(ErrContext, "close", "Failed to close audio output", err)
	}
	return nil
}

// CreateGain 创建一个增益节点，初始增益为 1
func (c *Context) CreateGain() *GainNode {
	return &GainNode{ctx: c, Gain: newParam(1)}
}

// Connect 把源节点经过增益节点接到输出端
func (c *Context) Connect(src *SourceNode, gain *GainNode) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateClosed {
		return NewError(ErrGraph, "connect", "Audio output is closed", nil)
	}
	if gain.ctx != c {
		return NewError(ErrGraph, "connect", "Gain node belongs to another context", nil)
	}
	gain.input = src
	if !gain.connected {
		gain.connected = true
		c.gains = append(c.gains, gain)
	}
	return nil
}

func (c *Context) disconnect(gain *GainNode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	gain.connected = false
	gain.input = nil
	for i, g := range c.gains {
		if g == gain {
			c.gains = append(c.gains[:i], c.gains[i+1:]...)
			break
		}
	}
}

// Stream 实现 beep.Streamer，混合所有已连接的增益节点
func (c *Context) Stream(samples [][2]float64) (n int, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(samples)
	if c.state != StateRunning {
		return len(samples), true
	}

	start := c.sr.D(c.frames)
	c.quantum++
	if cap(c.values) < len(samples) {
		c.values = make([]float64, len(samples))
	}
	values := c.values[:len(samples)]
	for _, g := range c.gains {
		g.mix(samples, values, c.quantum, start)
	}
	c.frames += len(samples)

	now := c.sr.D(c.frames)
	for _, g := range c.gains {
		g.Gain.prune(now)
	}
	return len(samples), true
}

func (c *Context) Err() error { return nil }
