package audio

import (
	"fmt"
	"sync"

	"AmbientFM/logger"

	"github.com/gopxl/beep/v2"
)

// Graph 管理输出上下文的生命周期，以及 Handle 到图节点的一一映射
type Graph struct {
	sr        beep.SampleRate
	newDevice func() Device

	mu      sync.Mutex
	ctx     *Context
	nodes   map[*Handle]*SourceNode
	onError func(error)
}

// NewGraph 创建图管理器，newDevice 在每次新建上下文时调用
func NewGraph(sr beep.SampleRate, newDevice func() Device) *Graph {
	return &Graph{
		sr:        sr,
		newDevice: newDevice,
		nodes:     make(map[*Handle]*SourceNode),
	}
}

// OnError 设置上下文错误回调
func (g *Graph) OnError(fn func(error)) {
	g.mu.Lock()
	g.onError = fn
	g.mu.Unlock()
}

func (g *Graph) report(err error) {
	logger.Error("音频上下文错误", logger.ErrorField(err))
	g.mu.Lock()
	fn := g.onError
	g.mu.Unlock()
	if fn != nil {
		fn(err)
	}
}

// EnsureContext 按需创建或恢复上下文，失败时返回 false 并通过回调上报
func (g *Graph) EnsureContext() (ready bool) {
	defer func() {
		if r := recover(); r != nil {
			g.report(NewError(ErrContext, "ensure context", "Audio output is unavailable", fmt.Errorf("panic: %v", r)))
			ready = false
		}
	}()

	c, err := g.current()
	if err != nil {
		g.report(err)
		return false
	}

	if c.State() == StateSuspended {
		if err := c.Resume(); err != nil {
			g.report(err)
			return false
		}
		logger.Debug("音频上下文已恢复")
	}
	return true
}

func (g *Graph) current() (*Context, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.ctx != nil && g.ctx.State() != StateClosed {
		return g.ctx, nil
	}
	c, err := NewContext(g.sr, g.newDevice())
	if err != nil {
		return nil, err
	}
	g.ctx = c
	// 新上下文使用新的节点表
	g.nodes = make(map[*Handle]*SourceNode)
	logger.Info("音频上下文已创建", logger.Int("sampleRate", int(g.sr)))
	return c, nil
}

// Context 返回当前上下文，未创建时为 nil
func (g *Graph) Context() *Context {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.ctx
}

// GetOrCreateNode 返回 Handle 对应的源节点，同一上下文内总是同一个节点
func (g *Graph) GetOrCreateNode(h *Handle) (*SourceNode, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.ctx == nil || g.ctx.State() == StateClosed {
		return nil, NewError(ErrGraph, "create node", "Audio output is not initialized", nil)
	}
	if n, ok := g.nodes[h]; ok {
		return n, nil
	}
	n := newSourceNode(h)
	g.nodes[h] = n
	return n, nil
}

// Forget 移除 Handle 的节点映射，用于缓存清空时
func (g *Graph) Forget(h *Handle) {
	g.mu.Lock()
	delete(g.nodes, h)
	g.mu.Unlock()
}

// NodeCount 返回当前节点表大小
func (g *Graph) NodeCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.nodes)
}

// Teardown 关闭上下文，可重复调用，关闭失败只记录日志
func (g *Graph) Teardown() {
	g.mu.Lock()
	c := g.ctx
	g.mu.Unlock()
	if c == nil || c.State() == StateClosed {
		return
	}
	if err := c.Close(); err != nil {
		logger.Warn("关闭音频上下文失败", logger.ErrorField(err))
		return
	}
	logger.Info("音频上下文已关闭")
}
