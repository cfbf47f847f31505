package audio

import "time"

// SourceNode 把一个 Handle 接入音频图。同一渲染周期内多次拉取返回同一块采样，
// 因此一个源节点可以同时接到多个增益节点上。
type SourceNode struct {
	handle  *Handle
	quantum uint64
	block   [][2]float64
}

func newSourceNode(h *Handle) *SourceNode {
	return &SourceNode{handle: h}
}

// Handle 返回节点对应的音轨
func (n *SourceNode) Handle() *Handle { return n.handle }

// pull 在持有上下文锁时调用
func (n *SourceNode) pull(quantum uint64, size int) [][2]float64 {
	if n.quantum == quantum && len(n.block) == size {
		return n.block
	}
	if cap(n.block) < size {
		n.block = make([][2]float64, size)
	}
	n.block = n.block[:size]
	n.handle.read(n.block)
	n.quantum = quantum
	return n.block
}

// GainNode 控制一路输入的音量
type GainNode struct {
	ctx  *Context
	Gain *Param

	// 以下字段由上下文锁保护
	input     *SourceNode
	connected bool
}

// Value 返回当前时刻的增益值
func (g *GainNode) Value() float64 {
	return g.Gain.ValueAt(g.ctx.CurrentTime())
}

// Now 返回所属上下文的当前时间
func (g *GainNode) Now() time.Duration {
	return g.ctx.CurrentTime()
}

// Disconnect 从输出端断开，重复断开无副作用
func (g *GainNode) Disconnect() {
	g.ctx.disconnect(g)
}

// Connected 报告节点是否仍接在输出端
func (g *GainNode) Connected() bool {
	g.ctx.mu.Lock()
	defer g.ctx.mu.Unlock()
	return g.connected
}

func (g *GainNode) mix(out [][2]float64, values []float64, quantum uint64, start time.Duration) {
	if g.input == nil {
		return
	}
	in := g.input.pull(quantum, len(out))
	g.Gain.fill(values, start, g.ctx.sr)
	for i := range out {
		out[i][0] += in[i][0] * values[i]
		out[i][1] += in[i][1] * values[i]
	}
}
