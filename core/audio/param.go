package audio

import (
	"sort"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
)

type eventKind int

const (
	setValue eventKind = iota
	linearRamp
)

type paramEvent struct {
	kind  eventKind
	at    time.Duration
	value float64
}

// Param 是挂在上下文时间轴上的可自动化参数。
// 事件按时间排序，线性渐变从前一个事件的值开始插值。
type Param struct {
	mu     sync.Mutex
	def    float64
	events []paramEvent
}

func newParam(value float64) *Param {
	return &Param{def: value}
}

// SetValueAtTime 在指定时间点固定参数值
func (p *Param) SetValueAtTime(value float64, at time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.insert(paramEvent{kind: setValue, at: at, value: value})
}

// LinearRampToValueAtTime 从前一个事件线性过渡到 value，在 at 时刻到达
func (p *Param) LinearRampToValueAtTime(value float64, at time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.insert(paramEvent{kind: linearRamp, at: at, value: value})
}

// CancelScheduledValues 取消 from 及之后的所有事件
func (p *Param) CancelScheduledValues(from time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	i := sort.Search(len(p.events), func(i int) bool { return p.events[i].at >= from })
	p.events = p.events[:i]
}

// ValueAt 计算 t 时刻的参数值
func (p *Param) ValueAt(t time.Duration) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.valueAt(t)
}

func (p *Param) insert(e paramEvent) {
	// 插在同一时刻已有事件之后，保证先固定再渐变的顺序
	i := sort.Search(len(p.events), func(i int) bool { return p.events[i].at > e.at })
	p.events = append(p.events, paramEvent{})
	copy(p.events[i+1:], p.events[i:])
	p.events[i] = e
}

func (p *Param) valueAt(t time.Duration) float64 {
	value := p.def
	prevAt := time.Duration(0)
	for _, e := range p.events {
		if e.at <= t {
			prevAt, value = e.at, e.value
			continue
		}
		if e.kind == linearRamp {
			span := e.at - prevAt
			if span <= 0 {
				return e.value
			}
			frac := float64(t-prevAt) / float64(span)
			return value + (e.value-value)*frac
		}
		break
	}
	return value
}

// prune 丢弃对 t 之后的取值不再有影响的事件
func (p *Param) prune(t time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	last := -1
	for i, e := range p.events {
		if e.at > t {
			break
		}
		last = i
	}
	if last <= 0 {
		return
	}
	p.events = append(p.events[:0], p.events[last:]...)
}

// fill 按采样逐点写入从 start 开始的参数值
func (p *Param) fill(dst []float64, start time.Duration, sr beep.SampleRate) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.events) == 0 {
		for i := range dst {
			dst[i] = p.def
		}
		return
	}
	for i := range dst {
		dst[i] = p.valueAt(start + sr.D(i))
	}
}
