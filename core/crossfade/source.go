package crossfade

import (
	"sync"

	"AmbientFM/core/audio"
	"AmbientFM/model"
)

// Source 一路正在播放（或暂停）的音源
type Source struct {
	Handle *audio.Handle
	Node   *audio.SourceNode
	Gain   *audio.GainNode
	Track  model.Track

	mu         sync.Mutex
	next       *audio.Handle
	nextGain   *audio.GainNode
	outgoing   *Source
	generation uint64
	disposed   bool
}

// Paused 音源是否处于暂停状态
func (s *Source) Paused() bool { return s.Handle.Paused() }

// Generation 返回过渡计数，每次从该音源发起过渡都会加一
func (s *Source) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

func (s *Source) bump() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
	return s.generation
}

// Pending 返回正在淡入、将取代本音源的 Handle 和增益节点
func (s *Source) Pending() (*audio.Handle, *audio.GainNode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next, s.nextGain
}

func (s *Source) setPending(h *audio.Handle, g *audio.GainNode) {
	s.mu.Lock()
	s.next, s.nextGain = h, g
	s.mu.Unlock()
}

// Outgoing 返回仍在淡出、尚未清理的上一个音源
func (s *Source) Outgoing() *Source {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outgoing
}

func (s *Source) setOutgoing(o *Source) {
	s.mu.Lock()
	s.outgoing = o
	s.mu.Unlock()
}

func (s *Source) clearOutgoing(o *Source) {
	s.mu.Lock()
	if s.outgoing == o {
		s.outgoing = nil
	}
	s.mu.Unlock()
}

// Disposed 音源是否已被清理
func (s *Source) Disposed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disposed
}
