package pipeline

import "sync/atomic"

// SinkSlot terminates a pipeline chain: it has no nextSlot, and its
// Consume callback is the pipeline's final consumer (e.g. the
// av-sync-video-sink or av-sync-audio-sink from spec.md §4.6/§4.7).
type SinkSlot struct {
	running atomic.Bool
	Consume func(Frame) error
}

func NewSinkSlot(consume func(Frame) error) *SinkSlot {
	return &SinkSlot{Consume: consume}
}

func (s *SinkSlot) Start() error {
	s.running.Store(true)
	return nil
}

func (s *SinkSlot) Stop() error {
	s.running.Store(false)
	return nil
}

func (s *SinkSlot) Flush() error { return nil }

func (s *SinkSlot) SubmitInput(f Frame) error {
	if !s.running.Load() || s.Consume == nil {
		return nil
	}
	return s.Consume(f)
}

var _ Slot = (*SinkSlot)(nil)
