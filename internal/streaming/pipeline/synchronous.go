package pipeline

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/deskstream/streamcore/internal/streaming/coreerr"
)

// SynchronousSlot wraps a codec/filter Engine. The caller blocks
// through SubmitInput → QueryOutput → downstream submit: on InputFull
// it polls QueryOutput to drain the engine, then retries submission,
// each bounded by MaxQueryOutputAttempts/MaxSubmitInputAttempts with a
// 1ms backoff (spec.md §4.5, §7).
type SynchronousSlot struct {
	engine   Engine
	nextSlot Slot

	running atomic.Bool
	mu      sync.Mutex
}

func NewSynchronousSlot(engine Engine, nextSlot Slot) *SynchronousSlot {
	return &SynchronousSlot{engine: engine, nextSlot: nextSlot}
}

func (s *SynchronousSlot) Start() error {
	if !s.running.CompareAndSwap(false, true) {
		return coreerr.ErrAlreadyRunning
	}
	if s.nextSlot != nil {
		return s.nextSlot.Start()
	}
	return nil
}

func (s *SynchronousSlot) Stop() error {
	if !s.running.CompareAndSwap(true, false) {
		return coreerr.ErrNotRunning
	}
	if s.nextSlot != nil {
		return s.nextSlot.Stop()
	}
	return nil
}

func (s *SynchronousSlot) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.engine.Flush(); err != nil {
		return fmt.Errorf("pipeline: engine flush: %w", err)
	}
	if s.nextSlot != nil {
		return s.nextSlot.Flush()
	}
	return nil
}

func (s *SynchronousSlot) SubmitInput(f Frame) error {
	if !s.running.Load() {
		return coreerr.ErrNotRunning
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for attempt := 0; attempt < MaxSubmitInputAttempts; attempt++ {
		status, err := s.engine.SubmitInput(f)
		if err != nil {
			return fmt.Errorf("pipeline: engine submit: %w", err)
		}

		switch status {
		case EngineOK:
			return s.drainAndForward()
		case EngineNeedMoreInput:
			return nil
		case EngineInputFull:
			if err := s.drainForSpace(); err != nil {
				return err
			}
			time.Sleep(SubmitBackoffMs * time.Millisecond)
			continue
		}
	}
	return coreerr.ErrInputFull
}

// drainAndForward pulls every available output from the engine and
// forwards it downstream.
func (s *SynchronousSlot) drainAndForward() error {
	for {
		out, ok, err := s.engine.QueryOutput()
		if err != nil {
			return fmt.Errorf("pipeline: query output: %w", err)
		}
		if !ok {
			return nil
		}
		if s.nextSlot != nil {
			if err := s.nextSlot.SubmitInput(out); err != nil {
				return err
			}
		}
	}
}

// drainForSpace polls QueryOutput to relieve InputFull, bounded by
// MaxQueryOutputAttempts.
func (s *SynchronousSlot) drainForSpace() error {
	for attempt := 0; attempt < MaxQueryOutputAttempts; attempt++ {
		out, ok, err := s.engine.QueryOutput()
		if err != nil {
			return fmt.Errorf("pipeline: query output while draining: %w", err)
		}
		if !ok {
			time.Sleep(SubmitBackoffMs * time.Millisecond)
			continue
		}
		if s.nextSlot != nil {
			if err := s.nextSlot.SubmitInput(out); err != nil {
				return err
			}
		}
		return nil
	}
	return nil
}

var _ Slot = (*SynchronousSlot)(nil)
