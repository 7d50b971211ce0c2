package pipeline

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/deskstream/streamcore/internal/streaming/coreerr"
)

// AsynchronousSlot additionally owns a worker goroutine that polls
// QueryOutput in a loop, forwarding every produced frame downstream
// and sleeping 1ms when the engine has no output. SubmitInput returns
// after at most MaxSubmitInputAttempts retries on InputFull (spec.md
// §4.5).
type AsynchronousSlot struct {
	engine   Engine
	nextSlot Slot

	running  atomic.Bool
	stopCh   chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once

	submitMu sync.Mutex
}

func NewAsynchronousSlot(engine Engine, nextSlot Slot) *AsynchronousSlot {
	return &AsynchronousSlot{engine: engine, nextSlot: nextSlot}
}

func (s *AsynchronousSlot) Start() error {
	if !s.running.CompareAndSwap(false, true) {
		return coreerr.ErrAlreadyRunning
	}
	s.stopOnce = sync.Once{}
	s.stopCh = make(chan struct{})

	s.wg.Add(1)
	go s.workerLoop()

	if s.nextSlot != nil {
		return s.nextSlot.Start()
	}
	return nil
}

// Stop stops the worker first, then stops the downstream slot, per
// spec.md's outer-first-on-stop ordering.
func (s *AsynchronousSlot) Stop() error {
	if !s.running.CompareAndSwap(true, false) {
		return coreerr.ErrNotRunning
	}
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()

	if s.nextSlot != nil {
		return s.nextSlot.Stop()
	}
	return nil
}

func (s *AsynchronousSlot) Flush() error {
	s.submitMu.Lock()
	err := s.engine.Flush()
	s.submitMu.Unlock()
	if err != nil {
		return fmt.Errorf("pipeline: engine flush: %w", err)
	}
	if s.nextSlot != nil {
		return s.nextSlot.Flush()
	}
	return nil
}

func (s *AsynchronousSlot) SubmitInput(f Frame) error {
	if !s.running.Load() {
		return coreerr.ErrNotRunning
	}
	s.submitMu.Lock()
	defer s.submitMu.Unlock()

	for attempt := 0; attempt < MaxSubmitInputAttempts; attempt++ {
		status, err := s.engine.SubmitInput(f)
		if err != nil {
			return fmt.Errorf("pipeline: engine submit: %w", err)
		}
		switch status {
		case EngineOK, EngineNeedMoreInput:
			return nil
		case EngineInputFull:
			time.Sleep(SubmitBackoffMs * time.Millisecond)
			continue
		}
	}
	return coreerr.ErrInputFull
}

func (s *AsynchronousSlot) workerLoop() {
	defer s.wg.Done()
	for {
		select {
		case <-s.stopCh:
			return
		default:
		}

		out, ok, err := s.engine.QueryOutput()
		if err != nil {
			log.Warn("async slot query output failed", "error", err)
			time.Sleep(SubmitBackoffMs * time.Millisecond)
			continue
		}
		if !ok {
			time.Sleep(SubmitBackoffMs * time.Millisecond)
			continue
		}
		if s.nextSlot != nil {
			if err := s.nextSlot.SubmitInput(out); err != nil {
				log.Warn("async slot forward failed", "error", err)
			}
		}
	}
}

var _ Slot = (*AsynchronousSlot)(nil)
