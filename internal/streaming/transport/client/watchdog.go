package client

import (
	"sync"
	"time"
)

// DefaultGapTimeout is how long a sequence-number gap must persist
// before a key-frame request fires (spec.md §4.4).
const DefaultGapTimeout = 250 * time.Millisecond

// DefaultKeyFrameRequestCooldown bounds how often the watchdog will
// re-request a key frame for the same stream.
const DefaultKeyFrameRequestCooldown = 1 * time.Second

// frameWatchdog tracks the highest received sequence number for one
// stream and asks the caller to request a key frame when a gap
// persists past GapTimeout, with a cool-off before the next request.
type frameWatchdog struct {
	mu sync.Mutex

	gapTimeout      time.Duration
	requestCooldown time.Duration

	highestSeq   uint32
	hasSeq       bool
	gapSince     time.Time
	lastRequest  time.Time
}

func newFrameWatchdog() *frameWatchdog {
	return &frameWatchdog{
		gapTimeout:      DefaultGapTimeout,
		requestCooldown: DefaultKeyFrameRequestCooldown,
	}
}

// Observe records a received sequence number and reports whether a key
// frame should be requested right now.
func (w *frameWatchdog) Observe(seq uint32, now time.Time) (requestKeyFrame bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.hasSeq {
		w.hasSeq = true
		w.highestSeq = seq
		return false
	}

	if seq > w.highestSeq+1 && w.gapSince.IsZero() {
		// Gap detected — a later frame has arrived before the missing
		// one, or it was lost outright. gapSince stays set until a
		// key-frame request fires and resets detection for the next
		// gap; a sequence gap never "heals" on its own without one.
		w.gapSince = now
	}

	if seq > w.highestSeq {
		w.highestSeq = seq
	}

	if w.gapSince.IsZero() {
		return false
	}
	if now.Sub(w.gapSince) < w.gapTimeout {
		return false
	}
	if !w.lastRequest.IsZero() && now.Sub(w.lastRequest) < w.requestCooldown {
		return false
	}
	w.lastRequest = now
	w.gapSince = time.Time{}
	return true
}

// watchdogSet owns one frameWatchdog per stream ID.
type watchdogSet struct {
	mu   sync.Mutex
	byID map[int32]*frameWatchdog
}

func newWatchdogSet() *watchdogSet {
	return &watchdogSet{byID: make(map[int32]*frameWatchdog)}
}

func (s *watchdogSet) forStream(streamID int32) *frameWatchdog {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.byID[streamID]
	if !ok {
		w = newFrameWatchdog()
		s.byID[streamID] = w
	}
	return w
}
