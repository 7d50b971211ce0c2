package protocol

import (
	"sync"
	"time"

	"github.com/deskstream/streamcore/internal/logging"
)

var log = logging.L("protocol")

// AdaptiveFragmentSize implements spec.md §4.1/§9's AIMD-like control
// loop: lost-message counts are monitored over a rolling interval; if
// the count meets or exceeds lostThreshold, MaxFragmentSize halves
// (down to floor); after turningPointThreshold consecutive clean
// windows (zero losses), size is restored to ceiling. Size changes are
// reported through onChange so the transport can announce them
// in-band to the peer.
type AdaptiveFragmentSize struct {
	mu sync.Mutex

	current int
	floor   int
	ceiling int

	interval              time.Duration
	lostThreshold         int
	turningPointThreshold int

	windowLost   int
	cleanWindows int
	windowStart  time.Time

	onChange func(newSize int)
}

func NewAdaptiveFragmentSize(ceiling, floor int, interval time.Duration, lostThreshold, turningPointThreshold int, onChange func(int)) *AdaptiveFragmentSize {
	return &AdaptiveFragmentSize{
		current:               ceiling,
		floor:                 floor,
		ceiling:               ceiling,
		interval:              interval,
		lostThreshold:         lostThreshold,
		turningPointThreshold: turningPointThreshold,
		windowStart:           time.Now(),
		onChange:              onChange,
	}
}

func (a *AdaptiveFragmentSize) Current() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current
}

// RecordLoss marks one lost message in the current window.
func (a *AdaptiveFragmentSize) RecordLoss() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.windowLost++
}

// Tick evaluates the current window if interval has elapsed since the
// last evaluation, adjusting current and firing onChange on a change.
// Returns true if a window was evaluated.
func (a *AdaptiveFragmentSize) Tick(now time.Time) bool {
	a.mu.Lock()
	if now.Sub(a.windowStart) < a.interval {
		a.mu.Unlock()
		return false
	}
	lost := a.windowLost
	a.windowLost = 0
	a.windowStart = now
	prev := a.current

	if lost >= a.lostThreshold {
		a.cleanWindows = 0
		next := a.current / 2
		if next < a.floor {
			next = a.floor
		}
		a.current = next
	} else {
		a.cleanWindows++
		if a.cleanWindows >= a.turningPointThreshold {
			a.cleanWindows = 0
			a.current = a.ceiling
		}
	}
	changed := a.current != prev
	newSize := a.current
	onChange := a.onChange
	a.mu.Unlock()

	if changed {
		log.Info("fragment size adapted", "prev", prev, "new", newSize, "lostInWindow", lost)
		if onChange != nil {
			onChange(newSize)
		}
	}
	return true
}
