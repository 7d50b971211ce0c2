package protocol

import (
	"sync"
	"time"

	"github.com/deskstream/streamcore/internal/streaming/wire"
)

// DefaultReassemblyWindow bounds how long an incomplete message is
// kept before being evicted (spec.md §4.1).
const DefaultReassemblyWindow = 5 * time.Second

// DefaultMaxInFlightMessages bounds the reassembly table's size so a
// peer that never completes a message can't exhaust memory.
const DefaultMaxInFlightMessages = 256

type msgKey struct {
	session uint64
	channel wire.Channel
	msgID   uint32
}

type partialMessage struct {
	fragments map[uint16][]byte
	fragCnt   uint16
	received  int
	totalLen  int
	lastTouch time.Time
}

// Reassembler rebuilds complete messages from UDP fragments, keyed by
// (session, channel, msgID), evicting incomplete messages older than
// window or beyond maxInFlight entries (oldest first).
type Reassembler struct {
	mu          sync.Mutex
	window      time.Duration
	maxInFlight int
	partials    map[msgKey]*partialMessage
	order       []msgKey // insertion order, for oldest-first eviction
}

func NewReassembler(window time.Duration, maxInFlight int) *Reassembler {
	if window <= 0 {
		window = DefaultReassemblyWindow
	}
	if maxInFlight <= 0 {
		maxInFlight = DefaultMaxInFlightMessages
	}
	return &Reassembler{
		window:      window,
		maxInFlight: maxInFlight,
		partials:    make(map[msgKey]*partialMessage),
	}
}

// Add feeds one fragment into the reassembler. It returns the complete
// payload and true once the last fragment of a message has arrived;
// otherwise it returns nil, false.
func (r *Reassembler) Add(sessionHandle uint64, h wire.Header, payload []byte) ([]byte, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.evictExpiredLocked()

	key := msgKey{session: sessionHandle, channel: h.Channel, msgID: h.MsgID}
	pm, ok := r.partials[key]
	if !ok {
		if len(r.partials) >= r.maxInFlight {
			r.evictOldestLocked()
		}
		pm = &partialMessage{
			fragments: make(map[uint16][]byte),
			fragCnt:   h.FragCnt,
		}
		r.partials[key] = pm
		r.order = append(r.order, key)
	}

	if _, dup := pm.fragments[h.FragIdx]; !dup {
		buf := make([]byte, len(payload))
		copy(buf, payload)
		pm.fragments[h.FragIdx] = buf
		pm.received++
		pm.totalLen += len(buf)
	}
	pm.lastTouch = time.Now()

	if pm.received != int(pm.fragCnt) {
		return nil, false
	}

	full := make([]byte, 0, pm.totalLen)
	for i := uint16(0); i < pm.fragCnt; i++ {
		full = append(full, pm.fragments[i]...)
	}

	delete(r.partials, key)
	r.removeFromOrderLocked(key)

	return full, true
}

func (r *Reassembler) evictExpiredLocked() {
	cutoff := time.Now().Add(-r.window)
	for key, pm := range r.partials {
		if pm.lastTouch.Before(cutoff) {
			delete(r.partials, key)
			r.removeFromOrderLocked(key)
		}
	}
}

func (r *Reassembler) evictOldestLocked() {
	if len(r.order) == 0 {
		return
	}
	oldest := r.order[0]
	r.order = r.order[1:]
	delete(r.partials, oldest)
}

func (r *Reassembler) removeFromOrderLocked(key msgKey) {
	for i, k := range r.order {
		if k == key {
			r.order = append(r.order[:i], r.order[i+1:]...)
			return
		}
	}
}

// InFlight returns the number of messages currently being reassembled.
func (r *Reassembler) InFlight() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.partials)
}
