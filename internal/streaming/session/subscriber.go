package session

import (
	"sync"
	"sync/atomic"

	"github.com/deskstream/streamcore/internal/streaming/stats"
	"github.com/deskstream/streamcore/internal/streaming/wire"
)

// Subscriber augments a Session with the server-transport bookkeeping
// spec.md's data model calls for: a stats bucket, a waiting-for-IDR
// flag, and sent/received byte counters per channel.
type Subscriber struct {
	*Session

	Stats *stats.Bucket

	waitingForIDR atomic.Bool

	mu       sync.Mutex
	sentBytes map[wire.Channel]uint64
	recvBytes map[wire.Channel]uint64

	// SubscribedStreams tracks which stream IDs this subscriber has
	// asked for, so a client transport can re-subscribe on reconnect
	// and a server transport knows who to fan frames out to.
	streamsMu         sync.RWMutex
	subscribedStreams map[int32]struct{}

	// lastAckedInitID tracks, per stream, the InitID this subscriber
	// has last acknowledged; used by the server to decide whether to
	// send a frame or re-send the init block (spec.md §4.3).
	lastAckedInitID map[int32]int64
}

// NewSubscriber wraps an already-created session.
func NewSubscriber(s *Session) *Subscriber {
	return &Subscriber{
		Session:           s,
		Stats:             stats.NewBucket(),
		sentBytes:         make(map[wire.Channel]uint64),
		recvBytes:         make(map[wire.Channel]uint64),
		subscribedStreams: make(map[int32]struct{}),
		lastAckedInitID:   make(map[int32]int64),
	}
}

func (sub *Subscriber) SetWaitingForIDR(v bool) { sub.waitingForIDR.Store(v) }
func (sub *Subscriber) WaitingForIDR() bool     { return sub.waitingForIDR.Load() }

func (sub *Subscriber) AddSent(ch wire.Channel, n int) {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	sub.sentBytes[ch] += uint64(n)
}

func (sub *Subscriber) AddReceived(ch wire.Channel, n int) {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	sub.recvBytes[ch] += uint64(n)
}

func (sub *Subscriber) SentBytes(ch wire.Channel) uint64 {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	return sub.sentBytes[ch]
}

func (sub *Subscriber) ReceivedBytes(ch wire.Channel) uint64 {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	return sub.recvBytes[ch]
}

// Subscribe records that the subscriber now wants frames for streamID.
func (sub *Subscriber) Subscribe(streamID int32) {
	sub.streamsMu.Lock()
	defer sub.streamsMu.Unlock()
	sub.subscribedStreams[streamID] = struct{}{}
}

// Unsubscribe drops streamID from the subscribed set.
func (sub *Subscriber) Unsubscribe(streamID int32) {
	sub.streamsMu.Lock()
	defer sub.streamsMu.Unlock()
	delete(sub.subscribedStreams, streamID)
}

func (sub *Subscriber) IsSubscribed(streamID int32) bool {
	sub.streamsMu.RLock()
	defer sub.streamsMu.RUnlock()
	_, ok := sub.subscribedStreams[streamID]
	return ok
}

// SubscribedStreamIDs returns a snapshot of subscribed stream IDs, for
// transports that need to re-subscribe on reconnect.
func (sub *Subscriber) SubscribedStreamIDs() []int32 {
	sub.streamsMu.RLock()
	defer sub.streamsMu.RUnlock()
	out := make([]int32, 0, len(sub.subscribedStreams))
	for id := range sub.subscribedStreams {
		out = append(out, id)
	}
	return out
}

// LastAckedInitID returns the InitID this subscriber last acknowledged
// for streamID, and whether any init has been acked at all.
func (sub *Subscriber) LastAckedInitID(streamID int32) (int64, bool) {
	sub.streamsMu.RLock()
	defer sub.streamsMu.RUnlock()
	id, ok := sub.lastAckedInitID[streamID]
	return id, ok
}

// AckInitID records that the subscriber has acknowledged initID for
// streamID.
func (sub *Subscriber) AckInitID(streamID int32, initID int64) {
	sub.streamsMu.Lock()
	defer sub.streamsMu.Unlock()
	sub.lastAckedInitID[streamID] = initID
}
