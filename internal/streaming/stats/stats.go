// Package stats implements the property-bag statistics manager: known
// keys as atomically-updated struct fields (so observer threads can
// read metrics without taking a lock) plus a side map for
// user-defined extensions, following the AMFPropertyStorage design
// note in spec.md §9.
package stats

import (
	"sync"
	"sync/atomic"
	"time"
)

// Bucket holds one subscriber's (or the server's own) rolling metrics.
// All known-key fields are atomic; Extensions is guarded by mu for the
// rarer user-defined case.
type Bucket struct {
	// Latencies, in a fixed-point microseconds representation so they
	// can be stored in an atomic.Int64 without a lock.
	FullLatencyUs       atomic.Int64
	ServerLatencyUs     atomic.Int64
	EncoderLatencyUs    atomic.Int64
	NetworkLatencyUs    atomic.Int64
	ClientLatencyUs     atomic.Int64
	DecoderLatencyUs    atomic.Int64
	EncryptionLatencyUs atomic.Int64
	DecryptionLatencyUs atomic.Int64

	EncoderQueueDepth atomic.Int32
	DecoderQueueDepth atomic.Int32

	BandwidthVideoOut atomic.Uint64
	BandwidthVideoIn  atomic.Uint64
	BandwidthAudioOut atomic.Uint64
	BandwidthAudioIn  atomic.Uint64
	BandwidthCtrlOut  atomic.Uint64
	BandwidthCtrlIn   atomic.Uint64
	BandwidthUserOut  atomic.Uint64
	BandwidthUserIn   atomic.Uint64
	BandwidthTotalOut atomic.Uint64
	BandwidthTotalIn  atomic.Uint64
	BandwidthEstimate atomic.Uint64

	VideoFpsTx atomic.Int32
	VideoFpsRx atomic.Int32

	AVDesyncUs atomic.Int64

	ForceIDRReqCnt atomic.Int64
	SlowSendCnt    atomic.Int64
	WorstSendTimeUs atomic.Int64

	statsUpdateTime      atomic.Int64 // unix nanoseconds
	statsLocalUpdateTime atomic.Int64

	mu         sync.RWMutex
	extensions map[string]any
}

// NewBucket returns a Bucket with all timestamps set to now.
func NewBucket() *Bucket {
	b := &Bucket{extensions: make(map[string]any)}
	now := time.Now().UnixNano()
	b.statsUpdateTime.Store(now)
	b.statsLocalUpdateTime.Store(now)
	return b
}

// MarkUpdated stamps both update-time fields with the current time;
// call after any batch of field writes this tick.
func (b *Bucket) MarkUpdated() {
	now := time.Now().UnixNano()
	b.statsUpdateTime.Store(now)
	b.statsLocalUpdateTime.Store(now)
}

func (b *Bucket) StatsUpdateTime() time.Time {
	return time.Unix(0, b.statsUpdateTime.Load())
}

func (b *Bucket) StatsLocalUpdateTime() time.Time {
	return time.Unix(0, b.statsLocalUpdateTime.Load())
}

// SetExtension records a user-defined statistic not covered by a known
// field above.
func (b *Bucket) SetExtension(key string, value any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.extensions[key] = value
}

func (b *Bucket) Extension(key string) (any, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	v, ok := b.extensions[key]
	return v, ok
}

// Snapshot is the JSON-marshalable wire form of a Bucket, sent to
// clients as the STATISTICS_* property family (spec.md §6, §9).
type Snapshot struct {
	FullLatencyUs       int64 `json:"fullLatencyUs"`
	ServerLatencyUs     int64 `json:"serverLatencyUs"`
	EncoderLatencyUs    int64 `json:"encoderLatencyUs"`
	NetworkLatencyUs    int64 `json:"networkLatencyUs"`
	ClientLatencyUs     int64 `json:"clientLatencyUs"`
	DecoderLatencyUs    int64 `json:"decoderLatencyUs"`
	EncryptionLatencyUs int64 `json:"encryptionLatencyUs"`
	DecryptionLatencyUs int64 `json:"decryptionLatencyUs"`

	EncoderQueueDepth int32 `json:"encoderQueueDepth"`
	DecoderQueueDepth int32 `json:"decoderQueueDepth"`

	BandwidthVideoOut uint64 `json:"bandwidthVideoOut"`
	BandwidthVideoIn  uint64 `json:"bandwidthVideoIn"`
	BandwidthAudioOut uint64 `json:"bandwidthAudioOut"`
	BandwidthAudioIn  uint64 `json:"bandwidthAudioIn"`
	BandwidthCtrlOut  uint64 `json:"bandwidthCtrlOut"`
	BandwidthCtrlIn   uint64 `json:"bandwidthCtrlIn"`
	BandwidthUserOut  uint64 `json:"bandwidthUserOut"`
	BandwidthUserIn   uint64 `json:"bandwidthUserIn"`
	BandwidthTotalOut uint64 `json:"bandwidthTotalOut"`
	BandwidthTotalIn  uint64 `json:"bandwidthTotalIn"`
	BandwidthEstimate uint64 `json:"bandwidthEstimate"`

	VideoFpsTx int32 `json:"videoFpsTx"`
	VideoFpsRx int32 `json:"videoFpsRx"`

	AVDesyncUs int64 `json:"avDesyncUs"`

	ForceIDRReqCnt  int64 `json:"forceIdrReqCnt"`
	SlowSendCnt     int64 `json:"slowSendCnt"`
	WorstSendTimeUs int64 `json:"worstSendTimeUs"`

	StatsUpdateTimeUnixNano int64 `json:"statsUpdateTimeUnixNano"`
}

// Snapshot reads every known-key field into a JSON-marshalable value.
func (b *Bucket) Snapshot() Snapshot {
	return Snapshot{
		FullLatencyUs:       b.FullLatencyUs.Load(),
		ServerLatencyUs:     b.ServerLatencyUs.Load(),
		EncoderLatencyUs:    b.EncoderLatencyUs.Load(),
		NetworkLatencyUs:    b.NetworkLatencyUs.Load(),
		ClientLatencyUs:     b.ClientLatencyUs.Load(),
		DecoderLatencyUs:    b.DecoderLatencyUs.Load(),
		EncryptionLatencyUs: b.EncryptionLatencyUs.Load(),
		DecryptionLatencyUs: b.DecryptionLatencyUs.Load(),

		EncoderQueueDepth: b.EncoderQueueDepth.Load(),
		DecoderQueueDepth: b.DecoderQueueDepth.Load(),

		BandwidthVideoOut: b.BandwidthVideoOut.Load(),
		BandwidthVideoIn:  b.BandwidthVideoIn.Load(),
		BandwidthAudioOut: b.BandwidthAudioOut.Load(),
		BandwidthAudioIn:  b.BandwidthAudioIn.Load(),
		BandwidthCtrlOut:  b.BandwidthCtrlOut.Load(),
		BandwidthCtrlIn:   b.BandwidthCtrlIn.Load(),
		BandwidthUserOut:  b.BandwidthUserOut.Load(),
		BandwidthUserIn:   b.BandwidthUserIn.Load(),
		BandwidthTotalOut: b.BandwidthTotalOut.Load(),
		BandwidthTotalIn:  b.BandwidthTotalIn.Load(),
		BandwidthEstimate: b.BandwidthEstimate.Load(),

		VideoFpsTx: b.VideoFpsTx.Load(),
		VideoFpsRx: b.VideoFpsRx.Load(),

		AVDesyncUs: b.AVDesyncUs.Load(),

		ForceIDRReqCnt:  b.ForceIDRReqCnt.Load(),
		SlowSendCnt:     b.SlowSendCnt.Load(),
		WorstSendTimeUs: b.WorstSendTimeUs.Load(),

		StatsUpdateTimeUnixNano: b.statsUpdateTime.Load(),
	}
}

// RateTracker converts a monotonically increasing cumulative counter
// (e.g. session.Subscriber's per-channel byte counters) into a
// bytes/second rate between successive samples.
type RateTracker struct {
	mu   sync.Mutex
	prev uint64
	at   time.Time
}

// Update records a new cumulative sample and returns the rate since
// the previous sample, in units per second. The first call has no
// prior sample to compare against and returns 0.
func (r *RateTracker) Update(cumulative uint64, now time.Time) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.at.IsZero() {
		r.prev = cumulative
		r.at = now
		return 0
	}

	elapsed := now.Sub(r.at).Seconds()
	var rate uint64
	if elapsed > 0 && cumulative >= r.prev {
		rate = uint64(float64(cumulative-r.prev) / elapsed)
	}
	r.prev = cumulative
	r.at = now
	return rate
}

// Tunables are the read/write server properties from spec.md §6:
// adaptive-fragmentation window parameters the application may adjust
// at runtime.
type Tunables struct {
	DGramInterval              atomic.Int64 // nanoseconds
	DGramLostMsgCountThreshold atomic.Int32
	DGramDecisionThreshold     atomic.Int32
}

func NewTunables(interval time.Duration, lostThreshold, decisionThreshold int) *Tunables {
	t := &Tunables{}
	t.DGramInterval.Store(int64(interval))
	t.DGramLostMsgCountThreshold.Store(int32(lostThreshold))
	t.DGramDecisionThreshold.Store(int32(decisionThreshold))
	return t
}
