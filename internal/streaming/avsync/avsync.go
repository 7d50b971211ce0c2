// Package avsync implements the A/V synchronizer: a running
// video_pts − audio_pts drift estimate over a 100-sample window, drop
// -late-audio policy bounded to 50 consecutive drops, and a
// DesyncToIgnore baseline offset so a single network stall can't
// cause unbounded drift (spec.md §4.8).
package avsync

import (
	"sync"
	"time"

	"github.com/deskstream/streamcore/internal/logging"
	"github.com/deskstream/streamcore/internal/streaming/pipeline"
	"github.com/deskstream/streamcore/internal/streaming/stats"
)

var log = logging.L("avsync")

// WindowSize is the rolling sample count the running mean is computed
// over.
const WindowSize = 100

// DesyncThresholdMs is the running-mean drift, in milliseconds, above
// which audio buffers are dropped.
const DesyncThresholdMs = 80.0

// MaxSeqDroppedAudioPackets bounds consecutive drops before the
// synchronizer gives up chasing the drift and accepts a new baseline.
const MaxSeqDroppedAudioPackets = 50

// Synchronizer has two inputs (video, audio) sharing one lock, per
// spec.md §4.8.
type Synchronizer struct {
	mu sync.Mutex

	lastVideoPts int64
	haveVideo    bool

	window      [WindowSize]float64
	windowLen   int
	windowNext  int
	windowSum   float64

	seqDropped     int
	desyncToIgnore float64 // additive offset, in milliseconds

	videoSink pipeline.Slot
	audioSink pipeline.Slot

	statsBucket *stats.Bucket
}

func New(videoSink, audioSink pipeline.Slot, statsBucket *stats.Bucket) *Synchronizer {
	return &Synchronizer{
		videoSink:   videoSink,
		audioSink:   audioSink,
		statsBucket: statsBucket,
	}
}

// OnVideoInput records the video presentation timestamp, forwards the
// frame to the presenter sink, and publishes latency metrics computed
// from the frame's origin timestamp and the caller-supplied client
// receive time.
func (s *Synchronizer) OnVideoInput(f pipeline.Frame, clientRecvTime time.Time) error {
	s.mu.Lock()
	s.lastVideoPts = f.Pts
	s.haveVideo = true
	s.mu.Unlock()

	if s.statsBucket != nil && f.OriginPts != 0 {
		fullLatency := clientRecvTime.UnixMicro() - f.OriginPts
		s.statsBucket.FullLatencyUs.Store(fullLatency)
		if f.ClientTimestamp != 0 {
			clientLatency := clientRecvTime.UnixMicro() - f.ClientTimestamp
			s.statsBucket.ClientLatencyUs.Store(clientLatency)
		}
	}

	if s.videoSink == nil {
		return nil
	}
	return s.videoSink.SubmitInput(f)
}

// OnAudioInput evaluates the running desync mean and decides whether
// to forward or drop this audio buffer.
func (s *Synchronizer) OnAudioInput(f pipeline.Frame) error {
	s.mu.Lock()

	if !s.haveVideo {
		s.mu.Unlock()
		return s.forwardAudio(f)
	}

	desyncMs := float64(s.lastVideoPts-f.Pts)/1000.0 - s.desyncToIgnore
	s.pushSampleLocked(desyncMs)

	if s.windowLen < WindowSize {
		s.mu.Unlock()
		return s.forwardAudio(f)
	}

	mean := s.windowSum / float64(s.windowLen)
	if s.statsBucket != nil {
		s.statsBucket.AVDesyncUs.Store(int64(mean * 1000))
	}

	if mean <= DesyncThresholdMs {
		s.seqDropped = 0
		s.mu.Unlock()
		return s.forwardAudio(f)
	}

	s.seqDropped++
	if s.seqDropped < MaxSeqDroppedAudioPackets {
		s.mu.Unlock()
		return nil // drop: do not forward
	}

	// Give up chasing the drift: accept it as the new baseline and
	// resume playback with this buffer.
	s.desyncToIgnore += mean
	s.seqDropped = 0
	s.mu.Unlock()

	log.Warn("av-sync baseline reset", "meanDesyncMs", mean)
	return s.forwardAudio(f)
}

func (s *Synchronizer) pushSampleLocked(sampleMs float64) {
	if s.windowLen < WindowSize {
		s.window[s.windowNext] = sampleMs
		s.windowSum += sampleMs
		s.windowLen++
	} else {
		s.windowSum -= s.window[s.windowNext]
		s.window[s.windowNext] = sampleMs
		s.windowSum += sampleMs
	}
	s.windowNext = (s.windowNext + 1) % WindowSize
}

func (s *Synchronizer) forwardAudio(f pipeline.Frame) error {
	if s.audioSink == nil {
		return nil
	}
	return s.audioSink.SubmitInput(f)
}

// ConsecutiveDrops returns the current run of consecutive audio drops,
// for tests and diagnostics.
func (s *Synchronizer) ConsecutiveDrops() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seqDropped
}

// DesyncToIgnore returns the current baseline offset, in milliseconds.
func (s *Synchronizer) DesyncToIgnore() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.desyncToIgnore
}
