package avsync

import (
	"sync"
	"testing"
	"time"

	"github.com/deskstream/streamcore/internal/streaming/pipeline"
	"github.com/deskstream/streamcore/internal/streaming/stats"
)

func countingSink(counter *int, mu *sync.Mutex) pipeline.Slot {
	s := pipeline.NewSinkSlot(func(pipeline.Frame) error {
		mu.Lock()
		*counter++
		mu.Unlock()
		return nil
	})
	s.Start()
	return s
}

func TestOnVideoInputForwardsAndPublishesLatency(t *testing.T) {
	var videoCount int
	var mu sync.Mutex
	bucket := stats.NewBucket()
	sync_ := New(countingSink(&videoCount, &mu), nil, bucket)

	now := time.Now()
	f := pipeline.Frame{Pts: 16000, OriginPts: now.Add(-20 * time.Millisecond).UnixMicro()}
	if err := sync_.OnVideoInput(f, now); err != nil {
		t.Fatalf("OnVideoInput: %v", err)
	}

	mu.Lock()
	n := videoCount
	mu.Unlock()
	if n != 1 {
		t.Fatalf("video sink received %d frames, want 1", n)
	}
	if bucket.FullLatencyUs.Load() <= 0 {
		t.Fatal("expected FullLatencyUs to be populated")
	}
}

func TestAudioBeforeWindowFullAlwaysForwards(t *testing.T) {
	var audioCount int
	var mu sync.Mutex
	s := New(nil, countingSink(&audioCount, &mu), nil)
	s.OnVideoInput(pipeline.Frame{Pts: 100000}, time.Now())

	for i := 0; i < WindowSize-1; i++ {
		if err := s.OnAudioInput(pipeline.Frame{Pts: 0}); err != nil {
			t.Fatalf("OnAudioInput: %v", err)
		}
	}

	mu.Lock()
	n := audioCount
	mu.Unlock()
	if n != WindowSize-1 {
		t.Fatalf("audio forwarded = %d, want %d before window fills", n, WindowSize-1)
	}
}

func TestAudioDropsNoMoreThan50ConsecutiveThenResetsBaseline(t *testing.T) {
	var audioCount int
	var mu sync.Mutex
	s := New(nil, countingSink(&audioCount, &mu), nil)
	// 100ms of desync (well above the 80ms threshold) on every sample.
	s.OnVideoInput(pipeline.Frame{Pts: 100000}, time.Now())

	totalCalls := WindowSize - 1 + MaxSeqDroppedAudioPackets
	for i := 0; i < totalCalls; i++ {
		if err := s.OnAudioInput(pipeline.Frame{Pts: 0}); err != nil {
			t.Fatalf("OnAudioInput: %v", err)
		}
	}

	mu.Lock()
	forwarded := audioCount
	mu.Unlock()

	wantForwarded := (WindowSize - 1) + 1 // fill phase + the baseline-reset resume frame
	if forwarded != wantForwarded {
		t.Fatalf("forwarded = %d, want %d", forwarded, wantForwarded)
	}
	if s.ConsecutiveDrops() != 0 {
		t.Fatalf("ConsecutiveDrops() = %d, want 0 after baseline reset", s.ConsecutiveDrops())
	}
	if s.DesyncToIgnore() <= 0 {
		t.Fatal("expected DesyncToIgnore to have accumulated a positive baseline")
	}
}

func TestAudioResumesForwardingWhenDriftRecovers(t *testing.T) {
	var audioCount int
	var mu sync.Mutex
	s := New(nil, countingSink(&audioCount, &mu), nil)
	s.OnVideoInput(pipeline.Frame{Pts: 100000}, time.Now())

	for i := 0; i < WindowSize; i++ {
		s.OnAudioInput(pipeline.Frame{Pts: 0}) // desync 100ms, triggers drops after window fills
	}
	if s.ConsecutiveDrops() == 0 {
		t.Fatal("expected at least one drop before recovery")
	}

	mu.Lock()
	before := audioCount
	mu.Unlock()

	// Now feed in-sync audio so the running mean falls back under 80ms.
	for i := 0; i < WindowSize; i++ {
		s.OnVideoInput(pipeline.Frame{Pts: int64(100000 + i*16000)}, time.Now())
		s.OnAudioInput(pipeline.Frame{Pts: int64(100000 + i*16000)})
	}

	mu.Lock()
	after := audioCount
	mu.Unlock()
	if after <= before {
		t.Fatal("expected audio to resume forwarding once drift recovered under threshold")
	}
	if s.ConsecutiveDrops() != 0 {
		t.Fatalf("ConsecutiveDrops() = %d, want 0 once mean is back under threshold", s.ConsecutiveDrops())
	}
}
