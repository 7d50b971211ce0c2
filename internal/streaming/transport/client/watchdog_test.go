package client

import (
	"testing"
	"time"
)

func TestWatchdogNoGapNeverRequests(t *testing.T) {
	w := newFrameWatchdog()
	now := time.Unix(0, 0)
	for seq := uint32(0); seq < 10; seq++ {
		if w.Observe(seq, now) {
			t.Fatalf("unexpected key-frame request at seq %d with no gap", seq)
		}
		now = now.Add(16 * time.Millisecond)
	}
}

func TestWatchdogPersistentGapRequestsAfterTimeout(t *testing.T) {
	w := newFrameWatchdog()
	now := time.Unix(0, 0)

	if w.Observe(0, now) {
		t.Fatal("unexpected request on first frame")
	}
	now = now.Add(10 * time.Millisecond)
	// seq 1 missing; seq 2 arrives, opening the gap.
	if w.Observe(2, now) {
		t.Fatal("unexpected request immediately on gap open")
	}

	now = now.Add(w.gapTimeout + time.Millisecond)
	if !w.Observe(2, now) {
		t.Fatal("expected key-frame request once gap persists past timeout")
	}
}

func TestWatchdogCooldownSuppressesRepeatRequests(t *testing.T) {
	w := newFrameWatchdog()
	base := time.Unix(100, 0)
	w.Observe(0, base)
	w.Observe(5, base.Add(time.Millisecond))

	t1 := base.Add(w.gapTimeout + 2*time.Millisecond)
	if !w.Observe(5, t1) {
		t.Fatal("expected first key-frame request")
	}

	// A fresh gap opens right after, still inside the cooldown window.
	w.Observe(20, t1.Add(time.Millisecond))
	t2 := t1.Add(w.gapTimeout + 2*time.Millisecond)
	if w.Observe(20, t2) {
		t.Fatal("expected cooldown to suppress a request for a gap opened inside the cooldown window")
	}

	// Once the cooldown has fully elapsed, the next persisting gap may
	// request again.
	t3 := t1.Add(w.requestCooldown + w.gapTimeout + 2*time.Millisecond)
	if !w.Observe(20, t3) {
		t.Fatal("expected a new request once the cooldown window has elapsed")
	}
}

func TestWatchdogSetIsPerStream(t *testing.T) {
	s := newWatchdogSet()
	a := s.forStream(1)
	b := s.forStream(2)
	if a == b {
		t.Fatal("expected distinct watchdogs per stream")
	}
	if s.forStream(1) != a {
		t.Fatal("expected forStream to return the same watchdog on repeat calls")
	}
}
