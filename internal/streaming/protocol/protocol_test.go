package protocol

import (
	"bytes"
	"testing"
	"time"

	"github.com/deskstream/streamcore/internal/streaming/wire"
)

func TestFragmentAndReassembleRoundTrip(t *testing.T) {
	payload := bytes.Repeat([]byte("x"), 5000)
	frames, err := Fragment(wire.ChannelVideoOut, 7, payload, 1024)
	if err != nil {
		t.Fatalf("Fragment: %v", err)
	}
	if len(frames) < 2 {
		t.Fatalf("expected multiple fragments, got %d", len(frames))
	}

	reasm := NewReassembler(time.Second, 16)
	var got []byte
	var complete bool
	for _, frame := range frames {
		h, p, err := wire.Decode(frame)
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		got, complete = reasm.Add(1, h, p)
	}
	if !complete {
		t.Fatal("expected reassembly to complete after last fragment")
	}
	if !bytes.Equal(got, payload) {
		t.Fatal("reassembled payload does not match original")
	}
}

func TestFragmentSingleMessageNoSplit(t *testing.T) {
	payload := []byte("small")
	frames, err := Fragment(wire.ChannelService, 1, payload, 1024)
	if err != nil {
		t.Fatalf("Fragment: %v", err)
	}
	if len(frames) != 1 {
		t.Fatalf("expected 1 frame, got %d", len(frames))
	}
}

func TestReassemblerOutOfOrderFragments(t *testing.T) {
	payload := bytes.Repeat([]byte("y"), 3000)
	frames, err := Fragment(wire.ChannelVideoOut, 3, payload, 1024)
	if err != nil {
		t.Fatalf("Fragment: %v", err)
	}

	reasm := NewReassembler(time.Second, 16)
	// feed in reverse order
	var got []byte
	var complete bool
	for i := len(frames) - 1; i >= 0; i-- {
		h, p, err := wire.Decode(frames[i])
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		got, complete = reasm.Add(1, h, p)
	}
	if !complete || !bytes.Equal(got, payload) {
		t.Fatal("reassembly should tolerate out-of-order fragment arrival")
	}
}

func TestReassemblerEvictsExpiredIncompleteMessages(t *testing.T) {
	reasm := NewReassembler(10*time.Millisecond, 16)
	h := wire.Header{Version: wire.ProtocolVersion, Channel: wire.ChannelVideoOut, MsgID: 1, FragIdx: 0, FragCnt: 2}
	reasm.Add(1, h, []byte("part1"))
	if reasm.InFlight() != 1 {
		t.Fatal("expected one in-flight message")
	}
	time.Sleep(20 * time.Millisecond)

	// triggers eviction check on next Add with a different key
	h2 := wire.Header{Version: wire.ProtocolVersion, Channel: wire.ChannelVideoOut, MsgID: 2, FragIdx: 0, FragCnt: 1, Flags: wire.FlagLastFragment}
	reasm.Add(1, h2, []byte("other"))

	if reasm.InFlight() != 0 {
		t.Fatalf("expected expired message to be evicted, InFlight = %d", reasm.InFlight())
	}
}

func TestAdaptiveFragmentSizeHalvesOnLoss(t *testing.T) {
	var changes []int
	a := NewAdaptiveFragmentSize(65507, 1024, time.Millisecond, 10, 20, func(n int) {
		changes = append(changes, n)
	})

	for i := 0; i < 10; i++ {
		a.RecordLoss()
	}
	time.Sleep(2 * time.Millisecond)
	a.Tick(time.Now())

	if got := a.Current(); got != 65507/2 {
		t.Fatalf("Current() = %d, want %d", got, 65507/2)
	}
	if len(changes) != 1 || changes[0] != 65507/2 {
		t.Fatalf("onChange callbacks = %v, want [%d]", changes, 65507/2)
	}
}

func TestAdaptiveFragmentSizeRestoresAfterCleanWindows(t *testing.T) {
	a := NewAdaptiveFragmentSize(65507, 1024, time.Millisecond, 10, 3, nil)

	for i := 0; i < 10; i++ {
		a.RecordLoss()
	}
	time.Sleep(2 * time.Millisecond)
	a.Tick(time.Now())
	if a.Current() != 65507/2 {
		t.Fatalf("Current() after loss = %d, want %d", a.Current(), 65507/2)
	}

	for w := 0; w < 3; w++ {
		time.Sleep(2 * time.Millisecond)
		a.Tick(time.Now())
	}
	if a.Current() != 65507 {
		t.Fatalf("Current() after 3 clean windows = %d, want restored to ceiling 65507", a.Current())
	}
}

func TestAdaptiveFragmentSizeClampsToFloor(t *testing.T) {
	a := NewAdaptiveFragmentSize(2000, 1800, time.Millisecond, 1, 20, nil)
	a.RecordLoss()
	time.Sleep(2 * time.Millisecond)
	a.Tick(time.Now())
	if got := a.Current(); got != 1800 {
		t.Fatalf("Current() = %d, want clamped to floor 1800", got)
	}
}

func TestRetransmitCachePutGet(t *testing.T) {
	c := NewRetransmitCache(time.Second, 1<<20)
	frame := []byte("fragment-bytes")
	c.Put(5, 0, frame)

	got, ok := c.Get(5, 0)
	if !ok || !bytes.Equal(got, frame) {
		t.Fatal("expected to retrieve previously cached fragment")
	}

	if _, ok := c.Get(5, 1); ok {
		t.Fatal("expected miss for fragment never cached")
	}
}

func TestRetransmitCacheEvictsByAge(t *testing.T) {
	c := NewRetransmitCache(5*time.Millisecond, 1<<20)
	c.Put(1, 0, []byte("old"))
	time.Sleep(10 * time.Millisecond)
	c.Put(2, 0, []byte("new"))

	if _, ok := c.Get(1, 0); ok {
		t.Fatal("expected aged-out entry to be evicted")
	}
	if _, ok := c.Get(2, 0); !ok {
		t.Fatal("expected fresh entry to still be present")
	}
}

func TestRetransmitCacheEvictsByBytes(t *testing.T) {
	c := NewRetransmitCache(time.Hour, 10)
	c.Put(1, 0, bytes.Repeat([]byte("a"), 6))
	c.Put(2, 0, bytes.Repeat([]byte("b"), 6))

	if c.Len() != 1 {
		t.Fatalf("Len() = %d, want 1 after byte-budget eviction", c.Len())
	}
	if _, ok := c.Get(1, 0); ok {
		t.Fatal("oldest entry should have been evicted for byte budget")
	}
}
