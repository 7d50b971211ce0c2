package stats

import "testing"

func TestBucketAtomicFieldsReadable(t *testing.T) {
	b := NewBucket()
	b.FullLatencyUs.Store(15000)
	b.BandwidthTotalOut.Store(1 << 20)

	if got := b.FullLatencyUs.Load(); got != 15000 {
		t.Fatalf("FullLatencyUs = %d, want 15000", got)
	}
	if got := b.BandwidthTotalOut.Load(); got != 1<<20 {
		t.Fatalf("BandwidthTotalOut = %d, want %d", got, 1<<20)
	}
}

func TestBucketExtensions(t *testing.T) {
	b := NewBucket()
	if _, ok := b.Extension("custom"); ok {
		t.Fatal("expected no extension set")
	}
	b.SetExtension("custom", 42)
	v, ok := b.Extension("custom")
	if !ok || v != 42 {
		t.Fatalf("Extension(custom) = %v, %v; want 42, true", v, ok)
	}
}

func TestMarkUpdatedAdvancesTimestamps(t *testing.T) {
	b := NewBucket()
	before := b.StatsUpdateTime()
	b.MarkUpdated()
	after := b.StatsUpdateTime()
	if after.Before(before) {
		t.Fatal("MarkUpdated should not move the timestamp backwards")
	}
}

func TestNewTunablesDefaults(t *testing.T) {
	tun := NewTunables(0, 10, 20)
	if got := tun.DGramLostMsgCountThreshold.Load(); got != 10 {
		t.Fatalf("DGramLostMsgCountThreshold = %d, want 10", got)
	}
	if got := tun.DGramDecisionThreshold.Load(); got != 20 {
		t.Fatalf("DGramDecisionThreshold = %d, want 20", got)
	}
}
