package config

import (
	"fmt"
	"strings"
	"testing"
)

func TestValidateTieredBadListenAddrIsFatal(t *testing.T) {
	cfg := Default()
	cfg.ListenUDPAddr = "not-an-address"
	result := cfg.ValidateTiered()
	if !result.HasFatals() {
		t.Fatal("malformed listen_udp_addr should be fatal")
	}
}

func TestValidateTieredBadTCPListenAddrIsFatal(t *testing.T) {
	cfg := Default()
	cfg.ListenTCPAddr = "also-not-an-address"
	result := cfg.ValidateTiered()
	if !result.HasFatals() {
		t.Fatal("malformed listen_tcp_addr should be fatal")
	}
}

func TestValidateTieredControlCharsInPassphraseIsFatal(t *testing.T) {
	cfg := Default()
	cfg.CipherPassphrase = "hunter2\x00\x01"
	result := cfg.ValidateTiered()
	if !result.HasFatals() {
		t.Fatal("control chars in cipher_passphrase should be fatal")
	}
}

func TestValidateTieredFragmentFloorClampingIsWarning(t *testing.T) {
	cfg := Default()
	cfg.MaxFragmentSizeFloor = 16 // below minimum 512
	result := cfg.ValidateTiered()

	if result.HasFatals() {
		t.Fatalf("clamped fragment floor should be warning, not fatal: %v", result.Fatals)
	}
	if len(result.Warnings) == 0 {
		t.Fatal("expected warning for clamped fragment floor")
	}
	if cfg.MaxFragmentSizeFloor != 512 {
		t.Fatalf("MaxFragmentSizeFloor = %d, want 512 (clamped)", cfg.MaxFragmentSizeFloor)
	}
}

func TestValidateTieredFragmentCeilingClampingIsWarning(t *testing.T) {
	cfg := Default()
	cfg.MaxFragmentSizeCeiling = 999999
	result := cfg.ValidateTiered()
	if result.HasFatals() {
		t.Fatalf("clamped fragment ceiling should be warning, not fatal: %v", result.Fatals)
	}
	if cfg.MaxFragmentSizeCeiling != 65507 {
		t.Fatalf("MaxFragmentSizeCeiling = %d, want 65507 (clamped)", cfg.MaxFragmentSizeCeiling)
	}
}

func TestValidateTieredFragmentCeilingBelowFloorResets(t *testing.T) {
	cfg := Default()
	cfg.MaxFragmentSizeFloor = 4096
	cfg.MaxFragmentSizeCeiling = 2048
	result := cfg.ValidateTiered()
	if result.HasFatals() {
		t.Fatalf("ceiling-below-floor should be warning, not fatal: %v", result.Fatals)
	}
	if cfg.MaxFragmentSizeCeiling != 65507 {
		t.Fatalf("MaxFragmentSizeCeiling = %d, want reset to 65507", cfg.MaxFragmentSizeCeiling)
	}
}

func TestValidateTieredDatagramIntervalClamping(t *testing.T) {
	cfg := Default()
	cfg.DatagramMsgIntervalSeconds = 0
	result := cfg.ValidateTiered()
	if result.HasFatals() {
		t.Fatalf("clamped datagram interval should be warning: %v", result.Fatals)
	}
	if cfg.DatagramMsgIntervalSeconds != 1 {
		t.Fatalf("DatagramMsgIntervalSeconds = %d, want 1", cfg.DatagramMsgIntervalSeconds)
	}
}

func TestValidateTieredDisconnectTimeoutClamping(t *testing.T) {
	cfg := Default()
	cfg.DisconnectTimeoutSeconds = 0
	cfg.DisconnectTimeoutSeconds = 0
	result := cfg.ValidateTiered()
	if result.HasFatals() {
		t.Fatalf("clamped disconnect timeout should be warning: %v", result.Fatals)
	}
	if cfg.DisconnectTimeoutSeconds != 5 {
		t.Fatalf("DisconnectTimeoutSeconds = %d, want 5", cfg.DisconnectTimeoutSeconds)
	}
}

func TestValidateTieredSessionLimitClamping(t *testing.T) {
	cfg := Default()
	cfg.MaxSessions = 0
	cfg.SessionQueueSize = 0
	result := cfg.ValidateTiered()
	if result.HasFatals() {
		t.Fatalf("clamped session limits should be warning: %v", result.Fatals)
	}
	if cfg.MaxSessions != 1 {
		t.Fatalf("MaxSessions = %d, want 1", cfg.MaxSessions)
	}
	if cfg.SessionQueueSize != 1 {
		t.Fatalf("SessionQueueSize = %d, want 1", cfg.SessionQueueSize)
	}
}

func TestValidateTieredUnknownCodecIsWarning(t *testing.T) {
	cfg := Default()
	cfg.PreferredCodec = "bogus_codec"
	result := cfg.ValidateTiered()
	if result.HasFatals() {
		t.Fatal("unknown codec should not be fatal")
	}
	found := false
	for _, err := range result.Warnings {
		if strings.Contains(err.Error(), "bogus_codec") {
			found = true
		}
	}
	if !found {
		t.Fatal("expected warning about unrecognized codec")
	}
}

func TestValidateTieredUnknownLogLevelIsWarning(t *testing.T) {
	cfg := Default()
	cfg.LogLevel = "verbose"
	result := cfg.ValidateTiered()
	if result.HasFatals() {
		t.Fatal("unknown log level should not be fatal")
	}
	if len(result.Warnings) == 0 {
		t.Fatal("expected warning for unknown log level")
	}
}

func TestValidateTieredInvalidLogFormatIsWarning(t *testing.T) {
	cfg := Default()
	cfg.LogFormat = "xml"
	result := cfg.ValidateTiered()
	if result.HasFatals() {
		t.Fatal("invalid log format should not be fatal")
	}
	if len(result.Warnings) == 0 {
		t.Fatal("expected warning for invalid log format")
	}
}

func TestHasFatals(t *testing.T) {
	r := ValidationResult{}
	if r.HasFatals() {
		t.Fatal("HasFatals() on empty result should be false")
	}
	r.Fatals = append(r.Fatals, fmt.Errorf("test error"))
	if !r.HasFatals() {
		t.Fatal("HasFatals() should be true with a fatal error")
	}
}

func TestAllErrorsReturnsBoth(t *testing.T) {
	cfg := Default()
	cfg.ListenUDPAddr = "bad"        // fatal
	cfg.PreferredCodec = "bogus_codec" // warning
	result := cfg.ValidateTiered()

	all := result.AllErrors()
	if len(all) < 2 {
		t.Fatalf("AllErrors() returned %d errors, expected at least 2 (fatals + warnings)", len(all))
	}
}

func TestValidConfigHasNoErrors(t *testing.T) {
	cfg := Default()
	result := cfg.ValidateTiered()
	if result.HasFatals() {
		t.Fatalf("valid config has fatals: %v", result.Fatals)
	}
	if len(result.Warnings) > 0 {
		t.Fatalf("valid config has warnings: %v", result.Warnings)
	}
}
