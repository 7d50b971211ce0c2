package config

import (
	"fmt"
	"net"
	"strings"
	"unicode"
)

var validLogLevels = map[string]bool{
	"debug":   true,
	"info":    true,
	"warn":    true,
	"warning": true,
	"error":   true,
}

var validCodecs = map[string]bool{
	"h264": true,
	"h265": true,
	"aac":  true,
	"opus": true,
}

// ValidationResult separates startup-blocking problems from ones that
// can be clamped to a safe value and logged as a warning.
type ValidationResult struct {
	Fatals   []error
	Warnings []error
}

func (r ValidationResult) HasFatals() bool { return len(r.Fatals) > 0 }

// AllErrors returns fatals followed by warnings, for callers that just
// want to log everything found.
func (r ValidationResult) AllErrors() []error {
	all := make([]error, 0, len(r.Fatals)+len(r.Warnings))
	all = append(all, r.Fatals...)
	all = append(all, r.Warnings...)
	return all
}

func (r *ValidationResult) fatal(format string, args ...any) {
	r.Fatals = append(r.Fatals, fmt.Errorf(format, args...))
}

func (r *ValidationResult) warn(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Errorf(format, args...))
}

// ValidateTiered checks the config for invalid values. Malformed listen
// addresses and control characters in the cipher passphrase are fatal —
// they can't be clamped to anything safe. Out-of-range tunables are
// clamped to the nearest safe bound and reported as warnings, mirroring
// how the protocol layer itself self-corrects fragment size at runtime.
func (c *Config) ValidateTiered() ValidationResult {
	var r ValidationResult

	if _, _, err := net.SplitHostPort(c.ListenUDPAddr); err != nil {
		r.fatal("listen_udp_addr %q is not a valid address: %w", c.ListenUDPAddr, err)
	}
	if _, _, err := net.SplitHostPort(c.ListenTCPAddr); err != nil {
		r.fatal("listen_tcp_addr %q is not a valid address: %w", c.ListenTCPAddr, err)
	}

	if c.CipherPassphrase != "" {
		for _, ch := range c.CipherPassphrase {
			if unicode.IsControl(ch) {
				r.fatal("cipher_passphrase contains control characters")
				break
			}
		}
	}

	if c.MaxFragmentSizeFloor < 512 {
		r.warn("max_fragment_size_floor %d is below minimum 512, clamping", c.MaxFragmentSizeFloor)
		c.MaxFragmentSizeFloor = 512
	}
	if c.MaxFragmentSizeCeiling > 65507 {
		r.warn("max_fragment_size_ceiling %d exceeds UDP datagram limit 65507, clamping", c.MaxFragmentSizeCeiling)
		c.MaxFragmentSizeCeiling = 65507
	}
	if c.MaxFragmentSizeCeiling <= c.MaxFragmentSizeFloor {
		r.warn("max_fragment_size_ceiling %d must exceed max_fragment_size_floor %d, resetting ceiling to default",
			c.MaxFragmentSizeCeiling, c.MaxFragmentSizeFloor)
		c.MaxFragmentSizeCeiling = 65507
	}

	if c.DatagramMsgIntervalSeconds < 1 {
		r.warn("datagram_msg_interval_seconds %d is below minimum 1, clamping", c.DatagramMsgIntervalSeconds)
		c.DatagramMsgIntervalSeconds = 1
	} else if c.DatagramMsgIntervalSeconds > 300 {
		r.warn("datagram_msg_interval_seconds %d exceeds maximum 300, clamping", c.DatagramMsgIntervalSeconds)
		c.DatagramMsgIntervalSeconds = 300
	}

	if c.DatagramLostMsgThreshold < 1 {
		r.warn("datagram_lost_msg_threshold %d is below minimum 1, clamping", c.DatagramLostMsgThreshold)
		c.DatagramLostMsgThreshold = 1
	}

	if c.DatagramTurningPointThreshold < 1 {
		r.warn("datagram_turning_point_threshold %d is below minimum 1, clamping", c.DatagramTurningPointThreshold)
		c.DatagramTurningPointThreshold = 1
	}

	if c.DisconnectTimeoutSeconds < 5 {
		r.warn("disconnect_timeout_seconds %d is below minimum 5, clamping", c.DisconnectTimeoutSeconds)
		c.DisconnectTimeoutSeconds = 5
	} else if c.DisconnectTimeoutSeconds > 3600 {
		r.warn("disconnect_timeout_seconds %d exceeds maximum 3600, clamping", c.DisconnectTimeoutSeconds)
		c.DisconnectTimeoutSeconds = 3600
	}

	if c.PreferredCodec != "" && !validCodecs[strings.ToLower(c.PreferredCodec)] {
		r.warn("preferred_codec %q is not a recognized codec name", c.PreferredCodec)
	}

	if c.LogLevel != "" && !validLogLevels[strings.ToLower(c.LogLevel)] {
		r.warn("log_level %q is not valid (use debug, info, warn, error)", c.LogLevel)
	}

	if c.LogFormat != "" && c.LogFormat != "text" && c.LogFormat != "json" {
		r.warn("log_format %q is not valid (use text or json)", c.LogFormat)
	}

	if c.MaxSessions < 1 {
		r.warn("max_sessions %d is below minimum 1, clamping", c.MaxSessions)
		c.MaxSessions = 1
	} else if c.MaxSessions > 4096 {
		r.warn("max_sessions %d exceeds maximum 4096, clamping", c.MaxSessions)
		c.MaxSessions = 4096
	}

	if c.SessionQueueSize < 1 {
		r.warn("session_queue_size %d is below minimum 1, clamping", c.SessionQueueSize)
		c.SessionQueueSize = 1
	} else if c.SessionQueueSize > 65536 {
		r.warn("session_queue_size %d exceeds maximum 65536, clamping", c.SessionQueueSize)
		c.SessionQueueSize = 65536
	}

	return r
}
