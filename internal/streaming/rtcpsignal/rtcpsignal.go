// Package rtcpsignal encodes the control-channel signals (force key
// frame, packet-loss NACK, bandwidth estimate) as real RTCP packets
// instead of a bespoke struct, so any standard RTCP-aware tooling on
// the wire can observe them (spec.md §4.3, §12).
package rtcpsignal

import (
	"fmt"
	"sync"
	"time"

	"github.com/pion/rtcp"

	"github.com/deskstream/streamcore/internal/logging"
)

var log = logging.L("rtcpsignal")

// EncodeForceIDR produces a Picture Loss Indication asking the sender
// to emit a key frame for mediaSSRC (spec.md §4.3, SPEC_FULL §12's
// force-IDR coalescing window).
func EncodeForceIDR(senderSSRC, mediaSSRC uint32) ([]byte, error) {
	pkt := &rtcp.PictureLossIndication{
		SenderSSRC: senderSSRC,
		MediaSSRC:  mediaSSRC,
	}
	return rtcp.Marshal([]rtcp.Packet{pkt})
}

// EncodeNACK produces a Generic NACK listing the missing sequence
// numbers for mediaSSRC.
func EncodeNACK(senderSSRC, mediaSSRC uint32, lost []uint16) ([]byte, error) {
	if len(lost) == 0 {
		return nil, fmt.Errorf("rtcpsignal: EncodeNACK requires at least one sequence number")
	}
	pkt := &rtcp.TransportLayerNack{
		SenderSSRC: senderSSRC,
		MediaSSRC:  mediaSSRC,
		Nacks:      rtcp.NackPairsFromSequenceNumbers(lost),
	}
	return rtcp.Marshal([]rtcp.Packet{pkt})
}

// EncodeREMB produces a Receiver Estimated Maximum Bitrate report used
// to signal downstream congestion back to the sender (spec.md §12's
// adaptive-quality negotiation).
func EncodeREMB(senderSSRC uint32, ssrcs []uint32, bitrate float32) ([]byte, error) {
	pkt := &rtcp.ReceiverEstimatedMaximumBitrate{
		SenderSSRC: senderSSRC,
		Bitrate:    bitrate,
		SSRCs:      ssrcs,
	}
	return rtcp.Marshal([]rtcp.Packet{pkt})
}

// Kind classifies a decoded control signal for the caller's switch.
type Kind int

const (
	KindUnknown Kind = iota
	KindForceIDR
	KindNACK
	KindREMB
)

// Signal is one decoded RTCP control packet with just the fields the
// streaming layer acts on.
type Signal struct {
	Kind   Kind
	NACKs  []uint16
	Bitrate float32
}

// Decode parses a buffer of one or more RTCP packets into Signals,
// skipping packet types this layer doesn't use.
func Decode(buf []byte) ([]Signal, error) {
	pkts, err := rtcp.Unmarshal(buf)
	if err != nil {
		return nil, fmt.Errorf("rtcpsignal: unmarshal: %w", err)
	}

	var out []Signal
	for _, p := range pkts {
		switch v := p.(type) {
		case *rtcp.PictureLossIndication, *rtcp.FullIntraRequest:
			out = append(out, Signal{Kind: KindForceIDR})
		case *rtcp.TransportLayerNack:
			seqs := make([]uint16, 0, len(v.Nacks))
			for _, pair := range v.Nacks {
				seqs = append(seqs, pair.PacketList()...)
			}
			out = append(out, Signal{Kind: KindNACK, NACKs: seqs})
		case *rtcp.ReceiverEstimatedMaximumBitrate:
			out = append(out, Signal{Kind: KindREMB, Bitrate: v.Bitrate})
		}
	}
	return out, nil
}

// ForceIDRCoalescer rate-limits repeated force-key-frame requests
// arriving within a short window into a single request, so a burst of
// NACKs/PLIs from a lossy link doesn't drive the encoder to emit a key
// frame per packet (spec.md §12).
type ForceIDRCoalescer struct {
	window time.Duration

	mu     sync.Mutex
	lastAt time.Time
}

func NewForceIDRCoalescer(window time.Duration) *ForceIDRCoalescer {
	return &ForceIDRCoalescer{window: window}
}

// Admit reports whether this request should pass through to the
// encoder right now, updating the coalescing window's clock when it
// does.
func (c *ForceIDRCoalescer) Admit(now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.lastAt.IsZero() && now.Sub(c.lastAt) < c.window {
		log.Debug("force-idr request coalesced", "since_last", now.Sub(c.lastAt))
		return false
	}
	c.lastAt = now
	return true
}
