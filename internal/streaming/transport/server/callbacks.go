package server

import (
	"github.com/deskstream/streamcore/internal/streaming/session"
	"github.com/deskstream/streamcore/internal/streaming/wire"
)

// DiscoveryVerdict is the caller's answer to an incoming DISCOVERY
// broadcast. Only Accept shapes the reply: the server answers with the
// HelloOK or HelloRefused opcode alone, and StreamDescriptors and
// Capabilities are not sent.
type DiscoveryVerdict struct {
	Accept            bool
	StreamDescriptors []StreamDescriptor
	Capabilities      ServerCapabilities
}

// StreamDescriptor describes one stream the server can subscribe a
// client onto.
type StreamDescriptor struct {
	StreamID int32
	Name     string
	Codec    string
}

// ServerCapabilities describes codec/resolution/frame-rate support; the
// DISCOVERY reply does not carry it (see DiscoveryVerdict).
type ServerCapabilities struct {
	Codecs      []string
	Resolutions []string
	FrameRates  []int
}

// Callbacks is the set of application hooks the server transport
// invokes at each point spec.md §4.3 names. Every field is optional;
// a nil hook is treated as "accept"/"no-op" for the boolean ones.
type Callbacks struct {
	AuthorizeDiscoveryRequest  func(deviceID string) DiscoveryVerdict
	AuthorizeConnectionRequest func(deviceID, peerAddr string) bool

	OnConnected    func(s *session.Subscriber)
	OnDisconnected func(s *session.Subscriber, reason session.TerminateReason)

	OnVideoStreamSubscribed   func(s *session.Subscriber, streamID int32)
	OnVideoStreamUnsubscribed func(s *session.Subscriber, streamID int32)

	OnNack                    func(s *session.Subscriber, ch wire.Channel, msgID uint32, fragIdx uint16)
	OnForceIDRRequest         func(streamID int32)
	OnBitrateChangeRequest    func(s *session.Subscriber, bps int64)
	OnFramerateChangeRequest  func(s *session.Subscriber, fps int)
	OnResolutionChangeRequest func(s *session.Subscriber, width, height int)
	OnBandwidthEstimate       func(s *session.Subscriber, bps uint64)

	// OnInputEvent fires for every keyboard key transition, including
	// the release pass KeyboardController.Disconnect runs when a
	// subscriber drops with keys still held (spec.md §4.10).
	OnInputEvent func(s *session.Subscriber, keyCode int64, down bool)
}
