// Package wire defines the on-the-wire fragment header and channel/opcode
// vocabulary shared by every transport (UDP datagram, TCP stream,
// websocket-tunneled stream).
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// HeaderSize is the fixed length of a fragment header, in bytes:
// ver(1) + channel(1) + msgID(4) + fragIdx(2) + fragCnt(2) + flags(2).
const HeaderSize = 12

// ProtocolVersion is the only wire version this module speaks.
const ProtocolVersion = 1

var (
	ErrShortHeader      = errors.New("wire: fragment shorter than header")
	ErrUnsupportedVer   = errors.New("wire: unsupported protocol version")
	ErrFragmentTooLarge = errors.New("wire: payload exceeds negotiated fragment size")
)

// Flag bits in the fragment header.
const (
	FlagLastFragment uint16 = 1 << 0
)

// Channel is the enumerated destination tag carried on every message.
type Channel uint8

const (
	ChannelService Channel = iota
	ChannelVideoOut
	ChannelAudioOut
	ChannelVideoIn
	ChannelAudioIn
	ChannelSensorsOut
	ChannelSensorsIn
	ChannelMiscOut
	ChannelUserDefined
)

func (c Channel) String() string {
	switch c {
	case ChannelService:
		return "service"
	case ChannelVideoOut:
		return "video-out"
	case ChannelAudioOut:
		return "audio-out"
	case ChannelVideoIn:
		return "video-in"
	case ChannelAudioIn:
		return "audio-in"
	case ChannelSensorsOut:
		return "sensors-out"
	case ChannelSensorsIn:
		return "sensors-in"
	case ChannelMiscOut:
		return "misc-out"
	case ChannelUserDefined:
		return "user-defined"
	default:
		return fmt.Sprintf("channel(%d)", uint8(c))
	}
}

// Opcode is the one-byte tag leading every payload on ChannelService.
type Opcode uint8

const (
	OpDiscovery Opcode = iota
	OpHello
	OpHelloOK
	OpHelloRefused
	OpStats
	OpForceIDR
	OpServerStat
	OpTurnaroundLatency
	OpSubscribe
	OpUnsubscribe
	OpNack
	OpBandwidthEstimate
	OpFragmentSizeChange
	OpResolutionChangeRequest
	OpBitrateChangeRequest
	OpFramerateChangeRequest
	OpGoodbye
)

// Header is the parsed form of a fragment header.
type Header struct {
	Version  uint8
	Channel  Channel
	MsgID    uint32
	FragIdx  uint16
	FragCnt  uint16
	Flags    uint16
}

func (h Header) Last() bool { return h.Flags&FlagLastFragment != 0 }

// Encode writes the header followed by payload into a freshly allocated
// buffer sized exactly HeaderSize+len(payload).
func Encode(h Header, payload []byte) []byte {
	buf := make([]byte, HeaderSize+len(payload))
	buf[0] = h.Version
	buf[1] = uint8(h.Channel)
	binary.BigEndian.PutUint32(buf[2:6], h.MsgID)
	binary.BigEndian.PutUint16(buf[6:8], h.FragIdx)
	binary.BigEndian.PutUint16(buf[8:10], h.FragCnt)
	binary.BigEndian.PutUint16(buf[10:12], h.Flags)
	copy(buf[HeaderSize:], payload)
	return buf
}

// Decode parses a fragment header from the front of buf and returns the
// header plus the remaining payload slice (which aliases buf).
func Decode(buf []byte) (Header, []byte, error) {
	if len(buf) < HeaderSize {
		return Header{}, nil, ErrShortHeader
	}
	h := Header{
		Version: buf[0],
		Channel: Channel(buf[1]),
		MsgID:   binary.BigEndian.Uint32(buf[2:6]),
		FragIdx: binary.BigEndian.Uint16(buf[6:8]),
		FragCnt: binary.BigEndian.Uint16(buf[8:10]),
		Flags:   binary.BigEndian.Uint16(buf[10:12]),
	}
	if h.Version != ProtocolVersion {
		return Header{}, nil, fmt.Errorf("%w: got %d", ErrUnsupportedVer, h.Version)
	}
	return h, buf[HeaderSize:], nil
}
