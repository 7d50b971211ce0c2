package wire

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
)

// MediaKind tags whether a ChannelVideoOut/ChannelAudioOut payload is a
// per-frame buffer or an init block announcing a codec/geometry change
// the receiver must reinitialize for (spec.md §4.6/§4.7). The server's
// init-gating rule (send the frame once the subscriber's acked InitID
// matches, otherwise resend the init block) needs this tag so the
// client can tell the two apart on the wire.
type MediaKind uint8

const (
	MediaKindFrame MediaKind = iota
	MediaKindVideoInit
	MediaKindAudioInit
)

// MediaFrameHeader is the fixed binary header prefixing every
// MediaKindFrame payload (spec.md §3's TransmittableFrame fields).
type MediaFrameHeader struct {
	StreamID       int32
	SequenceNumber uint32
	Pts            int64
	OriginPts      int64
	Discontinuity  bool
	ColorRangeFull bool
}

const mediaFrameHeaderSize = 4 + 4 + 8 + 8 + 1

// EncodeMediaFrame prefixes data with the MediaKindFrame tag and h's
// binary fields.
func EncodeMediaFrame(h MediaFrameHeader, data []byte) []byte {
	buf := make([]byte, 1+mediaFrameHeaderSize+len(data))
	buf[0] = byte(MediaKindFrame)
	b := buf[1:]
	binary.BigEndian.PutUint32(b[0:4], uint32(h.StreamID))
	binary.BigEndian.PutUint32(b[4:8], h.SequenceNumber)
	binary.BigEndian.PutUint64(b[8:16], uint64(h.Pts))
	binary.BigEndian.PutUint64(b[16:24], uint64(h.OriginPts))
	var flags byte
	if h.Discontinuity {
		flags |= 1
	}
	if h.ColorRangeFull {
		flags |= 2
	}
	b[24] = flags
	copy(b[mediaFrameHeaderSize:], data)
	return buf
}

// DecodeMediaFrame parses a MediaKindFrame payload, returning the
// header and the remaining subframe bytes (aliasing payload).
func DecodeMediaFrame(payload []byte) (MediaFrameHeader, []byte, error) {
	if len(payload) < 1+mediaFrameHeaderSize {
		return MediaFrameHeader{}, nil, errors.New("wire: media frame shorter than header")
	}
	if MediaKind(payload[0]) != MediaKindFrame {
		return MediaFrameHeader{}, nil, fmt.Errorf("wire: expected media frame, got kind %d", payload[0])
	}
	b := payload[1:]
	h := MediaFrameHeader{
		StreamID:       int32(binary.BigEndian.Uint32(b[0:4])),
		SequenceNumber: binary.BigEndian.Uint32(b[4:8]),
		Pts:            int64(binary.BigEndian.Uint64(b[8:16])),
		OriginPts:      int64(binary.BigEndian.Uint64(b[16:24])),
		Discontinuity:  b[24]&1 != 0,
		ColorRangeFull: b[24]&2 != 0,
	}
	return h, b[mediaFrameHeaderSize:], nil
}

// PeekMediaKind reads the leading kind byte of a ChannelVideoOut/
// ChannelAudioOut payload without otherwise parsing it.
func PeekMediaKind(payload []byte) (MediaKind, error) {
	if len(payload) == 0 {
		return 0, errors.New("wire: empty media payload")
	}
	return MediaKind(payload[0]), nil
}

// VideoInitMessage announces a codec/geometry/bit-depth change the
// video receiver pipeline must reinitialize for (spec.md §4.6).
type VideoInitMessage struct {
	Codec          string `json:"codec"`
	InitID         int64  `json:"initId"`
	Width          int    `json:"width"`
	Height         int    `json:"height"`
	ViewportWidth  int    `json:"viewportWidth"`
	ViewportHeight int    `json:"viewportHeight"`
	BitDepth       int    `json:"bitDepth"`
	InitBlock      []byte `json:"initBlock"`
}

func EncodeVideoInit(m VideoInitMessage) ([]byte, error) {
	body, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("wire: encode video init: %w", err)
	}
	return append([]byte{byte(MediaKindVideoInit)}, body...), nil
}

func DecodeVideoInit(payload []byte) (VideoInitMessage, error) {
	if len(payload) == 0 || MediaKind(payload[0]) != MediaKindVideoInit {
		return VideoInitMessage{}, errors.New("wire: not a video init message")
	}
	var m VideoInitMessage
	if err := json.Unmarshal(payload[1:], &m); err != nil {
		return VideoInitMessage{}, fmt.Errorf("wire: decode video init: %w", err)
	}
	return m, nil
}

// AudioInitMessage announces an audio codec/initID change (spec.md
// §4.7).
type AudioInitMessage struct {
	Codec         string `json:"codec"`
	InitID        int64  `json:"initId"`
	Channels      int    `json:"channels"`
	SampleRate    int    `json:"sampleRate"`
	ChannelLayout string `json:"channelLayout"`
	InitBlock     []byte `json:"initBlock"`
}

func EncodeAudioInit(m AudioInitMessage) ([]byte, error) {
	body, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("wire: encode audio init: %w", err)
	}
	return append([]byte{byte(MediaKindAudioInit)}, body...), nil
}

func DecodeAudioInit(payload []byte) (AudioInitMessage, error) {
	if len(payload) == 0 || MediaKind(payload[0]) != MediaKindAudioInit {
		return AudioInitMessage{}, errors.New("wire: not an audio init message")
	}
	var m AudioInitMessage
	if err := json.Unmarshal(payload[1:], &m); err != nil {
		return AudioInitMessage{}, fmt.Errorf("wire: decode audio init: %w", err)
	}
	return m, nil
}
