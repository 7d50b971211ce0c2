// Package openh264 provides a software VideoEncodeEngine/
// VideoDecodeEngine plugin on top of github.com/y9o/go-openh264 — the
// core pipeline never imports this package directly, it is registered
// by the cmd/streamd host the same way LanternOps-breeze registers a
// hardware encoder factory (spec.md §11).
package openh264

import (
	"fmt"

	goh264 "github.com/y9o/go-openh264"

	"github.com/deskstream/streamcore/internal/logging"
	"github.com/deskstream/streamcore/internal/streaming/pipeline"
)

var log = logging.L("engine/openh264")

// EncoderParams configures the software encoder.
type EncoderParams struct {
	Width     int
	Height    int
	BitrateBps int
	FPS       int
}

// Encoder adapts goh264's encoder to pipeline.Engine.
type Encoder struct {
	enc     *goh264.Encoder
	seq     uint32
	pending []pipeline.Frame
}

// NewEncoder constructs a software H.264 encoder engine. Returns an
// error if the underlying openh264 encoder can't be initialized (e.g.
// the shared library isn't available on this host).
func NewEncoder(p EncoderParams) (*Encoder, error) {
	enc, err := goh264.NewEncoder(p.Width, p.Height, p.BitrateBps, p.FPS)
	if err != nil {
		return nil, fmt.Errorf("engine/openh264: new encoder: %w", err)
	}
	return &Encoder{enc: enc}, nil
}

// SubmitInput encodes one raw frame's subframe payload (expected to be
// a single YUV420 buffer) and buffers the resulting NAL units for
// QueryOutput.
func (e *Encoder) SubmitInput(f pipeline.Frame) (pipeline.EngineStatus, error) {
	if len(f.Subframes) == 0 {
		return pipeline.EngineNeedMoreInput, nil
	}
	nals, err := e.enc.Encode(f.Subframes[0].Data)
	if err != nil {
		return pipeline.EngineOK, fmt.Errorf("engine/openh264: encode: %w", err)
	}
	if len(nals) == 0 {
		return pipeline.EngineNeedMoreInput, nil
	}

	out := pipeline.Frame{
		StreamID:       f.StreamID,
		Pts:            f.Pts,
		OriginPts:      f.OriginPts,
		SequenceNumber: e.seq,
		Discontinuity:  f.Discontinuity,
	}
	e.seq++
	for _, nal := range nals {
		out.Subframes = append(out.Subframes, pipeline.Subframe{
			Type: subframeTypeOf(nal),
			Data: nal,
		})
	}
	e.pending = append(e.pending, out)
	return pipeline.EngineOK, nil
}

// QueryOutput drains one buffered encoded frame, if any.
func (e *Encoder) QueryOutput() (pipeline.Frame, bool, error) {
	if len(e.pending) == 0 {
		return pipeline.Frame{}, false, nil
	}
	f := e.pending[0]
	e.pending = e.pending[1:]
	return f, true, nil
}

// Flush releases the encoder's internal buffering; the software
// encoder has none beyond e.pending, which is already drained by
// QueryOutput.
func (e *Encoder) Flush() error { return nil }

// Close releases the underlying encoder's native resources.
func (e *Encoder) Close() error {
	return e.enc.Close()
}

// Decoder adapts goh264's decoder to pipeline.Engine.
type Decoder struct {
	dec     *goh264.Decoder
	pending []pipeline.Frame
}

// NewDecoder constructs a software H.264 decoder engine.
func NewDecoder() (*Decoder, error) {
	dec, err := goh264.NewDecoder()
	if err != nil {
		return nil, fmt.Errorf("engine/openh264: new decoder: %w", err)
	}
	return &Decoder{dec: dec}, nil
}

// SubmitInput decodes one NAL-bearing frame and buffers the decoded
// picture, if the decoder produced one (it may need several NALs
// before emitting a picture, e.g. waiting on the next IDR).
func (d *Decoder) SubmitInput(f pipeline.Frame) (pipeline.EngineStatus, error) {
	for _, sf := range f.Subframes {
		yuv, w, h, err := d.dec.Decode(sf.Data)
		if err != nil {
			log.Debug("decode error, dropping subframe", "err", err)
			continue
		}
		if yuv == nil {
			continue
		}
		d.pending = append(d.pending, pipeline.Frame{
			StreamID:       f.StreamID,
			Pts:            f.Pts,
			OriginPts:      f.OriginPts,
			SequenceNumber: f.SequenceNumber,
			Discontinuity:  f.Discontinuity,
			Subframes: []pipeline.Subframe{{
				Type: pipeline.SubframeI,
				Data: yuv,
			}},
		})
		_ = w
		_ = h
	}
	if len(d.pending) == 0 {
		return pipeline.EngineNeedMoreInput, nil
	}
	return pipeline.EngineOK, nil
}

// QueryOutput drains one buffered decoded picture, if any.
func (d *Decoder) QueryOutput() (pipeline.Frame, bool, error) {
	if len(d.pending) == 0 {
		return pipeline.Frame{}, false, nil
	}
	f := d.pending[0]
	d.pending = d.pending[1:]
	return f, true, nil
}

func (d *Decoder) Flush() error { return nil }

// Close releases the underlying decoder's native resources.
func (d *Decoder) Close() error {
	return d.dec.Close()
}

// subframeTypeOf classifies a raw NAL unit as IDR/I/P by inspecting
// its NAL unit type byte, matching the H.264 Annex-B nal_unit_type
// field (lower 5 bits of the first byte after a start code).
func subframeTypeOf(nal []byte) pipeline.SubframeType {
	if len(nal) == 0 {
		return pipeline.SubframeUnknown
	}
	switch nal[0] & 0x1f {
	case 5:
		return pipeline.SubframeIDR
	case 1:
		return pipeline.SubframeP
	default:
		return pipeline.SubframeI
	}
}

var (
	_ pipeline.Engine = (*Encoder)(nil)
	_ pipeline.Engine = (*Decoder)(nil)
)
