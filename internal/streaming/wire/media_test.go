package wire

import "testing"

func TestEncodeDecodeMediaFrameRoundTrip(t *testing.T) {
	h := MediaFrameHeader{
		StreamID:       3,
		SequenceNumber: 99,
		Pts:            123456,
		OriginPts:      123000,
		Discontinuity:  true,
		ColorRangeFull: true,
	}
	buf := EncodeMediaFrame(h, []byte("nal-bytes"))

	kind, err := PeekMediaKind(buf)
	if err != nil || kind != MediaKindFrame {
		t.Fatalf("PeekMediaKind() = %v, %v, want MediaKindFrame", kind, err)
	}

	got, body, err := DecodeMediaFrame(buf)
	if err != nil {
		t.Fatalf("DecodeMediaFrame: %v", err)
	}
	if got != h {
		t.Fatalf("DecodeMediaFrame() header = %+v, want %+v", got, h)
	}
	if string(body) != "nal-bytes" {
		t.Fatalf("body = %q, want %q", body, "nal-bytes")
	}
}

func TestEncodeDecodeVideoInitRoundTrip(t *testing.T) {
	m := VideoInitMessage{
		Codec:          "H264",
		InitID:         7,
		Width:          1280,
		Height:         720,
		ViewportWidth:  1920,
		ViewportHeight: 1080,
		BitDepth:       8,
		InitBlock:      []byte{0x00, 0x00, 0x00, 0x01, 0x67},
	}
	buf, err := EncodeVideoInit(m)
	if err != nil {
		t.Fatalf("EncodeVideoInit: %v", err)
	}
	kind, _ := PeekMediaKind(buf)
	if kind != MediaKindVideoInit {
		t.Fatalf("kind = %v, want MediaKindVideoInit", kind)
	}
	got, err := DecodeVideoInit(buf)
	if err != nil {
		t.Fatalf("DecodeVideoInit: %v", err)
	}
	if got.Codec != m.Codec || got.InitID != m.InitID || got.Width != m.Width || got.BitDepth != m.BitDepth {
		t.Fatalf("DecodeVideoInit() = %+v, want %+v", got, m)
	}
}

func TestDecodeVideoInitRejectsWrongKind(t *testing.T) {
	buf := EncodeMediaFrame(MediaFrameHeader{}, nil)
	if _, err := DecodeVideoInit(buf); err == nil {
		t.Fatal("expected error decoding a frame payload as video init")
	}
}

func TestEncodeDecodeAudioInitRoundTrip(t *testing.T) {
	m := AudioInitMessage{Codec: "AAC", InitID: 2, Channels: 2, SampleRate: 48000, ChannelLayout: "stereo"}
	buf, err := EncodeAudioInit(m)
	if err != nil {
		t.Fatalf("EncodeAudioInit: %v", err)
	}
	got, err := DecodeAudioInit(buf)
	if err != nil {
		t.Fatalf("DecodeAudioInit: %v", err)
	}
	if got != m {
		t.Fatalf("DecodeAudioInit() = %+v, want %+v", got, m)
	}
}
