package wire

import (
	"bytes"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	h := Header{
		Version: ProtocolVersion,
		Channel: ChannelVideoOut,
		MsgID:   42,
		FragIdx: 1,
		FragCnt: 3,
		Flags:   FlagLastFragment,
	}
	payload := []byte("frame-bytes")

	buf := Encode(h, payload)
	if len(buf) != HeaderSize+len(payload) {
		t.Fatalf("encoded length = %d, want %d", len(buf), HeaderSize+len(payload))
	}

	got, rest, err := Decode(buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got != h {
		t.Fatalf("Decode() = %+v, want %+v", got, h)
	}
	if !bytes.Equal(rest, payload) {
		t.Fatalf("payload = %q, want %q", rest, payload)
	}
	if !got.Last() {
		t.Fatal("expected Last() true")
	}
}

func TestDecodeShortHeader(t *testing.T) {
	_, _, err := Decode([]byte{1, 2, 3})
	if err != ErrShortHeader {
		t.Fatalf("err = %v, want ErrShortHeader", err)
	}
}

func TestDecodeUnsupportedVersion(t *testing.T) {
	h := Header{Version: 7, Channel: ChannelService}
	buf := Encode(h, nil)
	_, _, err := Decode(buf)
	if err == nil {
		t.Fatal("expected error for unsupported version")
	}
}

func TestChannelString(t *testing.T) {
	cases := map[Channel]string{
		ChannelService:  "service",
		ChannelVideoOut: "video-out",
	}
	for ch, want := range cases {
		if got := ch.String(); got != want {
			t.Fatalf("Channel(%d).String() = %q, want %q", ch, got, want)
		}
	}
}
