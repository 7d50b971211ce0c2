package receiver

import (
	"errors"
	"testing"

	"github.com/deskstream/streamcore/internal/streaming/pipeline"
)

func TestSelectPixelFormat(t *testing.T) {
	if f, hdr, err := selectPixelFormat(8, false); err != nil || f != PixelFormatNV12 || hdr {
		t.Fatalf("8-bit = %v, %v, %v", f, hdr, err)
	}
	if f, hdr, err := selectPixelFormat(0, false); err != nil || f != PixelFormatNV12 || hdr {
		t.Fatalf("unspecified bit depth = %v, %v, %v", f, hdr, err)
	}
	if f, hdr, err := selectPixelFormat(10, true); err != nil || f != PixelFormatP010 || !hdr {
		t.Fatalf("10-bit HDR-capable = %v, %v, %v", f, hdr, err)
	}
	if _, _, err := selectPixelFormat(10, false); err == nil {
		t.Fatal("expected error for 10-bit on a non-HDR-capable presenter")
	}
	if _, _, err := selectPixelFormat(12, true); err == nil {
		t.Fatal("expected error for an unsupported bit depth")
	}
}

func newCountingDecoderFactory(calls *int) VideoDecoderFactory {
	return func(codec string, initBlock []byte) (pipeline.Engine, error) {
		*calls++
		return &passthroughEngine{}, nil
	}
}

func TestVideoPipelineOnInputChangedNoOpOnSameParams(t *testing.T) {
	calls := 0
	var gotFormat PresenterFormat
	sink := pipeline.NewSinkSlot(func(pipeline.Frame) error { return nil })
	vp := NewVideoPipeline(sink, newCountingDecoderFactory(&calls), func(f PresenterFormat) { gotFormat = f }, false)

	params := VideoInputParams{Codec: "H264", InitID: 1, Width: 1280, Height: 720, ViewportWidth: 1920, ViewportHeight: 1080, BitDepth: 8}
	if err := vp.OnInputChanged(params); err != nil {
		t.Fatalf("OnInputChanged: %v", err)
	}
	if calls != 1 {
		t.Fatalf("decoder factory calls = %d, want 1", calls)
	}
	if gotFormat.Pixel != PixelFormatNV12 {
		t.Fatalf("presenter format = %+v", gotFormat)
	}

	if err := vp.OnInputChanged(params); err != nil {
		t.Fatalf("OnInputChanged (repeat): %v", err)
	}
	if calls != 1 {
		t.Fatalf("decoder factory calls after repeat = %d, want 1 (no reinit)", calls)
	}
}

func TestVideoPipelineReinitsOnGeometryChange(t *testing.T) {
	calls := 0
	sink := pipeline.NewSinkSlot(func(pipeline.Frame) error { return nil })
	vp := NewVideoPipeline(sink, newCountingDecoderFactory(&calls), nil, false)

	if err := vp.OnInputChanged(VideoInputParams{Codec: "H264", InitID: 1, Width: 1280, Height: 720, ViewportWidth: 1920, ViewportHeight: 1080, BitDepth: 8}); err != nil {
		t.Fatalf("OnInputChanged: %v", err)
	}
	if err := vp.OnInputChanged(VideoInputParams{Codec: "H264", InitID: 2, Width: 1920, Height: 1080, ViewportWidth: 1920, ViewportHeight: 1080, BitDepth: 8}); err != nil {
		t.Fatalf("OnInputChanged (new geometry): %v", err)
	}
	if calls != 2 {
		t.Fatalf("decoder factory calls = %d, want 2", calls)
	}
}

func TestVideoPipelineRejects10BitWithoutHDR(t *testing.T) {
	calls := 0
	sink := pipeline.NewSinkSlot(func(pipeline.Frame) error { return nil })
	vp := NewVideoPipeline(sink, newCountingDecoderFactory(&calls), nil, false)

	err := vp.OnInputChanged(VideoInputParams{Codec: "H264", InitID: 1, Width: 1280, Height: 720, ViewportWidth: 1920, ViewportHeight: 1080, BitDepth: 10})
	if err == nil {
		t.Fatal("expected error for 10-bit stream on non-HDR-capable pipeline")
	}
	if calls != 0 {
		t.Fatalf("decoder factory calls = %d, want 0 (rejected before decoder build)", calls)
	}
}

func TestVideoPipelineNeedsHQScaleWhenSmallerThanViewport(t *testing.T) {
	calls := 0
	sink := pipeline.NewSinkSlot(func(pipeline.Frame) error { return nil })
	vp := NewVideoPipeline(sink, newCountingDecoderFactory(&calls), nil, false)

	if err := vp.OnInputChanged(VideoInputParams{Codec: "H264", InitID: 1, Width: 640, Height: 360, ViewportWidth: 1920, ViewportHeight: 1080, BitDepth: 8}); err != nil {
		t.Fatalf("OnInputChanged: %v", err)
	}
	if vp.converter.hqScale {
		t.Fatal("converter should not also bilinear-resize when an HQ scaler precedes it")
	}
}

func TestVideoPipelineSubmitFrameBeforeInitErrors(t *testing.T) {
	sink := pipeline.NewSinkSlot(func(pipeline.Frame) error { return nil })
	vp := NewVideoPipeline(sink, newCountingDecoderFactory(new(int)), nil, false)
	if err := vp.SubmitFrame(pipeline.Frame{}, ColorRangeLimited); err == nil {
		t.Fatal("expected error submitting before any init block arrived")
	}
}

func TestVideoPipelineReactsToColorRangeChangeWithoutRebuild(t *testing.T) {
	calls := 0
	sink := pipeline.NewSinkSlot(func(pipeline.Frame) error { return nil })
	vp := NewVideoPipeline(sink, newCountingDecoderFactory(&calls), nil, false)
	if err := vp.OnInputChanged(VideoInputParams{Codec: "H264", InitID: 1, Width: 1280, Height: 720, ViewportWidth: 1920, ViewportHeight: 1080, BitDepth: 8}); err != nil {
		t.Fatalf("OnInputChanged: %v", err)
	}

	if err := vp.SubmitFrame(pipeline.Frame{}, ColorRangeFull); err != nil {
		t.Fatalf("SubmitFrame: %v", err)
	}
	if vp.converter.ColorProfile() != ColorProfileFull709 {
		t.Fatalf("converter profile = %v, want Full709", vp.converter.ColorProfile())
	}
	if calls != 1 {
		t.Fatalf("decoder factory calls = %d, want 1 (no rebuild on color-range change)", calls)
	}
}

func TestAudioPipelineReinitsOnlyOnInitIDChange(t *testing.T) {
	calls := 0
	factory := func(codec string, initBlock []byte) (pipeline.Engine, error) {
		calls++
		return &passthroughEngine{}, nil
	}
	sink := pipeline.NewSinkSlot(func(pipeline.Frame) error { return nil })
	ap := NewAudioPipeline(sink, factory, 2, 48000, "stereo", 4)

	p := AudioInputParams{Codec: "AAC", InitID: 1, Channels: 2, SampleRate: 44100, ChannelLayout: "stereo"}
	if err := ap.OnInputChanged(p); err != nil {
		t.Fatalf("OnInputChanged: %v", err)
	}
	if err := ap.OnInputChanged(p); err != nil {
		t.Fatalf("OnInputChanged (repeat): %v", err)
	}
	if calls != 1 {
		t.Fatalf("decoder factory calls = %d, want 1", calls)
	}

	p.InitID = 2
	if err := ap.OnInputChanged(p); err != nil {
		t.Fatalf("OnInputChanged (new init id): %v", err)
	}
	if calls != 2 {
		t.Fatalf("decoder factory calls = %d, want 2", calls)
	}
}

func TestAudioPipelineSubmitFrameBeforeInitErrors(t *testing.T) {
	sink := pipeline.NewSinkSlot(func(pipeline.Frame) error { return nil })
	ap := NewAudioPipeline(sink, func(string, []byte) (pipeline.Engine, error) { return &passthroughEngine{}, nil }, 2, 48000, "stereo", 4)
	if err := ap.SubmitFrame(pipeline.Frame{}); err == nil {
		t.Fatal("expected error submitting before any init block arrived")
	}
}

func TestVideoDecoderFactoryErrorPropagates(t *testing.T) {
	wantErr := errors.New("boom")
	sink := pipeline.NewSinkSlot(func(pipeline.Frame) error { return nil })
	vp := NewVideoPipeline(sink, func(string, []byte) (pipeline.Engine, error) { return nil, wantErr }, nil, false)
	err := vp.OnInputChanged(VideoInputParams{Codec: "H264", InitID: 1, Width: 1280, Height: 720, ViewportWidth: 1920, ViewportHeight: 1080, BitDepth: 8})
	if !errors.Is(err, wantErr) {
		t.Fatalf("err = %v, want wrapping %v", err, wantErr)
	}
}
