// Package receiver implements the client-side video and audio
// receiver pipelines (spec.md §4.6/§4.7): decoder reinit on init-block
// change, pixel-format/presenter-format selection, conditional
// denoise/scale staging, and per-frame color-range reaction. The
// denoise/scale/color-convert/channel-convert filter stages
// themselves are external collaborators per spec.md §1 (no GPU image
// or audio-DSP library appears anywhere in the example pack, see
// DESIGN.md); this package provides minimal reference engines for
// them so the reinit/selection logic above is actually exercised end
// to end.
package receiver

import "github.com/deskstream/streamcore/internal/streaming/pipeline"

// passthroughEngine is a minimal pipeline.Engine that forwards frames
// unchanged, standing in for a real denoiser/scaler/resampler plugin.
type passthroughEngine struct {
	pending []pipeline.Frame
}

func (p *passthroughEngine) SubmitInput(f pipeline.Frame) (pipeline.EngineStatus, error) {
	p.pending = append(p.pending, f)
	return pipeline.EngineOK, nil
}

func (p *passthroughEngine) QueryOutput() (pipeline.Frame, bool, error) {
	if len(p.pending) == 0 {
		return pipeline.Frame{}, false, nil
	}
	f := p.pending[0]
	p.pending = p.pending[1:]
	return f, true, nil
}

func (p *passthroughEngine) Flush() error {
	p.pending = nil
	return nil
}

func newDenoiserEngine() pipeline.Engine { return &passthroughEngine{} }

// newHQScalerEngine builds the high-quality scale stage used when the
// input resolution is strictly smaller than the presenter resolution
// in both dimensions (spec.md §4.6); otherwise the color converter
// does a simple bilinear resize itself.
func newHQScalerEngine(srcW, srcH, dstW, dstH int) pipeline.Engine {
	return &passthroughEngine{}
}

// ColorProfile is the converter-facing color matrix/range selection
// (spec.md §4.6's Full_709 vs 709).
type ColorProfile int

const (
	ColorProfileLimited709 ColorProfile = iota
	ColorProfileFull709
)

// colorConverterEngine additionally tracks the active color profile so
// a per-frame color-range change can be applied without a full
// pipeline reinit, and whether it's also doing the simple-bilinear
// resize (when no HQ scaler precedes it).
type colorConverterEngine struct {
	passthroughEngine
	hqScale bool
	profile ColorProfile
}

func newColorConverterEngine(hqScale bool) *colorConverterEngine {
	return &colorConverterEngine{hqScale: hqScale, profile: ColorProfileLimited709}
}

func (c *colorConverterEngine) SetColorProfile(p ColorProfile) { c.profile = p }
func (c *colorConverterEngine) ColorProfile() ColorProfile     { return c.profile }

// channelRateConverterEngine converts decoded audio to the presenter's
// requested channel count/sample rate/layout (spec.md §4.7).
type channelRateConverterEngine struct {
	passthroughEngine
	srcChannels, srcRate     int
	dstChannels, dstRate     int
	dstLayout                string
	dstBlockAlign            int
}

func newChannelRateConverterEngine(srcChannels, srcRate, dstChannels, dstRate int, dstLayout string, dstBlockAlign int) *channelRateConverterEngine {
	return &channelRateConverterEngine{
		srcChannels:   srcChannels,
		srcRate:       srcRate,
		dstChannels:   dstChannels,
		dstRate:       dstRate,
		dstLayout:     dstLayout,
		dstBlockAlign: dstBlockAlign,
	}
}

var (
	_ pipeline.Engine = (*passthroughEngine)(nil)
	_ pipeline.Engine = (*colorConverterEngine)(nil)
	_ pipeline.Engine = (*channelRateConverterEngine)(nil)
)
