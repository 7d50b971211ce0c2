package receiver

import (
	"fmt"
	"sync"

	"github.com/deskstream/streamcore/internal/logging"
	"github.com/deskstream/streamcore/internal/streaming/pipeline"
)

var log = logging.L("receiver")

// PixelFormat is the decoded/presented surface format selected by bit
// depth (spec.md §4.6).
type PixelFormat int

const (
	PixelFormatNV12 PixelFormat = iota
	PixelFormatP010
)

func (p PixelFormat) String() string {
	if p == PixelFormatP010 {
		return "P010"
	}
	return "NV12"
}

// ColorRange is the per-frame AMF_VIDEO_COLOR_RANGE bit.
type ColorRange int

const (
	ColorRangeLimited ColorRange = iota
	ColorRangeFull
)

// PresenterFormat is what VideoPipeline asks its host to (re)configure
// the presenter swapchain to.
type PresenterFormat struct {
	Pixel               PixelFormat
	RGBAF16             bool
	ExclusiveFullscreen bool
}

// VideoDecoderFactory builds a fresh decoder engine for the given
// codec and in-band init block. Concrete codecs are host-registered
// (e.g. cmd/streamclient wires engine/openh264.NewDecoder), mirroring
// the "external collaborator" idiom documented on pipeline.Engine.
type VideoDecoderFactory func(codec string, initBlock []byte) (pipeline.Engine, error)

// VideoInputParams describes one video-init announcement (spec.md
// §4.6): codec, geometry, viewport and bit depth. A pipeline reinits
// only when these change between init blocks.
type VideoInputParams struct {
	Codec          string
	InitID         int64
	Width          int
	Height         int
	ViewportWidth  int
	ViewportHeight int
	BitDepth       int
	InitBlock      []byte
}

func (a VideoInputParams) sameGeometry(b VideoInputParams) bool {
	return a.Codec == b.Codec && a.InitID == b.InitID &&
		a.Width == b.Width && a.Height == b.Height &&
		a.ViewportWidth == b.ViewportWidth && a.ViewportHeight == b.ViewportHeight &&
		a.BitDepth == b.BitDepth
}

// selectPixelFormat picks the decode/present surface format by bit
// depth (spec.md §4.6): 8-bit (or unspecified) selects NV12, 10-bit
// selects P010 and requires HDR capability, anything else is rejected.
func selectPixelFormat(bitDepth int, hdrCapable bool) (PixelFormat, bool, error) {
	switch bitDepth {
	case 0, 8:
		return PixelFormatNV12, false, nil
	case 10:
		if !hdrCapable {
			return 0, false, fmt.Errorf("receiver: 10-bit stream requires an HDR-capable presenter")
		}
		return PixelFormatP010, true, nil
	default:
		return 0, false, fmt.Errorf("receiver: unsupported bit depth %d", bitDepth)
	}
}

// VideoPipeline owns the decode→denoise→(scale)→convert→sink chain
// for one video stream and reinits it only when geometry changes
// (spec.md §4.6, component #8).
type VideoPipeline struct {
	decoderFactory VideoDecoderFactory
	presenterHook  func(PresenterFormat)
	hdrCapable     bool
	sink           pipeline.Slot

	mu         sync.Mutex
	haveParams bool
	params     VideoInputParams
	head       pipeline.Slot
	converter  *colorConverterEngine
	lastRange  ColorRange
}

// NewVideoPipeline builds a video receiver pipeline terminating at
// sink. presenterHook is called whenever the presenter needs to
// reconfigure its swapchain format or fullscreen mode.
func NewVideoPipeline(sink pipeline.Slot, decoderFactory VideoDecoderFactory, presenterHook func(PresenterFormat), hdrCapable bool) *VideoPipeline {
	return &VideoPipeline{
		sink:           sink,
		decoderFactory: decoderFactory,
		presenterHook:  presenterHook,
		hdrCapable:     hdrCapable,
	}
}

// OnInputChanged reacts to a video-init announcement: a no-op if the
// geometry is unchanged from the last one, otherwise it tears down the
// previous chain and builds a fresh one.
func (v *VideoPipeline) OnInputChanged(p VideoInputParams) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.haveParams && v.params.sameGeometry(p) {
		return nil
	}

	if v.head != nil {
		if err := v.head.Stop(); err != nil {
			log.Warn("stop previous video chain failed", "error", err)
		}
	}

	pixelFmt, rgbaF16, err := selectPixelFormat(p.BitDepth, v.hdrCapable)
	if err != nil {
		return err
	}

	decoder, err := v.decoderFactory(p.Codec, p.InitBlock)
	if err != nil {
		return fmt.Errorf("receiver: build video decoder: %w", err)
	}

	needsHQScale := p.Width > 0 && p.Height > 0 &&
		p.Width < p.ViewportWidth && p.Height < p.ViewportHeight

	converter := newColorConverterEngine(!needsHQScale)
	convertSlot := pipeline.NewSynchronousSlot(converter, v.sink)

	var scaleSlot pipeline.Slot = convertSlot
	if needsHQScale {
		scaler := newHQScalerEngine(p.Width, p.Height, p.ViewportWidth, p.ViewportHeight)
		scaleSlot = pipeline.NewSynchronousSlot(scaler, convertSlot)
	}

	denoiseSlot := pipeline.NewAsynchronousSlot(newDenoiserEngine(), scaleSlot)
	head := pipeline.NewAsynchronousSlot(decoder, denoiseSlot)

	if err := head.Start(); err != nil {
		return fmt.Errorf("receiver: start video chain: %w", err)
	}

	exclusiveFullscreen := p.Width > 0 && p.Height > 0 && p.ViewportWidth > 0 && p.ViewportHeight > 0 &&
		p.Width*p.ViewportHeight == p.Height*p.ViewportWidth

	if v.presenterHook != nil {
		v.presenterHook(PresenterFormat{Pixel: pixelFmt, RGBAF16: rgbaF16, ExclusiveFullscreen: exclusiveFullscreen})
	}

	v.params = p
	v.haveParams = true
	v.head = head
	v.converter = converter
	v.lastRange = ColorRangeLimited
	return nil
}

// SubmitFrame feeds one encoded video frame into the chain (whose head
// is the decoder), first
// reconfiguring the converter's color profile if colorRange changed
// since the previous frame (spec.md §4.6: no full pipeline rebuild on
// this transition).
func (v *VideoPipeline) SubmitFrame(f pipeline.Frame, colorRange ColorRange) error {
	v.mu.Lock()
	head := v.head
	if head == nil {
		v.mu.Unlock()
		return fmt.Errorf("receiver: video pipeline has no init block yet")
	}
	if colorRange != v.lastRange {
		profile := ColorProfileLimited709
		if colorRange == ColorRangeFull {
			profile = ColorProfileFull709
		}
		v.converter.SetColorProfile(profile)
		v.lastRange = colorRange
	}
	v.mu.Unlock()

	return head.SubmitInput(f)
}

// Close stops the active chain, if any.
func (v *VideoPipeline) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.head == nil {
		return nil
	}
	err := v.head.Stop()
	v.head = nil
	v.haveParams = false
	return err
}
