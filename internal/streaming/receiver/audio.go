package receiver

import (
	"fmt"
	"sync"

	"github.com/deskstream/streamcore/internal/streaming/pipeline"
)

// AudioDecoderFactory builds a fresh decoder engine for the given
// codec and in-band init block. No audio codec library (Opus/AAC)
// appears anywhere in the example pack, so cmd/streamclient wires a
// minimal stdlib-only reference decoder here (see DESIGN.md).
type AudioDecoderFactory func(codec string, initBlock []byte) (pipeline.Engine, error)

// AudioInputParams describes one audio-init announcement (spec.md
// §4.7). Reconfiguration is keyed only on codec+InitID, simpler than
// the video case since the presenter's channel/rate target is fixed.
type AudioInputParams struct {
	Codec         string
	InitID        int64
	Channels      int
	SampleRate    int
	ChannelLayout string
	InitBlock     []byte
}

func (a AudioInputParams) sameInit(b AudioInputParams) bool {
	return a.Codec == b.Codec && a.InitID == b.InitID
}

// AudioPipeline owns the decode→channel/rate-convert→sink chain for
// one audio stream (spec.md §4.7, component #9).
type AudioPipeline struct {
	decoderFactory AudioDecoderFactory
	sink           pipeline.Slot

	presenterChannels   int
	presenterSampleRate int
	presenterLayout     string
	presenterBlockAlign int

	mu         sync.Mutex
	haveParams bool
	params     AudioInputParams
	head       pipeline.Slot
}

// NewAudioPipeline builds an audio receiver pipeline terminating at
// sink, converting decoded audio to the given presenter channel
// count/sample rate/layout/block alignment.
func NewAudioPipeline(sink pipeline.Slot, decoderFactory AudioDecoderFactory, presenterChannels, presenterSampleRate int, presenterLayout string, presenterBlockAlign int) *AudioPipeline {
	return &AudioPipeline{
		sink:                sink,
		decoderFactory:      decoderFactory,
		presenterChannels:   presenterChannels,
		presenterSampleRate: presenterSampleRate,
		presenterLayout:     presenterLayout,
		presenterBlockAlign: presenterBlockAlign,
	}
}

// OnInputChanged reacts to an audio-init announcement: a no-op unless
// codec or InitID changed since the last one.
func (a *AudioPipeline) OnInputChanged(p AudioInputParams) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.haveParams && a.params.sameInit(p) {
		return nil
	}

	if a.head != nil {
		if err := a.head.Stop(); err != nil {
			log.Warn("stop previous audio chain failed", "error", err)
		}
	}

	decoder, err := a.decoderFactory(p.Codec, p.InitBlock)
	if err != nil {
		return fmt.Errorf("receiver: build audio decoder: %w", err)
	}

	converter := newChannelRateConverterEngine(p.Channels, p.SampleRate, a.presenterChannels, a.presenterSampleRate, a.presenterLayout, a.presenterBlockAlign)
	convertSlot := pipeline.NewSynchronousSlot(converter, a.sink)
	head := pipeline.NewAsynchronousSlot(decoder, convertSlot)

	if err := head.Start(); err != nil {
		return fmt.Errorf("receiver: start audio chain: %w", err)
	}

	a.params = p
	a.haveParams = true
	a.head = head
	return nil
}

// SubmitFrame feeds one encoded audio frame into the chain, whose head
// is the decoder.
func (a *AudioPipeline) SubmitFrame(f pipeline.Frame) error {
	a.mu.Lock()
	head := a.head
	a.mu.Unlock()
	if head == nil {
		return fmt.Errorf("receiver: audio pipeline has no init block yet")
	}
	return head.SubmitInput(f)
}

// Close stops the active chain, if any.
func (a *AudioPipeline) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.head == nil {
		return nil
	}
	err := a.head.Stop()
	a.head = nil
	a.haveParams = false
	return err
}
