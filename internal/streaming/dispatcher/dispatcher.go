// Package dispatcher maps stream IDs to pipelines and owns the
// reference-counted init-block buffers shared between the transmitter
// (for resend) and the receiving codec engine (spec.md §2 component
// 13, §5).
package dispatcher

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/deskstream/streamcore/internal/logging"
	"github.com/deskstream/streamcore/internal/streaming/pipeline"
)

var log = logging.L("dispatcher")

// DefaultStream is always registered (spec.md §3 invariant).
const DefaultStream int32 = 0

// InitBlock is an immutable, reference-counted codec init buffer.
// Video/audio init blocks are shared freely once constructed — they
// are never mutated.
type InitBlock struct {
	InitID int64
	Data   []byte

	refCount atomic.Int32
}

func NewInitBlock(initID int64, data []byte) *InitBlock {
	b := &InitBlock{InitID: initID, Data: data}
	b.refCount.Store(1)
	return b
}

func (b *InitBlock) Retain() *InitBlock {
	b.refCount.Add(1)
	return b
}

// Release decrements the reference count and reports whether this was
// the last reference.
func (b *InitBlock) Release() bool {
	return b.refCount.Add(-1) == 0
}

// Dispatcher owns the StreamID → pipeline mapping and the per-stream
// init block.
type Dispatcher struct {
	mu         sync.RWMutex
	pipelines  map[int32]pipeline.Slot
	initBlocks map[int32]*InitBlock
}

func New() *Dispatcher {
	d := &Dispatcher{
		pipelines:  make(map[int32]pipeline.Slot),
		initBlocks: make(map[int32]*InitBlock),
	}
	return d
}

// RegisterStream installs the pipeline head for streamID.
func (d *Dispatcher) RegisterStream(streamID int32, head pipeline.Slot) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pipelines[streamID] = head
}

func (d *Dispatcher) UnregisterStream(streamID int32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.pipelines, streamID)
	delete(d.initBlocks, streamID)
}

func (d *Dispatcher) pipelineFor(streamID int32) (pipeline.Slot, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	p, ok := d.pipelines[streamID]
	return p, ok
}

// Dispatch routes a frame to its stream's pipeline head. An unknown
// streamID is a discard-with-warning per spec.md §4.3's tie-break
// policy, not an error the caller needs to special-case further.
func (d *Dispatcher) Dispatch(f pipeline.Frame) error {
	p, ok := d.pipelineFor(f.StreamID)
	if !ok {
		log.Warn("dropping frame for unknown stream", "stream", f.StreamID)
		return fmt.Errorf("dispatcher: no pipeline registered for stream %d", f.StreamID)
	}
	return p.SubmitInput(f)
}

// SetInitBlock installs the current init block for streamID, taking a
// reference of its own on it and releasing the one it held on the
// previous block.
func (d *Dispatcher) SetInitBlock(streamID int32, block *InitBlock) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if prev, ok := d.initBlocks[streamID]; ok {
		prev.Release()
	}
	d.initBlocks[streamID] = block.Retain()
}

func (d *Dispatcher) InitBlock(streamID int32) (*InitBlock, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	b, ok := d.initBlocks[streamID]
	return b, ok
}

// IsStreamKnown reports whether streamID has a registered pipeline.
func (d *Dispatcher) IsStreamKnown(streamID int32) bool {
	_, ok := d.pipelineFor(streamID)
	return ok
}
