package pipeline

// EngineStatus is the result of one SubmitInput call to a codec/filter
// engine.
type EngineStatus int

const (
	EngineOK EngineStatus = iota
	EngineNeedMoreInput
	EngineInputFull
)

// Engine is the black-box contract a Synchronous or Asynchronous slot
// drives. Concrete engines (hardware or software codecs, denoisers,
// scalers, format converters) are external collaborators per spec.md
// §1 — the pipeline package only ever depends on this interface.
type Engine interface {
	SubmitInput(f Frame) (EngineStatus, error)
	QueryOutput() (Frame, bool, error)
	Flush() error
}
