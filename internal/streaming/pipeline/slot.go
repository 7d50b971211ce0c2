package pipeline

import "github.com/deskstream/streamcore/internal/logging"

var log = logging.L("pipeline")

// MaxSubmitInputAttempts bounds local retry of an engine reporting
// InputFull before the error is surfaced to the caller (spec.md §7).
const MaxSubmitInputAttempts = 100

// MaxQueryOutputAttempts bounds how many times a Synchronous slot polls
// QueryOutput to drain an engine reporting InputFull before retrying
// SubmitInput.
const MaxQueryOutputAttempts = 100

// SubmitBackoffMs is the sleep, in milliseconds, between local retries.
const SubmitBackoffMs = 1

// Slot is the pipeline node contract: one input, one next-slot
// reference, never synthesizing data — it either transforms or sinks
// (spec.md §4.5).
type Slot interface {
	SubmitInput(f Frame) error
	Flush() error
	Start() error
	Stop() error
}
