package rategate

import (
	"time"
)

// CancelStage identifies the suspension point at which an acquire was abandoned.
type CancelStage string

const (
	// StageSlot means the caller gave up while waiting for a free slot. Nothing was held.
	StageSlot CancelStage = "slot"

	// StageWindow means the caller held a slot and gave up while sleeping out the rolling
	// window. The slot was released and a timestamp recorded.
	StageWindow CancelStage = "window"
)

// Recorder receives gate events as they happen. Implementations must be safe for
// concurrent use and must not block, since they are called on the caller's goroutine.
//
// If a Recorder also implements io.Closer, RateGate.Close closes it.
type Recorder interface {
	// Admitted is called once per admission. wait is how long the caller slept out the
	// rolling window (zero when it was admitted straight away) and inFlight is the number
	// of admitted callers that have not released yet, including this one.
	Admitted(gate string, wait time.Duration, inFlight int64)

	// Canceled is called when an acquire ends because the caller's context was done or
	// the gate was closed.
	Canceled(gate string, stage CancelStage)

	// Released is called after an admitted caller has handed its slot back.
	Released(gate string, inFlight int64)
}

// NoopRecorder discards every event. It is the default Recorder.
type NoopRecorder struct{}

// Admitted does nothing.
func (NoopRecorder) Admitted(string, time.Duration, int64) {}

// Canceled does nothing.
func (NoopRecorder) Canceled(string, CancelStage) {}

// Released does nothing.
func (NoopRecorder) Released(string, int64) {}
