package metrics

import (
	"errors"
	"io"
	"time"

	"github.com/pgvanniekerk/rategate/pkg/rategate"
)

// MultiRecorder forwards every event to each of its recorders in order.
type MultiRecorder []rategate.Recorder

// Multi combines recorders into one. Nil entries are skipped.
func Multi(recorders ...rategate.Recorder) MultiRecorder {
	m := make(MultiRecorder, 0, len(recorders))
	for _, r := range recorders {
		if r != nil {
			m = append(m, r)
		}
	}
	return m
}

func (m MultiRecorder) Admitted(gate string, wait time.Duration, inFlight int64) {
	for _, r := range m {
		r.Admitted(gate, wait, inFlight)
	}
}

func (m MultiRecorder) Canceled(gate string, stage rategate.CancelStage) {
	for _, r := range m {
		r.Canceled(gate, stage)
	}
}

func (m MultiRecorder) Released(gate string, inFlight int64) {
	for _, r := range m {
		r.Released(gate, inFlight)
	}
}

// Close closes every recorder that implements io.Closer and joins their errors.
func (m MultiRecorder) Close() error {
	var errs []error
	for _, r := range m {
		if c, ok := r.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
