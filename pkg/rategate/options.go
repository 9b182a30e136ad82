package rategate

import (
	"log/slog"
)

// options holds the optional settings applied by New.
type options struct {
	logger   *slog.Logger
	recorder Recorder
	name     string
}

// Option configures a RateGate created with New.
type Option func(*options)

// WithLogger sets the logger used for debug records about delays and cancellations and an
// info record on Close. A nil logger is ignored. By default nothing is logged.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithRecorder sets the Recorder that receives admission, cancellation and release events.
// A nil recorder is ignored.
func WithRecorder(recorder Recorder) Option {
	return func(o *options) {
		if recorder != nil {
			o.recorder = recorder
		}
	}
}

// WithName sets the gate name used as the "gate" log attribute and metric label.
// When empty a random UUID is used.
func WithName(name string) Option {
	return func(o *options) {
		o.name = name
	}
}
