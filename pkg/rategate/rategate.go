package rategate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/pgvanniekerk/rategate/internal/concurrency"
	"github.com/pgvanniekerk/rategate/internal/window"
)

// RateGate admits at most maxCount callers within any rolling resetSpan, and never lets
// more than maxCount of them run at the same time.
//
// A RateGate is meant to be long lived and shared by many goroutines. Call Close once it
// is no longer needed.
type RateGate struct {
	name      string
	maxCount  int
	resetSpan time.Duration

	// pool bounds how many admitted callers may be in flight.
	pool *concurrency.Limiter

	// history holds the release timestamps that decide when the next caller may enter.
	history *window.History

	logger   *slog.Logger
	recorder Recorder

	// closed is an atomic flag that indicates whether the gate has been closed.
	closed *atomic.Bool

	// closeMutex ensures Close runs its teardown once.
	closeMutex *sync.Mutex

	admitted       atomic.Int64
	released       atomic.Int64
	delayed        atomic.Int64
	canceledSlot   atomic.Int64
	canceledWindow atomic.Int64
	inFlight       atomic.Int64
}

// Stats is a point-in-time snapshot of a gate's counters.
//
// Once the gate is idle, Released equals Admitted plus CanceledWaitingForWindow: every
// caller that obtained a slot gave it back exactly once.
type Stats struct {
	// Admitted counts callers that passed the gate and ran their action.
	Admitted int64
	// Released counts slots handed back, including those of callers canceled mid-window.
	Released int64
	// Delayed counts admissions that had to sleep out the rolling window first.
	Delayed int64
	// CanceledWaitingForSlot counts acquires abandoned before a slot was obtained.
	CanceledWaitingForSlot int64
	// CanceledWaitingForWindow counts acquires abandoned while sleeping out the window.
	CanceledWaitingForWindow int64
	// InFlight is the number of admitted callers that have not released yet.
	InFlight int64
}

//region Implementation

// Close shuts the gate down. Callers still waiting for a slot or sleeping out the window
// return ErrGateClosed, and every later Run call returns ErrGateClosed without running its
// action. Callers already admitted finish normally and release as usual.
//
// If the gate's Recorder implements io.Closer it is closed here and its error returned.
// Close is idempotent: calls after the first return nil.
func (g *RateGate) Close() error {
	g.closeMutex.Lock()
	defer g.closeMutex.Unlock()

	// Prevent close from being run twice
	if g.closed.Load() {
		return nil
	}

	g.closed.Store(true)
	g.pool.Close()

	g.logger.Info("rate gate closed",
		slog.String("gate", g.name),
		slog.Int64("in_flight", g.inFlight.Load()),
		slog.Int64("admitted", g.admitted.Load()),
	)

	if closer, ok := g.recorder.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// Stats returns a snapshot of the gate's counters.
func (g *RateGate) Stats() Stats {
	return Stats{
		Admitted:                 g.admitted.Load(),
		Released:                 g.released.Load(),
		Delayed:                  g.delayed.Load(),
		CanceledWaitingForSlot:   g.canceledSlot.Load(),
		CanceledWaitingForWindow: g.canceledWindow.Load(),
		InFlight:                 g.inFlight.Load(),
	}
}

// Name returns the gate name used in logs and metrics.
func (g *RateGate) Name() string {
	return g.name
}

// MaxCount returns the number of admissions allowed per rolling window.
func (g *RateGate) MaxCount() int {
	return g.maxCount
}

// ResetSpan returns the length of the rolling window.
func (g *RateGate) ResetSpan() time.Duration {
	return g.resetSpan
}

//endregion

//region Helpers

// acquire blocks until the caller is admitted. On a nil return the caller holds a slot and
// must call exit exactly once.
//
// Returns:
//   - nil: the caller was admitted.
//   - an error matching ErrAcquireCanceled and ctx.Err(): ctx ended first.
//   - ErrGateClosed: the gate was closed before or during the wait.
func (g *RateGate) acquire(ctx context.Context) error {

	if g.closed.Load() {
		return ErrGateClosed
	}

	// First suspension point: wait for a free slot.
	if err := g.pool.Acquire(ctx); err != nil {
		if errors.Is(err, concurrency.ErrLimiterClosed) {
			return ErrGateClosed
		}
		g.canceledSlot.Add(1)
		g.recorder.Canceled(g.name, StageSlot)
		g.logger.Debug("acquire canceled while waiting for a slot",
			slog.String("gate", g.name),
			slog.Any("error", err),
		)
		return fmt.Errorf("%w: %w", ErrAcquireCanceled, err)
	}

	// The slot is held from here on, so every return below either admits the caller or
	// releases first.
	oldest := g.history.PopOldest()
	wait := windowDelay(oldest, g.resetSpan, time.Now())

	// Second suspension point: sleep out the remainder of the rolling window.
	if wait > 0 {
		g.logger.Debug("delaying admission until the window elapses",
			slog.String("gate", g.name),
			slog.Duration("wait", wait),
		)

		timer := time.NewTimer(wait)
		defer timer.Stop()

		select {
		case <-timer.C:
		case <-ctx.Done():
			g.abandon()
			g.logger.Debug("acquire canceled while waiting for the window",
				slog.String("gate", g.name),
				slog.Any("error", ctx.Err()),
			)
			return fmt.Errorf("%w: %w", ErrAcquireCanceled, ctx.Err())
		case <-g.pool.Done():
			g.abandon()
			return ErrGateClosed
		}

		g.delayed.Add(1)
	}

	g.admitted.Add(1)
	inFlight := g.inFlight.Add(1)
	g.recorder.Admitted(g.name, wait, inFlight)
	return nil
}

// exit releases the slot of an admitted caller.
func (g *RateGate) exit() {
	inFlight := g.inFlight.Add(-1)
	g.release()
	g.recorder.Released(g.name, inFlight)
}

// abandon releases the slot of a caller that stopped waiting for the window. The release
// timestamp is still recorded, so the abandoned attempt counts against the rate.
func (g *RateGate) abandon() {
	g.release()
	g.canceledWindow.Add(1)
	g.recorder.Canceled(g.name, StageWindow)
}

// release records the current time and hands the slot back to the pool.
func (g *RateGate) release() {
	g.history.Push(time.Now())
	g.pool.Release()
	g.released.Add(1)
}

// windowDelay returns how long a caller must wait before oldest+resetSpan has passed,
// rounded up to a whole millisecond. It returns zero when the window already elapsed.
func windowDelay(oldest time.Time, resetSpan time.Duration, now time.Time) time.Duration {
	windowEnd := oldest.Add(resetSpan)
	if !now.Before(windowEnd) {
		return 0
	}

	wait := windowEnd.Sub(now)
	if rem := wait % time.Millisecond; rem != 0 {
		wait += time.Millisecond - rem
	}
	return wait
}

//endregion

//region Constructor

// New creates a RateGate that admits at most maxCount callers per rolling resetSpan.
//
// The first maxCount callers on a new gate are admitted without delay. A resetSpan of
// zero turns the gate into a plain concurrency limiter.
//
// Returns ErrInvalidMaxCount if maxCount is not positive and ErrInvalidResetSpan if
// resetSpan is negative.
//
// Example:
//
//	// At most 10 calls per second to the upstream API.
//	gate, err := rategate.New(10, time.Second, rategate.WithName("upstream"))
//	if err != nil {
//	    return err
//	}
//	defer gate.Close()
//
//	err = gate.RunSync(ctx, func() error {
//	    return client.Call(ctx)
//	})
func New(maxCount int, resetSpan time.Duration, opts ...Option) (*RateGate, error) {

	if maxCount <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidMaxCount, maxCount)
	}
	if resetSpan < 0 {
		return nil, fmt.Errorf("%w: got %s", ErrInvalidResetSpan, resetSpan)
	}

	o := &options{
		logger:   slog.New(slog.DiscardHandler),
		recorder: NoopRecorder{},
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.name == "" {
		o.name = uuid.NewString()
	}

	return &RateGate{
		name:       o.name,
		maxCount:   maxCount,
		resetSpan:  resetSpan,
		pool:       concurrency.NewLimiter(int64(maxCount)),
		history:    window.NewHistory(maxCount),
		logger:     o.logger,
		recorder:   o.recorder,
		closed:     &atomic.Bool{},
		closeMutex: &sync.Mutex{},
	}, nil
}

//endregion
