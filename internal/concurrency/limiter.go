package concurrency

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// Limiter is a concurrency control mechanism that enforces a maximum level of parallelism.
// It provides a fixed number of "slots" that can be acquired and released by callers.
// Waiting for a slot honours the caller's context and is interrupted by Close.
type Limiter struct {

	// sem holds the slots. Each successful Acquire takes a weight of 1.
	sem *semaphore.Weighted

	// size is the total number of slots, fixed at construction.
	size int64

	// occupied counts the slots currently held. It guards against releasing
	// more slots than were acquired, which would make the semaphore panic.
	occupied *atomic.Int64

	// closed is an atomic flag that indicates whether the limiter has been closed.
	// Once closed, no new slots can be acquired.
	closed *atomic.Bool

	// closeMutex ensures thread-safe closure of the limiter, preventing concurrent access to the Close method.
	closeMutex *sync.Mutex

	// closeCtx is cancelled by Close to wake every goroutine blocked in Acquire.
	closeCtx  context.Context
	closeFunc context.CancelFunc
}

//region Implementation

// Acquire blocks until a slot is available, ctx is done, or the limiter is closed.
//
// Returns:
//   - nil: a slot is now held and must be handed back with Release.
//   - ctx.Err(): the context ended first. No slot is held.
//   - ErrLimiterClosed: the limiter was closed before or while waiting. No slot is held.
func (l *Limiter) Acquire(ctx context.Context) error {

	if l.isClosed() {
		return ErrLimiterClosed
	}

	// An already finished context never takes a slot, even when one is free.
	if err := ctx.Err(); err != nil {
		return err
	}

	// Derive a context that also ends when the limiter is closed.
	acquireCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(l.closeCtx, cancel)
	defer stop()

	if err := l.sem.Acquire(acquireCtx, 1); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return ErrLimiterClosed
	}

	// Close may have won the race after the semaphore handed out the slot.
	if l.isClosed() {
		l.sem.Release(1)
		return ErrLimiterClosed
	}

	l.occupied.Add(1)
	return nil
}

// Release returns a slot back to the limiter, making it available for other callers.
// Releasing when no slot is held is ignored. Slots still held when the limiter is
// closed may be released afterwards.
func (l *Limiter) Release() {
	for {
		held := l.occupied.Load()
		if held <= 0 {
			return
		}
		if l.occupied.CompareAndSwap(held, held-1) {
			break
		}
	}
	l.sem.Release(1)
}

// Close shuts down the limiter and wakes any goroutine waiting in Acquire.
//
// This method is idempotent and prevents race conditions using a mutex.
// Once closed, the limiter cannot be reused.
func (l *Limiter) Close() {
	l.closeMutex.Lock()
	defer l.closeMutex.Unlock()

	// Prevent close from being run twice
	if l.isClosed() {
		return
	}

	l.closed.Store(true)
	l.closeFunc()
}

// Done returns a channel that is closed once the limiter has been closed.
func (l *Limiter) Done() <-chan struct{} {
	return l.closeCtx.Done()
}

// TotalSlots returns the total number of slots configured for the limiter.
func (l *Limiter) TotalSlots() int64 {
	return l.size
}

// OccupiedSlots returns the number of slots currently held.
func (l *Limiter) OccupiedSlots() int64 {
	return l.occupied.Load()
}

// AvailableSlots returns the number of slots that can be acquired without waiting.
func (l *Limiter) AvailableSlots() int64 {
	return l.size - l.occupied.Load()
}

//endregion

//region Helpers

// isClosed is a helper method that checks whether the limiter has been closed.
func (l *Limiter) isClosed() bool {
	return l.closed.Load()
}

//endregion

//region Constructor

// NewLimiter initializes a new Limiter instance with a specified number of slots.
// The size parameter defines the maximum concurrency level, controlling the number of
// slots that callers can hold at the same time.
//
// Panics if size is not positive.
func NewLimiter(size int64) *Limiter {

	if size <= 0 {
		panic(ErrInvalidSize)
	}

	closeCtx, closeFunc := context.WithCancel(context.Background())

	return &Limiter{
		sem:        semaphore.NewWeighted(size),
		size:       size,
		occupied:   &atomic.Int64{},
		closed:     &atomic.Bool{},
		closeMutex: &sync.Mutex{},
		closeCtx:   closeCtx,
		closeFunc:  closeFunc,
	}
}

//endregion
