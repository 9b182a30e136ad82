package rategate

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

// recordingRecorder keeps every event so tests can assert on them.
type recordingRecorder struct {
	mu       sync.Mutex
	admitted []time.Duration
	canceled []CancelStage
	released int
	closed   int
}

func (r *recordingRecorder) Admitted(_ string, wait time.Duration, _ int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.admitted = append(r.admitted, wait)
}

func (r *recordingRecorder) Canceled(_ string, stage CancelStage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.canceled = append(r.canceled, stage)
}

func (r *recordingRecorder) Released(string, int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.released++
}

func (r *recordingRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed++
	return nil
}

type RateGate_TestSuite struct {
	suite.Suite
}

func (w *RateGate_TestSuite) newGate(maxCount int, resetSpan time.Duration, opts ...Option) *RateGate {
	g, err := New(maxCount, resetSpan, opts...)
	w.Require().NoError(err)
	w.T().Cleanup(func() { _ = g.Close() })
	return g
}

// hold admits a caller that keeps its slot until the returned func is called.
func (w *RateGate_TestSuite) hold(g *RateGate) (release func(), done <-chan error) {
	entered := make(chan struct{})
	unblock := make(chan struct{})
	errc := g.RunAsync(context.Background(), func() error {
		close(entered)
		<-unblock
		return nil
	})

	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		w.FailNow("holder was never admitted")
	}

	return func() { close(unblock) }, errc
}

func (w *RateGate_TestSuite) assertBalanced(g *RateGate) {
	stats := g.Stats()
	w.Require().Equal(int64(0), stats.InFlight)
	w.Require().Equal(stats.Admitted+stats.CanceledWaitingForWindow, stats.Released)
	w.Require().Equal(int64(g.maxCount), g.pool.AvailableSlots())
	w.Require().Equal(g.maxCount, g.history.Len())
}

func (w *RateGate_TestSuite) TestNew_InvalidArguments() {
	_, err := New(0, time.Second)
	w.Require().ErrorIs(err, ErrInvalidMaxCount)

	_, err = New(-3, time.Second)
	w.Require().ErrorIs(err, ErrInvalidMaxCount)

	_, err = New(1, -time.Millisecond)
	w.Require().ErrorIs(err, ErrInvalidResetSpan)
}

func (w *RateGate_TestSuite) TestNew_Defaults() {
	g := w.newGate(4, time.Second)

	w.Require().Equal(4, g.MaxCount())
	w.Require().Equal(time.Second, g.ResetSpan())
	w.Require().NotEmpty(g.Name())
	w.Require().Equal(4, g.history.Len())
	w.Require().Equal(int64(4), g.pool.TotalSlots())

	named := w.newGate(1, time.Second, WithName("upstream"))
	w.Require().Equal("upstream", named.Name())
}

func (w *RateGate_TestSuite) TestFirstMaxCountAdmissionsAreNotDelayed() {
	g := w.newGate(3, 10*time.Second)

	start := time.Now()
	for i := 0; i < 3; i++ {
		w.Require().NoError(g.RunSync(context.Background(), func() error { return nil }))
	}

	w.Require().Less(time.Since(start), 500*time.Millisecond)
	w.Require().Equal(int64(0), g.Stats().Delayed)
	w.Require().Equal(int64(3), g.Stats().Admitted)
}

func (w *RateGate_TestSuite) TestWorkedExample() {
	g := w.newGate(2, time.Second)
	start := time.Now()

	// A and B are admitted immediately and release at roughly 0.1s and 0.2s.
	errA := g.RunAsync(context.Background(), func() error {
		time.Sleep(100 * time.Millisecond)
		return nil
	})
	errB := g.RunAsync(context.Background(), func() error {
		time.Sleep(200 * time.Millisecond)
		return nil
	})

	time.Sleep(300 * time.Millisecond)

	// C arrives at 0.3s and must wait for A's release plus one second.
	var admittedAt time.Time
	err := g.RunSync(context.Background(), func() error {
		admittedAt = time.Now()
		return nil
	})
	w.Require().NoError(err)
	w.Require().NoError(<-errA)
	w.Require().NoError(<-errB)

	elapsed := admittedAt.Sub(start)
	w.Require().GreaterOrEqual(elapsed, 1100*time.Millisecond)
	w.Require().Less(elapsed, 1500*time.Millisecond)
	w.Require().Equal(int64(1), g.Stats().Delayed)
}

func (w *RateGate_TestSuite) TestActionErrorIsReturnedUnchanged() {
	g := w.newGate(1, 0)
	errBoom := errors.New("boom")

	err := g.RunSync(context.Background(), func() error { return errBoom })
	w.Require().Same(errBoom, err)

	err = <-g.RunAsync(context.Background(), func() error { return errBoom })
	w.Require().Same(errBoom, err)

	w.assertBalanced(g)
}

func (w *RateGate_TestSuite) TestPanicReleasesSlot() {
	g := w.newGate(1, 0)

	w.Require().PanicsWithValue("boom", func() {
		_ = g.RunSync(context.Background(), func() error { panic("boom") })
	})

	w.assertBalanced(g)
	w.Require().Equal(int64(1), g.Stats().Released)
}

func (w *RateGate_TestSuite) TestCancelBeforeSlotLeavesOccupancyUnchanged() {
	rec := &recordingRecorder{}
	g := w.newGate(1, 0, WithRecorder(rec))

	release, holderDone := w.hold(g)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	ran := false
	err := g.RunSync(ctx, func() error {
		ran = true
		return nil
	})

	w.Require().ErrorIs(err, ErrAcquireCanceled)
	w.Require().ErrorIs(err, context.DeadlineExceeded)
	w.Require().False(ran)
	w.Require().Equal(int64(1), g.pool.OccupiedSlots())
	w.Require().Equal(int64(1), g.Stats().CanceledWaitingForSlot)
	w.Require().Equal(int64(0), g.Stats().Released)

	release()
	w.Require().NoError(<-holderDone)
	w.assertBalanced(g)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	w.Require().Equal([]CancelStage{StageSlot}, rec.canceled)
}

func (w *RateGate_TestSuite) TestCancelDuringWindowReleasesOnceAndRecordsTimestamp() {
	rec := &recordingRecorder{}
	g := w.newGate(1, time.Second, WithRecorder(rec))

	w.Require().NoError(g.RunSync(context.Background(), func() error { return nil }))

	// The second caller gets the slot but has to wait out the window, and gives up first.
	ctx, cancel := context.WithTimeout(context.Background(), 600*time.Millisecond)
	defer cancel()

	ran := false
	err := g.RunSync(ctx, func() error {
		ran = true
		return nil
	})
	canceledAt := time.Now()

	w.Require().ErrorIs(err, ErrAcquireCanceled)
	w.Require().ErrorIs(err, context.DeadlineExceeded)
	w.Require().False(ran)

	stats := g.Stats()
	w.Require().Equal(int64(1), stats.Admitted)
	w.Require().Equal(int64(2), stats.Released)
	w.Require().Equal(int64(1), stats.CanceledWaitingForWindow)
	w.assertBalanced(g)

	// The abandoned attempt recorded its own release, so the next caller waits a full
	// window from the cancellation rather than from the first release.
	w.Require().NoError(g.RunSync(context.Background(), func() error { return nil }))
	w.Require().GreaterOrEqual(time.Since(canceledAt), 900*time.Millisecond)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	w.Require().Equal([]CancelStage{StageWindow}, rec.canceled)
	w.Require().Len(rec.admitted, 2)
	w.Require().Equal(2, rec.released)
}

func (w *RateGate_TestSuite) TestNoLeakAcrossOutcomes() {
	g := w.newGate(2, 20*time.Millisecond)
	errBoom := errors.New("boom")

	canceled, cancel := context.WithCancel(context.Background())
	cancel()

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			switch i % 4 {
			case 0:
				_ = g.RunSync(context.Background(), func() error { return nil })
			case 1:
				_ = g.RunSync(context.Background(), func() error { return errBoom })
			case 2:
				_ = g.RunSync(canceled, func() error { return nil })
			case 3:
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
				defer cancel()
				_ = g.RunSync(ctx, func() error { return nil })
			}
		}()
	}
	wg.Wait()

	w.assertBalanced(g)
	w.Require().Greater(g.Stats().Admitted, int64(0))
}

func (w *RateGate_TestSuite) TestRunAsyncWithArg() {
	g := w.newGate(1, 0)

	var got string
	err := <-RunAsyncWithArg(g, context.Background(), func(s string) error {
		got = s
		return nil
	}, "payload")

	w.Require().NoError(err)
	w.Require().Equal("payload", got)
}

func (w *RateGate_TestSuite) TestRunAsyncWithResult() {
	g := w.newGate(1, 0)

	type ctxKey struct{}
	ctx := context.WithValue(context.Background(), ctxKey{}, "value")

	resc := RunAsyncWithResult(g, ctx, func(ctx context.Context, n int) (string, error) {
		if ctx.Value(ctxKey{}) != "value" {
			return "", errors.New("context was not passed through")
		}
		return fmt.Sprintf("n=%d", n), nil
	}, 7)

	res, ok := <-resc
	w.Require().True(ok)
	w.Require().NoError(res.Err)
	w.Require().Equal("n=7", res.Value)

	// The channel is closed after the single result.
	_, ok = <-resc
	w.Require().False(ok)
	w.assertBalanced(g)
}

func (w *RateGate_TestSuite) TestRunWithResult_NotAdmittedReturnsZero() {
	g := w.newGate(1, 0)
	w.Require().NoError(g.Close())

	value, err := RunWithResult(g, context.Background(), func(context.Context, int) (int, error) {
		return 42, nil
	}, 1)

	w.Require().ErrorIs(err, ErrGateClosed)
	w.Require().Zero(value)
}

func (w *RateGate_TestSuite) TestRunAsync_ChannelClosedAfterOneValue() {
	g := w.newGate(1, 0)

	errc := g.RunAsync(context.Background(), func() error { return nil })
	err, ok := <-errc
	w.Require().True(ok)
	w.Require().NoError(err)

	_, ok = <-errc
	w.Require().False(ok)
}

func (w *RateGate_TestSuite) TestClose_IsIdempotentAndClosesRecorder() {
	rec := &recordingRecorder{}
	g, err := New(1, 0, WithRecorder(rec))
	w.Require().NoError(err)

	w.Require().NoError(g.Close())
	w.Require().NoError(g.Close())

	rec.mu.Lock()
	w.Require().Equal(1, rec.closed)
	rec.mu.Unlock()

	ran := false
	err = g.RunSync(context.Background(), func() error {
		ran = true
		return nil
	})
	w.Require().ErrorIs(err, ErrGateClosed)
	w.Require().False(ran)

	err = <-g.RunAsync(context.Background(), func() error { return nil })
	w.Require().ErrorIs(err, ErrGateClosed)
}

func (w *RateGate_TestSuite) TestClose_WakesSlotWaiters() {
	g := w.newGate(1, 0)
	release, holderDone := w.hold(g)

	waiter := g.RunAsync(context.Background(), func() error { return nil })
	time.Sleep(20 * time.Millisecond)

	w.Require().NoError(g.Close())

	select {
	case err := <-waiter:
		w.Require().ErrorIs(err, ErrGateClosed)
	case <-time.After(time.Second):
		w.FailNow("waiter was not woken by Close")
	}

	// The admitted holder still finishes and releases normally.
	release()
	w.Require().NoError(<-holderDone)
	w.Require().Equal(int64(0), g.Stats().InFlight)
}

func (w *RateGate_TestSuite) TestClose_WakesWindowWaiters() {
	g := w.newGate(1, 10*time.Second)
	w.Require().NoError(g.RunSync(context.Background(), func() error { return nil }))

	waiter := g.RunAsync(context.Background(), func() error { return nil })
	time.Sleep(20 * time.Millisecond)

	w.Require().NoError(g.Close())

	select {
	case err := <-waiter:
		w.Require().ErrorIs(err, ErrGateClosed)
	case <-time.After(time.Second):
		w.FailNow("window waiter was not woken by Close")
	}
	w.assertBalanced(g)
}

func (w *RateGate_TestSuite) TestConcurrencyNeverExceedsMaxCount() {
	g := w.newGate(3, 0)

	var current, peak atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = g.RunSync(context.Background(), func() error {
				n := current.Add(1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				time.Sleep(2 * time.Millisecond)
				current.Add(-1)
				return nil
			})
		}()
	}
	wg.Wait()

	w.Require().LessOrEqual(peak.Load(), int64(3))
	w.assertBalanced(g)
}

func TestRateGate(t *testing.T) {
	suite.Run(t, new(RateGate_TestSuite))
}

// TestStress runs 100 callers against maxCount=5, resetSpan=200ms for two seconds.
func TestStress(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping stress test in short mode")
	}

	const (
		maxCount  = 5
		resetSpan = 200 * time.Millisecond
		runFor    = 2 * time.Second
	)

	g, err := New(maxCount, resetSpan)
	require.NoError(t, err)
	defer g.Close()

	ctx, cancel := context.WithTimeout(context.Background(), runFor)
	defer cancel()

	var mu sync.Mutex
	var admissions []time.Time

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ctx.Err() == nil {
				_ = g.RunSync(ctx, func() error {
					mu.Lock()
					admissions = append(admissions, time.Now())
					mu.Unlock()
					return nil
				})
			}
		}()
	}
	wg.Wait()

	require.InDelta(t, 50, len(admissions), 6)

	// No resetSpan-long window holds more than maxCount admissions.
	sort.Slice(admissions, func(i, j int) bool { return admissions[i].Before(admissions[j]) })
	for k := 0; k+maxCount < len(admissions); k++ {
		gap := admissions[k+maxCount].Sub(admissions[k])
		require.GreaterOrEqual(t, gap, resetSpan-20*time.Millisecond, "admissions %d and %d", k, k+maxCount)
	}

	stats := g.Stats()
	require.Equal(t, int64(0), stats.InFlight)
	require.Equal(t, stats.Admitted+stats.CanceledWaitingForWindow, stats.Released)
}

func TestWindowDelay(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)

	require.Zero(t, windowDelay(time.Time{}, time.Hour, now))
	require.Zero(t, windowDelay(now.Add(-time.Second), time.Second, now))
	require.Zero(t, windowDelay(now, 0, now))
	require.Equal(t, 400*time.Millisecond, windowDelay(now.Add(-600*time.Millisecond), time.Second, now))

	// Partial milliseconds round up, so the window has strictly elapsed on wake-up.
	require.Equal(t, time.Millisecond, windowDelay(now, time.Nanosecond, now))
	require.Equal(t, 3*time.Millisecond, windowDelay(now, 2*time.Millisecond+time.Microsecond, now))
}
