package simulate

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/pgvanniekerk/rategate/pkg/rategate"
)

// Options describes the simulated load.
type Options struct {
	// Callers is the number of goroutines calling the gate concurrently.
	Callers int

	// Duration is how long callers keep calling.
	Duration time.Duration

	// ArrivalRate caps how many call attempts per second are started across all
	// callers. Zero lets every caller retry as soon as its previous call returns.
	ArrivalRate float64

	// Work is how long each admitted call holds its slot.
	Work time.Duration

	// Logger receives a record when the run starts and ends. Nil discards them.
	Logger *slog.Logger
}

// Report summarises a finished run.
type Report struct {
	// Admissions is the number of calls the gate admitted.
	Admissions int

	// Canceled is the number of calls that gave up when the run ended.
	Canceled int

	// MaxInWindow is the largest number of admissions seen in any reset-span long window.
	// It never exceeds the gate's MaxCount.
	MaxInWindow int

	// Expected is MaxCount times the number of reset spans that fit in the run.
	// It is zero when the gate has no reset span.
	Expected int

	// Elapsed is the wall time of the run.
	Elapsed time.Duration

	// Stats are the gate counters at the end of the run.
	Stats rategate.Stats
}

// ErrInvalidOptions is returned by Run when Callers or Duration is not positive.
var ErrInvalidOptions = errors.New("simulate: callers and duration must be positive")

// Run drives gate with opts.Callers concurrent callers for opts.Duration and reports what
// was admitted. Run returns early, with the partial report, when ctx is canceled.
func Run(ctx context.Context, gate *rategate.RateGate, opts Options) (Report, error) {

	if opts.Callers <= 0 || opts.Duration <= 0 || opts.ArrivalRate < 0 {
		return Report{}, ErrInvalidOptions
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	runCtx, cancel := context.WithTimeout(ctx, opts.Duration)
	defer cancel()

	// Pace arrivals across all callers when a rate is given.
	var pacer *rate.Limiter
	if opts.ArrivalRate > 0 {
		burst := int(opts.ArrivalRate)
		if burst < 1 {
			burst = 1
		}
		pacer = rate.NewLimiter(rate.Limit(opts.ArrivalRate), burst)
	}

	logger.Info("simulation started",
		slog.String("gate", gate.Name()),
		slog.Int("callers", opts.Callers),
		slog.Duration("duration", opts.Duration),
		slog.Float64("arrival_rate", opts.ArrivalRate),
	)

	var (
		mu         sync.Mutex
		admissions []time.Time
		canceled   int
		wg         sync.WaitGroup
	)

	start := time.Now()
	for i := 0; i < opts.Callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for runCtx.Err() == nil {
				if pacer != nil {
					if err := pacer.Wait(runCtx); err != nil {
						return
					}
				}

				err := gate.RunSync(runCtx, func() error {
					mu.Lock()
					admissions = append(admissions, time.Now())
					mu.Unlock()

					if opts.Work > 0 {
						time.Sleep(opts.Work)
					}
					return nil
				})

				switch {
				case errors.Is(err, rategate.ErrAcquireCanceled):
					mu.Lock()
					canceled++
					mu.Unlock()
				case errors.Is(err, rategate.ErrGateClosed):
					return
				}
			}
		}()
	}
	wg.Wait()

	report := Report{
		Admissions:  len(admissions),
		Canceled:    canceled,
		MaxInWindow: MaxInWindow(admissions, gate.ResetSpan()),
		Expected:    expected(gate.MaxCount(), gate.ResetSpan(), opts.Duration),
		Elapsed:     time.Since(start),
		Stats:       gate.Stats(),
	}

	logger.Info("simulation finished",
		slog.String("gate", gate.Name()),
		slog.Int("admissions", report.Admissions),
		slog.Int("expected", report.Expected),
		slog.Int("max_in_window", report.MaxInWindow),
		slog.Duration("elapsed", report.Elapsed),
	)

	return report, ctx.Err()
}

// MaxInWindow returns the largest number of times that fall within any half-open window
// [t, t+span). It returns 0 when span is not positive.
func MaxInWindow(times []time.Time, span time.Duration) int {
	if span <= 0 || len(times) == 0 {
		return 0
	}

	sorted := make([]time.Time, len(times))
	copy(sorted, times)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Before(sorted[j]) })

	best, lo := 0, 0
	for hi := range sorted {
		for sorted[hi].Sub(sorted[lo]) >= span {
			lo++
		}
		if n := hi - lo + 1; n > best {
			best = n
		}
	}
	return best
}

func expected(maxCount int, resetSpan, duration time.Duration) int {
	if resetSpan <= 0 {
		return 0
	}
	return maxCount * int(duration/resetSpan)
}
