package metrics

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pgvanniekerk/rategate/pkg/rategate"
)

// Hash fields written by RedisRecorder.
const (
	FieldAdmitted       = "admitted"
	FieldReleased       = "released"
	FieldCanceledSlot   = "canceled_slot"
	FieldCanceledWindow = "canceled_window"
	FieldWaitMillis     = "wait_ms"
)

// RedisRecorder counts gate events in Redis hashes so several processes sharing an
// upstream can see their combined traffic.
//
// For a gate named "api" and the default prefix it maintains:
//
//	rategate:stats:api:total                 cumulative counters, never expire
//	rategate:stats:api:minute:200601021504   per-minute counters, expire after the TTL
//
// Events are queued on a buffered channel and written by a background goroutine in
// pipelined batches, so recording never blocks the gate. When the buffer is full events
// are dropped and counted; see Dropped.
type RedisRecorder struct {
	rdb redis.UniversalClient

	prefix     string
	ttl        time.Duration
	timeout    time.Duration
	bufferSize int
	logger     *slog.Logger

	events  chan redisEvent
	dropped atomic.Int64

	// closeMutex orders enqueues against Close: once closed is set no event reaches
	// the buffer, so the final drain sees everything that was accepted.
	closeMutex sync.RWMutex
	closed     bool

	stopChan  chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

type redisEvent struct {
	gate  string
	field string
	wait  time.Duration
	at    time.Time
}

// RedisOption configures a RedisRecorder.
type RedisOption func(*RedisRecorder)

// WithRedisPrefix sets the key prefix. Leading and trailing colons are trimmed.
func WithRedisPrefix(prefix string) RedisOption {
	return func(r *RedisRecorder) { r.prefix = strings.Trim(prefix, ":") }
}

// WithRedisTTL sets how long per-minute buckets are kept. Zero keeps them forever.
func WithRedisTTL(d time.Duration) RedisOption {
	return func(r *RedisRecorder) { r.ttl = d }
}

// WithRedisTimeout bounds each pipelined write.
func WithRedisTimeout(d time.Duration) RedisOption {
	return func(r *RedisRecorder) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithRedisBufferSize sets how many events may be queued before new ones are dropped.
func WithRedisBufferSize(n int) RedisOption {
	return func(r *RedisRecorder) {
		if n > 0 {
			r.bufferSize = n
		}
	}
}

// WithRedisLogger sets the logger used to report failed writes.
func WithRedisLogger(logger *slog.Logger) RedisOption {
	return func(r *RedisRecorder) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRedisRecorder creates a RedisRecorder writing through rdb and starts its writer
// goroutine. Call Close to flush queued events and stop it; closing a RateGate that uses
// the recorder does this.
func NewRedisRecorder(rdb redis.UniversalClient, opts ...RedisOption) *RedisRecorder {
	r := &RedisRecorder{
		rdb:        rdb,
		prefix:     "rategate:stats",
		ttl:        24 * time.Hour,
		timeout:    time.Second,
		bufferSize: 1024,
		logger:     slog.New(slog.DiscardHandler),
		stopChan:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.events = make(chan redisEvent, r.bufferSize)

	r.wg.Add(1)
	go r.run()

	return r
}

// Admitted implements rategate.Recorder.
func (r *RedisRecorder) Admitted(gate string, wait time.Duration, _ int64) {
	r.enqueue(redisEvent{gate: gate, field: FieldAdmitted, wait: wait, at: time.Now()})
}

// Canceled implements rategate.Recorder.
func (r *RedisRecorder) Canceled(gate string, stage rategate.CancelStage) {
	field := FieldCanceledSlot
	if stage == rategate.StageWindow {
		field = FieldCanceledWindow
	}
	r.enqueue(redisEvent{gate: gate, field: field, at: time.Now()})
}

// Released implements rategate.Recorder.
func (r *RedisRecorder) Released(gate string, _ int64) {
	r.enqueue(redisEvent{gate: gate, field: FieldReleased, at: time.Now()})
}

// Dropped returns the number of events discarded because the buffer was full or the
// recorder was closed.
func (r *RedisRecorder) Dropped() int64 {
	return r.dropped.Load()
}

// Close stops the writer goroutine after flushing the events already queued.
// It is safe to call more than once.
func (r *RedisRecorder) Close() error {
	r.closeOnce.Do(func() {
		r.closeMutex.Lock()
		r.closed = true
		r.closeMutex.Unlock()

		close(r.stopChan)
		r.wg.Wait()
	})
	return nil
}

// TotalKey returns the key holding the cumulative counters of gate.
func (r *RedisRecorder) TotalKey(gate string) string {
	return fmt.Sprintf("%s:%s:total", r.prefix, gate)
}

// MinuteKey returns the key holding the counters of gate for the minute containing at.
func (r *RedisRecorder) MinuteKey(gate string, at time.Time) string {
	return fmt.Sprintf("%s:%s:minute:%s", r.prefix, gate, at.UTC().Format("200601021504"))
}

func (r *RedisRecorder) enqueue(ev redisEvent) {
	r.closeMutex.RLock()
	defer r.closeMutex.RUnlock()

	if r.closed {
		r.dropped.Add(1)
		return
	}

	select {
	case r.events <- ev:
	default:
		r.dropped.Add(1)
	}
}

// run is the writer goroutine. It batches whatever is queued into one pipeline.
func (r *RedisRecorder) run() {
	defer r.wg.Done()

	const maxBatch = 256
	batch := make([]redisEvent, 0, maxBatch)

	for {
		select {
		case <-r.stopChan:
			// Drain remaining events
			for len(r.events) > 0 {
				batch = append(batch, <-r.events)
				if len(batch) == maxBatch {
					r.flush(batch)
					batch = batch[:0]
				}
			}
			if len(batch) > 0 {
				r.flush(batch)
			}
			return

		case ev := <-r.events:
			batch = append(batch[:0], ev)
			for len(batch) < maxBatch && len(r.events) > 0 {
				batch = append(batch, <-r.events)
			}
			r.flush(batch)
			batch = batch[:0]
		}
	}
}

func (r *RedisRecorder) flush(batch []redisEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	pipe := r.rdb.Pipeline()
	for _, ev := range batch {
		totalKey := r.TotalKey(ev.gate)
		minuteKey := r.MinuteKey(ev.gate, ev.at)

		pipe.HIncrBy(ctx, totalKey, ev.field, 1)
		pipe.HIncrBy(ctx, minuteKey, ev.field, 1)
		if ev.wait > 0 {
			pipe.HIncrBy(ctx, totalKey, FieldWaitMillis, ev.wait.Milliseconds())
			pipe.HIncrBy(ctx, minuteKey, FieldWaitMillis, ev.wait.Milliseconds())
		}
		if r.ttl > 0 {
			pipe.Expire(ctx, minuteKey, r.ttl)
		}
	}

	if _, err := pipe.Exec(ctx); err != nil {
		r.logger.Warn("failed to write gate stats to redis",
			slog.Int("events", len(batch)),
			slog.Any("error", err),
		)
	}
}
