package factory

import (
	"log/slog"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/pgvanniekerk/rategate/pkg/config"
	"github.com/pgvanniekerk/rategate/pkg/metrics"
	"github.com/pgvanniekerk/rategate/pkg/rategate"
)

// gateOptions represents configuration options for a RateGate: admission count, window length and observability hooks.
type gateOptions struct {
	maxCount  int
	resetSpan time.Duration
	name      string
	logger    *slog.Logger
	recorder  rategate.Recorder
}

// gateOption defines a functional option for customizing the RateGate built by CreateGate.
type gateOption func(*gateOptions)

// WithMaxCount sets how many admissions the gate allows per reset span.
func WithMaxCount(maxCount int) gateOption {
	return func(options *gateOptions) {
		options.maxCount = maxCount
	}
}

// WithResetSpan sets the length of the gate's rolling window.
func WithResetSpan(resetSpan time.Duration) gateOption {
	return func(options *gateOptions) {
		options.resetSpan = resetSpan
	}
}

// WithName sets the name the gate reports in logs and metrics.
func WithName(name string) gateOption {
	return func(options *gateOptions) {
		options.name = name
	}
}

// WithLogger sets the logger the gate writes to.
func WithLogger(logger *slog.Logger) gateOption {
	return func(options *gateOptions) {
		options.logger = logger
	}
}

// WithRecorder sets the recorder that receives the gate's events.
func WithRecorder(recorder rategate.Recorder) gateOption {
	return func(options *gateOptions) {
		options.recorder = recorder
	}
}

// CreateGate initializes a RateGate with customizable options and returns it or an error if creation fails.
// It defaults the admission count to the CPU core count and the reset span to one second.
func CreateGate(opts ...gateOption) (*rategate.RateGate, error) {

	options := &gateOptions{}

	// Default admissions to CPU core count per second
	options.maxCount = runtime.NumCPU()
	options.resetSpan = time.Second

	for idx := range opts {
		opts[idx](options)
	}

	return rategate.New(
		options.maxCount,
		options.resetSpan,
		rategate.WithName(options.name),
		rategate.WithLogger(options.logger),
		rategate.WithRecorder(options.recorder),
	)
}

// FromConfig creates a RateGate from the gate section of cfg. logger and recorder may be nil.
func FromConfig(cfg *config.Config, logger *slog.Logger, recorder rategate.Recorder) (*rategate.RateGate, error) {
	return CreateGate(
		WithMaxCount(cfg.Gate.MaxCount),
		WithResetSpan(cfg.Gate.ResetSpan),
		WithName(cfg.Gate.Name),
		WithLogger(logger),
		WithRecorder(recorder),
	)
}

// RecorderFromConfig builds the recorders enabled in cfg. Prometheus collectors are
// registered with reg. The returned recorder is nil when nothing is enabled.
//
// The Redis client created here is owned by the recorder and closed with it, so closing
// the gate that uses the recorder releases everything.
func RecorderFromConfig(cfg *config.Config, reg prometheus.Registerer, logger *slog.Logger) rategate.Recorder {
	var recorders []rategate.Recorder

	if cfg.Metrics.Enabled && reg != nil {
		recorders = append(recorders, metrics.NewPrometheusRecorder(reg))
	}

	if cfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		recorders = append(recorders, &ownedRedisRecorder{
			RedisRecorder: metrics.NewRedisRecorder(client,
				metrics.WithRedisPrefix(cfg.Redis.Prefix),
				metrics.WithRedisTTL(cfg.Redis.TTL),
				metrics.WithRedisBufferSize(cfg.Redis.BufferSize),
				metrics.WithRedisLogger(logger),
			),
			client: client,
		})
	}

	switch len(recorders) {
	case 0:
		return nil
	case 1:
		return recorders[0]
	default:
		return metrics.Multi(recorders...)
	}
}

// ownedRedisRecorder closes its client after the recorder has flushed.
type ownedRedisRecorder struct {
	*metrics.RedisRecorder
	client *redis.Client
}

func (o *ownedRedisRecorder) Close() error {
	if err := o.RedisRecorder.Close(); err != nil {
		return err
	}
	return o.client.Close()
}
