// Package metrics provides rategate.Recorder implementations.
//
// PrometheusRecorder exposes admissions, cancellations, window waits and in-flight callers
// as Prometheus collectors. RedisRecorder keeps cumulative and per-minute counters in
// Redis, which is useful when several processes throttle the same upstream. Multi combines
// recorders so a gate can feed both.
//
//	reg := prometheus.NewRegistry()
//	rec := metrics.Multi(
//		metrics.NewPrometheusRecorder(reg),
//		metrics.NewRedisRecorder(redisClient),
//	)
//	gate, err := rategate.New(10, time.Second, rategate.WithRecorder(rec))
package metrics
