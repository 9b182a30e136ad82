// rategate drives a sliding-window rate gate with simulated load.
//
// Usage:
//
//	# 100 callers against 5 admissions per 200ms for two seconds
//	rategate simulate --max-count 5 --reset-span 200ms --callers 100 --duration 2s
//
//	# Use a configuration file and expose Prometheus metrics while running
//	RATEGATE_METRICS_ENABLED=true rategate simulate --config rategate.yaml
//
//	# Show version information
//	rategate version
package main

func main() {
	Execute()
}
