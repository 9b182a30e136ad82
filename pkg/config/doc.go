// Package config loads rategate configuration from YAML files and RATEGATE_* environment
// variables.
//
// A complete file looks like this:
//
//	gate:
//	  name: upstream-api
//	  max_count: 10
//	  reset_span: 1s
//	logging:
//	  level: debug
//	  format: json
//	metrics:
//	  enabled: true
//	  address: 127.0.0.1:9090
//	  path: /metrics
//	redis:
//	  enabled: true
//	  addr: localhost:6379
//	  prefix: rategate:stats
//	  ttl: 24h
//	demo:
//	  callers: 100
//	  duration: 2s
//	  arrival_rate: 0
//
// Every field is optional. Zero values are replaced by the defaults in defaults.go and
// environment variables named RATEGATE_SECTION_FIELD override both.
package config
