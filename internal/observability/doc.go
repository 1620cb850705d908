// Package observability builds the gateway's zap logger and exposes search
// counters and engine health to Prometheus.
package observability
