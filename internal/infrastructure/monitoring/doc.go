// Package monitoring provides Prometheus metrics for the orchestration
// service: HTTP traffic, layout persistence, conversation attention
// transitions, activation runs, and control-channel activity.
package monitoring
