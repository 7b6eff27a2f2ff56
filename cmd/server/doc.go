// Package main is the entry point for the workbench orchestration server.
//
// The server coordinates a multi-pane agent workspace: it owns the layout
// tree for each project, tracks every conversation's attention state from
// polling and push events, and drives panel activation when conversations
// (re)open.
//
// Architecture:
//
//	Workspace UI ←WebSocket/REST→ workbench → Agent backend (REST)
//	                                        → Persistence service (REST)
//
// The server provides:
//   - REST API for conversation actions and layout mutations
//   - A WebSocket control channel for commands and state reports
//   - A push-event ingress for upstream attention signals
//   - Rate limiting and Prometheus metrics
//
// Configuration:
//   - Environment variables (12-factor)
//   - CLI flags (override env vars)
//   - Defaults for development
//
// Usage:
//
//	# Production mode
//	./server -port 8400 -agent http://localhost:3001 -store http://localhost:3002
//
//	# Development mode (colored logs, debug level)
//	./server -dev
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown
package main
