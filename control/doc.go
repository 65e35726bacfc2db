// Package control
// Author: momentics <momentics@gmail.com>
//
// Hot-reload, runtime metrics, configuration control, and debug introspection
// layer for the RPC runtime: session window sizes, SM retry intervals, and
// pacing wheel parameters all live in a ConfigStore; per-session and
// per-endpoint counters (session count, in-flight requests, retry-set size,
// background queue depth) are reported through a MetricsRegistry.
//
// Provides concurrent-safe state handling primitives including:
//   - Immutable snapshot config reads and atomic updates
//   - Runtime observers for hot-reload
//   - Metrics telemetry contracts
//   - State export, debug hooks, and probe registration
//
// This package is cross-platform and build-tag-partitioned as needed.
package control
