// Package metrics exposes heat pump and coordinator state as Prometheus
// metrics.
//
// A Collector owns its own registry so tests and multiple bridges never
// share global state. It implements coordinator.Observer for fetch and write
// timing, and Update copies a register snapshot into gauges.
package metrics
