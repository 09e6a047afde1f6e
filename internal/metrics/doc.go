// Package metrics holds the prometheus collectors the pipeline reports to.
//
// Collectors are registered on a caller-owned registry so tests and
// repeated runs in one process never collide. All methods are safe on a
// nil *Metrics, which records nothing.
package metrics
