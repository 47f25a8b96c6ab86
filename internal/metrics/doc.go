// Package metrics defines the Prometheus collectors for the guard and the
// lock backends. A nil *Metrics is valid and records nothing.
package metrics
