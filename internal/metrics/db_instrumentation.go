package metrics

import (
	"time"
)

// MeasureDBQuery wraps a processed-stake store operation with timing
// instrumentation. Usage:
//
//	defer metrics.MeasureDBQuery(m, "record_stake", "postgres")()
//
// A nil collector yields a no-op so store helpers do not need nil checks.
func MeasureDBQuery(m *Metrics, operation, backend string) func() {
	if m == nil {
		return func() {}
	}
	start := time.Now()
	return func() {
		m.ObserveDBQuery(operation, backend, time.Since(start))
	}
}
