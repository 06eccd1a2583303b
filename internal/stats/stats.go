// Package stats holds the runtime counters the path builder updates.
//
// Grounded on blink/path.c's STATISTIC/AVERAGE macros (path_count,
// path_ooms, path_abandoned, path_longest, path_longest_bytes,
// path_average_elements, path_average_bytes, instructions_jitted) and on
// the shared-struct-guarded-by-one-lock style used by
// tetratelabs/wazero's internal/engine/compiler engine (engine.mux
// guarding engine.codes). Because these counters are written only by the
// path builder (per op, and when finishing or abandoning a path), and read far more
// often by humans than by other machines, plain atomics suffice without
// a dedicated lock per field.
package stats

import "sync/atomic"

// runningAverage tracks a mean incrementally, mirroring blink's AVERAGE
// macro: avg += (sample - avg) / ++n.
type runningAverage struct {
	n   atomic.Int64
	avg atomic.Int64
}

func (r *runningAverage) observe(sample int64) {
	n := r.n.Add(1)
	// Integer approximation of avg += (sample-avg)/n, matching the
	// coarse precision blink's floating STATISTIC counters already have
	// in practice once truncated for display.
	prev := r.avg.Load()
	r.avg.Store(prev + (sample-prev)/n)
}

func (r *runningAverage) value() int64 { return r.avg.Load() }

// Stats accumulates path-builder statistics for one System.
type Stats struct {
	pathCount          atomic.Int64
	pathOOMs           atomic.Int64
	pathAbandoned      atomic.Int64
	pathLongest        atomic.Int64
	pathLongestBytes   atomic.Int64
	instructionsJitted atomic.Int64

	averageElements runningAverage
	averageBytes    runningAverage
}

// IncPathCount records a successfully finalized path.
func (s *Stats) IncPathCount() { s.pathCount.Add(1) }

// IncPathOOMs records a path that ran out of JIT arena space at finalize time.
func (s *Stats) IncPathOOMs() { s.pathOOMs.Add(1) }

// IncPathAbandoned records an explicit AbandonPath.
func (s *Stats) IncPathAbandoned() { s.pathAbandoned.Add(1) }

// IncInstructionsJitted records one more op offered to the path builder.
func (s *Stats) IncInstructionsJitted() { s.instructionsJitted.Add(1) }

// ObservePathLength updates the longest-path and running-average-length
// counters for a path of the given element count and byte size.
func (s *Stats) ObservePathLength(elements, bytes int) {
	for {
		cur := s.pathLongest.Load()
		if int64(elements) <= cur || s.pathLongest.CompareAndSwap(cur, int64(elements)) {
			break
		}
	}
	for {
		cur := s.pathLongestBytes.Load()
		if int64(bytes) <= cur || s.pathLongestBytes.CompareAndSwap(cur, int64(bytes)) {
			break
		}
	}
	s.averageElements.observe(int64(elements))
	s.averageBytes.observe(int64(bytes))
}

// Snapshot is a point-in-time, non-atomic copy of the counters, for tests
// and diagnostics.
type Snapshot struct {
	PathCount          int64
	PathOOMs           int64
	PathAbandoned      int64
	PathLongest        int64
	PathLongestBytes   int64
	InstructionsJitted int64
	AverageElements    int64
	AverageBytes       int64
}

// Snapshot reads all counters.
func (s *Stats) Snapshot() Snapshot {
	return Snapshot{
		PathCount:          s.pathCount.Load(),
		PathOOMs:           s.pathOOMs.Load(),
		PathAbandoned:      s.pathAbandoned.Load(),
		PathLongest:        s.pathLongest.Load(),
		PathLongestBytes:   s.pathLongestBytes.Load(),
		InstructionsJitted: s.instructionsJitted.Load(),
		AverageElements:    s.averageElements.value(),
		AverageBytes:       s.averageBytes.value(),
	}
}
