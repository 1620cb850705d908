// Package stats keeps per-engine attempt counters for diagnostics. It is
// purely observational and never influences routing.
package stats

import (
	"sync"

	"github.com/upb/search-gateway/services/providers"
)

// EngineStats are the counters for one engine
type EngineStats struct {
	Attempts       int64                         `json:"attempts"`
	Successes      int64                         `json:"successes"`
	EmptyResults   int64                         `json:"empty_results"`
	FailuresByKind map[providers.ErrorKind]int64 `json:"failures_by_kind"`
}

// Failures sums every failure kind
func (s EngineStats) Failures() int64 {
	var total int64
	for _, n := range s.FailuresByKind {
		total += n
	}
	return total
}

// Snapshot is a deep copy of all counters
type Snapshot struct {
	Requests  int64                            `json:"requests"`
	Degraded  int64                            `json:"degraded"`
	PerEngine map[providers.Engine]EngineStats `json:"per_engine"`
}

// Aggregator accumulates counters under a single mutex. Counters only grow.
type Aggregator struct {
	mu        sync.Mutex
	requests  int64
	degraded  int64
	perEngine map[providers.Engine]*EngineStats
}

// NewAggregator creates an aggregator with zeroed counters for every known engine
func NewAggregator() *Aggregator {
	a := &Aggregator{
		perEngine: make(map[providers.Engine]*EngineStats),
	}
	for _, e := range providers.AllEngines() {
		a.perEngine[e] = newEngineStats()
	}
	return a
}

func newEngineStats() *EngineStats {
	return &EngineStats{FailuresByKind: make(map[providers.ErrorKind]int64)}
}

// RecordSuccess counts an attempt that returned a valid payload
func (a *Aggregator) RecordSuccess(engine providers.Engine, resultCount int) {
	a.mu.Lock()
	defer a.mu.Unlock()

	s := a.engine(engine)
	s.Attempts++
	s.Successes++
	if resultCount == 0 {
		s.EmptyResults++
	}
}

// RecordFailure counts a failed attempt under its kind
func (a *Aggregator) RecordFailure(engine providers.Engine, kind providers.ErrorKind) {
	a.mu.Lock()
	defer a.mu.Unlock()

	s := a.engine(engine)
	s.Attempts++
	s.FailuresByKind[kind]++
}

// RecordRequest counts one resolved request
func (a *Aggregator) RecordRequest(degraded bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.requests++
	if degraded {
		a.degraded++
	}
}

// Snapshot returns a deep copy safe to hand out
func (a *Aggregator) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	snap := Snapshot{
		Requests:  a.requests,
		Degraded:  a.degraded,
		PerEngine: make(map[providers.Engine]EngineStats, len(a.perEngine)),
	}
	for e, s := range a.perEngine {
		failures := make(map[providers.ErrorKind]int64, len(s.FailuresByKind))
		for k, n := range s.FailuresByKind {
			failures[k] = n
		}
		snap.PerEngine[e] = EngineStats{
			Attempts:       s.Attempts,
			Successes:      s.Successes,
			EmptyResults:   s.EmptyResults,
			FailuresByKind: failures,
		}
	}
	return snap
}

func (a *Aggregator) engine(e providers.Engine) *EngineStats {
	s, ok := a.perEngine[e]
	if !ok {
		s = newEngineStats()
		a.perEngine[e] = s
	}
	return s
}
