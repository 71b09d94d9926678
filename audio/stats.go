package audio

import (
	"sync/atomic"
	"time"
)

// Stats records callback timing. Record is called from the real-time
// goroutine only and does not lock; Snapshot may be called from anywhere.
type Stats struct {
	cycles   atomic.Int64
	overruns atomic.Int64
	totalNs  atomic.Int64
	maxNs    atomic.Int64
	lastNs   atomic.Int64
}

// StatsSnapshot is a point-in-time copy of Stats.
type StatsSnapshot struct {
	Cycles   int64         `json:"cycles"`
	Overruns int64         `json:"overruns"`
	Max      time.Duration `json:"max_ns"`
	Mean     time.Duration `json:"mean_ns"`
	Last     time.Duration `json:"last_ns"`
}

// Record adds one callback duration. A duration longer than period counts
// as an overrun.
func (s *Stats) Record(d, period time.Duration) {
	ns := int64(d)
	s.cycles.Add(1)
	s.totalNs.Add(ns)
	s.lastNs.Store(ns)
	if period > 0 && d > period {
		s.overruns.Add(1)
	}
	for {
		cur := s.maxNs.Load()
		if ns <= cur || s.maxNs.CompareAndSwap(cur, ns) {
			break
		}
	}
}

func (s *Stats) Snapshot() StatsSnapshot {
	snap := StatsSnapshot{
		Cycles:   s.cycles.Load(),
		Overruns: s.overruns.Load(),
		Max:      time.Duration(s.maxNs.Load()),
		Last:     time.Duration(s.lastNs.Load()),
	}
	if snap.Cycles > 0 {
		snap.Mean = time.Duration(s.totalNs.Load() / snap.Cycles)
	}
	return snap
}

func (s *Stats) Reset() {
	s.cycles.Store(0)
	s.overruns.Store(0)
	s.totalNs.Store(0)
	s.maxNs.Store(0)
	s.lastNs.Store(0)
}
