package obs

import (
	"sync/atomic"
	"time"

	"calc/internal/host"
)

const maxEntry = int(host.EntryBalances)

// Metrics collects lightweight engine counters and latency stats.
type Metrics struct {
	entryCounts  [maxEntry + 1]uint64
	rejections   [maxEntry + 1]uint64
	visits       uint64
	skips        uint64
	suspends     uint64
	repliesOK    uint64
	repliesError uint64
	staleResumes uint64

	entryLatency LatencyStats
}

// LatencyStats aggregates duration samples in nanoseconds.
type LatencyStats struct {
	count uint64
	sum   uint64
	min   uint64
	max   uint64
}

// LatencySnapshot is a point-in-time view of latency stats.
type LatencySnapshot struct {
	Count uint64
	Min   time.Duration
	Max   time.Duration
	Avg   time.Duration
}

// Snapshot captures the current metrics values.
type Snapshot struct {
	EntryCounts  map[host.Entry]uint64
	Rejections   map[host.Entry]uint64
	Visits       uint64
	Skips        uint64
	Suspends     uint64
	RepliesOK    uint64
	RepliesError uint64
	StaleResumes uint64
	EntryLatency LatencySnapshot
}

// NewMetrics allocates a metrics container.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// ObserveEntry counts one invocation of entry and its handling time.
func (m *Metrics) ObserveEntry(entry host.Entry, d time.Duration, rejected bool) {
	if m == nil {
		return
	}
	idx := int(entry)
	if idx >= 0 && idx < len(m.entryCounts) {
		atomic.AddUint64(&m.entryCounts[idx], 1)
		if rejected {
			atomic.AddUint64(&m.rejections[idx], 1)
		}
	}
	m.entryLatency.Observe(d)
}

// IncVisit records a visited node.
func (m *Metrics) IncVisit() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.visits, 1)
}

// AddSkips records skipped events.
func (m *Metrics) AddSkips(n int) {
	if m == nil || n <= 0 {
		return
	}
	atomic.AddUint64(&m.skips, uint64(n))
}

// IncSuspend records a pass suspended waiting for its continuation.
func (m *Metrics) IncSuspend() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.suspends, 1)
}

// IncReply records a reply by outcome.
func (m *Metrics) IncReply(ok bool) {
	if m == nil {
		return
	}
	if ok {
		atomic.AddUint64(&m.repliesOK, 1)
		return
	}
	atomic.AddUint64(&m.repliesError, 1)
}

// IncStaleResume records a continuation that no longer matched the pending
// marker.
func (m *Metrics) IncStaleResume() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.staleResumes, 1)
}

// Snapshot returns a copy of the current metrics values.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	entries := make(map[host.Entry]uint64)
	rejections := make(map[host.Entry]uint64)
	for i := range m.entryCounts {
		if v := atomic.LoadUint64(&m.entryCounts[i]); v > 0 {
			entries[host.Entry(i)] = v
		}
		if v := atomic.LoadUint64(&m.rejections[i]); v > 0 {
			rejections[host.Entry(i)] = v
		}
	}
	return Snapshot{
		EntryCounts:  entries,
		Rejections:   rejections,
		Visits:       atomic.LoadUint64(&m.visits),
		Skips:        atomic.LoadUint64(&m.skips),
		Suspends:     atomic.LoadUint64(&m.suspends),
		RepliesOK:    atomic.LoadUint64(&m.repliesOK),
		RepliesError: atomic.LoadUint64(&m.repliesError),
		StaleResumes: atomic.LoadUint64(&m.staleResumes),
		EntryLatency: m.entryLatency.Snapshot(),
	}
}

// Observe records a duration sample.
func (l *LatencyStats) Observe(d time.Duration) {
	if d < 0 {
		return
	}
	nanos := uint64(d)
	atomic.AddUint64(&l.count, 1)
	atomic.AddUint64(&l.sum, nanos)

	for {
		low := atomic.LoadUint64(&l.min)
		if low != 0 && nanos >= low {
			break
		}
		if atomic.CompareAndSwapUint64(&l.min, low, nanos) {
			break
		}
	}

	for {
		high := atomic.LoadUint64(&l.max)
		if nanos <= high {
			break
		}
		if atomic.CompareAndSwapUint64(&l.max, high, nanos) {
			break
		}
	}
}

// Snapshot returns the aggregated latency stats.
func (l *LatencyStats) Snapshot() LatencySnapshot {
	count := atomic.LoadUint64(&l.count)
	if count == 0 {
		return LatencySnapshot{}
	}
	sum := atomic.LoadUint64(&l.sum)
	return LatencySnapshot{
		Count: count,
		Min:   time.Duration(atomic.LoadUint64(&l.min)),
		Max:   time.Duration(atomic.LoadUint64(&l.max)),
		Avg:   time.Duration(sum / count),
	}
}
