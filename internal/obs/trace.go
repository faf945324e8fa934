package obs

import (
	"sync/atomic"
	"time"
)

// TraceGenerator hands out the ids that tie a journaled request to its
// response. Ids only grow within one process.
type TraceGenerator struct {
	last atomic.Uint64
}

// NewTraceGenerator starts after seed. A zero seed starts from the clock so
// ids from consecutive runs do not collide.
func NewTraceGenerator(seed uint64) *TraceGenerator {
	if seed == 0 {
		seed = uint64(time.Now().UTC().UnixNano())
	}
	g := &TraceGenerator{}
	g.last.Store(seed)
	return g
}

// Next returns a fresh id. A nil generator returns 0.
func (g *TraceGenerator) Next() uint64 {
	if g == nil {
		return 0
	}
	return g.last.Add(1)
}

// Last returns the most recent id handed out, or the seed.
func (g *TraceGenerator) Last() uint64 {
	if g == nil {
		return 0
	}
	return g.last.Load()
}
