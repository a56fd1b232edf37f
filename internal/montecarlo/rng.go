package montecarlo

import (
	"math/rand"
	"sync"
)

// Draw streams are derived from (seed, draw index) with a splitmix64-style
// mix. Each draw owns an independent deterministic stream, so draws can be
// partitioned across workers in any order without changing results, and the
// generator is never seeded from the wall clock.

func mixSeed(seed int64, draw int) int64 {
	z := uint64(seed) + (uint64(draw)+1)*0x9E3779B97F4A7C15
	z ^= z >> 30
	z *= 0xBF58476D1CE4E5B9
	z ^= z >> 27
	z *= 0x94D049BB133111EB
	z ^= z >> 31
	return int64(z)
}

// drawRNG returns the deterministic stream for one draw of a run.
func drawRNG(seed int64, draw int) *rand.Rand {
	return rand.New(rand.NewSource(mixSeed(seed, draw)))
}

// StreamSource hands out per-draw streams for one run seed.
type StreamSource struct {
	seed int64
}

// Seed returns the run seed the source was created for.
func (s *StreamSource) Seed() int64 { return s.seed }

// Stream returns the deterministic stream for a draw index.
func (s *StreamSource) Stream(draw int) *rand.Rand {
	return drawRNG(s.seed, draw)
}

// StreamRegistry is the process-wide registry of deterministic generator
// sources, keyed by explicit run seed. It exists so concurrent analysis
// calls sharing a seed observe the same stream derivation; it holds no
// mutable generator state.
type StreamRegistry struct {
	mu      sync.Mutex
	sources map[int64]*StreamSource
}

// NewStreamRegistry creates an empty registry.
func NewStreamRegistry() *StreamRegistry {
	return &StreamRegistry{sources: make(map[int64]*StreamSource)}
}

// DefaultRegistry is the process-wide registry used by the simulator.
var DefaultRegistry = NewStreamRegistry()

// Source returns the stream source for a seed, creating it on first use.
func (r *StreamRegistry) Source(seed int64) *StreamSource {
	r.mu.Lock()
	defer r.mu.Unlock()
	src, ok := r.sources[seed]
	if !ok {
		src = &StreamSource{seed: seed}
		r.sources[seed] = src
	}
	return src
}
