package sim

import (
	"hash/fnv"
	"math/rand"
)

// SimulationKey is the master seed of a run. Equal keys and configurations
// give equal generation and placement decisions; the wall-clock interleaving
// of actors is not covered.
type SimulationKey int64

func NewSimulationKey(seed int64) SimulationKey {
	return SimulationKey(seed)
}

// RNG subsystems. Each actor that draws random numbers gets its own stream so
// that one actor's draw count never shifts another's sequence.
const (
	SubsystemGenerator = "generator" // arrival trials, kind, size and request ids
	SubsystemAllocator = "allocator" // random placement permutations
)

// PartitionedRNG hands out one seeded *rand.Rand per subsystem.
// The generator stream is seeded with the key itself, so a run's requests
// match a plain rand.New(rand.NewSource(seed)); every other stream is
// seeded with key XOR fnv1a64(name).
//
// Not safe for concurrent use. Resolve streams while wiring the cluster and
// give each one to the single goroutine that draws from it.
type PartitionedRNG struct {
	key        SimulationKey
	subsystems map[string]*rand.Rand
}

func NewPartitionedRNG(key SimulationKey) *PartitionedRNG {
	return &PartitionedRNG{key: key, subsystems: make(map[string]*rand.Rand)}
}

// ForSubsystem returns the stream for name, creating it on first use.
// Repeated calls return the same instance.
func (p *PartitionedRNG) ForSubsystem(name string) *rand.Rand {
	if r, ok := p.subsystems[name]; ok {
		return r
	}
	r := rand.New(rand.NewSource(p.seedFor(name)))
	p.subsystems[name] = r
	return r
}

func (p *PartitionedRNG) seedFor(name string) int64 {
	if name == SubsystemGenerator {
		return int64(p.key)
	}
	return int64(p.key) ^ fnv1a64(name)
}

func (p *PartitionedRNG) Key() SimulationKey {
	return p.key
}

func fnv1a64(s string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return int64(h.Sum64())
}
