package sim

import (
	"hash/fnv"
	"math/rand"
)

// Subsystem names for RNG partitioning. Each subsystem draws from its
// own stream so that, say, extra bus traffic never perturbs spawn
// placement between two runs with the same seed.
const (
	SubsystemSpawn     = "spawn"
	SubsystemBus       = "bus"
	SubsystemInference = "inference"
)

// PartitionedRNG derives an isolated, deterministic RNG per subsystem
// from a single master seed: derived = seed XOR fnv1a64(name).
//
// Not safe for concurrent use; every subsystem stream is drawn from the
// goroutine that owns it.
type PartitionedRNG struct {
	seed       int64
	subsystems map[string]*rand.Rand
}

// NewPartitionedRNG creates a PartitionedRNG from the run's master seed.
func NewPartitionedRNG(seed int64) *PartitionedRNG {
	return &PartitionedRNG{
		seed:       seed,
		subsystems: make(map[string]*rand.Rand),
	}
}

// ForSubsystem returns the cached RNG for name, creating it on first
// use. The same (seed, name) pair always yields the same stream.
func (p *PartitionedRNG) ForSubsystem(name string) *rand.Rand {
	if rng, ok := p.subsystems[name]; ok {
		return rng
	}
	rng := rand.New(rand.NewSource(p.seed ^ fnv1a64(name)))
	p.subsystems[name] = rng
	return rng
}

// SeedFor returns the derived 64-bit seed for name, for components that
// build their own source (the bus's gonum sampler).
func (p *PartitionedRNG) SeedFor(name string) uint64 {
	return uint64(p.seed ^ fnv1a64(name))
}

// Seed returns the master seed.
func (p *PartitionedRNG) Seed() int64 {
	return p.seed
}

func fnv1a64(s string) int64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return int64(h.Sum64())
}
