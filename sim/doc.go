// Package sim is the core of the V2X intersection simulator.
//
// # Reading Guide
//
// Start with these three files to understand the simulation kernel:
//   - bus.go: the lossy, latency-injecting pub/sub transport
//   - world.go: vehicle state, stop-sign arbitration, and the safety overlays
//   - bridge.go: the fixed-rate tick loop and snapshot publication
//
// # Architecture
//
// One tick flows World → v2v.state → DecisionAdapter → external
// inference → i2v.command → World.UpdatePhysics → Snapshot. The bus
// runs on virtual time: messages mature at a tick computed at publish,
// and Drain never blocks. The deterministic safety layer (signal gate,
// stop-sign arbitration, collision guard, overlap resolver) always
// outranks the inference verdict; the fail-safe default for a missing
// or faulted decision is STOP, never GO.
//
// The external contracts are small: InferenceFunc is the pure model
// function the adapter calls, and SnapshotBoard is the atomic handoff
// a renderer polls at its own cadence. Decision-audit records live in
// sim/trace.
//
// Determinism: a run is fully reproduced by its SimConfig — the master
// seed partitions into per-subsystem RNG streams (spawn, bus), so the
// same seed and tick count yield an identical snapshot sequence as
// long as the inference function is itself deterministic.
package sim
