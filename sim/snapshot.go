package sim

import "sync/atomic"

// Snapshot is the point-in-time immutable copy of simulation state the
// orchestrator publishes once per tick. Observers (a renderer, a test)
// read it at their own cadence; nothing mutates a snapshot after
// publication.
type Snapshot struct {
	Tick     int64
	SimTimeS float64

	Vehicles  []VehicleState
	Decisions map[string]Decision // effective decisions applied this tick

	GreenAxis Axis
	Bus       BusReport

	SafetyInterventions  int
	CollisionResolutions int
}

// SnapshotBoard is the single shared slot between the tick loop and its
// observers: an atomic pointer swap on publish, a lock-free load on
// read. The observer never sees a partially-written snapshot and never
// blocks the tick loop.
type SnapshotBoard struct {
	latest atomic.Pointer[Snapshot]
}

// Publish installs snap as the latest snapshot.
func (b *SnapshotBoard) Publish(snap *Snapshot) {
	b.latest.Store(snap)
}

// Latest returns the most recently published snapshot, or nil before
// the first tick completes.
func (b *SnapshotBoard) Latest() *Snapshot {
	return b.latest.Load()
}
