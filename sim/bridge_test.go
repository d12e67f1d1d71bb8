package sim

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func stepN(t *testing.T, b *Bridge, n int) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < n; i++ {
		if err := b.StepOnce(ctx); err != nil {
			t.Fatalf("tick %d: %v", i, err)
		}
	}
}

func TestBridge_SnapshotLifecycle(t *testing.T) {
	bridge, err := NewBridge(DefaultSimConfig(), nil)
	if err != nil {
		t.Fatal(err)
	}

	assert.Nil(t, bridge.Latest(), "no snapshot before the first tick")

	stepN(t, bridge, 1)
	snap := bridge.Latest()
	if snap == nil {
		t.Fatal("no snapshot after the first tick")
	}
	assert.Equal(t, int64(1), snap.Tick)
	assert.Equal(t, 0.05, snap.SimTimeS)
	assert.Len(t, snap.Vehicles, 6)

	// Published snapshots are frozen: later ticks never rewrite them.
	stepN(t, bridge, 5)
	assert.Equal(t, int64(1), snap.Tick)
	assert.Equal(t, int64(6), bridge.Latest().Tick)
}

func TestBridge_DeterministicReplay(t *testing.T) {
	cfg := DefaultSimConfig()
	cfg.Seed = 7
	cfg.Bus.Default = TopicProfile{DropRate: 0.3, LatencyMinTicks: 1, LatencyJitterTicks: 2}

	run := func() *Snapshot {
		bridge, err := NewBridge(cfg, nil)
		if err != nil {
			t.Fatal(err)
		}
		stepN(t, bridge, 200)
		return bridge.Latest()
	}

	a, b := run(), run()
	assert.Equal(t, a.Vehicles, b.Vehicles)
	assert.Equal(t, a.Decisions, b.Decisions)
	assert.Equal(t, a.Bus, b.Bus)
	assert.Equal(t, a.SafetyInterventions, b.SafetyInterventions)
}

func TestBridge_ResetReplaysFromTickZero(t *testing.T) {
	cfg := DefaultSimConfig()
	cfg.Bus.Default = TopicProfile{DropRate: 0.2}
	bridge, err := NewBridge(cfg, nil)
	if err != nil {
		t.Fatal(err)
	}

	stepN(t, bridge, 80)
	before := bridge.Latest()

	if err := bridge.Reset(); err != nil {
		t.Fatal(err)
	}
	fresh := bridge.Latest()
	assert.Equal(t, int64(0), fresh.Tick)
	assert.Empty(t, fresh.Decisions)
	assert.Equal(t, uint64(0), fresh.Bus.Totals().Published)

	stepN(t, bridge, 80)
	after := bridge.Latest()
	assert.Equal(t, before.Vehicles, after.Vehicles)
	assert.Equal(t, before.Bus, after.Bus)
}

func TestBridge_PriorityAxisCrossesFirst(t *testing.T) {
	// Two dwell-bound vehicles, one per axis, identical placement, at an
	// all-way stop: the priority-axis vehicle must be granted first and
	// both must complete their pass.
	cfg := DefaultSimConfig()
	cfg.Layout = []VehicleSpec{
		{ID: "CAR_EW", Approach: ApproachWest, DistanceM: 30, SpeedKmh: 25},
		{ID: "CAR_NS", Approach: ApproachNorth, DistanceM: 30, SpeedKmh: 25},
	}
	cfg.Signs = map[Approach]Sign{
		ApproachWest:  SignStop,
		ApproachNorth: SignStop,
	}
	bridge, err := NewBridge(cfg, nil)
	if err != nil {
		t.Fatal(err)
	}

	entered := map[string]int64{}
	ctx := context.Background()
	for i := 0; i < 4000 && !bridge.Finished(); i++ {
		if err := bridge.StepOnce(ctx); err != nil {
			t.Fatal(err)
		}
		for _, s := range bridge.Latest().Vehicles {
			if s.State == StateInIntersection {
				if _, seen := entered[s.ID]; !seen {
					entered[s.ID] = bridge.Latest().Tick
				}
			}
		}
	}

	if !bridge.Finished() {
		t.Fatal("vehicles never completed their pass")
	}
	ew, ns := entered["CAR_EW"], entered["CAR_NS"]
	if ew == 0 || ns == 0 {
		t.Fatalf("missing intersection entries: %v", entered)
	}
	if ew >= ns {
		t.Errorf("EW entered at tick %d, NS at %d; priority axis must cross first", ew, ns)
	}
	assert.Equal(t, 2, bridge.Metrics().Departed)
}

func TestBridge_TotalCommandLossKeepsIntersectionEmpty(t *testing.T) {
	// With every i2v.command dropped, no vehicle ever receives GO, so
	// the fail-safe keeps all of them out of the intersection forever.
	cfg := DefaultSimConfig()
	cfg.Bus.PerTopic = map[string]TopicProfile{
		TopicI2VCommand: {DropRate: 1},
	}
	bridge, err := NewBridge(cfg, nil)
	if err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	for i := 0; i < 500; i++ {
		if err := bridge.StepOnce(ctx); err != nil {
			t.Fatal(err)
		}
		snap := bridge.Latest()
		assert.Empty(t, snap.Decisions, "no command should ever be delivered")
		for _, s := range snap.Vehicles {
			if s.State == StateInIntersection || s.State == StateDeparted {
				t.Fatalf("tick %d: %s reached %s without a delivered GO", i, s.ID, s.State)
			}
		}
	}

	counts := bridge.Bus().Report()[TopicI2VCommand]
	assert.Equal(t, counts.Published, counts.Dropped)
	assert.Positive(t, counts.Published)
}

func TestBridge_SoloPriorityVehicleFinishes(t *testing.T) {
	cfg := DefaultSimConfig()
	cfg.Layout = []VehicleSpec{
		{ID: "CAR_0", Approach: ApproachWest, DistanceM: 20, SpeedKmh: 30},
	}
	bridge, err := NewBridge(cfg, nil)
	if err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	for i := 0; i < 800 && !bridge.Finished(); i++ {
		if err := bridge.StepOnce(ctx); err != nil {
			t.Fatal(err)
		}
	}

	assert.True(t, bridge.Finished())
	m := bridge.Metrics()
	assert.Equal(t, 1, m.Departed)
	assert.Zero(t, m.InferenceFaults)
	assert.Zero(t, m.UnknownDecisions)
}

func TestBridge_CancelledContextStopsTick(t *testing.T) {
	bridge, err := NewBridge(DefaultSimConfig(), nil)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := bridge.StepOnce(ctx); err == nil {
		t.Fatal("cancelled context should abort the tick")
	}
}

func TestBridge_StartPauseResumeStop(t *testing.T) {
	cfg := DefaultSimConfig()
	cfg.TickHz = 100 // keep the wall-clock portion of this test short
	bridge, err := NewBridge(cfg, nil)
	if err != nil {
		t.Fatal(err)
	}

	if err := bridge.Start(); err != nil {
		t.Fatal(err)
	}
	defer bridge.Stop()

	assert.Error(t, bridge.Start(), "double start must fail")

	time.Sleep(100 * time.Millisecond)
	bridge.Pause()
	assert.True(t, bridge.Paused())
	// Let any in-flight tick land before sampling.
	time.Sleep(50 * time.Millisecond)
	frozen := bridge.Metrics().Ticks
	if frozen == 0 {
		t.Fatal("loop never ticked before the pause")
	}

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, frozen, bridge.Metrics().Ticks, "paused clock must not advance")

	bridge.Resume()
	assert.False(t, bridge.Paused())
	time.Sleep(100 * time.Millisecond)
	if got := bridge.Metrics().Ticks; got <= frozen {
		t.Errorf("clock stuck at %d after resume", got)
	}

	bridge.Stop()
	bridge.Stop() // idempotent
}

func TestBridge_ObserverNeverBlocksLoop(t *testing.T) {
	cfg := DefaultSimConfig()
	cfg.TickHz = 200
	bridge, err := NewBridge(cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := bridge.Start(); err != nil {
		t.Fatal(err)
	}
	defer bridge.Stop()

	// Hammer the snapshot slot from an observer while the loop runs.
	deadline := time.Now().Add(200 * time.Millisecond)
	var last int64
	for time.Now().Before(deadline) {
		if snap := bridge.Latest(); snap != nil {
			if snap.Tick < last {
				t.Fatalf("snapshot tick went backwards: %d after %d", snap.Tick, last)
			}
			last = snap.Tick
		}
	}
	if last == 0 {
		t.Fatal("observer never saw a snapshot")
	}
}

func TestBridge_RejectsInvalidConfig(t *testing.T) {
	cfg := DefaultSimConfig()
	cfg.TickHz = 0
	if _, err := NewBridge(cfg, nil); err == nil {
		t.Fatal("invalid config must fail construction")
	}
}
