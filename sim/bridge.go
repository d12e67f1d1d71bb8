package sim

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/intersection-sim/intersection-sim/sim/trace"
)

// Bridge is the tick orchestrator: it owns the fixed-rate loop,
// sequences broadcast → inference → decision delivery → physics, and
// publishes an immutable snapshot after every tick.
//
// Two schedules meet here. The tick loop runs on its own goroutine at a
// fixed wall-clock period; observers poll Latest() at any cadence, with
// the atomic snapshot slot as the only shared state between them.
// Pause, Reset, and Stop become observable within one in-flight tick:
// the pipeline checks cancellation between steps, not only at loop top.
type Bridge struct {
	cfg   SimConfig
	infer InferenceFunc

	mu      sync.Mutex // serializes StepOnce and Reset
	world   *World
	bus     *Bus
	adapter *DecisionAdapter
	cmdSub  *Subscription
	audit   *trace.Trace
	tick    int64

	board  SnapshotBoard
	paused atomic.Bool

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewBridge validates cfg, seeds the world, and wires the bus and
// adapter. infer is the external model; nil selects the built-in
// deterministic heuristic.
func NewBridge(cfg SimConfig, infer InferenceFunc) (*Bridge, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if infer == nil {
		infer = HeuristicModel(cfg.Policy.SignalControlRadiusM)
	}
	b := &Bridge{cfg: cfg, infer: infer}
	if err := b.build(); err != nil {
		return nil, err
	}
	return b, nil
}

// build constructs a fresh world, bus, and adapter from the configured
// seed. Reset calls it again to replay the run from tick zero.
func (b *Bridge) build() error {
	rng := NewPartitionedRNG(b.cfg.Seed)

	world := NewWorld(&b.cfg.Policy)
	world.SetSigns(b.cfg.Signs)
	if len(b.cfg.Layout) > 0 {
		for _, spec := range b.cfg.Layout {
			if err := world.SpawnAt(spec); err != nil {
				return fmt.Errorf("placing scenario vehicle %s: %w", spec.ID, err)
			}
		}
	} else if err := world.Spawn(b.cfg.VehicleCount, rng.ForSubsystem(SubsystemSpawn)); err != nil {
		return fmt.Errorf("spawning %d vehicles: %w", b.cfg.VehicleCount, err)
	}

	bus := NewBus(b.cfg.Bus, rng.SeedFor(SubsystemBus))
	audit := trace.New(b.cfg.TraceLevel)

	b.world = world
	b.bus = bus
	b.audit = audit
	b.adapter = NewDecisionAdapter(bus, b.infer, b.cfg.InferenceTimeout, audit)
	b.cmdSub = bus.Subscribe(TopicI2VCommand)
	b.tick = 0
	return nil
}

// StepOnce runs one full tick synchronously: the headless runner and
// the deterministic tests drive the bridge through here, and the
// background loop calls it once per period.
func (b *Bridge) StepOnce(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.tick

	// Step 1: every active vehicle broadcasts state on the V2V channel.
	for _, s := range b.world.States() {
		if s.State == StateDeparted {
			continue
		}
		b.bus.Publish(TopicV2VState, s.ID, now, &StatePayload{Vehicle: s, Tick: now})
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	// Step 2: the adapter drains matured state, infers, republishes.
	b.adapter.Tick(ctx, now, b.world.ActiveIDs())
	if err := ctx.Err(); err != nil {
		return err
	}

	// Step 3: collect matured decisions; a later delivery for the same
	// vehicle supersedes an earlier one within the tick.
	decisions := make(map[string]Decision)
	for _, msg := range b.cmdSub.Drain(now) {
		cmd, ok := msg.Payload.(*DecisionPayload)
		if !ok {
			logrus.Warnf("bridge: non-decision payload on %s from %s ignored", msg.Topic, msg.Sender)
			continue
		}
		decisions[cmd.Decision.VehicleID] = cmd.Decision
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	// Step 4: physics consumes the delivered decisions.
	b.world.UpdatePhysics(decisions, b.cfg.DT())

	// Step 5: copy-on-publish snapshot for external observers.
	b.tick++
	b.board.Publish(&Snapshot{
		Tick:                 b.tick,
		SimTimeS:             float64(b.tick) * b.cfg.DT(),
		Vehicles:             b.world.States(),
		Decisions:            decisions,
		GreenAxis:            b.world.GreenAxis(),
		Bus:                  b.bus.Report(),
		SafetyInterventions:  b.world.SafetyInterventions,
		CollisionResolutions: b.world.CollisionResolutions,
	})
	return nil
}

// Start launches the fixed-rate background loop. Returns an error if
// the loop is already running.
func (b *Bridge) Start() error {
	b.runMu.Lock()
	defer b.runMu.Unlock()
	if b.cancel != nil {
		return fmt.Errorf("bridge already running")
	}

	ctx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel
	b.done = make(chan struct{})

	period := time.Duration(float64(time.Second) / b.cfg.TickHz)
	go func() {
		defer close(b.done)
		ticker := time.NewTicker(period)
		defer ticker.Stop()
		logrus.Infof("bridge: started at %.1f Hz", b.cfg.TickHz)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if b.paused.Load() {
					continue
				}
				if err := b.StepOnce(ctx); err != nil {
					return
				}
			}
		}
	}()
	return nil
}

// Stop cancels the loop and waits for it to exit.
func (b *Bridge) Stop() {
	b.runMu.Lock()
	defer b.runMu.Unlock()
	if b.cancel == nil {
		return
	}
	b.cancel()
	<-b.done
	b.cancel = nil
	b.done = nil
	logrus.Info("bridge: stopped")
}

// Pause freezes the simulation clock. The loop keeps running so Resume
// takes effect on the next period.
func (b *Bridge) Pause() {
	b.paused.Store(true)
}

// Resume unfreezes a paused bridge.
func (b *Bridge) Resume() {
	b.paused.Store(false)
}

// Paused reports whether the clock is frozen.
func (b *Bridge) Paused() bool {
	return b.paused.Load()
}

// Reset replays the run: respawn from the configured seed, discard all
// in-flight bus messages and metrics, and zero the clock. Identical
// seeds produce identical snapshot sequences before and after a reset.
func (b *Bridge) Reset() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.build(); err != nil {
		return err
	}
	b.board.Publish(&Snapshot{
		Vehicles:  b.world.States(),
		Decisions: map[string]Decision{},
		GreenAxis: b.world.GreenAxis(),
		Bus:       b.bus.Report(),
	})
	logrus.Info("bridge: reset")
	return nil
}

// Latest returns the most recent snapshot without blocking, or nil
// before the first tick.
func (b *Bridge) Latest() *Snapshot {
	return b.board.Latest()
}

// Bus exposes the transport for fault injection and monitoring taps.
func (b *Bridge) Bus() *Bus {
	return b.bus
}

// Audit returns the decision trace, nil when tracing is disabled.
func (b *Bridge) Audit() *trace.Trace {
	return b.audit
}

// Finished reports whether every vehicle has completed its pass.
func (b *Bridge) Finished() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.world.Finished()
}

// Metrics assembles the run-level counters.
func (b *Bridge) Metrics() SimMetrics {
	b.mu.Lock()
	defer b.mu.Unlock()
	return SimMetrics{
		Ticks:                b.tick,
		Departed:             b.world.Departed(),
		SafetyInterventions:  b.world.SafetyInterventions,
		CollisionResolutions: b.world.CollisionResolutions,
		InferenceFaults:      b.adapter.InferenceFaults,
		UnknownDecisions:     b.world.UnknownDecisions,
	}
}

// World exposes the world for scenario seeding before the first tick.
// Not safe to use while the loop is running.
func (b *Bridge) World() *World {
	return b.world
}
