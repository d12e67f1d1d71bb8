package sim

import (
	"time"

	"github.com/intersection-sim/intersection-sim/sim/trace"
)

// SimConfig is the single run configuration, constructed once at
// startup and passed by reference. There is no hot reload; a change
// means a new run.
type SimConfig struct {
	Seed         int64
	VehicleCount int

	// TickHz is the orchestrator's fixed tick rate; dt = 1/TickHz.
	TickHz float64
	// Ticks bounds a headless run; 0 means run until stopped.
	Ticks int64

	Bus    BusConfig
	Policy SafetyPolicy

	// Signs overrides the policy's axis-derived sign layout per
	// approach (scenario files use this for, say, all-way stops).
	Signs map[Approach]Sign

	// Layout pins exact vehicle placements; when non-empty it replaces
	// the seeded random spawn and VehicleCount is ignored.
	Layout []VehicleSpec

	// InferenceTimeout bounds each per-vehicle model call; on expiry
	// the adapter substitutes STOP rather than stalling the tick.
	InferenceTimeout time.Duration

	TraceLevel trace.Level
}

// DefaultSimConfig mirrors the scenario defaults of the original
// deployment: six vehicles at 20 Hz on a lossless bus.
func DefaultSimConfig() SimConfig {
	return SimConfig{
		Seed:             42,
		VehicleCount:     6,
		TickHz:           20,
		Bus:              BusConfig{},
		Policy:           DefaultSafetyPolicy(),
		InferenceTimeout: 50 * time.Millisecond,
		TraceLevel:       trace.LevelNone,
	}
}

// DT is the physics step in seconds.
func (c *SimConfig) DT() float64 {
	return 1.0 / c.TickHz
}

// Validate checks every configuration-time invariant. A failure here
// is fatal to startup; nothing inside a tick re-validates.
func (c *SimConfig) Validate() error {
	if c.TickHz <= 0 {
		return &ConfigError{Field: "tick_hz", Reason: "must be positive"}
	}
	if len(c.Layout) == 0 && c.VehicleCount <= 0 {
		return &ConfigError{Field: "vehicles", Reason: "must be positive"}
	}
	if c.Ticks < 0 {
		return &ConfigError{Field: "ticks", Reason: "must be non-negative"}
	}
	if c.InferenceTimeout < 0 {
		return &ConfigError{Field: "inference_timeout", Reason: "must be non-negative"}
	}
	if !trace.IsValidLevel(string(c.TraceLevel)) {
		return &ConfigError{Field: "trace", Reason: "unknown level " + string(c.TraceLevel)}
	}
	if err := c.Bus.Validate(); err != nil {
		return err
	}
	if err := c.Policy.Validate(); err != nil {
		return err
	}
	count := c.VehicleCount
	if len(c.Layout) > 0 {
		count = len(c.Layout)
	}
	if count > c.Policy.LaneCapacity() {
		return &ConfigError{Field: "vehicles", Reason: "exceeds lane capacity"}
	}
	return nil
}

// VehicleSpec is one pinned vehicle placement from a scenario file.
type VehicleSpec struct {
	ID        string
	Approach  Approach
	Turn      Turn
	DistanceM float64
	SpeedKmh  float64
	CruiseKmh float64 // defaults to SpeedKmh when zero
}
