package sim

// SafetyPolicy bundles the intersection geometry, kinematic envelopes,
// and safety-overlay toggles. One policy is fixed per run; nothing
// reconfigures mid-tick.
type SafetyPolicy struct {
	// Geometry, metres from the intersection centre.
	LaneOffsetM       float64 // inbound lane centreline offset from the road axis
	StopLineM         float64 // stop line distance
	IntersectionHalfM float64 // half-width of the conflict box
	DepartDistanceM   float64 // distance past the centre where a pass completes

	// Kinematic envelope.
	SpeedLimitKmh float64
	MaxAccelKmhS  float64
	MaxBrakeKmhS  float64

	// Collision model.
	CollisionRadiusM float64 // vehicle body radius for the overlap resolver
	MinPairDistanceM float64 // floor of the guard's safe-distance envelope
	MaxPairDistanceM float64 // ceiling of the guard's safe-distance envelope
	ReactionTimeS    float64
	GuardRadiusM     float64 // the guard only examines vehicles this close to the centre

	// Stop-sign arbitration.
	MinStopDwellS float64
	PriorityAxis  Axis

	// Safety overlays.
	SignalScheduler bool
	CollisionGuard  bool
	OverlapResolver bool

	// Virtual signal timing.
	SignalWindowS        float64
	SignalControlRadiusM float64

	// Spawn placement.
	SpawnMinRadiusM float64
	SpawnMaxRadiusM float64
	SpawnMinGapM    float64
	MaxPerLane      int
}

// DefaultSafetyPolicy mirrors the calibrated deployment constants.
func DefaultSafetyPolicy() SafetyPolicy {
	return SafetyPolicy{
		LaneOffsetM:       7,
		StopLineM:         12,
		IntersectionHalfM: 10,
		DepartDistanceM:   60,

		SpeedLimitKmh: 42,
		MaxAccelKmhS:  18,
		MaxBrakeKmhS:  90,

		CollisionRadiusM: 2.2,
		MinPairDistanceM: 4.8,
		MaxPairDistanceM: 11,
		ReactionTimeS:    0.55,
		GuardRadiusM:     30,

		MinStopDwellS: 0.6,
		PriorityAxis:  AxisEW,

		SignalScheduler: false,
		CollisionGuard:  true,
		OverlapResolver: true,

		SignalWindowS:        2.6,
		SignalControlRadiusM: 36,

		SpawnMinRadiusM: 70,
		SpawnMaxRadiusM: 140,
		SpawnMinGapM:    18,
		MaxPerLane:      2,
	}
}

// Validate checks the policy's internal consistency.
func (p *SafetyPolicy) Validate() error {
	if p.PriorityAxis != AxisEW && p.PriorityAxis != AxisNS {
		return &ConfigError{Field: "priority_axis", Reason: "must be EW or NS"}
	}
	if p.LaneOffsetM <= 0 {
		return &ConfigError{Field: "lane_offset_m", Reason: "must be positive"}
	}
	if p.StopLineM <= p.IntersectionHalfM {
		return &ConfigError{Field: "stop_line_m", Reason: "must lie outside the conflict box"}
	}
	if p.DepartDistanceM <= p.IntersectionHalfM {
		return &ConfigError{Field: "depart_distance_m", Reason: "must lie past the conflict box"}
	}
	if p.SpawnMinRadiusM <= p.StopLineM {
		return &ConfigError{Field: "spawn_min_radius_m", Reason: "must lie outside the stop line"}
	}
	if p.SpawnMaxRadiusM <= p.SpawnMinRadiusM {
		return &ConfigError{Field: "spawn_max_radius_m", Reason: "must exceed the minimum radius"}
	}
	if p.SpawnMinGapM <= 0 {
		return &ConfigError{Field: "spawn_min_gap_m", Reason: "must be positive"}
	}
	if p.SpeedLimitKmh <= 0 {
		return &ConfigError{Field: "speed_limit_kmh", Reason: "must be positive"}
	}
	if p.MaxAccelKmhS <= 0 || p.MaxBrakeKmhS <= 0 {
		return &ConfigError{Field: "accel", Reason: "rates must be positive"}
	}
	if p.CollisionRadiusM <= 0 {
		return &ConfigError{Field: "collision_radius_m", Reason: "must be positive"}
	}
	if p.MinPairDistanceM > p.MaxPairDistanceM {
		return &ConfigError{Field: "pair_distance", Reason: "minimum exceeds maximum"}
	}
	if p.ReactionTimeS < 0 || p.MinStopDwellS < 0 {
		return &ConfigError{Field: "timing", Reason: "must be non-negative"}
	}
	if p.SignalScheduler && p.SignalWindowS <= 0 {
		return &ConfigError{Field: "signal_window_s", Reason: "must be positive"}
	}
	if p.MaxPerLane < 1 {
		return &ConfigError{Field: "max_per_lane", Reason: "must be at least 1"}
	}
	return nil
}

// SignFor returns the default sign for an approach under the priority
// axis: PRIORITY along the axis, STOP across it.
func (p *SafetyPolicy) SignFor(a Approach) Sign {
	if AxisOf(a) == p.PriorityAxis {
		return SignPriority
	}
	return SignStop
}

// LaneCapacity is the total vehicle budget across all four arms.
func (p *SafetyPolicy) LaneCapacity() int {
	return p.MaxPerLane * len(Approaches)
}
