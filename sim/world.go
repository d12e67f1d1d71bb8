package sim

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/sirupsen/logrus"
)

// World owns all vehicle state and is the single place it mutates.
// UpdatePhysics is the one state-transition entry point; everything the
// World hands out is a value copy.
//
// Per tick the pipeline is: resolve decision (missing ⇒ STOP), virtual
// signal gate, stop-sign arbitration, speed control and integration,
// collision guard, overlap resolver. The safety overlays always win
// over the inference verdict.
type World struct {
	policy *SafetyPolicy

	vehicles []*Vehicle
	byID     map[string]*Vehicle

	signs map[Approach]Sign // per-approach layout, fixed for the run

	// Virtual signal state, advanced in sim time.
	greenAxis    Axis
	signalTimerS float64

	// Absorbed-fault counters, read by the orchestrator's snapshot.
	SafetyInterventions  int
	CollisionResolutions int
	UnknownDecisions     int
}

// NewWorld creates an empty world under the given policy. The sign
// layout defaults to the policy's priority-axis layout; SetSigns
// overrides it before the first spawn.
func NewWorld(policy *SafetyPolicy) *World {
	signs := make(map[Approach]Sign, len(Approaches))
	for _, a := range Approaches {
		signs[a] = policy.SignFor(a)
	}
	return &World{
		policy:    policy,
		byID:      make(map[string]*Vehicle),
		signs:     signs,
		greenAxis: policy.PriorityAxis,
	}
}

// SetSigns overrides the sign assigned to each listed approach.
func (w *World) SetSigns(layout map[Approach]Sign) {
	for a, s := range layout {
		w.signs[a] = s
	}
}

// SignFor returns the sign posted at an approach.
func (w *World) SignFor(a Approach) Sign {
	return w.signs[a]
}

// GreenAxis returns the axis currently held green by the virtual
// signal scheduler. Meaningful only when the scheduler is enabled.
func (w *World) GreenAxis() Axis {
	return w.greenAxis
}

// Spawn creates count vehicles at fixed approach lanes with
// deterministic placement drawn from rng. Exceeding lane capacity
// returns a CapacityError and spawns nothing.
func (w *World) Spawn(count int, rng *rand.Rand) error {
	capacity := w.policy.LaneCapacity()
	if count > capacity {
		return &CapacityError{Requested: count, Capacity: capacity}
	}
	if count < 0 {
		return fmt.Errorf("spawn count must be non-negative, got %d", count)
	}

	perLane := make(map[Approach]int, len(Approaches))
	for i := 0; i < count; i++ {
		approach := Approaches[i%len(Approaches)]
		slot := perLane[approach]
		perLane[approach]++

		span := w.policy.SpawnMaxRadiusM - w.policy.SpawnMinRadiusM
		dist := w.policy.SpawnMinRadiusM + rng.Float64()*span*0.5 +
			float64(slot)*(w.policy.SpawnMinGapM+rng.Float64()*w.policy.SpawnMinGapM)
		cruise := 20 + rng.Float64()*(w.policy.SpeedLimitKmh-20)
		turn := Turn(rng.Intn(3))

		v := &Vehicle{
			ID:        fmt.Sprintf("CAR_%d", len(w.vehicles)),
			Approach:  approach,
			Turn:      turn,
			Sign:      w.signs[approach],
			State:     StateApproaching,
			SpeedKmh:  cruise,
			CruiseKmh: cruise,
		}
		w.placeOnApproach(v, dist)
		w.vehicles = append(w.vehicles, v)
		w.byID[v.ID] = v
	}
	return nil
}

// placeOnApproach positions v dist metres from the centre on its
// approach arm's inbound lane.
func (w *World) placeOnApproach(v *Vehicle, dist float64) {
	lane := w.policy.LaneOffsetM
	switch v.Approach {
	case ApproachWest: // eastbound
		v.X, v.Y, v.VX, v.VY = -dist, -lane, 1, 0
	case ApproachEast: // westbound
		v.X, v.Y, v.VX, v.VY = dist, lane, -1, 0
	case ApproachNorth: // southbound
		v.X, v.Y, v.VX, v.VY = -lane, dist, 0, -1
	case ApproachSouth: // northbound
		v.X, v.Y, v.VX, v.VY = lane, -dist, 0, 1
	}
}

// SpawnAt places one vehicle at an exact distance on an approach lane.
// Scenario files use this for reproducible layouts; the sign comes from
// the current layout for that approach.
func (w *World) SpawnAt(spec VehicleSpec) error {
	v := Vehicle{
		ID:        spec.ID,
		Approach:  spec.Approach,
		Turn:      spec.Turn,
		Sign:      w.signs[spec.Approach],
		State:     StateApproaching,
		SpeedKmh:  spec.SpeedKmh,
		CruiseKmh: spec.SpeedKmh,
	}
	if spec.CruiseKmh > 0 {
		v.CruiseKmh = spec.CruiseKmh
	}
	w.placeOnApproach(&v, spec.DistanceM)
	return w.SpawnVehicle(v)
}

// SpawnVehicle injects a fully-specified vehicle. Scenario files and
// tests use this for exact placements; capacity still applies.
func (w *World) SpawnVehicle(v Vehicle) error {
	if len(w.vehicles) >= w.policy.LaneCapacity() {
		return &CapacityError{Requested: len(w.vehicles) + 1, Capacity: w.policy.LaneCapacity()}
	}
	if _, dup := w.byID[v.ID]; dup {
		return fmt.Errorf("duplicate vehicle id %q", v.ID)
	}
	if v.State == "" {
		v.State = StateApproaching
	}
	nv := v
	w.vehicles = append(w.vehicles, &nv)
	w.byID[nv.ID] = &nv
	return nil
}

// Clear removes all vehicles and zeroes run counters. Used by reset.
func (w *World) Clear() {
	w.vehicles = nil
	w.byID = make(map[string]*Vehicle)
	w.greenAxis = w.policy.PriorityAxis
	w.signalTimerS = 0
	w.SafetyInterventions = 0
	w.CollisionResolutions = 0
	w.UnknownDecisions = 0
}

// States returns value copies of every vehicle in spawn order.
func (w *World) States() []VehicleState {
	out := make([]VehicleState, len(w.vehicles))
	for i, v := range w.vehicles {
		out[i] = v.StateCopy()
	}
	return out
}

// ActiveIDs returns the ids of all vehicles that have not departed.
func (w *World) ActiveIDs() []string {
	var ids []string
	for _, v := range w.vehicles {
		if v.State != StateDeparted {
			ids = append(ids, v.ID)
		}
	}
	return ids
}

// Departed counts vehicles whose pass has completed.
func (w *World) Departed() int {
	n := 0
	for _, v := range w.vehicles {
		if v.State == StateDeparted {
			n++
		}
	}
	return n
}

// Finished reports whether every vehicle has departed.
func (w *World) Finished() bool {
	return len(w.vehicles) > 0 && w.Departed() == len(w.vehicles)
}

const haltSpeedKmh = 0.5 // below this a vehicle counts as halted

// UpdatePhysics advances every vehicle by dt seconds using the
// decisions delivered this tick. A vehicle with no delivered decision
// gets STOP — the fail-safe default is never GO.
func (w *World) UpdatePhysics(decisions map[string]Decision, dt float64) {
	for id := range decisions {
		if _, known := w.byID[id]; !known {
			w.UnknownDecisions++
			logrus.Warnf("world: decision for unknown vehicle %s ignored", id)
		}
	}

	w.advanceSignal(dt)

	moves := make([]motionStep, len(w.vehicles))

	for i, v := range w.vehicles {
		if v.State == StateDeparted {
			continue
		}

		verdict := VerdictStop
		if d, ok := decisions[v.ID]; ok {
			verdict = d.Verdict
		}
		if w.signalRed(v) {
			verdict = VerdictStop
		}

		holdAtLine := w.mustHoldAtLine(v, verdict)
		target := w.targetSpeed(v, verdict, holdAtLine)

		rate := w.policy.MaxAccelKmhS
		if target < v.SpeedKmh {
			rate = w.policy.MaxBrakeKmhS
		}
		v.SpeedKmh = math.Min(stepToward(v.SpeedKmh, target, rate, dt), w.policy.SpeedLimitKmh)

		step := KmhToMps(v.SpeedKmh) * dt
		if holdAtLine {
			// Never cross the stop line while held.
			if lineDist := v.AxialToStopLine(w.policy.StopLineM); step >= lineDist {
				step = math.Max(0, lineDist)
				v.SpeedKmh = 0
			}
		}
		moves[i] = motionStep{dx: v.VX * step, dy: v.VY * step}
	}

	if w.policy.CollisionGuard {
		w.collisionGuard(moves)
	}

	for i, v := range w.vehicles {
		if v.State == StateDeparted {
			continue
		}
		v.X += moves[i].dx
		v.Y += moves[i].dy
		w.advanceLifecycle(v, dt)
	}

	if w.policy.OverlapResolver {
		w.resolveOverlaps()
	}
}

// advanceSignal flips the virtual green axis at the end of each window.
func (w *World) advanceSignal(dt float64) {
	if !w.policy.SignalScheduler {
		return
	}
	w.signalTimerS += dt
	if w.signalTimerS >= w.policy.SignalWindowS {
		w.signalTimerS = 0
		if w.greenAxis == AxisEW {
			w.greenAxis = AxisNS
		} else {
			w.greenAxis = AxisEW
		}
	}
}

// signalRed reports whether the virtual signal forces STOP for v: red
// axis, inside the control radius, and not already committed to the box.
func (w *World) signalRed(v *Vehicle) bool {
	if !w.policy.SignalScheduler || v.State == StateInIntersection {
		return false
	}
	return AxisOf(v.Approach) != w.greenAxis &&
		v.AxialToCenter() <= w.policy.SignalControlRadiusM
}

// mustHoldAtLine decides whether v may not cross its stop line this
// tick, regardless of the verdict. This is where stop-sign arbitration
// overrides a GO decision.
func (w *World) mustHoldAtLine(v *Vehicle, verdict Verdict) bool {
	if v.State == StateInIntersection {
		return false
	}
	if v.AxialToStopLine(w.policy.StopLineM) < -0.5 {
		// Already committed past the line; holding here would strand
		// the vehicle inside the conflict box.
		return false
	}
	switch v.Sign {
	case SignStop:
		return !w.stopGranted(v)
	case SignYield:
		return w.intersectionOccupied(v)
	default:
		// PRIORITY / NONE approaches only hold on a STOP verdict, and
		// that is handled by speed control, not line clamping.
		return false
	}
}

// stopGranted implements stop-sign arbitration: the vehicle must have
// completed its full dwell at the line, the box must be free, and no
// competing stop-line claimant may outrank it on the priority axis.
func (w *World) stopGranted(v *Vehicle) bool {
	if !v.StopDone {
		return false
	}
	if w.intersectionOccupied(v) {
		return false
	}
	for _, u := range w.vehicles {
		if u == v || u.State == StateDeparted {
			continue
		}
		if u.State == StateAtStopLine && u.StopDone && w.outranks(u, v) {
			return false
		}
	}
	return true
}

// intersectionOccupied reports whether any other vehicle currently
// holds the conflict box.
func (w *World) intersectionOccupied(v *Vehicle) bool {
	for _, u := range w.vehicles {
		if u != v && u.State == StateInIntersection {
			return true
		}
	}
	return false
}

// outranks orders two competing vehicles: priority axis first, then
// accumulated wait, then id for a stable total order.
func (w *World) outranks(a, b *Vehicle) bool {
	aAxis := AxisOf(a.Approach) == w.policy.PriorityAxis
	bAxis := AxisOf(b.Approach) == w.policy.PriorityAxis
	if aAxis != bAxis {
		return aAxis
	}
	if a.WaitS != b.WaitS {
		return a.WaitS > b.WaitS
	}
	return a.ID < b.ID
}

// targetSpeed maps the gated verdict to the speed the controller steps
// toward.
func (w *World) targetSpeed(v *Vehicle, verdict Verdict, holdAtLine bool) float64 {
	if verdict == VerdictStop {
		return 0
	}
	if holdAtLine {
		// GO verdict but the sign gate holds: roll up to the line,
		// braking early enough to stop at it.
		lineDist := v.AxialToStopLine(w.policy.StopLineM)
		if lineDist <= BrakingDistanceM(v.SpeedKmh, w.policy.MaxBrakeKmhS)+1.0 {
			return 0
		}
		return math.Min(v.CruiseKmh, w.policy.SpeedLimitKmh*0.5)
	}
	return v.CruiseKmh
}

// motionStep is one vehicle's proposed displacement for the tick,
// before the collision guard has had its say.
type motionStep struct {
	dx, dy  float64
	clamped bool
}

// collisionGuard clamps the lower-priority vehicle of any pair whose
// projected positions at t+dt would come within the pair's safe
// distance. The clamp overrides a GO decision: safety overlay wins.
func (w *World) collisionGuard(moves []motionStep) {
	for i := 0; i < len(w.vehicles); i++ {
		a := w.vehicles[i]
		if a.State == StateDeparted || a.AxialToCenter() > w.policy.GuardRadiusM {
			continue
		}
		for j := i + 1; j < len(w.vehicles); j++ {
			b := w.vehicles[j]
			if b.State == StateDeparted || b.AxialToCenter() > w.policy.GuardRadiusM {
				continue
			}
			pd := math.Hypot((a.X+moves[i].dx)-(b.X+moves[j].dx),
				(a.Y+moves[i].dy)-(b.Y+moves[j].dy))
			if pd >= pairSafeDistanceM(a, b, w.policy) {
				continue
			}
			yi := i
			if w.outranks(w.vehicles[i], w.vehicles[j]) {
				yi = j
			}
			if !moves[yi].clamped {
				moves[yi].dx, moves[yi].dy = 0, 0
				moves[yi].clamped = true
				w.vehicles[yi].SpeedKmh = 0
				w.SafetyInterventions++
				logrus.Debugf("world: collision guard clamped %s against %s (projected %.2fm)",
					w.vehicles[yi].ID, w.vehicles[i+j-yi].ID, pd)
			}
		}
	}
}

// advanceLifecycle updates dwell accounting and the motion state
// machine after the vehicle's position step.
func (w *World) advanceLifecycle(v *Vehicle, dt float64) {
	halted := v.SpeedKmh < haltSpeedKmh
	if halted && v.State != StateDeparted {
		v.WaitS += dt
	}

	center := v.AxialToCenter()
	lineDist := v.AxialToStopLine(w.policy.StopLineM)

	switch v.State {
	case StateApproaching:
		if lineDist <= 1.0 && center > w.policy.IntersectionHalfM {
			v.State = StateAtStopLine
		} else if center <= w.policy.IntersectionHalfM {
			// Priority approaches roll straight through the line band.
			v.State = StateInIntersection
		}
	case StateAtStopLine:
		if halted {
			v.StopDwellS += dt
			if v.StopDwellS >= w.policy.MinStopDwellS {
				v.StopDone = true
			}
		}
		if center <= w.policy.IntersectionHalfM {
			v.State = StateInIntersection
		}
	case StateInIntersection:
		if center <= -w.policy.DepartDistanceM {
			v.State = StateDeparted
			v.SpeedKmh = 0
			logrus.Debugf("world: %s departed", v.ID)
		}
	}
}

// resolveOverlaps is the last-resort correction: any pair already
// geometrically overlapping is pushed apart along the separating axis
// by the minimum displacement restoring non-overlap. Velocity and
// heading are left untouched. Overlap here means upstream logic raced
// or a guard was disabled, so each correction is an anomaly.
func (w *World) resolveOverlaps() {
	minSep := w.policy.CollisionRadiusM * 2
	for i := 0; i < len(w.vehicles); i++ {
		a := w.vehicles[i]
		if a.State == StateDeparted {
			continue
		}
		for j := i + 1; j < len(w.vehicles); j++ {
			b := w.vehicles[j]
			if b.State == StateDeparted {
				continue
			}
			dx, dy := b.X-a.X, b.Y-a.Y
			d := math.Hypot(dx, dy)
			if d >= minSep {
				continue
			}
			var ux, uy float64
			if d > 1e-9 {
				ux, uy = dx/d, dy/d
			} else {
				// Coincident centres: separate across a's lane axis.
				ux, uy = -a.VY, a.VX
			}
			push := (minSep - d) / 2
			a.X -= ux * push
			a.Y -= uy * push
			b.X += ux * push
			b.Y += uy * push
			w.CollisionResolutions++
			logrus.Warnf("world: overlap between %s and %s corrected (%.2fm apart)", a.ID, b.ID, d)
		}
	}
}
