package sim

import "fmt"

// Approach names the arm of the intersection a vehicle enters from.
type Approach string

const (
	ApproachNorth Approach = "N"
	ApproachSouth Approach = "S"
	ApproachEast  Approach = "E"
	ApproachWest  Approach = "W"
)

// Approaches lists all arms in spawn round-robin order.
var Approaches = []Approach{ApproachWest, ApproachNorth, ApproachEast, ApproachSouth}

// Axis groups the two opposing approaches of one road.
type Axis string

const (
	AxisEW Axis = "EW"
	AxisNS Axis = "NS"
)

// AxisOf returns the axis an approach belongs to.
func AxisOf(a Approach) Axis {
	if a == ApproachEast || a == ApproachWest {
		return AxisEW
	}
	return AxisNS
}

// Turn is a vehicle's declared intent through the intersection. The
// values are the one-hot indices of the feature encoding and must not
// be reordered.
type Turn int

const (
	TurnLeft Turn = iota
	TurnRight
	TurnForward
)

// Sign is the traffic control posted at an approach. The values are
// the one-hot indices of the feature encoding and must not be
// reordered.
type Sign int

const (
	SignStop Sign = iota
	SignYield
	SignPriority
	SignNone
)

var signNames = map[string]Sign{
	"STOP":     SignStop,
	"YIELD":    SignYield,
	"PRIORITY": SignPriority,
	"NONE":     SignNone,
}

// ParseSign converts a scenario-file sign name to a Sign.
func ParseSign(name string) (Sign, error) {
	if s, ok := signNames[name]; ok {
		return s, nil
	}
	return SignNone, fmt.Errorf("unknown sign %q", name)
}

func (s Sign) String() string {
	switch s {
	case SignStop:
		return "STOP"
	case SignYield:
		return "YIELD"
	case SignPriority:
		return "PRIORITY"
	}
	return "NONE"
}

// MotionState is the lifecycle phase of a vehicle's pass through the
// intersection. Transitions are one-way:
// APPROACHING → AT_STOP_LINE → IN_INTERSECTION → DEPARTED; priority
// approaches transit the stop-line phase without halting.
type MotionState string

const (
	StateApproaching    MotionState = "APPROACHING"
	StateAtStopLine     MotionState = "AT_STOP_LINE"
	StateInIntersection MotionState = "IN_INTERSECTION"
	StateDeparted       MotionState = "DEPARTED"
)

// Vehicle is the World's mutable record of one car. Lanes are straight
// and axis-aligned; (VX, VY) is the unit heading, which never changes
// during a pass, and SpeedKmh carries the magnitude.
type Vehicle struct {
	ID string

	X, Y   float64 // metres from the intersection centre
	VX, VY float64 // unit heading along the lane

	SpeedKmh  float64
	CruiseKmh float64 // preferred speed when unobstructed

	Approach Approach
	Turn     Turn
	Sign     Sign
	State    MotionState

	// Stop-sign dwell accounting.
	StopDwellS float64
	StopDone   bool

	// WaitS accumulates total halted time, used to break arbitration ties.
	WaitS float64
}

// AxialToCenter is the lane-aligned distance to the intersection
// centre; positive while approaching, negative once past.
func (v *Vehicle) AxialToCenter() float64 {
	return AxialDistance(v.X, v.Y, v.VX, v.VY, 0)
}

// AxialToStopLine is the lane-aligned distance to this lane's stop
// line; negative once the line is crossed.
func (v *Vehicle) AxialToStopLine(stopLineM float64) float64 {
	return AxialDistance(v.X, v.Y, v.VX, v.VY, stopLineM)
}

// VehicleState is the immutable broadcastable view of a vehicle: what
// goes out on the V2V channel and into snapshots.
type VehicleState struct {
	ID string

	X, Y   float64
	VX, VY float64

	SpeedKmh float64

	Approach Approach
	Turn     Turn
	Sign     Sign
	State    MotionState

	WaitS float64
}

// StateCopy returns the value snapshot of the vehicle.
func (v *Vehicle) StateCopy() VehicleState {
	return VehicleState{
		ID:       v.ID,
		X:        v.X,
		Y:        v.Y,
		VX:       v.VX,
		VY:       v.VY,
		SpeedKmh: v.SpeedKmh,
		Approach: v.Approach,
		Turn:     v.Turn,
		Sign:     v.Sign,
		State:    v.State,
		WaitS:    v.WaitS,
	}
}
