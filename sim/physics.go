package sim

import "math"

// KmhToMps converts km/h to m/s.
func KmhToMps(v float64) float64 { return v / 3.6 }

// MpsToKmh converts m/s to km/h.
func MpsToKmh(v float64) float64 { return v * 3.6 }

// BrakingDistanceM is the distance covered decelerating from speedKmh
// to a halt at a constant decelKmhS.
func BrakingDistanceM(speedKmh, decelKmhS float64) float64 {
	if decelKmhS <= 0 {
		return math.Inf(1)
	}
	v := KmhToMps(speedKmh)
	return v * v / (2 * KmhToMps(decelKmhS))
}

// AxialDistance is the lane-aligned signed distance from (x, y) to a
// reference line offset metres before the intersection centre, for a
// vehicle heading along the unit vector (vx, vy). Positive while the
// line is ahead, negative once crossed. Lanes are axis-aligned, so the
// heading selects which coordinate matters.
func AxialDistance(x, y, vx, vy, offset float64) float64 {
	switch {
	case vx > 0: // eastbound
		return -x - offset
	case vx < 0: // westbound
		return x - offset
	case vy > 0: // northbound
		return -y - offset
	case vy < 0: // southbound
		return y - offset
	}
	return math.Hypot(x, y) - offset
}

// stepToward moves current toward target, bounded by rate (km/h per
// second) over dt seconds.
func stepToward(current, target, rate, dt float64) float64 {
	maxDelta := rate * dt
	switch d := target - current; {
	case d > maxDelta:
		return current + maxDelta
	case d < -maxDelta:
		return current - maxDelta
	}
	return target
}

// pairSafeDistanceM is the minimum projected separation the collision
// guard enforces for a vehicle pair: a floor plus the faster vehicle's
// reaction-time travel and a share of its braking distance, clamped to
// the policy's envelope.
func pairSafeDistanceM(a, b *Vehicle, p *SafetyPolicy) float64 {
	faster := math.Max(a.SpeedKmh, b.SpeedKmh)
	d := p.MinPairDistanceM +
		KmhToMps(faster)*p.ReactionTimeS +
		0.35*BrakingDistanceM(faster, p.MaxBrakeKmhS)
	return math.Min(math.Max(d, p.MinPairDistanceM), p.MaxPairDistanceM)
}
