package sim

import "sort"

// Feature vector layout constants. The inference function is trained
// against exactly this encoding; changing any of these breaks the model
// contract.
const (
	// MaxTrackedNeighbours is the fixed neighbour budget; farther
	// vehicles are cut, missing slots are zero-padded.
	MaxTrackedNeighbours = 6

	egoFeatures       = 7 // x, y, axial distance, speed, turn one-hot(3)
	signFeatures      = 4 // sign one-hot
	neighbourFeatures = 8 // x, y, axial distance, speed, cross product, turn one-hot(3)

	// FeatureVectorLen is the total encoded length: 59.
	FeatureVectorLen = egoFeatures + signFeatures + MaxTrackedNeighbours*neighbourFeatures
)

// FeatureVector is the flat input the external inference function
// consumes. Built by the adapter; the World never sees it.
type FeatureVector []float64

func oneHot(index, length int) []float64 {
	v := make([]float64, length)
	if index >= 0 && index < length {
		v[index] = 1
	}
	return v
}

// axialDist is the lane-aligned distance of a broadcast state to the
// intersection centre; positive while approaching, negative once past.
func axialDist(s VehicleState) float64 {
	return AxialDistance(s.X, s.Y, s.VX, s.VY, 0)
}

// EncodeFeatures builds the fixed-length vector for one ego vehicle
// given the other vehicles heard on the V2V channel this tick.
//
// Layout:
//
//	[0..6]   ego     x, y, axial distance, speed, turn one-hot(3)
//	[7..10]  sign    one-hot(4)
//	[11..58] traffic nearest 6 by axial distance, each
//	         x, y, axial distance, speed, cross product, turn one-hot(3)
func EncodeFeatures(ego VehicleState, others []VehicleState) FeatureVector {
	features := make(FeatureVector, 0, FeatureVectorLen)

	features = append(features, ego.X, ego.Y, axialDist(ego), ego.SpeedKmh)
	features = append(features, oneHot(int(ego.Turn), 3)...)
	features = append(features, oneHot(int(ego.Sign), 4)...)

	sorted := make([]VehicleState, 0, len(others))
	for _, o := range others {
		if o.ID != ego.ID {
			sorted = append(sorted, o)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return axialDist(sorted[i]) < axialDist(sorted[j])
	})
	if len(sorted) > MaxTrackedNeighbours {
		sorted = sorted[:MaxTrackedNeighbours]
	}

	for _, o := range sorted {
		cross := ego.X*o.Y - ego.Y*o.X
		features = append(features, o.X, o.Y, axialDist(o), o.SpeedKmh, cross)
		features = append(features, oneHot(int(o.Turn), 3)...)
	}
	for i := len(sorted); i < MaxTrackedNeighbours; i++ {
		features = append(features, make([]float64, neighbourFeatures)...)
	}
	return features
}
