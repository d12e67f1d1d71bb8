package sim

import (
	"context"
	"fmt"
)

// InferenceResult is the raw model output before the adapter validates it.
type InferenceResult struct {
	Verdict        Verdict
	ConfidenceGo   float64
	ConfidenceStop float64
}

// InferenceFunc is the external model contract: a pure function from an
// encoded traffic state to a GO/STOP verdict with confidence. The
// adapter is the sole caller; it enforces the timeout through ctx and
// substitutes STOP on any error.
type InferenceFunc func(ctx context.Context, features FeatureVector) (InferenceResult, error)

// HeuristicModel returns a deterministic stand-in for the trained
// classifier, for runs and tests without a model endpoint. It reads the
// encoded vector through the same layout contract the real model uses:
// STOP when the ego faces a STOP/YIELD sign inside the decision radius
// while any encoded neighbour is nearer the intersection centre,
// otherwise GO.
func HeuristicModel(decisionRadiusM float64) InferenceFunc {
	return func(ctx context.Context, features FeatureVector) (InferenceResult, error) {
		if err := ctx.Err(); err != nil {
			return InferenceResult{}, err
		}
		if len(features) != FeatureVectorLen {
			return InferenceResult{}, fmt.Errorf("feature vector has %d elements, want %d",
				len(features), FeatureVectorLen)
		}

		egoDist := features[2]
		signStop := features[egoFeatures] == 1    // sign one-hot index 0
		signYield := features[egoFeatures+1] == 1 // sign one-hot index 1

		hold := false
		if (signStop || signYield) && egoDist >= 0 && egoDist < decisionRadiusM {
			base := egoFeatures + signFeatures
			for i := 0; i < MaxTrackedNeighbours; i++ {
				slot := features[base+i*neighbourFeatures : base+(i+1)*neighbourFeatures]
				occupied := false
				for _, f := range slot {
					if f != 0 {
						occupied = true
						break
					}
				}
				if !occupied {
					continue
				}
				if neighbourDist := slot[2]; neighbourDist < egoDist {
					hold = true
					break
				}
			}
		}

		if hold {
			return InferenceResult{Verdict: VerdictStop, ConfidenceGo: 0.1, ConfidenceStop: 0.9}, nil
		}
		return InferenceResult{Verdict: VerdictGo, ConfidenceGo: 0.9, ConfidenceStop: 0.1}, nil
	}
}
