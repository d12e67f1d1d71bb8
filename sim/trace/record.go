// Package trace provides decision-audit recording for the intersection
// simulator. It stores pure data types and has no dependency on sim/,
// so offline analysis tools can consume records directly.
package trace

// DecisionRecord captures one published GO/STOP decision together with
// the feature snapshot that produced it.
type DecisionRecord struct {
	VehicleID  string
	Tick       int64
	Verdict    string
	Confidence float64
	Fallback   bool      // adapter substituted STOP after a fault
	Features   []float64 // nil for fallback decisions with no state
}

// AnomalyRecord captures a fault absorbed inside a tick: an inference
// failure, a safety-violation correction, or a decision for an unknown
// vehicle.
type AnomalyRecord struct {
	Kind      string // "inference_fault", "overlap_corrected", "unknown_vehicle"
	VehicleID string
	Tick      int64
	Detail    string
}
