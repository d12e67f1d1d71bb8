package trace

// Level controls the verbosity of decision tracing.
type Level string

const (
	// LevelNone disables tracing (zero overhead).
	LevelNone Level = "none"
	// LevelDecisions captures every published decision and absorbed anomaly.
	LevelDecisions Level = "decisions"
)

var validLevels = map[Level]bool{
	LevelNone:      true,
	LevelDecisions: true,
	"":             true, // empty defaults to none
}

// IsValidLevel reports whether level names a recognized trace level.
func IsValidLevel(level string) bool {
	return validLevels[Level(level)]
}

// Trace collects decision and anomaly records during a run. A nil
// *Trace is a valid no-op recorder.
type Trace struct {
	Level     Level
	Decisions []DecisionRecord
	Anomalies []AnomalyRecord
}

// New creates a Trace ready for recording. Returns nil for LevelNone,
// which record calls treat as disabled.
func New(level Level) *Trace {
	if level == LevelNone || level == "" {
		return nil
	}
	return &Trace{Level: level}
}

// RecordDecision appends a decision record.
func (t *Trace) RecordDecision(r DecisionRecord) {
	if t == nil {
		return
	}
	t.Decisions = append(t.Decisions, r)
}

// RecordAnomaly appends an anomaly record.
func (t *Trace) RecordAnomaly(r AnomalyRecord) {
	if t == nil {
		return
	}
	t.Anomalies = append(t.Anomalies, r)
}
