package sim

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/intersection-sim/intersection-sim/sim/trace"
)

func goModel(confidence float64) InferenceFunc {
	return func(ctx context.Context, features FeatureVector) (InferenceResult, error) {
		return InferenceResult{Verdict: VerdictGo, ConfidenceGo: confidence, ConfidenceStop: 1 - confidence}, nil
	}
}

func broadcast(bus *Bus, now int64, state VehicleState) {
	bus.Publish(TopicV2VState, state.ID, now, &StatePayload{Vehicle: state, Tick: now})
}

func drainDecisions(t *testing.T, bus *Bus, now int64) []Decision {
	t.Helper()
	var out []Decision
	for _, msg := range bus.Drain(TopicI2VCommand, now) {
		cmd, ok := msg.Payload.(*DecisionPayload)
		if !ok {
			t.Fatalf("unexpected payload %T on %s", msg.Payload, msg.Topic)
		}
		out = append(out, cmd.Decision)
	}
	return out
}

func TestAdapter_OneDecisionPerHeardVehicle(t *testing.T) {
	bus := losslessBus()
	adapter := NewDecisionAdapter(bus, goModel(0.8), 0, nil)

	broadcast(bus, 0, VehicleState{ID: "CAR_0", X: -30, Y: -7, VX: 1, SpeedKmh: 30, Sign: SignPriority})
	broadcast(bus, 0, VehicleState{ID: "CAR_1", X: 30, Y: 7, VX: -1, SpeedKmh: 25, Sign: SignPriority})

	adapter.Tick(context.Background(), 0, []string{"CAR_0", "CAR_1"})

	decisions := drainDecisions(t, bus, 0)
	if len(decisions) != 2 {
		t.Fatalf("published %d decisions, want 2", len(decisions))
	}
	for _, d := range decisions {
		assert.Equal(t, VerdictGo, d.Verdict)
		assert.Equal(t, 0.8, d.Confidence)
		assert.False(t, d.Fallback)
		assert.Len(t, d.Features, FeatureVectorLen)
	}
	assert.Zero(t, adapter.InferenceFaults)
}

func TestAdapter_LaterBroadcastSupersedes(t *testing.T) {
	bus := losslessBus()
	adapter := NewDecisionAdapter(bus, goModel(0.9), 0, nil)

	broadcast(bus, 0, VehicleState{ID: "CAR_0", X: -40, Y: -7, VX: 1, SpeedKmh: 10})
	broadcast(bus, 0, VehicleState{ID: "CAR_0", X: -38, Y: -7, VX: 1, SpeedKmh: 30})

	adapter.Tick(context.Background(), 0, []string{"CAR_0"})

	decisions := drainDecisions(t, bus, 0)
	if len(decisions) != 1 {
		t.Fatalf("published %d decisions, want 1 after dedup", len(decisions))
	}
	// Feature index 3 is the ego speed: must come from the later state.
	assert.Equal(t, 30.0, decisions[0].Features[3])
}

func TestAdapter_SynthesizesStopForUnheardVehicle(t *testing.T) {
	bus := losslessBus()
	adapter := NewDecisionAdapter(bus, goModel(0.9), 0, nil)

	// CAR_1's state broadcast was lost; it still gets a command.
	broadcast(bus, 0, VehicleState{ID: "CAR_0", X: -30, Y: -7, VX: 1, Sign: SignPriority})
	adapter.Tick(context.Background(), 0, []string{"CAR_0", "CAR_1"})

	byID := map[string]Decision{}
	for _, d := range drainDecisions(t, bus, 0) {
		byID[d.VehicleID] = d
	}
	if len(byID) != 2 {
		t.Fatalf("published %d decisions, want 2", len(byID))
	}
	assert.Equal(t, VerdictGo, byID["CAR_0"].Verdict)

	ghost := byID["CAR_1"]
	assert.Equal(t, VerdictStop, ghost.Verdict)
	assert.True(t, ghost.Fallback)
	assert.Equal(t, 1.0, ghost.Confidence)
	assert.Nil(t, ghost.Features, "no state, no features")
}

func TestAdapter_StopSubstitution(t *testing.T) {
	tests := []struct {
		name  string
		infer InferenceFunc
	}{
		{
			name: "model error",
			infer: func(ctx context.Context, features FeatureVector) (InferenceResult, error) {
				return InferenceResult{}, errors.New("endpoint unreachable")
			},
		},
		{
			name: "malformed verdict",
			infer: func(ctx context.Context, features FeatureVector) (InferenceResult, error) {
				return InferenceResult{Verdict: "MAYBE", ConfidenceGo: 0.5}, nil
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bus := losslessBus()
			adapter := NewDecisionAdapter(bus, tt.infer, 0, nil)

			broadcast(bus, 0, VehicleState{ID: "CAR_0", X: -30, Y: -7, VX: 1})
			adapter.Tick(context.Background(), 0, []string{"CAR_0"})

			decisions := drainDecisions(t, bus, 0)
			if len(decisions) != 1 {
				t.Fatalf("published %d decisions, want 1", len(decisions))
			}
			assert.Equal(t, VerdictStop, decisions[0].Verdict)
			assert.True(t, decisions[0].Fallback)
			assert.Equal(t, 1.0, decisions[0].Confidence)
			assert.Equal(t, 1, adapter.InferenceFaults)
		})
	}
}

func TestAdapter_TimeoutSubstitutesStop(t *testing.T) {
	slow := func(ctx context.Context, features FeatureVector) (InferenceResult, error) {
		select {
		case <-ctx.Done():
			return InferenceResult{}, ctx.Err()
		case <-time.After(5 * time.Second):
			return InferenceResult{Verdict: VerdictGo}, nil
		}
	}
	bus := losslessBus()
	adapter := NewDecisionAdapter(bus, slow, 5*time.Millisecond, nil)

	broadcast(bus, 0, VehicleState{ID: "CAR_0", X: -30, Y: -7, VX: 1})

	start := time.Now()
	adapter.Tick(context.Background(), 0, []string{"CAR_0"})
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("tick blocked %v on a slow model", elapsed)
	}

	decisions := drainDecisions(t, bus, 0)
	if len(decisions) != 1 {
		t.Fatalf("published %d decisions, want 1", len(decisions))
	}
	assert.Equal(t, VerdictStop, decisions[0].Verdict)
	assert.True(t, decisions[0].Fallback)
	assert.Equal(t, 1, adapter.InferenceFaults)
}

func TestAdapter_AuditRecords(t *testing.T) {
	audit := trace.New(trace.LevelDecisions)
	failing := func(ctx context.Context, features FeatureVector) (InferenceResult, error) {
		return InferenceResult{}, errors.New("model down")
	}
	bus := losslessBus()
	adapter := NewDecisionAdapter(bus, failing, 0, audit)

	broadcast(bus, 0, VehicleState{ID: "CAR_0", X: -30, Y: -7, VX: 1})
	adapter.Tick(context.Background(), 0, []string{"CAR_0", "CAR_1"})

	// One inference fault, two published decisions (fault substitution
	// plus the synthesized one for the unheard vehicle).
	assert.Len(t, audit.Anomalies, 1)
	assert.Equal(t, "inference_fault", audit.Anomalies[0].Kind)
	assert.Equal(t, "CAR_0", audit.Anomalies[0].VehicleID)
	assert.Len(t, audit.Decisions, 2)
	for _, r := range audit.Decisions {
		assert.Equal(t, string(VerdictStop), r.Verdict)
		assert.True(t, r.Fallback)
	}
}

func TestAdapter_LatentStateDecidedWhenMature(t *testing.T) {
	bus := NewBus(BusConfig{
		PerTopic: map[string]TopicProfile{
			TopicV2VState: {LatencyMinTicks: 2},
		},
	}, 1)
	adapter := NewDecisionAdapter(bus, goModel(0.9), 0, nil)

	broadcast(bus, 0, VehicleState{ID: "CAR_0", X: -30, Y: -7, VX: 1})

	// Tick 0: the state is still in flight, so the adapter synthesizes.
	adapter.Tick(context.Background(), 0, []string{"CAR_0"})
	d0 := drainDecisions(t, bus, 0)
	if len(d0) != 1 || d0[0].Verdict != VerdictStop || !d0[0].Fallback {
		t.Fatalf("in-flight state should yield a synthesized STOP, got %+v", d0)
	}

	// Tick 2: the broadcast matures and real inference runs.
	adapter.Tick(context.Background(), 2, []string{"CAR_0"})
	d2 := drainDecisions(t, bus, 2)
	if len(d2) != 1 || d2[0].Verdict != VerdictGo || d2[0].Fallback {
		t.Fatalf("matured state should yield the model verdict, got %+v", d2)
	}
}
