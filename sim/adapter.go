package sim

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/intersection-sim/intersection-sim/sim/trace"
)

// InfraSender is the sender id the adapter publishes decisions under.
const InfraSender = "INFRA"

// DecisionAdapter is the sole point of contact with the external
// inference function. Each tick it drains every matured v2v.state
// message, encodes the feature vector, invokes inference under a
// timeout, and publishes exactly one i2v.command decision per vehicle.
//
// Decisions never silently vanish: an inference error, timeout, or
// malformed output yields a STOP substitution; a vehicle whose state
// broadcast was dropped gets a synthesized STOP.
type DecisionAdapter struct {
	bus     *Bus
	sub     *Subscription
	infer   InferenceFunc
	timeout time.Duration
	audit   *trace.Trace

	// InferenceFaults counts recovered model failures this run.
	InferenceFaults int
}

// NewDecisionAdapter wires the adapter to the bus and the external
// model. timeout bounds each per-vehicle inference call; zero means no
// bound. audit may be nil.
func NewDecisionAdapter(bus *Bus, infer InferenceFunc, timeout time.Duration, audit *trace.Trace) *DecisionAdapter {
	return &DecisionAdapter{
		bus:     bus,
		sub:     bus.Subscribe(TopicV2VState),
		infer:   infer,
		timeout: timeout,
		audit:   audit,
	}
}

// Tick consumes every vehicle state delivered since the last tick and
// republishes one decision per vehicle in roster. Preserves delivery
// order for heard vehicles; unheard vehicles follow in roster order.
func (a *DecisionAdapter) Tick(ctx context.Context, now int64, roster []string) {
	heard := make(map[string]VehicleState)
	var order []string
	for _, msg := range a.sub.Drain(now) {
		state, ok := msg.Payload.(*StatePayload)
		if !ok {
			logrus.Warnf("adapter: non-state payload on %s from %s ignored", msg.Topic, msg.Sender)
			continue
		}
		if _, seen := heard[state.Vehicle.ID]; !seen {
			order = append(order, state.Vehicle.ID)
		}
		// A newer broadcast from the same vehicle supersedes the older.
		heard[state.Vehicle.ID] = state.Vehicle
	}

	all := make([]VehicleState, 0, len(order))
	for _, id := range order {
		all = append(all, heard[id])
	}

	for _, id := range order {
		a.publish(now, a.decide(ctx, now, heard[id], all))
	}
	for _, id := range roster {
		if _, ok := heard[id]; ok {
			continue
		}
		// State broadcast lost in transport: fail-safe STOP, so the
		// vehicle still receives a command this tick.
		a.publish(now, Decision{
			VehicleID:  id,
			Verdict:    VerdictStop,
			Confidence: 1,
			Fallback:   true,
		})
	}
}

// decide runs one inference call and converts any fault into a STOP
// substitution.
func (a *DecisionAdapter) decide(ctx context.Context, now int64, ego VehicleState, all []VehicleState) Decision {
	features := EncodeFeatures(ego, all)

	callCtx := ctx
	if a.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	result, err := a.infer(callCtx, features)
	if err == nil && result.Verdict != VerdictGo && result.Verdict != VerdictStop {
		err = fmt.Errorf("malformed verdict %q", result.Verdict)
	}
	if err != nil {
		a.InferenceFaults++
		logrus.Warnf("adapter: inference fault for %s: %v (substituting STOP)", ego.ID, err)
		a.audit.RecordAnomaly(trace.AnomalyRecord{
			Kind:      "inference_fault",
			VehicleID: ego.ID,
			Tick:      now,
			Detail:    err.Error(),
		})
		return Decision{
			VehicleID:  ego.ID,
			Verdict:    VerdictStop,
			Confidence: 1,
			Features:   features,
			Fallback:   true,
		}
	}

	confidence := result.ConfidenceGo
	if result.Verdict == VerdictStop {
		confidence = result.ConfidenceStop
	}
	return Decision{
		VehicleID:  ego.ID,
		Verdict:    result.Verdict,
		Confidence: confidence,
		Features:   features,
	}
}

func (a *DecisionAdapter) publish(now int64, d Decision) {
	a.audit.RecordDecision(trace.DecisionRecord{
		VehicleID:  d.VehicleID,
		Tick:       now,
		Verdict:    string(d.Verdict),
		Confidence: d.Confidence,
		Fallback:   d.Fallback,
		Features:   d.Features,
	})
	a.bus.Publish(TopicI2VCommand, InfraSender, now, &DecisionPayload{Decision: d})
}
