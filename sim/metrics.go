package sim

import "fmt"

// TopicCounts are the monotonic per-topic delivery counters. At any
// instant Published == Delivered + Dropped + in-flight; once every
// published message has matured and been drained, Published ==
// Delivered + Dropped exactly.
type TopicCounts struct {
	Published uint64
	Delivered uint64
	Dropped   uint64
}

// InFlight is the number of published messages not yet drained or dropped.
func (c TopicCounts) InFlight() uint64 {
	return c.Published - c.Delivered - c.Dropped
}

// BusMetrics tracks message flow per topic. Written by the bus under
// its lock; Report hands out a copy so observers never hold the lock.
type BusMetrics struct {
	topics map[string]*TopicCounts
}

// NewBusMetrics initializes empty counters.
func NewBusMetrics() *BusMetrics {
	return &BusMetrics{topics: make(map[string]*TopicCounts)}
}

func (m *BusMetrics) counts(topic string) *TopicCounts {
	c, ok := m.topics[topic]
	if !ok {
		c = &TopicCounts{}
		m.topics[topic] = c
	}
	return c
}

// BusReport is a point-in-time copy of all per-topic counters.
type BusReport map[string]TopicCounts

// Totals sums the per-topic counters.
func (r BusReport) Totals() TopicCounts {
	var t TopicCounts
	for _, c := range r {
		t.Published += c.Published
		t.Delivered += c.Delivered
		t.Dropped += c.Dropped
	}
	return t
}

// SimMetrics aggregates run-level statistics for final reporting.
type SimMetrics struct {
	Ticks                int64
	Departed             int
	SafetyInterventions  int // collision-guard clamps
	CollisionResolutions int // overlap-resolver corrections
	InferenceFaults      int
	UnknownDecisions     int // decisions for ids the World does not know
}

// Print displays aggregated metrics at the end of a headless run.
func (m *SimMetrics) Print(bus BusReport) {
	fmt.Println("=== Simulation Metrics ===")
	fmt.Printf("Ticks                  : %d\n", m.Ticks)
	fmt.Printf("Departed vehicles      : %d\n", m.Departed)
	fmt.Printf("Safety interventions   : %d\n", m.SafetyInterventions)
	fmt.Printf("Collision resolutions  : %d\n", m.CollisionResolutions)
	fmt.Printf("Inference faults       : %d\n", m.InferenceFaults)
	for _, topic := range []string{TopicV2VState, TopicI2VCommand} {
		c := bus[topic]
		fmt.Printf("%-23s: published=%d delivered=%d dropped=%d\n",
			topic, c.Published, c.Delivered, c.Dropped)
	}
}
