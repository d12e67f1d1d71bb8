package sim

import (
	"math"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
	exprand "golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
)

// TopicProfile is the fault model for one topic: every published
// message is independently dropped with DropRate, and surviving
// messages mature LatencyMinTicks plus a uniform jitter later.
type TopicProfile struct {
	DropRate           float64
	LatencyMinTicks    int64
	LatencyJitterTicks int64
}

// BusConfig configures the transport. PerTopic overrides the default
// profile for named topics; unnamed topics (monitoring taps) use Default.
type BusConfig struct {
	Default  TopicProfile
	PerTopic map[string]TopicProfile
}

// Validate rejects rates outside [0, 1] and negative latencies.
func (c *BusConfig) Validate() error {
	check := func(topic string, p TopicProfile) error {
		if p.DropRate < 0 || p.DropRate > 1 {
			return &ConfigError{Field: "drop_rate", Topic: topic, Reason: "must be in [0, 1]"}
		}
		if p.LatencyMinTicks < 0 || p.LatencyJitterTicks < 0 {
			return &ConfigError{Field: "latency", Topic: topic, Reason: "must be non-negative"}
		}
		return nil
	}
	if err := check("default", c.Default); err != nil {
		return err
	}
	for topic, p := range c.PerTopic {
		if err := check(topic, p); err != nil {
			return err
		}
	}
	return nil
}

func (c *BusConfig) profile(topic string) TopicProfile {
	if p, ok := c.PerTopic[topic]; ok {
		return p
	}
	return c.Default
}

// Bus is the in-memory V2X transport: typed publish/subscribe over
// named topics with simulated latency, drop probability, and structured
// fault injection.
//
// Delivery guarantees: at most once per message (a drop is terminal,
// never retried); per-topic FIFO among equal delivery times, tie-broken
// by publish sequence; per-sender delivery times are monotonic
// non-decreasing, so the latency model never reorders one sender's
// stream.
//
// The bus runs on virtual time: Drain(topic, now) returns everything
// matured at or before now and never sleeps, so a tick can never stall
// in transport. Safe for one writer and one drainer per topic plus any
// number of concurrent Report readers.
type Bus struct {
	mu      sync.Mutex
	cfg     BusConfig
	queues  map[string][]*V2XMessage
	seq     uint64
	lastOut map[string]int64 // sender -> last assigned DeliverAt
	forced  map[string]int   // topic -> remaining forced drops
	metrics *BusMetrics

	drop   *exprand.Rand
	jitter map[string]distuv.Uniform
}

// NewBus builds a bus whose fault rolls and jitter draws come from the
// given seed. The same seed reproduces the same loss and latency
// pattern for the same publish sequence.
func NewBus(cfg BusConfig, seed uint64) *Bus {
	b := &Bus{
		cfg:     cfg,
		queues:  make(map[string][]*V2XMessage),
		lastOut: make(map[string]int64),
		forced:  make(map[string]int),
		metrics: NewBusMetrics(),
		drop:    exprand.New(exprand.NewSource(seed)),
		jitter:  make(map[string]distuv.Uniform),
	}
	return b
}

// jitterFor lazily builds the per-topic jitter sampler. All samplers
// share the drop RNG's source so the whole fault model replays from one
// seed.
func (b *Bus) jitterFor(topic string, p TopicProfile) distuv.Uniform {
	u, ok := b.jitter[topic]
	if !ok {
		u = distuv.Uniform{
			Min: 0,
			Max: float64(p.LatencyJitterTicks) + 1,
			Src: b.drop,
		}
		b.jitter[topic] = u
	}
	return u
}

// Publish enqueues a message for delivery at now + latency, or counts
// it as dropped. Returns the assigned sequence number and whether the
// message survived the drop roll.
func (b *Bus) Publish(topic, sender string, now int64, payload Payload) (uint64, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.seq++
	seq := b.seq
	b.metrics.counts(topic).Published++

	p := b.cfg.profile(topic)
	if b.rollDrop(topic, p) {
		b.metrics.counts(topic).Dropped++
		logrus.Debugf("bus: dropped topic=%s sender=%s seq=%d", topic, sender, seq)
		return seq, false
	}

	latency := p.LatencyMinTicks
	if p.LatencyJitterTicks > 0 {
		latency += int64(math.Floor(b.jitterFor(topic, p).Rand()))
	}
	deliverAt := now + latency
	// A sender's stream is never reordered by the latency model.
	if last, ok := b.lastOut[sender]; ok && deliverAt < last {
		deliverAt = last
	}
	b.lastOut[sender] = deliverAt

	b.queues[topic] = append(b.queues[topic], &V2XMessage{
		Topic:     topic,
		Sender:    sender,
		Seq:       seq,
		CreatedAt: now,
		DeliverAt: deliverAt,
		Payload:   payload,
	})
	return seq, true
}

func (b *Bus) rollDrop(topic string, p TopicProfile) bool {
	if n := b.forced[topic]; n > 0 {
		b.forced[topic] = n - 1
		return true
	}
	if p.DropRate <= 0 {
		return false
	}
	return b.drop.Float64() < p.DropRate
}

// InjectLossBurst forces the next n publishes on topic to drop,
// regardless of the configured rate. Explicit fault injection for
// degraded-network scenarios; bursts stack.
func (b *Bus) InjectLossBurst(topic string, n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if n > 0 {
		b.forced[topic] += n
	}
}

// Drain removes and returns every message on topic whose delivery time
// has elapsed at now, ordered by (DeliverAt, Seq). Never blocks.
func (b *Bus) Drain(topic string, now int64) []*V2XMessage {
	b.mu.Lock()
	defer b.mu.Unlock()

	queue := b.queues[topic]
	var matured, pending []*V2XMessage
	for _, msg := range queue {
		if msg.DeliverAt <= now {
			matured = append(matured, msg)
		} else {
			pending = append(pending, msg)
		}
	}
	b.queues[topic] = pending

	sort.Slice(matured, func(i, j int) bool {
		if matured[i].DeliverAt != matured[j].DeliverAt {
			return matured[i].DeliverAt < matured[j].DeliverAt
		}
		return matured[i].Seq < matured[j].Seq
	})
	b.metrics.counts(topic).Delivered += uint64(len(matured))
	return matured
}

// Pending reports the number of in-flight messages on topic.
func (b *Bus) Pending(topic string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queues[topic])
}

// Report returns a copy of the per-topic counters.
func (b *Bus) Report() BusReport {
	b.mu.Lock()
	defer b.mu.Unlock()
	report := make(BusReport, len(b.metrics.topics))
	for topic, c := range b.metrics.topics {
		report[topic] = *c
	}
	return report
}

// Reset discards all in-flight messages, pending bursts, and counters.
// The RNG stream is not rewound; Bridge.Reset builds a fresh bus when
// it needs a replayable run.
func (b *Bus) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.queues = make(map[string][]*V2XMessage)
	b.lastOut = make(map[string]int64)
	b.forced = make(map[string]int)
	b.metrics = NewBusMetrics()
}

// Subscription is a single-reader drain handle for one topic. The bus
// supports one drainer per topic; a second subscriber on the same topic
// would compete for messages rather than fan out.
type Subscription struct {
	bus   *Bus
	topic string
}

// Subscribe returns a drain handle for topic.
func (b *Bus) Subscribe(topic string) *Subscription {
	return &Subscription{bus: b, topic: topic}
}

// Drain returns all matured messages on the subscribed topic.
func (s *Subscription) Drain(now int64) []*V2XMessage {
	return s.bus.Drain(s.topic, now)
}

// Topic is the subscribed topic name.
func (s *Subscription) Topic() string { return s.topic }
