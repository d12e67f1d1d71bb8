package sim

// Topics carried by the V2X bus. Vehicles broadcast on v2v.state; the
// infrastructure publishes decisions on i2v.command.
const (
	TopicV2VState   = "v2v.state"
	TopicI2VCommand = "i2v.command"
)

// Verdict is the inference output applied by the World.
type Verdict string

const (
	VerdictGo   Verdict = "GO"
	VerdictStop Verdict = "STOP"
)

// Payload is the typed body of a V2X message. The closed set keeps
// topic and payload type in lockstep without reflection.
type Payload interface {
	isPayload()
}

// StatePayload is one vehicle's broadcast on v2v.state.
type StatePayload struct {
	Vehicle VehicleState
	Tick    int64
}

func (*StatePayload) isPayload() {}

// DecisionPayload carries one decision on i2v.command.
type DecisionPayload struct {
	Decision Decision
}

func (*DecisionPayload) isPayload() {}

// Decision is the adapter's per-vehicle output: the verdict, the model
// confidence behind it, and the feature vector that produced it.
// Fallback marks STOP substitutions the adapter synthesized after a
// fault or a lost state broadcast.
type Decision struct {
	VehicleID  string
	Verdict    Verdict
	Confidence float64
	Features   FeatureVector
	Fallback   bool
}

// V2XMessage is the transport envelope. DeliverAt is in ticks of
// virtual time; the bus holds the message back until the simulation
// clock reaches it.
type V2XMessage struct {
	Topic  string
	Sender string
	Seq    uint64

	CreatedAt int64
	DeliverAt int64

	Payload Payload
}
