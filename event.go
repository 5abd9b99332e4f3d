package relay

// RawEvent is a sealed interface representing one record from the agent
// engine's execution stream, decoded once at the boundary. Events are purely
// semantic. Transport/protocol errors come from Source.Next()'s error return,
// not from events.
// The unexported marker method prevents external implementations.
type RawEvent interface {
	rawEvent()
}

// LifecyclePhase distinguishes the engine's loop lifecycle markers.
type LifecyclePhase int

const (
	PhaseInit  LifecyclePhase = iota // event loop initialized
	PhaseStart                       // event loop cycle started
)

// RawText is a streamed text delta. Reasoning marks chain-of-thought text,
// which is always streamed verbatim and never buffered.
type RawText struct {
	Text      string
	Reasoning bool
}

func (RawText) rawEvent() {}

// RawToolUse is a partially-built tool invocation. InputFragment accumulates
// across events and is not necessarily valid JSON until the invocation is
// complete.
type RawToolUse struct {
	ID            string
	Name          string
	InputFragment string
}

func (RawToolUse) rawEvent() {}

// RawMessage carries a fully-formed conversational message.
type RawMessage struct {
	Message Message
}

func (RawMessage) rawEvent() {}

// RawResult is the engine's final result for the stream. No further events
// follow it.
type RawResult struct {
	Message Message
	Usage   *Usage
}

func (RawResult) rawEvent() {}

// RawLifecycle marks an event-loop lifecycle transition.
type RawLifecycle struct {
	Phase LifecyclePhase
}

func (RawLifecycle) rawEvent() {}

// RawInterrupt carries engine-side interruption items awaiting resolution.
type RawInterrupt struct {
	Items []InterruptItem
}

func (RawInterrupt) rawEvent() {}

// InterruptItem describes one pending interruption.
type InterruptItem struct {
	ID     string
	Name   string
	Reason string
}

// Interface compliance checks.
var (
	_ RawEvent = RawText{}
	_ RawEvent = RawToolUse{}
	_ RawEvent = RawMessage{}
	_ RawEvent = RawResult{}
	_ RawEvent = RawLifecycle{}
	_ RawEvent = RawInterrupt{}
)
