package relay

import "encoding/json"

// ProtocolEvent is a sealed interface representing one normalized,
// externally-visible event pushed to the client.
// The unexported marker method prevents external implementations.
type ProtocolEvent interface {
	protocolEvent()
}

// Init signals that the engine's event loop has initialized.
type Init struct{}

func (Init) protocolEvent() {}

// Thinking signals that the engine has started a processing cycle.
type Thinking struct{}

func (Thinking) protocolEvent() {}

// Reasoning carries chain-of-thought text, streamed verbatim.
type Reasoning struct {
	Text string
}

func (Reasoning) protocolEvent() {}

// Response carries assistant-visible text.
type Response struct {
	Text string
}

func (Response) protocolEvent() {}

// ToolUse announces a tool invocation whose input is syntactically complete.
// At most one ToolUse is ever emitted per invocation id.
type ToolUse struct {
	ID    string
	Name  string
	Input json.RawMessage
}

func (ToolUse) protocolEvent() {}

// ToolResult carries the normalized outcome of a tool invocation.
type ToolResult struct {
	ID       string
	Text     string
	Images   []ImageBlock
	Status   string
	Metadata map[string]string
}

func (ToolResult) protocolEvent() {}

// Interrupt surfaces engine-side interruption items to the client.
type Interrupt struct {
	Items []InterruptItem
}

func (Interrupt) protocolEvent() {}

// Complete is the terminal event for a successful stream.
type Complete struct {
	Text   string
	Images []ImageBlock
	Usage  *Usage
}

func (Complete) protocolEvent() {}

// Error is the terminal event for a failed stream.
type Error struct {
	Message string
}

func (Error) protocolEvent() {}

// Metadata carries auxiliary key/value data that accompanies the stream
// without belonging to any single response or tool result.
type Metadata struct {
	Data map[string]string
}

func (Metadata) protocolEvent() {}

// Interface compliance checks.
var (
	_ ProtocolEvent = Init{}
	_ ProtocolEvent = Thinking{}
	_ ProtocolEvent = Reasoning{}
	_ ProtocolEvent = Response{}
	_ ProtocolEvent = ToolUse{}
	_ ProtocolEvent = ToolResult{}
	_ ProtocolEvent = Interrupt{}
	_ ProtocolEvent = Complete{}
	_ ProtocolEvent = Error{}
	_ ProtocolEvent = Metadata{}
)
