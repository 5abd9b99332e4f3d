package relay

import "encoding/json"

// Message is the canonical conversational message representation. Raw engine
// messages are normalized into this shape at the ingestion boundary; no other
// code inspects the engine's wire form.
type Message struct {
	Role    Role
	Content []ContentBlock
}

// HasToolCall reports whether any content block is a tool invocation request.
func (m Message) HasToolCall() bool {
	for _, b := range m.Content {
		if _, ok := b.(ToolCallBlock); ok {
			return true
		}
	}
	return false
}

// Text concatenates the message's text blocks.
func (m Message) Text() string {
	var out string
	for _, b := range m.Content {
		if tb, ok := b.(TextBlock); ok {
			out += tb.Text
		}
	}
	return out
}

// ContentBlock is a sealed interface representing a block of content.
// The unexported marker method prevents external implementations.
type ContentBlock interface {
	contentBlock()
}

// TextBlock contains text content.
type TextBlock struct {
	Text string
}

func (TextBlock) contentBlock() {}

// ImageBlock contains image data. Data is always the decoded binary payload,
// regardless of the wire encoding it arrived in.
type ImageBlock struct {
	Format string // "png", "jpeg", ...
	Data   []byte
}

func (ImageBlock) contentBlock() {}

// ToolCallBlock represents a tool invocation request embedded in a message.
type ToolCallBlock struct {
	ID    string
	Name  string
	Input json.RawMessage
}

func (ToolCallBlock) contentBlock() {}

// ToolResultBlock represents a tool's result embedded in a message.
// Content holds the raw result payload as received; normalization to text
// and images happens in the extract package.
type ToolResultBlock struct {
	ID      string
	Status  string
	Content json.RawMessage
}

func (ToolResultBlock) contentBlock() {}

// UnknownBlock preserves a content entry this layer does not recognize.
type UnknownBlock struct {
	Raw json.RawMessage
}

func (UnknownBlock) contentBlock() {}

// Interface compliance checks.
var (
	_ ContentBlock = TextBlock{}
	_ ContentBlock = ImageBlock{}
	_ ContentBlock = ToolCallBlock{}
	_ ContentBlock = ToolResultBlock{}
	_ ContentBlock = UnknownBlock{}
)
