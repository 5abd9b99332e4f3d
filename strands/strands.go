// Package strands decodes the agent engine's loosely-shaped execution
// records into the relay raw event union.
//
// The engine yields records keyed by which field is present: a text delta, a
// partially-built tool invocation, a fully-formed message, a final result, a
// lifecycle marker, or a callback echo. Classification happens here, once,
// in a single switch; no other package probes the wire shape.
package strands

import (
	"encoding/json"
	"fmt"

	"github.com/fwojciec/relay"
)

// record is the engine's wire shape. At most one of the classifying fields
// is set per record.
type record struct {
	Data           *string          `json:"data"`
	Reasoning      bool             `json:"reasoning"`
	CurrentToolUse *wireToolUse     `json:"current_tool_use"`
	Message        *wireMessage     `json:"message"`
	Result         *json.RawMessage `json:"result"`
	InitEventLoop  bool             `json:"init_event_loop"`
	StartEventLoop bool             `json:"start_event_loop"`
	Interrupt      *wireInterrupt   `json:"interrupt"`
	Callback       json.RawMessage  `json:"callback"`
}

type wireToolUse struct {
	ToolUseID string          `json:"toolUseId"`
	Name      string          `json:"name"`
	Input     json.RawMessage `json:"input"`
}

type wireMessage struct {
	Role    string            `json:"role"`
	Content []json.RawMessage `json:"content"`
}

// wireContent is one entry of a message's content list. Exactly one field is
// set.
type wireContent struct {
	Text       *string         `json:"text"`
	Image      *wireImage      `json:"image"`
	ToolUse    *wireToolUse    `json:"toolUse"`
	ToolResult *wireToolResult `json:"toolResult"`
}

type wireImage struct {
	Format string     `json:"format"`
	Source wireSource `json:"source"`
}

type wireSource struct {
	Bytes []byte `json:"bytes"`
}

type wireToolResult struct {
	ToolUseID string          `json:"toolUseId"`
	Status    string          `json:"status"`
	Content   json.RawMessage `json:"content"`
}

type wireResult struct {
	Message *wireMessage `json:"message"`
	Usage   *wireUsage   `json:"usage"`
}

type wireUsage struct {
	InputTokens           int `json:"inputTokens"`
	OutputTokens          int `json:"outputTokens"`
	TotalTokens           int `json:"totalTokens"`
	CacheReadInputTokens  int `json:"cacheReadInputTokens"`
	CacheWriteInputTokens int `json:"cacheWriteInputTokens"`
}

type wireInterrupt struct {
	Interrupts []wireInterruptItem `json:"interrupts"`
}

type wireInterruptItem struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// Decode classifies one raw record. It returns (nil, nil) for records this
// layer deliberately ignores (callback echoes, empty records).
func Decode(data []byte) (relay.RawEvent, error) {
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("strands: %w: %v", relay.ErrInvalidRecord, err)
	}

	switch {
	case rec.Result != nil:
		return decodeResult(*rec.Result)
	case rec.Data != nil:
		return relay.RawText{Text: *rec.Data, Reasoning: rec.Reasoning}, nil
	case rec.CurrentToolUse != nil:
		return relay.RawToolUse{
			ID:            rec.CurrentToolUse.ToolUseID,
			Name:          rec.CurrentToolUse.Name,
			InputFragment: decodeFragment(rec.CurrentToolUse.Input),
		}, nil
	case rec.Message != nil:
		msg, err := decodeMessage(*rec.Message)
		if err != nil {
			return nil, err
		}
		return relay.RawMessage{Message: msg}, nil
	case rec.InitEventLoop:
		return relay.RawLifecycle{Phase: relay.PhaseInit}, nil
	case rec.StartEventLoop:
		return relay.RawLifecycle{Phase: relay.PhaseStart}, nil
	case rec.Interrupt != nil:
		items := make([]relay.InterruptItem, 0, len(rec.Interrupt.Interrupts))
		for _, it := range rec.Interrupt.Interrupts {
			items = append(items, relay.InterruptItem{ID: it.ID, Name: it.Name, Reason: it.Reason})
		}
		return relay.RawInterrupt{Items: items}, nil
	case rec.Callback != nil:
		// Callback echoes carry no information this layer forwards.
		return nil, nil
	default:
		return nil, nil
	}
}

// decodeFragment turns the invocation input into the accumulating string
// fragment. The engine sends either a JSON string holding partial JSON, or,
// once assembled, the object itself.
func decodeFragment(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

func decodeResult(raw json.RawMessage) (relay.RawEvent, error) {
	// A bare string result is the final text itself.
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return relay.RawResult{
			Message: relay.Message{
				Role:    relay.RoleAssistant,
				Content: []relay.ContentBlock{relay.TextBlock{Text: s}},
			},
		}, nil
	}

	var res wireResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("strands: result: %w: %v", relay.ErrInvalidRecord, err)
	}

	var msg relay.Message
	if res.Message != nil {
		decoded, err := decodeMessage(*res.Message)
		if err != nil {
			return nil, err
		}
		msg = decoded
	} else {
		msg = relay.Message{Role: relay.RoleAssistant}
	}

	var usage *relay.Usage
	if res.Usage != nil {
		usage = &relay.Usage{
			InputTokens:           res.Usage.InputTokens,
			OutputTokens:          res.Usage.OutputTokens,
			TotalTokens:           res.Usage.TotalTokens,
			CacheReadInputTokens:  res.Usage.CacheReadInputTokens,
			CacheWriteInputTokens: res.Usage.CacheWriteInputTokens,
		}
		if usage.TotalTokens == 0 {
			usage.TotalTokens = usage.InputTokens + usage.OutputTokens
		}
	}

	return relay.RawResult{Message: msg, Usage: usage}, nil
}

// decodeMessage normalizes an engine message into the canonical Message
// shape. Content entries it does not recognize are preserved as
// UnknownBlocks rather than dropped.
func decodeMessage(wm wireMessage) (relay.Message, error) {
	role := relay.Role(wm.Role)
	if role != relay.RoleUser && role != relay.RoleAssistant {
		return relay.Message{}, fmt.Errorf("strands: message role %q: %w", wm.Role, relay.ErrInvalidRecord)
	}

	blocks := make([]relay.ContentBlock, 0, len(wm.Content))
	for _, raw := range wm.Content {
		blocks = append(blocks, decodeContent(raw))
	}
	return relay.Message{Role: role, Content: blocks}, nil
}

func decodeContent(raw json.RawMessage) relay.ContentBlock {
	var wc wireContent
	if err := json.Unmarshal(raw, &wc); err != nil {
		return relay.UnknownBlock{Raw: raw}
	}
	switch {
	case wc.Text != nil:
		return relay.TextBlock{Text: *wc.Text}
	case wc.Image != nil:
		return relay.ImageBlock{Format: wc.Image.Format, Data: wc.Image.Source.Bytes}
	case wc.ToolUse != nil:
		input := wc.ToolUse.Input
		if len(input) == 0 {
			input = json.RawMessage(`{}`)
		}
		return relay.ToolCallBlock{ID: wc.ToolUse.ToolUseID, Name: wc.ToolUse.Name, Input: input}
	case wc.ToolResult != nil:
		return relay.ToolResultBlock{
			ID:      wc.ToolResult.ToolUseID,
			Status:  wc.ToolResult.Status,
			Content: wc.ToolResult.Content,
		}
	default:
		return relay.UnknownBlock{Raw: raw}
	}
}
