// Package sse encodes protocol events for the server-push connection: one
// JSON object per event, newline-delimited.
package sse

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/fwojciec/relay"
)

// wireEvent is the outbound wire shape with a type discriminator. Fields are
// populated per event type and omitted otherwise.
type wireEvent struct {
	Type      string              `json:"type"`
	Text      string              `json:"text,omitempty"`
	ToolUseID string              `json:"toolUseId,omitempty"`
	Name      string              `json:"name,omitempty"`
	Input     json.RawMessage     `json:"input,omitempty"`
	Result    string              `json:"result,omitempty"`
	Status    string              `json:"status,omitempty"`
	Metadata  map[string]string   `json:"metadata,omitempty"`
	Items     []wireInterruptItem `json:"items,omitempty"`
	Message   string              `json:"message,omitempty"`
	Images    []wireImage         `json:"images,omitempty"`
	Usage     *wireUsage          `json:"usage,omitempty"`
	Data      map[string]string   `json:"data,omitempty"`
}

type wireImage struct {
	Format string `json:"format"`
	Bytes  string `json:"bytes"`
}

type wireUsage struct {
	InputTokens           int `json:"inputTokens"`
	OutputTokens          int `json:"outputTokens"`
	TotalTokens           int `json:"totalTokens"`
	CacheReadInputTokens  int `json:"cacheReadInputTokens,omitempty"`
	CacheWriteInputTokens int `json:"cacheWriteInputTokens,omitempty"`
}

type wireInterruptItem struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Reason string `json:"reason,omitempty"`
}

// Marshal encodes one protocol event to its wire form, without a trailing
// newline.
func Marshal(ev relay.ProtocolEvent) ([]byte, error) {
	var we wireEvent
	switch e := ev.(type) {
	case relay.Init:
		we.Type = "init"
	case relay.Thinking:
		we.Type = "thinking"
	case relay.Reasoning:
		we = wireEvent{Type: "reasoning", Text: e.Text}
	case relay.Response:
		we = wireEvent{Type: "response", Text: e.Text}
	case relay.ToolUse:
		we = wireEvent{Type: "tool_use", ToolUseID: e.ID, Name: e.Name, Input: e.Input}
	case relay.ToolResult:
		we = wireEvent{
			Type:      "tool_result",
			ToolUseID: e.ID,
			Result:    e.Text,
			Status:    e.Status,
			Metadata:  e.Metadata,
			Images:    encodeImages(e.Images),
		}
	case relay.Interrupt:
		we.Type = "interrupt"
		for _, it := range e.Items {
			we.Items = append(we.Items, wireInterruptItem{ID: it.ID, Name: it.Name, Reason: it.Reason})
		}
	case relay.Complete:
		we = wireEvent{
			Type:    "complete",
			Message: e.Text,
			Images:  encodeImages(e.Images),
		}
		if e.Usage != nil {
			we.Usage = &wireUsage{
				InputTokens:           e.Usage.InputTokens,
				OutputTokens:          e.Usage.OutputTokens,
				TotalTokens:           e.Usage.TotalTokens,
				CacheReadInputTokens:  e.Usage.CacheReadInputTokens,
				CacheWriteInputTokens: e.Usage.CacheWriteInputTokens,
			}
		}
	case relay.Error:
		we = wireEvent{Type: "error", Message: e.Message}
	case relay.Metadata:
		we = wireEvent{Type: "metadata", Data: e.Data}
	default:
		return nil, fmt.Errorf("sse: unknown protocol event type %T", ev)
	}
	return json.Marshal(we)
}

func encodeImages(images []relay.ImageBlock) []wireImage {
	if len(images) == 0 {
		return nil
	}
	out := make([]wireImage, len(images))
	for i, img := range images {
		out[i] = wireImage{
			Format: img.Format,
			Bytes:  base64.StdEncoding.EncodeToString(img.Data),
		}
	}
	return out
}

// Writer pushes encoded events to the client connection, one per line.
// When the underlying writer is an http.Flusher each event is flushed
// immediately so the push stays live behind buffering proxies.
type Writer struct {
	w       io.Writer
	flusher http.Flusher
}

// NewWriter creates a Writer over w.
func NewWriter(w io.Writer) *Writer {
	flusher, _ := w.(http.Flusher)
	return &Writer{w: w, flusher: flusher}
}

// Write encodes and writes one event. An event that cannot be encoded
// degrades to a minimal error event on the wire instead of failing the
// stream; only transport write failures are returned.
func (w *Writer) Write(ev relay.ProtocolEvent) error {
	data, err := Marshal(ev)
	if err != nil {
		data, err = Marshal(relay.Error{Message: fmt.Sprintf("event serialization failed: %v", err)})
		if err != nil {
			return fmt.Errorf("sse: marshal fallback error event: %w", err)
		}
	}
	if _, err := w.w.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("sse: write: %w", err)
	}
	if w.flusher != nil {
		w.flusher.Flush()
	}
	return nil
}
