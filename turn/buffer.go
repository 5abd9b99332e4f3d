// Package turn batches conversational messages into merged per-turn records
// to keep write amplification against the session store low.
//
// A turn starts at a user message and ends at the first assistant message
// that requests no tool. Intermediate tool-result messages ride along inside
// the turn. On flush the turn collapses into a single record: the first
// message's role, every message's content blocks in arrival order.
package turn

import (
	"context"
	"fmt"

	"github.com/fwojciec/relay"
)

// DefaultBatchThreshold is the safety-valve buffer size. A turn that never
// reaches a final assistant message still flushes at this many buffered
// messages, so a crash mid-turn loses at most one batch.
const DefaultBatchThreshold = 10

// Buffer accumulates one session's messages and flushes merged turn records
// to the sink. It is not safe for concurrent use; the single stream consumer
// owns it.
type Buffer struct {
	sink      relay.Sink
	session   *relay.Session
	threshold int
	pending   []relay.Message
}

// Option configures a Buffer.
type Option func(*Buffer)

// WithBatchThreshold overrides the safety-valve flush size. Values below 1
// are ignored.
func WithBatchThreshold(n int) Option {
	return func(b *Buffer) {
		if n >= 1 {
			b.threshold = n
		}
	}
}

// NewBuffer creates a Buffer writing merged records for the given session.
func NewBuffer(sink relay.Sink, session *relay.Session, opts ...Option) *Buffer {
	b := &Buffer{
		sink:      sink,
		session:   session,
		threshold: DefaultBatchThreshold,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Add buffers one message, flushing around it per the turn boundary rules.
// Once the session is cancelled, Add is a no-op.
func (b *Buffer) Add(ctx context.Context, msg relay.Message) error {
	if b.session.Cancelled() {
		return nil
	}

	// A plain user message arriving after an assistant message opens a new
	// turn: the buffered one is complete, flush it first. Tool results ride
	// on user-role messages and belong to the current turn, so they never
	// open one.
	if msg.Role == relay.RoleUser && !hasToolResult(msg) && b.lastRole() == relay.RoleAssistant {
		if err := b.Flush(ctx); err != nil {
			return err
		}
	}

	b.pending = append(b.pending, msg)

	// An assistant message with no tool request is the turn's final answer.
	if msg.Role == relay.RoleAssistant && !msg.HasToolCall() {
		return b.Flush(ctx)
	}

	// Safety valve, independent of turn state.
	if len(b.pending) >= b.threshold {
		return b.Flush(ctx)
	}
	return nil
}

// Flush merges the buffered messages into one record, writes it to the sink
// and clears the buffer. Flushing an empty buffer is a no-op.
func (b *Buffer) Flush(ctx context.Context) error {
	if len(b.pending) == 0 {
		return nil
	}

	role := b.pending[0].Role
	var content []relay.ContentBlock
	if len(b.pending) == 1 {
		content = b.pending[0].Content
	} else {
		for _, msg := range b.pending {
			content = append(content, msg.Content...)
		}
	}

	if err := b.sink.CreateMergedRecord(ctx, b.session.ID, role, content); err != nil {
		return fmt.Errorf("turn: flush session %s: %w", b.session.ID, err)
	}
	b.pending = b.pending[:0]
	return nil
}

// Len returns the number of buffered messages.
func (b *Buffer) Len() int {
	return len(b.pending)
}

func (b *Buffer) lastRole() relay.Role {
	if len(b.pending) == 0 {
		return ""
	}
	return b.pending[len(b.pending)-1].Role
}

func hasToolResult(msg relay.Message) bool {
	for _, block := range msg.Content {
		if _, ok := block.(relay.ToolResultBlock); ok {
			return true
		}
	}
	return false
}
