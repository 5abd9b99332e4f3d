// Package normalize converts the agent engine's heterogeneous raw event
// stream into an ordered stream of protocol events.
//
// One Normalizer serves one session's stream. It owns the tool-call dedup
// state, the per-invocation tool contexts and the optional turn buffer;
// nothing here is process-global.
package normalize

import (
	"context"
	"io"

	"github.com/fwojciec/relay"
	"github.com/fwojciec/relay/extract"
	"github.com/fwojciec/relay/turn"
	"github.com/fwojciec/relay/xmltool"
)

// DefaultCancellationNotice is the terminal response text emitted when the
// session's cancellation flag cuts the stream short.
const DefaultCancellationNotice = "Generation stopped by user."

// Normalizer uses a pull-based iterator pattern. Next returns io.EOF after a
// terminal event (Complete, Error, or the cancellation notice) has been
// delivered. Protocol events come out strictly in the order their triggering
// raw events were observed.
type Normalizer struct {
	ctx     context.Context
	src     relay.Source
	session *relay.Session
	buffer  *turn.Buffer
	dedup   *Deduplicator
	notice  string

	queue   []relay.ProtocolEvent
	done    bool
	toolCtx map[string]string // invocation id -> tool name, one request/response pair
}

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithTurnBuffer attaches a turn buffer. Every fully-formed message is
// forwarded to it for persistence bookkeeping, independently of the protocol
// events the same message produces.
func WithTurnBuffer(b *turn.Buffer) Option {
	return func(n *Normalizer) {
		n.buffer = b
	}
}

// WithCancellationNotice overrides the terminal notice text.
func WithCancellationNotice(text string) Option {
	return func(n *Normalizer) {
		n.notice = text
	}
}

// New creates a Normalizer over the given source. The session provides the
// advisory cancellation flag, polled once per raw event; the context covers
// sink writes and is checked alongside it.
func New(ctx context.Context, src relay.Source, session *relay.Session, opts ...Option) *Normalizer {
	n := &Normalizer{
		ctx:     ctx,
		src:     src,
		session: session,
		dedup:   NewDeduplicator(),
		notice:  DefaultCancellationNotice,
		toolCtx: make(map[string]string),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Next returns the next protocol event, or io.EOF once the stream has ended.
func (n *Normalizer) Next() (relay.ProtocolEvent, error) {
	for {
		if len(n.queue) > 0 {
			ev := n.queue[0]
			n.queue = n.queue[1:]
			return ev, nil
		}
		if n.done {
			return nil, io.EOF
		}
		if n.cancelled() {
			n.done = true
			return relay.Response{Text: n.notice}, nil
		}

		raw, err := n.src.Next()
		if err == io.EOF {
			// Engine ended without a final result. Whatever is buffered
			// still gets persisted; pending incomplete invocations are
			// dropped, their input never became executable.
			n.done = true
			if ferr := n.flush(); ferr != nil {
				return relay.Error{Message: ferr.Error()}, nil
			}
			continue
		}
		if err != nil {
			n.done = true
			return relay.Error{Message: err.Error()}, nil
		}

		if perr := n.process(raw); perr != nil {
			// Events already enqueued by this raw event still go out, but
			// the Error is appended behind them so it stays the terminal
			// event of the stream.
			n.done = true
			n.queue = append(n.queue, relay.Error{Message: perr.Error()})
		}
	}
}

// Close closes the underlying source.
func (n *Normalizer) Close() error {
	return n.src.Close()
}

func (n *Normalizer) cancelled() bool {
	if n.session != nil && n.session.Cancelled() {
		return true
	}
	return n.ctx.Err() != nil
}

// process classifies one raw event and enqueues the protocol events it
// produces. Sink failures are the only errors it returns.
func (n *Normalizer) process(raw relay.RawEvent) error {
	switch ev := raw.(type) {
	case relay.RawResult:
		// Flush before enqueueing Complete: a sink failure here must yield
		// a single terminal Error, never a Complete followed by one.
		n.done = true
		if err := n.flush(); err != nil {
			return err
		}
		text, images := collapse(ev.Message)
		n.queue = append(n.queue, relay.Complete{Text: text, Images: images, Usage: ev.Usage})
		return nil

	case relay.RawText:
		if ev.Reasoning {
			n.queue = append(n.queue, relay.Reasoning{Text: ev.Text})
			return nil
		}
		n.processText(ev.Text)
		return nil

	case relay.RawLifecycle:
		switch ev.Phase {
		case relay.PhaseInit:
			n.queue = append(n.queue, relay.Init{})
		case relay.PhaseStart:
			n.queue = append(n.queue, relay.Thinking{})
		}
		return nil

	case relay.RawToolUse:
		if tu, ok := n.dedup.Submit(ev.ID, ev.Name, ev.InputFragment); ok {
			n.toolCtx[tu.ID] = tu.Name
			n.queue = append(n.queue, tu)
		}
		return nil

	case relay.RawMessage:
		n.processToolResults(ev.Message)
		return n.add(ev.Message)

	case relay.RawInterrupt:
		n.queue = append(n.queue, relay.Interrupt{Items: ev.Items})
		return nil

	default:
		return nil
	}
}

// processText runs the markup fallback over a plain text delta. Invocations
// recovered from markup go through the same dedup identity rules as the
// structured path.
func (n *Normalizer) processText(text string) {
	calls, cleaned := xmltool.Parse(text)
	for _, call := range calls {
		if tu, ok := n.dedup.Submit(call.ID, call.Name, string(call.Input)); ok {
			n.toolCtx[tu.ID] = tu.Name
			n.queue = append(n.queue, tu)
		}
	}
	if cleaned != "" {
		n.queue = append(n.queue, relay.Response{Text: cleaned})
	}
}

// processToolResults emits a ToolResult per embedded tool-result block.
// The per-invocation context created when the matching ToolUse was emitted
// is consulted here and discarded.
func (n *Normalizer) processToolResults(msg relay.Message) {
	for _, block := range msg.Content {
		trb, ok := block.(relay.ToolResultBlock)
		if !ok {
			continue
		}
		res := extract.JSON(trb.Content)

		meta := make(map[string]string, len(res.Metadata)+1)
		for k, v := range res.Metadata {
			meta[k] = v
		}
		if name, tracked := n.toolCtx[trb.ID]; tracked {
			meta["toolName"] = name
			delete(n.toolCtx, trb.ID)
		}
		if len(meta) == 0 {
			meta = nil
		}

		n.queue = append(n.queue, relay.ToolResult{
			ID:       trb.ID,
			Text:     res.Text,
			Images:   res.Images,
			Status:   trb.Status,
			Metadata: meta,
		})
		if len(res.Metadata) > 0 {
			n.queue = append(n.queue, relay.Metadata{Data: res.Metadata})
		}
	}
}

func (n *Normalizer) add(msg relay.Message) error {
	if n.buffer == nil {
		return nil
	}
	return n.buffer.Add(n.ctx, msg)
}

func (n *Normalizer) flush() error {
	if n.buffer == nil {
		return nil
	}
	return n.buffer.Flush(n.ctx)
}

// collapse extracts the final result's text and images from its canonical
// content blocks. Blocks this layer does not recognize degrade through the
// content extractor.
func collapse(msg relay.Message) (string, []relay.ImageBlock) {
	var text string
	var images []relay.ImageBlock
	for _, block := range msg.Content {
		switch b := block.(type) {
		case relay.TextBlock:
			text += b.Text
		case relay.ImageBlock:
			images = append(images, b)
		case relay.UnknownBlock:
			res := extract.JSON(b.Raw)
			text += res.Text
			images = append(images, res.Images...)
		}
	}
	return text, images
}
