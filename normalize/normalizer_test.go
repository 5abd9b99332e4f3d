package normalize_test

import (
	"context"
	"encoding/json"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fwojciec/relay"
	"github.com/fwojciec/relay/mock"
	"github.com/fwojciec/relay/normalize"
	"github.com/fwojciec/relay/turn"
)

// drain pulls every protocol event until io.EOF.
func drain(t *testing.T, n *normalize.Normalizer) []relay.ProtocolEvent {
	t.Helper()
	var events []relay.ProtocolEvent
	for {
		ev, err := n.Next()
		if err == io.EOF {
			return events
		}
		require.NoError(t, err)
		events = append(events, ev)
	}
}

func newNormalizer(events ...relay.RawEvent) *normalize.Normalizer {
	return normalize.New(context.Background(), mock.NewScriptSource(events...), relay.NewSession("sess_1"))
}

func TestNormalizer_TextDeltasBecomeResponses(t *testing.T) {
	t.Parallel()

	n := newNormalizer(
		relay.RawText{Text: "hello "},
		relay.RawText{Text: "world"},
	)
	events := drain(t, n)
	assert.Equal(t, []relay.ProtocolEvent{
		relay.Response{Text: "hello "},
		relay.Response{Text: "world"},
	}, events)
}

func TestNormalizer_ReasoningStreamedVerbatim(t *testing.T) {
	t.Parallel()

	n := newNormalizer(
		relay.RawText{Text: "  thinking out loud  ", Reasoning: true},
	)
	events := drain(t, n)
	require.Len(t, events, 1)
	assert.Equal(t, relay.Reasoning{Text: "  thinking out loud  "}, events[0])
}

func TestNormalizer_LifecycleMarkers(t *testing.T) {
	t.Parallel()

	n := newNormalizer(
		relay.RawLifecycle{Phase: relay.PhaseInit},
		relay.RawLifecycle{Phase: relay.PhaseStart},
	)
	events := drain(t, n)
	assert.Equal(t, []relay.ProtocolEvent{relay.Init{}, relay.Thinking{}}, events)
}

func TestNormalizer_ToolUseDedupAcrossFragments(t *testing.T) {
	t.Parallel()

	n := newNormalizer(
		relay.RawToolUse{ID: "tc_1", Name: "search", InputFragment: ""},
		relay.RawToolUse{ID: "tc_1", Name: "search", InputFragment: `{"a":1`},
		relay.RawToolUse{ID: "tc_1", Name: "search", InputFragment: `{"a":1}`},
		relay.RawToolUse{ID: "tc_1", Name: "search", InputFragment: `{"a":1}`},
	)
	events := drain(t, n)
	require.Len(t, events, 1)
	tu, ok := events[0].(relay.ToolUse)
	require.True(t, ok)
	assert.Equal(t, "tc_1", tu.ID)
	assert.JSONEq(t, `{"a":1}`, string(tu.Input))
}

func TestNormalizer_EmptyParameterToolEmitsImmediately(t *testing.T) {
	t.Parallel()

	n := newNormalizer(relay.RawToolUse{ID: "tc_1", Name: "ping", InputFragment: "{}"})
	events := drain(t, n)
	require.Len(t, events, 1)
	assert.IsType(t, relay.ToolUse{}, events[0])
}

func TestNormalizer_XMLFallbackSynthesizesToolUse(t *testing.T) {
	t.Parallel()

	n := newNormalizer(
		relay.RawText{Text: `Checking. <tool_call>{"name": "search", "input": {"q": "go"}}</tool_call> Done.`},
	)
	events := drain(t, n)
	require.Len(t, events, 2)

	tu, ok := events[0].(relay.ToolUse)
	require.True(t, ok)
	assert.Equal(t, "search", tu.Name)
	assert.JSONEq(t, `{"q":"go"}`, string(tu.Input))

	assert.Equal(t, relay.Response{Text: "Checking.  Done."}, events[1])
}

func TestNormalizer_XMLFallbackSharesDedupIdentity(t *testing.T) {
	t.Parallel()

	n := newNormalizer(
		relay.RawToolUse{ID: "tc_1", Name: "search", InputFragment: `{"q":"go"}`},
		relay.RawText{Text: `<tool_call>{"id": "tc_1", "name": "search", "input": {"q": "go"}}</tool_call>`},
	)
	events := drain(t, n)
	require.Len(t, events, 1)
	assert.IsType(t, relay.ToolUse{}, events[0])
}

func TestNormalizer_ToolResultExtraction(t *testing.T) {
	t.Parallel()

	content, err := json.Marshal(map[string]any{
		"content": []any{map[string]any{"text": "found 3 results"}},
	})
	require.NoError(t, err)

	n := newNormalizer(
		relay.RawToolUse{ID: "tc_1", Name: "search", InputFragment: "{}"},
		relay.RawMessage{Message: relay.Message{
			Role: relay.RoleUser,
			Content: []relay.ContentBlock{
				relay.ToolResultBlock{ID: "tc_1", Status: "success", Content: content},
			},
		}},
	)
	events := drain(t, n)
	require.Len(t, events, 2)

	tr, ok := events[1].(relay.ToolResult)
	require.True(t, ok)
	assert.Equal(t, "tc_1", tr.ID)
	assert.Equal(t, "found 3 results", tr.Text)
	assert.Equal(t, "success", tr.Status)
	// The per-invocation context recorded at ToolUse time resolves the name.
	assert.Equal(t, "search", tr.Metadata["toolName"])
}

func TestNormalizer_ToolContextDiscardedAfterResult(t *testing.T) {
	t.Parallel()

	resultMsg := relay.RawMessage{Message: relay.Message{
		Role: relay.RoleUser,
		Content: []relay.ContentBlock{
			relay.ToolResultBlock{ID: "tc_1", Status: "success", Content: json.RawMessage(`"ok"`)},
		},
	}}
	n := newNormalizer(
		relay.RawToolUse{ID: "tc_1", Name: "search", InputFragment: "{}"},
		resultMsg,
		resultMsg,
	)
	events := drain(t, n)
	require.Len(t, events, 3)

	first := events[1].(relay.ToolResult)
	second := events[2].(relay.ToolResult)
	assert.Equal(t, "search", first.Metadata["toolName"])
	// Context is one request/response pair; the repeat has no name.
	assert.Empty(t, second.Metadata["toolName"])
}

func TestNormalizer_SessionMetadataSideChannel(t *testing.T) {
	t.Parallel()

	content, err := json.Marshal(map[string]any{
		"text":     "navigated",
		"metadata": map[string]any{"sessionId": "browser-42"},
	})
	require.NoError(t, err)

	n := newNormalizer(
		relay.RawMessage{Message: relay.Message{
			Role: relay.RoleUser,
			Content: []relay.ContentBlock{
				relay.ToolResultBlock{ID: "tc_1", Status: "success", Content: content},
			},
		}},
	)
	events := drain(t, n)
	require.Len(t, events, 2)

	tr := events[0].(relay.ToolResult)
	assert.Equal(t, "browser-42", tr.Metadata["sessionId"])

	md, ok := events[1].(relay.Metadata)
	require.True(t, ok)
	assert.Equal(t, map[string]string{"sessionId": "browser-42"}, md.Data)
}

func TestNormalizer_ResultTerminatesStream(t *testing.T) {
	t.Parallel()

	n := newNormalizer(
		relay.RawText{Text: "working"},
		relay.RawResult{
			Message: relay.Message{
				Role:    relay.RoleAssistant,
				Content: []relay.ContentBlock{relay.TextBlock{Text: "all done"}},
			},
			Usage: &relay.Usage{InputTokens: 10, OutputTokens: 5, TotalTokens: 15},
		},
		// Never read: the result is terminal.
		relay.RawText{Text: "ignored"},
	)
	events := drain(t, n)
	require.Len(t, events, 2)

	c, ok := events[1].(relay.Complete)
	require.True(t, ok)
	assert.Equal(t, "all done", c.Text)
	require.NotNil(t, c.Usage)
	assert.Equal(t, 15, c.Usage.TotalTokens)
}

func TestNormalizer_SourceErrorEmitsErrorEvent(t *testing.T) {
	t.Parallel()

	src := mock.NewScriptSource(relay.RawText{Text: "partial"})
	src.Err = assert.AnError

	n := normalize.New(context.Background(), src, relay.NewSession("sess_1"))
	events := drain(t, n)
	require.Len(t, events, 2)
	assert.Equal(t, relay.Response{Text: "partial"}, events[0])
	assert.IsType(t, relay.Error{}, events[1])
}

func TestNormalizer_CancellationEmitsSingleNotice(t *testing.T) {
	t.Parallel()

	session := relay.NewSession("sess_1")
	reads := 0
	src := &mock.Source{
		NextFn: func() (relay.RawEvent, error) {
			reads++
			if reads == 2 {
				session.Cancel()
			}
			return relay.RawText{Text: "chunk"}, nil
		},
	}

	n := normalize.New(context.Background(), src, session)
	events := drain(t, n)

	// Two chunks were read before the flag was observed, then exactly one
	// terminal notice; the source is never read again.
	require.Len(t, events, 3)
	assert.Equal(t, relay.Response{Text: normalize.DefaultCancellationNotice}, events[2])
	assert.Equal(t, 2, reads)
}

func TestNormalizer_CancelledBufferStopsPersisting(t *testing.T) {
	t.Parallel()

	session := relay.NewSession("sess_1")
	sink := mock.NewRecordingSink()
	buffer := turn.NewBuffer(sink, session)

	userMsg := relay.Message{Role: relay.RoleUser, Content: []relay.ContentBlock{relay.TextBlock{Text: "hi"}}}
	finalMsg := relay.Message{Role: relay.RoleAssistant, Content: []relay.ContentBlock{relay.TextBlock{Text: "done"}}}

	reads := 0
	src := &mock.Source{
		NextFn: func() (relay.RawEvent, error) {
			reads++
			switch reads {
			case 1:
				return relay.RawMessage{Message: userMsg}, nil
			case 2:
				session.Cancel()
				return relay.RawMessage{Message: finalMsg}, nil
			default:
				return nil, io.EOF
			}
		},
	}

	n := normalize.New(context.Background(), src, session, normalize.WithTurnBuffer(buffer))
	drain(t, n)

	// The final message arrived after cancellation: nothing was persisted.
	assert.Empty(t, sink.Records)
}

func TestNormalizer_TurnBufferMergesFullTurn(t *testing.T) {
	t.Parallel()

	session := relay.NewSession("sess_1")
	sink := mock.NewRecordingSink()
	buffer := turn.NewBuffer(sink, session)

	toolInput := json.RawMessage(`{"q":"go"}`)
	msgs := []relay.Message{
		{Role: relay.RoleUser, Content: []relay.ContentBlock{relay.TextBlock{Text: "hi"}}},
		{Role: relay.RoleAssistant, Content: []relay.ContentBlock{relay.ToolCallBlock{ID: "tc_1", Name: "search", Input: toolInput}}},
		{Role: relay.RoleUser, Content: []relay.ContentBlock{relay.ToolResultBlock{ID: "tc_1", Status: "success", Content: json.RawMessage(`"ok"`)}}},
		{Role: relay.RoleAssistant, Content: []relay.ContentBlock{relay.TextBlock{Text: "final answer"}}},
	}
	var raw []relay.RawEvent
	for _, m := range msgs {
		raw = append(raw, relay.RawMessage{Message: m})
	}

	n := normalize.New(context.Background(), mock.NewScriptSource(raw...), session, normalize.WithTurnBuffer(buffer))
	drain(t, n)

	require.Len(t, sink.Records, 1)
	assert.Equal(t, relay.RoleUser, sink.Records[0].Role)
	assert.Len(t, sink.Records[0].Content, 4)
}

func TestNormalizer_FlushesRemainderOnResult(t *testing.T) {
	t.Parallel()

	session := relay.NewSession("sess_1")
	sink := mock.NewRecordingSink()
	buffer := turn.NewBuffer(sink, session)

	n := normalize.New(context.Background(), mock.NewScriptSource(
		relay.RawMessage{Message: relay.Message{Role: relay.RoleUser, Content: []relay.ContentBlock{relay.TextBlock{Text: "hi"}}}},
		relay.RawResult{Message: relay.Message{Role: relay.RoleAssistant, Content: []relay.ContentBlock{relay.TextBlock{Text: "done"}}}},
	), session, normalize.WithTurnBuffer(buffer))
	drain(t, n)

	require.Len(t, sink.Records, 1)
	assert.Equal(t, relay.RoleUser, sink.Records[0].Role)
}

func TestNormalizer_SinkFailureTerminatesWithError(t *testing.T) {
	t.Parallel()

	session := relay.NewSession("sess_1")
	sink := &mock.Sink{
		CreateMergedRecordFn: func(context.Context, string, relay.Role, []relay.ContentBlock) error {
			return assert.AnError
		},
	}
	buffer := turn.NewBuffer(sink, session)

	n := normalize.New(context.Background(), mock.NewScriptSource(
		relay.RawMessage{Message: relay.Message{Role: relay.RoleAssistant, Content: []relay.ContentBlock{relay.TextBlock{Text: "final"}}}},
	), session, normalize.WithTurnBuffer(buffer))
	events := drain(t, n)

	require.NotEmpty(t, events)
	assert.IsType(t, relay.Error{}, events[len(events)-1])
}

func TestNormalizer_SinkFailureOnResultYieldsErrorNotComplete(t *testing.T) {
	t.Parallel()

	session := relay.NewSession("sess_1")
	sink := &mock.Sink{
		CreateMergedRecordFn: func(context.Context, string, relay.Role, []relay.ContentBlock) error {
			return assert.AnError
		},
	}
	buffer := turn.NewBuffer(sink, session)

	// The user message is buffered without flushing; the final result then
	// triggers the failing flush.
	n := normalize.New(context.Background(), mock.NewScriptSource(
		relay.RawMessage{Message: relay.Message{Role: relay.RoleUser, Content: []relay.ContentBlock{relay.TextBlock{Text: "hi"}}}},
		relay.RawResult{Message: relay.Message{Role: relay.RoleAssistant, Content: []relay.ContentBlock{relay.TextBlock{Text: "done"}}}},
	), session, normalize.WithTurnBuffer(buffer))
	events := drain(t, n)

	require.NotEmpty(t, events)
	assert.IsType(t, relay.Error{}, events[len(events)-1])
	for _, ev := range events {
		_, isComplete := ev.(relay.Complete)
		assert.False(t, isComplete, "stream must terminate on Error, not Complete")
	}
}

func TestNormalizer_ToolResultsPrecedeSinkFailureError(t *testing.T) {
	t.Parallel()

	session := relay.NewSession("sess_1")
	sink := &mock.Sink{
		CreateMergedRecordFn: func(context.Context, string, relay.Role, []relay.ContentBlock) error {
			return assert.AnError
		},
	}
	// Threshold 1 forces a flush on the same message that carries the
	// tool result.
	buffer := turn.NewBuffer(sink, session, turn.WithBatchThreshold(1))

	n := normalize.New(context.Background(), mock.NewScriptSource(
		relay.RawMessage{Message: relay.Message{
			Role: relay.RoleUser,
			Content: []relay.ContentBlock{
				relay.ToolResultBlock{ID: "tc_1", Status: "success", Content: json.RawMessage(`"ok"`)},
			},
		}},
	), session, normalize.WithTurnBuffer(buffer))
	events := drain(t, n)

	require.Len(t, events, 2)
	assert.IsType(t, relay.ToolResult{}, events[0])
	assert.IsType(t, relay.Error{}, events[1])
}

func TestNormalizer_InterruptForwarded(t *testing.T) {
	t.Parallel()

	n := newNormalizer(relay.RawInterrupt{Items: []relay.InterruptItem{{ID: "i1", Name: "approve", Reason: "confirmation"}}})
	events := drain(t, n)
	require.Len(t, events, 1)
	in, ok := events[0].(relay.Interrupt)
	require.True(t, ok)
	require.Len(t, in.Items, 1)
	assert.Equal(t, "approve", in.Items[0].Name)
}
