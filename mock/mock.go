// Package mock provides test doubles for relay interfaces using function
// fields.
package mock

import (
	"context"
	"io"

	"github.com/fwojciec/relay"
)

// Interface compliance checks.
var (
	_ relay.Source = (*Source)(nil)
	_ relay.Source = (*ScriptSource)(nil)
	_ relay.Sink   = (*Sink)(nil)
	_ relay.Sink   = (*RecordingSink)(nil)
)

// Source is a test double for relay.Source.
// Set NextFn before calling Next; it panics when nil to catch missing setup.
// CloseFn is nil-safe because test code commonly calls defer src.Close().
type Source struct {
	NextFn  func() (relay.RawEvent, error)
	CloseFn func() error
}

// Next delegates to NextFn.
func (s *Source) Next() (relay.RawEvent, error) {
	return s.NextFn()
}

// Close delegates to CloseFn. Returns nil when CloseFn is not set.
func (s *Source) Close() error {
	if s.CloseFn == nil {
		return nil
	}
	return s.CloseFn()
}

// ScriptSource replays a fixed sequence of raw events, then returns io.EOF.
// A non-nil Err is returned instead of io.EOF once the script is exhausted.
type ScriptSource struct {
	Events []relay.RawEvent
	Err    error

	pos    int
	closed bool
}

// NewScriptSource creates a ScriptSource over the given events.
func NewScriptSource(events ...relay.RawEvent) *ScriptSource {
	return &ScriptSource{Events: events}
}

// Next returns the next scripted event.
func (s *ScriptSource) Next() (relay.RawEvent, error) {
	if s.closed {
		return nil, relay.ErrSourceClosed
	}
	if s.pos >= len(s.Events) {
		if s.Err != nil {
			return nil, s.Err
		}
		return nil, io.EOF
	}
	ev := s.Events[s.pos]
	s.pos++
	return ev, nil
}

// Close marks the source closed.
func (s *ScriptSource) Close() error {
	s.closed = true
	return nil
}

// Sink is a test double for relay.Sink.
// Set CreateMergedRecordFn before calling CreateMergedRecord.
type Sink struct {
	CreateMergedRecordFn func(ctx context.Context, sessionID string, role relay.Role, content []relay.ContentBlock) error
}

// CreateMergedRecord delegates to CreateMergedRecordFn.
func (s *Sink) CreateMergedRecord(ctx context.Context, sessionID string, role relay.Role, content []relay.ContentBlock) error {
	return s.CreateMergedRecordFn(ctx, sessionID, role, content)
}

// Record is one merged record captured by RecordingSink.
type Record struct {
	SessionID string
	Role      relay.Role
	Content   []relay.ContentBlock
}

// RecordingSink captures every merged record it receives.
type RecordingSink struct {
	Records []Record
}

// NewRecordingSink creates an empty RecordingSink.
func NewRecordingSink() *RecordingSink {
	return &RecordingSink{}
}

// CreateMergedRecord appends the record to Records.
func (s *RecordingSink) CreateMergedRecord(_ context.Context, sessionID string, role relay.Role, content []relay.ContentBlock) error {
	s.Records = append(s.Records, Record{SessionID: sessionID, Role: role, Content: content})
	return nil
}
