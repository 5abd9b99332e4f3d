package relay

import (
	"sync/atomic"
	"time"
)

// Session identifies one conversational session and owns its advisory
// cancellation flag. All stream processing state (dedup sets, turn buffers,
// tool contexts) hangs off values derived from a Session rather than any
// process-global registry.
//
// The flag may be set from any goroutine; it is polled by the single
// consumer of the raw event stream, once per raw event. Cancellation is
// advisory: the stream stops within one event's processing time, never
// mid-event.
type Session struct {
	ID        string
	CreatedAt time.Time

	cancelled atomic.Bool
}

// NewSession creates a Session with the given id.
func NewSession(id string) *Session {
	return &Session{ID: id, CreatedAt: time.Now()}
}

// Cancel sets the cancellation flag. Safe to call from any goroutine, and
// idempotent.
func (s *Session) Cancel() {
	s.cancelled.Store(true)
}

// Cancelled reports whether the cancellation flag is set.
func (s *Session) Cancelled() bool {
	return s.cancelled.Load()
}
