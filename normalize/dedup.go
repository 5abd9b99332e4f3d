package normalize

import (
	"encoding/json"
	"strings"

	"github.com/fwojciec/relay"
)

// Deduplicator guarantees at-most-once emission per tool invocation id.
//
// The engine re-announces an invocation every time more of its input streams
// in, each time carrying the full accumulated fragment. An invocation is
// emitted downstream exactly once, when its input first becomes
// syntactically complete; the id then lives in the seen set for the rest of
// the stream and later sightings are ignored.
type Deduplicator struct {
	seen    map[string]struct{}
	pending map[string]string // id -> name, sighted but not yet complete
}

// NewDeduplicator creates an empty Deduplicator. One instance serves one
// stream; seen ids are never forgotten.
func NewDeduplicator() *Deduplicator {
	return &Deduplicator{
		seen:    make(map[string]struct{}),
		pending: make(map[string]string),
	}
}

// Submit judges one sighting of an invocation. It returns the ToolUse event
// to emit and true when the invocation is complete and novel, or false when
// the id was already emitted or the fragment is still incomplete.
//
// Completeness rules: an empty fragment means input is still streaming; the
// empty-object literal means complete with no parameters; anything else is
// complete exactly when it parses as JSON.
func (d *Deduplicator) Submit(id, name, fragment string) (relay.ToolUse, bool) {
	if id == "" {
		return relay.ToolUse{}, false
	}
	if _, dup := d.seen[id]; dup {
		return relay.ToolUse{}, false
	}

	if fragment == "" {
		d.pending[id] = name
		return relay.ToolUse{}, false
	}
	if fragment == "{}" {
		return d.emit(id, name, json.RawMessage(`{}`))
	}
	if !json.Valid([]byte(fragment)) {
		d.pending[id] = name
		return relay.ToolUse{}, false
	}
	return d.emit(id, name, json.RawMessage(strings.TrimSpace(fragment)))
}

func (d *Deduplicator) emit(id, name string, input json.RawMessage) (relay.ToolUse, bool) {
	delete(d.pending, id)
	d.seen[id] = struct{}{}
	return relay.ToolUse{ID: id, Name: name, Input: input}, true
}

// Pending returns the ids that were sighted but never completed. Invocations
// still pending when the stream ends are dropped, not emitted best-effort:
// their input never became valid JSON and no consumer could execute them.
func (d *Deduplicator) Pending() []string {
	ids := make([]string, 0, len(d.pending))
	for id := range d.pending {
		ids = append(ids, id)
	}
	return ids
}
