package relay

import "context"

// Source uses a pull-based iterator pattern over decoded raw events.
// Next returns io.EOF when the engine's stream is exhausted; any other error
// is a transport or decode failure and is terminal for the stream.
//
// One Next call corresponds to one suspension point of the engine: the
// consumer resumes exactly once per yielded record, so all downstream state
// mutation stays on the consuming task.
type Source interface {
	Next() (RawEvent, error)
	Close() error
}

// Sink is the append-only persistence collaborator. CreateMergedRecord
// appends one merged turn record for the session; implementations never
// update or delete prior records.
type Sink interface {
	CreateMergedRecord(ctx context.Context, sessionID string, role Role, content []ContentBlock) error
}
