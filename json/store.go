package json

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fwojciec/relay"
)

// Store is a file-backed relay.Sink. Each session gets one file under dir,
// with one merged record per line, appended in flush order. Records are
// never rewritten.
type Store struct {
	dir string
	now func() time.Time
}

// Interface compliance check.
var _ relay.Sink = (*Store)(nil)

// NewStore creates a Store rooted at dir, creating it as needed.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}
	return &Store{dir: dir, now: time.Now}, nil
}

// CreateMergedRecord appends one record to the session's file.
func (s *Store) CreateMergedRecord(_ context.Context, sessionID string, role relay.Role, content []relay.ContentBlock) error {
	data, err := MarshalRecord(sessionID, role, content, s.now())
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	f, err := os.OpenFile(s.path(sessionID), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("open session file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("append record: %w", err)
	}
	return nil
}

// Load reads every merged record persisted for a session, in append order.
// A session with no records returns an empty slice, not an error.
func (s *Store) Load(sessionID string) ([]relay.Message, error) {
	data, err := os.ReadFile(s.path(sessionID))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read session file: %w", err)
	}

	var msgs []relay.Message
	for i, line := range splitLines(data) {
		_, role, content, err := UnmarshalRecord(line)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		msgs = append(msgs, relay.Message{Role: role, Content: content})
	}
	return msgs, nil
}

func (s *Store) path(sessionID string) string {
	return filepath.Join(s.dir, sessionID+".jsonl")
}

func splitLines(data []byte) [][]byte {
	var lines [][]byte
	start := 0
	for i, b := range data {
		if b == '\n' {
			if i > start {
				lines = append(lines, data[start:i])
			}
			start = i + 1
		}
	}
	if start < len(data) {
		lines = append(lines, data[start:])
	}
	return lines
}
