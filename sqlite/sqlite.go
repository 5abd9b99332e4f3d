// Package sqlite provides a SQLite-backed relay.Sink. Records are
// append-only: one row per merged turn record, sequenced per session.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/fwojciec/relay"
	relayjson "github.com/fwojciec/relay/json"
)

// Store persists merged turn records in a SQLite database.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Interface compliance check.
var _ relay.Sink = (*Store)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS records (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  session_id TEXT NOT NULL,
  seq INTEGER NOT NULL,
  role TEXT NOT NULL,
  content_json TEXT NOT NULL,
  created_at TEXT NOT NULL,
  UNIQUE(session_id, seq)
);
CREATE INDEX IF NOT EXISTS idx_records_session_seq ON records(session_id, seq);
`

// Open opens (creating as needed) the database at path. Use ":memory:" for
// an in-memory database in tests.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// modernc.org/sqlite serializes writes; a single connection avoids
	// SQLITE_BUSY under interleaved use.
	db.SetMaxOpenConns(1)
	return &Store{db: db, now: time.Now}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Init creates the schema.
func (s *Store) Init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

// CreateMergedRecord appends one record with the next sequence number for
// the session.
func (s *Store) CreateMergedRecord(ctx context.Context, sessionID string, role relay.Role, content []relay.ContentBlock) error {
	blocks, err := relayjson.MarshalBlocks(content)
	if err != nil {
		return fmt.Errorf("marshal content: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
INSERT INTO records (session_id, seq, role, content_json, created_at)
VALUES (?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM records WHERE session_id = ?), ?, ?, ?)`,
		sessionID, sessionID, string(role), string(blocks), s.now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert record: %w", err)
	}
	return nil
}

// Record is one persisted merged record.
type Record struct {
	Seq       int64
	Role      relay.Role
	Content   []relay.ContentBlock
	CreatedAt time.Time
}

// Records returns a session's records in sequence order.
func (s *Store) Records(ctx context.Context, sessionID string) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT seq, role, content_json, created_at FROM records
WHERE session_id = ? ORDER BY seq`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			rec       Record
			role      string
			content   string
			createdAt string
		)
		if err := rows.Scan(&rec.Seq, &role, &content, &createdAt); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		blocks, err := relayjson.UnmarshalBlocks([]byte(content))
		if err != nil {
			return nil, fmt.Errorf("record seq %d: %w", rec.Seq, err)
		}
		ts, err := time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("record seq %d: parse created_at: %w", rec.Seq, err)
		}
		rec.Role = relay.Role(role)
		rec.Content = blocks
		rec.CreatedAt = ts
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return records, nil
}
