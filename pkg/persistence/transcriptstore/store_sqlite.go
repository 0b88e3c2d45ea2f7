package transcriptstore

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/go-go-golems/smartsql-chat/pkg/transcript"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

type SQLiteTranscriptStore struct {
	db *sql.DB
}

var _ TranscriptStore = &SQLiteTranscriptStore{}

func NewSQLiteTranscriptStore(dsn string) (*SQLiteTranscriptStore, error) {
	if dsn == "" {
		return nil, errors.New("sqlite transcript store: empty dsn")
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	s := &SQLiteTranscriptStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// OpenFile opens (and creates) the archive at path.
func OpenFile(path string) (*SQLiteTranscriptStore, error) {
	dsn, err := SQLiteDSNForFile(path)
	if err != nil {
		return nil, err
	}
	return NewSQLiteTranscriptStore(dsn)
}

func (s *SQLiteTranscriptStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteTranscriptStore) migrate() error {
	if s == nil || s.db == nil {
		return errors.New("sqlite transcript store: db is nil")
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS transcript_entries (
		  session_id TEXT NOT NULL,
		  seq INTEGER NOT NULL,
		  entry_id TEXT NOT NULL,
		  origin TEXT NOT NULL,
		  kind TEXT NOT NULL,
		  text TEXT NOT NULL,
		  object_json TEXT NOT NULL DEFAULT '',
		  created_at_ms INTEGER NOT NULL,
		  PRIMARY KEY (session_id, seq)
		);`,
		`CREATE TABLE IF NOT EXISTS transcript_sessions (
		  session_id TEXT PRIMARY KEY,
		  base_url TEXT NOT NULL DEFAULT '',
		  dataset TEXT NOT NULL DEFAULT '',
		  table_name TEXT NOT NULL DEFAULT '',
		  created_at_ms INTEGER NOT NULL,
		  last_activity_ms INTEGER NOT NULL,
		  last_seq INTEGER NOT NULL DEFAULT 0,
		  entry_count INTEGER NOT NULL DEFAULT 0
		);`,
		`CREATE INDEX IF NOT EXISTS transcript_sessions_by_last_activity
		  ON transcript_sessions(last_activity_ms DESC, session_id ASC);`,
	}
	for _, st := range stmts {
		if _, err := s.db.Exec(st); err != nil {
			return errors.Wrap(err, "sqlite transcript store: migrate")
		}
	}
	return nil
}

func (s *SQLiteTranscriptStore) Append(ctx context.Context, e transcript.Entry) error {
	if s == nil || s.db == nil {
		return errors.New("sqlite transcript store: db is nil")
	}
	if strings.TrimSpace(e.SessionID) == "" {
		return errors.New("sqlite transcript store: session id is empty")
	}
	if e.Seq == 0 {
		return errors.New("sqlite transcript store: seq is 0")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	seq, err := uint64ToInt64(e.Seq)
	if err != nil {
		return err
	}
	now := time.Now().UnixMilli()
	createdAt := e.CreatedAtMs
	if createdAt <= 0 {
		createdAt = now
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO transcript_entries (
			session_id, seq, entry_id, origin, kind, text, object_json, created_at_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id, seq) DO NOTHING
	`, e.SessionID, seq, e.ID, string(e.Origin), string(e.Kind), e.Text, string(e.Object), createdAt)
	if err != nil {
		return errors.Wrap(err, "sqlite transcript store: insert entry")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return nil
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO transcript_sessions (
			session_id, created_at_ms, last_activity_ms, last_seq, entry_count
		) VALUES (?, ?, ?, ?, 1)
		ON CONFLICT(session_id) DO UPDATE SET
			last_activity_ms = CASE
				WHEN excluded.last_activity_ms > transcript_sessions.last_activity_ms THEN excluded.last_activity_ms
				ELSE transcript_sessions.last_activity_ms
			END,
			last_seq = CASE
				WHEN excluded.last_seq > transcript_sessions.last_seq THEN excluded.last_seq
				ELSE transcript_sessions.last_seq
			END,
			entry_count = transcript_sessions.entry_count + 1
	`, e.SessionID, createdAt, createdAt, seq); err != nil {
		return errors.Wrap(err, "sqlite transcript store: update session progress")
	}

	return tx.Commit()
}

func (s *SQLiteTranscriptStore) GetEntries(ctx context.Context, sessionID string, sinceSeq uint64, limit int) ([]transcript.Entry, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("sqlite transcript store: db is nil")
	}
	if strings.TrimSpace(sessionID) == "" {
		return nil, errors.New("sqlite transcript store: session id is empty")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if limit <= 0 {
		limit = 5000
	}
	since, err := uint64ToInt64(sinceSeq)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, seq, entry_id, origin, kind, text, object_json, created_at_ms
		FROM transcript_entries
		WHERE session_id = ? AND seq > ?
		ORDER BY seq ASC
		LIMIT ?
	`, sessionID, since, limit)
	if err != nil {
		return nil, errors.Wrap(err, "sqlite transcript store: query entries")
	}
	defer func() { _ = rows.Close() }()

	out := make([]transcript.Entry, 0, 64)
	for rows.Next() {
		var (
			e            transcript.Entry
			seq          int64
			origin, kind string
			objectJSON   string
		)
		if err := rows.Scan(&e.SessionID, &seq, &e.ID, &origin, &kind, &e.Text, &objectJSON, &e.CreatedAtMs); err != nil {
			return nil, err
		}
		if e.Seq, err = int64ToUint64(seq); err != nil {
			return nil, errors.Wrap(err, "sqlite transcript store: invalid seq")
		}
		e.Origin = transcript.Origin(origin)
		e.Kind = transcript.Kind(kind)
		if objectJSON != "" {
			e.Object = []byte(objectJSON)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *SQLiteTranscriptStore) UpsertSession(ctx context.Context, record SessionRecord) error {
	if s == nil || s.db == nil {
		return errors.New("sqlite transcript store: db is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	record = normalizeSessionRecord(record, time.Now().UnixMilli())
	if record.SessionID == "" {
		return errors.New("sqlite transcript store: session id is empty")
	}
	lastSeq, err := uint64ToInt64(record.LastSeq)
	if err != nil {
		return errors.Wrap(err, "sqlite transcript store: last_seq overflow")
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO transcript_sessions (
			session_id, base_url, dataset, table_name, created_at_ms,
			last_activity_ms, last_seq, entry_count
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			base_url = CASE
				WHEN excluded.base_url <> '' THEN excluded.base_url
				ELSE transcript_sessions.base_url
			END,
			dataset = CASE
				WHEN excluded.dataset <> '' THEN excluded.dataset
				ELSE transcript_sessions.dataset
			END,
			table_name = CASE
				WHEN excluded.table_name <> '' THEN excluded.table_name
				ELSE transcript_sessions.table_name
			END,
			created_at_ms = CASE
				WHEN transcript_sessions.created_at_ms > 0 THEN transcript_sessions.created_at_ms
				ELSE excluded.created_at_ms
			END,
			last_activity_ms = CASE
				WHEN excluded.last_activity_ms > transcript_sessions.last_activity_ms THEN excluded.last_activity_ms
				ELSE transcript_sessions.last_activity_ms
			END,
			last_seq = CASE
				WHEN excluded.last_seq > transcript_sessions.last_seq THEN excluded.last_seq
				ELSE transcript_sessions.last_seq
			END,
			entry_count = CASE
				WHEN excluded.entry_count > transcript_sessions.entry_count THEN excluded.entry_count
				ELSE transcript_sessions.entry_count
			END
	`, record.SessionID, record.BaseURL, record.Dataset, record.Table, record.CreatedAtMs,
		record.LastActivityMs, lastSeq, record.EntryCount)
	if err != nil {
		return errors.Wrap(err, "sqlite transcript store: upsert session")
	}
	return nil
}

const sessionColumns = `session_id, base_url, dataset, table_name, created_at_ms,
		       last_activity_ms, last_seq, entry_count`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (SessionRecord, error) {
	var (
		record  SessionRecord
		lastSeq int64
	)
	if err := row.Scan(
		&record.SessionID,
		&record.BaseURL,
		&record.Dataset,
		&record.Table,
		&record.CreatedAtMs,
		&record.LastActivityMs,
		&lastSeq,
		&record.EntryCount,
	); err != nil {
		return SessionRecord{}, err
	}
	seq, err := int64ToUint64(lastSeq)
	if err != nil {
		return SessionRecord{}, errors.Wrap(err, "sqlite transcript store: invalid last_seq")
	}
	record.LastSeq = seq
	return record, nil
}

func (s *SQLiteTranscriptStore) GetSession(ctx context.Context, sessionID string) (SessionRecord, bool, error) {
	if s == nil || s.db == nil {
		return SessionRecord{}, false, errors.New("sqlite transcript store: db is nil")
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return SessionRecord{}, false, errors.New("sqlite transcript store: session id is empty")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	record, err := scanSession(s.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM transcript_sessions WHERE session_id = ?`, sessionID))
	if errors.Is(err, sql.ErrNoRows) {
		return SessionRecord{}, false, nil
	}
	if err != nil {
		return SessionRecord{}, false, errors.Wrap(err, "sqlite transcript store: get session")
	}
	return record, true, nil
}

func (s *SQLiteTranscriptStore) ListSessions(ctx context.Context, limit int, sinceMs int64) ([]SessionRecord, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("sqlite transcript store: db is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if limit <= 0 {
		limit = 200
	}

	query := `SELECT ` + sessionColumns + ` FROM transcript_sessions`
	args := make([]any, 0, 2)
	if sinceMs > 0 {
		query += ` WHERE last_activity_ms >= ?`
		args = append(args, sinceMs)
	}
	query += ` ORDER BY last_activity_ms DESC, session_id ASC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "sqlite transcript store: list sessions")
	}
	defer func() { _ = rows.Close() }()

	records := make([]SessionRecord, 0, limit)
	for rows.Next() {
		record, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

// SQLiteDSNForFile returns a WAL-mode DSN for the database at path.
func SQLiteDSNForFile(path string) (string, error) {
	if path == "" {
		return "", errors.New("sqlite transcript store: empty path")
	}
	return fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on", path), nil
}

func uint64ToInt64(v uint64) (int64, error) {
	if v > math.MaxInt64 {
		return 0, errors.Errorf("value %d overflows int64", v)
	}
	return int64(v), nil
}

func int64ToUint64(v int64) (uint64, error) {
	if v < 0 {
		return 0, errors.Errorf("value %d cannot be represented as uint64", v)
	}
	return uint64(v), nil
}
