package transcriptstore

import (
	"context"
	"strings"

	"github.com/go-go-golems/smartsql-chat/pkg/transcript"
)

// SessionRecord is the per-session metadata listed by the history commands.
type SessionRecord struct {
	SessionID      string `json:"session_id"`
	BaseURL        string `json:"base_url"`
	Dataset        string `json:"dataset"`
	Table          string `json:"table"`
	CreatedAtMs    int64  `json:"created_at_ms"`
	LastActivityMs int64  `json:"last_activity_ms"`
	LastSeq        uint64 `json:"last_seq"`
	EntryCount     int64  `json:"entry_count"`
}

// TranscriptStore archives transcript entries. It is written while a session
// runs and only read back by the history commands; a running session never
// reloads from it.
type TranscriptStore interface {
	// Append stores e. Appending the same (session, seq) twice keeps the
	// first copy.
	Append(ctx context.Context, e transcript.Entry) error
	GetEntries(ctx context.Context, sessionID string, sinceSeq uint64, limit int) ([]transcript.Entry, error)
	UpsertSession(ctx context.Context, record SessionRecord) error
	GetSession(ctx context.Context, sessionID string) (SessionRecord, bool, error)
	ListSessions(ctx context.Context, limit int, sinceMs int64) ([]SessionRecord, error)
	Close() error
}

func normalizeSessionRecord(record SessionRecord, now int64) SessionRecord {
	record.SessionID = strings.TrimSpace(record.SessionID)
	record.BaseURL = strings.TrimSpace(record.BaseURL)
	record.Dataset = strings.TrimSpace(record.Dataset)
	record.Table = strings.TrimSpace(record.Table)
	if record.CreatedAtMs <= 0 {
		record.CreatedAtMs = now
	}
	if record.LastActivityMs <= 0 {
		record.LastActivityMs = record.CreatedAtMs
	}
	return record
}

func mergeSessionRecord(existing, incoming SessionRecord, now int64) SessionRecord {
	incoming = normalizeSessionRecord(incoming, now)
	if existing.SessionID == "" {
		return incoming
	}
	if existing.CreatedAtMs > 0 {
		incoming.CreatedAtMs = existing.CreatedAtMs
	}
	if incoming.LastActivityMs < existing.LastActivityMs {
		incoming.LastActivityMs = existing.LastActivityMs
	}
	if incoming.LastSeq < existing.LastSeq {
		incoming.LastSeq = existing.LastSeq
	}
	if incoming.EntryCount < existing.EntryCount {
		incoming.EntryCount = existing.EntryCount
	}
	if incoming.BaseURL == "" {
		incoming.BaseURL = existing.BaseURL
	}
	if incoming.Dataset == "" {
		incoming.Dataset = existing.Dataset
	}
	if incoming.Table == "" {
		incoming.Table = existing.Table
	}
	return incoming
}
