package transcriptstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-go-golems/smartsql-chat/pkg/transcript"
	"github.com/pkg/errors"
)

// InMemoryTranscriptStore is a size-limited TranscriptStore. When a session
// exceeds the limit its oldest entries are dropped.
type InMemoryTranscriptStore struct {
	mu                   sync.Mutex
	maxEntriesPerSession int
	entries              map[string][]transcript.Entry
	sessions             map[string]SessionRecord
}

var _ TranscriptStore = &InMemoryTranscriptStore{}

func NewInMemoryTranscriptStore(maxEntriesPerSession int) *InMemoryTranscriptStore {
	if maxEntriesPerSession <= 0 {
		maxEntriesPerSession = 5000
	}
	return &InMemoryTranscriptStore{
		maxEntriesPerSession: maxEntriesPerSession,
		entries:              map[string][]transcript.Entry{},
		sessions:             map[string]SessionRecord{},
	}
}

func (s *InMemoryTranscriptStore) Close() error { return nil }

func (s *InMemoryTranscriptStore) Append(_ context.Context, e transcript.Entry) error {
	if s == nil {
		return errors.New("in-memory transcript store: nil store")
	}
	if strings.TrimSpace(e.SessionID) == "" {
		return errors.New("in-memory transcript store: session id is empty")
	}
	if e.Seq == 0 {
		return errors.New("in-memory transcript store: seq is 0")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.entries[e.SessionID]
	i := sort.Search(len(list), func(i int) bool { return list[i].Seq >= e.Seq })
	if i < len(list) && list[i].Seq == e.Seq {
		return nil
	}
	list = append(list, transcript.Entry{})
	copy(list[i+1:], list[i:])
	list[i] = e
	if len(list) > s.maxEntriesPerSession {
		list = list[len(list)-s.maxEntriesPerSession:]
	}
	s.entries[e.SessionID] = list

	now := time.Now().UnixMilli()
	activity := e.CreatedAtMs
	if activity <= 0 {
		activity = now
	}
	rec := s.sessions[e.SessionID]
	s.sessions[e.SessionID] = mergeSessionRecord(rec, SessionRecord{
		SessionID:      e.SessionID,
		CreatedAtMs:    activity,
		LastActivityMs: activity,
		LastSeq:        e.Seq,
		EntryCount:     rec.EntryCount + 1,
	}, now)
	return nil
}

func (s *InMemoryTranscriptStore) GetEntries(_ context.Context, sessionID string, sinceSeq uint64, limit int) ([]transcript.Entry, error) {
	if s == nil {
		return nil, errors.New("in-memory transcript store: nil store")
	}
	if strings.TrimSpace(sessionID) == "" {
		return nil, errors.New("in-memory transcript store: session id is empty")
	}
	if limit <= 0 {
		limit = 5000
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]transcript.Entry, 0)
	for _, e := range s.entries[sessionID] {
		if e.Seq <= sinceSeq {
			continue
		}
		out = append(out, e)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *InMemoryTranscriptStore) UpsertSession(_ context.Context, record SessionRecord) error {
	if s == nil {
		return errors.New("in-memory transcript store: nil store")
	}
	now := time.Now().UnixMilli()
	record = normalizeSessionRecord(record, now)
	if record.SessionID == "" {
		return errors.New("in-memory transcript store: session id is empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[record.SessionID] = mergeSessionRecord(s.sessions[record.SessionID], record, now)
	return nil
}

func (s *InMemoryTranscriptStore) GetSession(_ context.Context, sessionID string) (SessionRecord, bool, error) {
	if s == nil {
		return SessionRecord{}, false, errors.New("in-memory transcript store: nil store")
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return SessionRecord{}, false, errors.New("in-memory transcript store: session id is empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.sessions[sessionID]
	return record, ok, nil
}

func (s *InMemoryTranscriptStore) ListSessions(_ context.Context, limit int, sinceMs int64) ([]SessionRecord, error) {
	if s == nil {
		return nil, errors.New("in-memory transcript store: nil store")
	}
	if limit <= 0 {
		limit = 200
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	records := make([]SessionRecord, 0, len(s.sessions))
	for _, record := range s.sessions {
		if sinceMs > 0 && record.LastActivityMs < sinceMs {
			continue
		}
		records = append(records, record)
	}
	sort.Slice(records, func(i, j int) bool {
		if records[i].LastActivityMs == records[j].LastActivityMs {
			return records[i].SessionID < records[j].SessionID
		}
		return records[i].LastActivityMs > records[j].LastActivityMs
	})
	if len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}
