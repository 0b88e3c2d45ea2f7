package transcript

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Sink receives every entry right after it has been appended.
type Sink interface {
	Publish(entry Entry) error
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(entry Entry) error

func (f SinkFunc) Publish(entry Entry) error { return f(entry) }

// Transcript is the append-only conversation log of one session.
//
// Append may be called from concurrent actions; each append is atomic and
// gets the next sequence number, so the order of completion is the order of
// the transcript.
type Transcript struct {
	sessionID string

	mu      sync.Mutex
	pubMu   sync.Mutex
	seq     uint64
	entries []Entry
	sinks   []Sink
	now     func() time.Time
}

type Option func(*Transcript)

func WithSink(s Sink) Option {
	return func(t *Transcript) {
		if s != nil {
			t.sinks = append(t.sinks, s)
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(t *Transcript) {
		if now != nil {
			t.now = now
		}
	}
}

func New(sessionID string, opts ...Option) *Transcript {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	t := &Transcript{
		sessionID: sessionID,
		now:       time.Now,
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

func (t *Transcript) SessionID() string { return t.sessionID }

// Append classifies content, records it and hands it to the sinks.
// Strings starting with SELECT become code blocks, structured values become
// indented JSON, everything else is plain text.
func (t *Transcript) Append(content any, origin Origin) Entry {
	if origin == "" {
		origin = OriginSystem
	}
	kind, text, object := classify(content)

	t.mu.Lock()
	t.seq++
	e := Entry{
		ID:          uuid.NewString(),
		SessionID:   t.sessionID,
		Seq:         t.seq,
		Origin:      origin,
		Kind:        kind,
		Text:        text,
		Object:      object,
		CreatedAtMs: t.now().UnixMilli(),
	}
	t.entries = append(t.entries, e)
	sinks := append([]Sink(nil), t.sinks...)
	// sinks see entries in sequence order
	t.pubMu.Lock()
	defer t.pubMu.Unlock()
	t.mu.Unlock()

	for _, s := range sinks {
		if err := s.Publish(e); err != nil {
			log.Warn().Err(err).
				Str("session_id", t.sessionID).
				Uint64("seq", e.Seq).
				Msg("transcript sink failed")
		}
	}
	return e
}

// Entries returns a copy of the log in append order.
func (t *Transcript) Entries() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Entry(nil), t.entries...)
}

func (t *Transcript) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
