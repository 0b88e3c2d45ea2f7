package ui

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/go-go-golems/smartsql-chat/pkg/events"
	"github.com/go-go-golems/smartsql-chat/pkg/persistence/transcriptstore"
	"github.com/rs/zerolog/log"
)

// StepTranscriptPersistFunc archives entries of sessionID from the event bus.
// Archiving is best-effort: failures are logged and never reach the user.
func StepTranscriptPersistFunc(store transcriptstore.TranscriptStore, sessionID string) func(msg *message.Message) error {
	return func(msg *message.Message) error {
		msg.Ack()

		if store == nil || strings.TrimSpace(sessionID) == "" {
			return nil
		}
		e, err := events.DecodeEntry(msg)
		if err != nil {
			log.Warn().Err(err).Str("component", "transcript_persist").Msg("failed to decode entry payload")
			return nil
		}
		if e.SessionID != sessionID {
			return nil
		}

		ctx := msg.Context()
		cancel := func() {}
		if ctx == nil || ctx.Err() != nil {
			// message contexts may already be canceled while the bus drains on shutdown
			ctx, cancel = context.WithTimeout(context.Background(), 250*time.Millisecond)
		}
		defer cancel()

		if err := store.Append(ctx, e); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			log.Warn().Err(err).
				Str("component", "transcript_persist").
				Str("session_id", sessionID).
				Uint64("seq", e.Seq).
				Msg("transcript append failed")
		}
		return nil
	}
}
