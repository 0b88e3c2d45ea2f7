package ui

import (
	"github.com/ThreeDotsLabs/watermill/message"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/go-go-golems/smartsql-chat/pkg/events"
	"github.com/go-go-golems/smartsql-chat/pkg/transcript"
	"github.com/rs/zerolog/log"
)

// EntryMsg carries one transcript entry into the bubbletea program.
type EntryMsg struct {
	Entry transcript.Entry
}

// Sender is satisfied by *tea.Program.
type Sender interface {
	Send(msg tea.Msg)
}

var _ Sender = &tea.Program{}

// StepTranscriptForwardFunc forwards entries of sessionID from the event bus
// into the program p. Entries of other sessions sharing the bus are skipped.
func StepTranscriptForwardFunc(p Sender, sessionID string) func(msg *message.Message) error {
	return func(msg *message.Message) error {
		msg.Ack()

		e, err := events.DecodeEntry(msg)
		if err != nil {
			log.Error().Err(err).Str("payload", string(msg.Payload)).Msg("Failed to parse transcript entry")
			return nil
		}
		if sessionID != "" && e.SessionID != sessionID {
			return nil
		}
		log.Trace().Uint64("seq", e.Seq).Str("kind", string(e.Kind)).Msg("Dispatching entry to UI")
		p.Send(EntryMsg{Entry: e})
		return nil
	}
}
