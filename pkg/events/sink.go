package events

import (
	"encoding/json"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/go-go-golems/smartsql-chat/pkg/transcript"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const metadataSessionID = "session_id"

// PublishSink forwards transcript entries to a watermill topic as JSON.
type PublishSink struct {
	publisher message.Publisher
	topic     string
}

var _ transcript.Sink = &PublishSink{}

func NewPublishSink(p message.Publisher, topic string) *PublishSink {
	return &PublishSink{publisher: p, topic: topic}
}

func (s *PublishSink) Publish(e transcript.Entry) error {
	b, err := json.Marshal(e)
	if err != nil {
		return errors.Wrap(err, "marshal entry")
	}
	msg := message.NewMessage(uuid.NewString(), b)
	msg.Metadata.Set(metadataSessionID, e.SessionID)
	if err := s.publisher.Publish(s.topic, msg); err != nil {
		return errors.Wrapf(err, "publish entry %d to %s", e.Seq, s.topic)
	}
	return nil
}

// DecodeEntry reads an entry published by PublishSink.
func DecodeEntry(msg *message.Message) (transcript.Entry, error) {
	var e transcript.Entry
	if err := json.Unmarshal(msg.Payload, &e); err != nil {
		return transcript.Entry{}, errors.Wrap(err, "decode entry")
	}
	return e, nil
}

// SessionOf returns the session id a message was published for.
func SessionOf(msg *message.Message) string {
	return msg.Metadata.Get(metadataSessionID)
}
