package events

import (
	"bytes"
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/go-go-golems/smartsql-chat/pkg/transcript"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/require"
)

func TestPublishSink_RoundTrip(t *testing.T) {
	router, err := NewEventRouter()
	require.NoError(t, err)

	var (
		mu  sync.Mutex
		got []transcript.Entry
	)
	done := make(chan struct{})
	router.AddHandler("collect", TopicTranscript, func(msg *message.Message) error {
		msg.Ack()
		e, err := DecodeEntry(msg)
		if err != nil || SessionOf(msg) != "s-1" {
			return nil
		}
		mu.Lock()
		got = append(got, e)
		if len(got) == 3 {
			close(done)
		}
		mu.Unlock()
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = router.Run(ctx) }()
	<-router.Running()

	tr := transcript.New("s-1", transcript.WithSink(NewPublishSink(router.Publisher, TopicTranscript)))
	tr.Append("hello", transcript.OriginUser)
	tr.Append("SELECT 1", transcript.OriginSystem)
	tr.Append(map[string]any{"ok": true}, transcript.OriginSystem)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for entries")
	}
	require.NoError(t, router.Close())

	mu.Lock()
	defer mu.Unlock()
	sort.Slice(got, func(i, j int) bool { return got[i].Seq < got[j].Seq })
	require.Equal(t, "hello", got[0].Text)
	require.Equal(t, transcript.KindCode, got[1].Kind)
	require.JSONEq(t, `{"ok":true}`, string(got[2].Object))
}

func TestDecodeEntry_BadPayload(t *testing.T) {
	_, err := DecodeEntry(message.NewMessage("id", []byte("nope")))
	require.Error(t, err)
}

func TestDumpRawEvents_LogsPayloadAndAcks(t *testing.T) {
	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf).Level(zerolog.DebugLevel)
	defer func() { log.Logger = prev }()

	router := &EventRouter{}
	msg := message.NewMessage("m-1", []byte(`{"seq":1}`))
	msg.Metadata.Set(metadataSessionID, "s-1")
	require.NoError(t, router.DumpRawEvents(msg))
	select {
	case <-msg.Acked():
	default:
		t.Fatal("message was not acked")
	}
	require.Contains(t, buf.String(), `"uuid":"m-1"`)
	require.Contains(t, buf.String(), `"session_id":"s-1"`)
	require.Contains(t, buf.String(), `"payload":{"seq":1}`)

	buf.Reset()
	require.NoError(t, router.DumpRawEvents(message.NewMessage("m-2", []byte("not json"))))
	require.Contains(t, buf.String(), `"payload":"not json"`)
}
