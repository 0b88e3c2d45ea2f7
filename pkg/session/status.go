package session

import (
	"context"

	"github.com/go-go-golems/smartsql-chat/pkg/backend"
	"github.com/rs/zerolog/log"
)

// StatusSink displays the one-line session status.
type StatusSink interface {
	SetStatus(text string)
}

type StatusFunc func(text string)

func (f StatusFunc) SetStatus(text string) { f(text) }

// HealthChecker is the part of the backend the tracker needs.
type HealthChecker interface {
	Health(ctx context.Context) backend.Result
}

// StatusTracker derives the status line from the backend health check.
type StatusTracker struct {
	backend HealthChecker
	sink    StatusSink
}

func NewStatusTracker(b HealthChecker, sink StatusSink) *StatusTracker {
	return &StatusTracker{backend: b, sink: sink}
}

// RefreshHealth queries /health and publishes the derived status line.
// Failures surface as the gateway's fallback payload, never as errors.
func (t *StatusTracker) RefreshHealth(ctx context.Context) string {
	res := t.backend.Health(ctx)
	line := backend.DecodeHealth(res).Line()
	log.Debug().Bool("ok", res.OK).Str("status", line).Msg("health refreshed")
	if t.sink != nil {
		t.sink.SetStatus(line)
	}
	return line
}
