package webmirror

import (
	"context"
	"net/http"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/go-go-golems/smartsql-chat/pkg/events"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Handler upgrades requests to websocket connections attached to h. The
// mirror is read-only: anything a client sends is discarded.
func Handler(h *Hub, upgrader websocket.Upgrader) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		conn, err := upgrader.Upgrade(w, req, nil)
		if err != nil {
			log.Debug().Err(err).Str("component", "webmirror").Msg("ws upgrade failed")
			return
		}
		h.Add(conn)
		log.Debug().Str("component", "webmirror").Str("remote", req.RemoteAddr).Msg("ws client connected")

		go func() {
			defer h.Remove(conn)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()
	}
}

// StepTranscriptMirrorFunc broadcasts entries of sessionID from the event bus.
func StepTranscriptMirrorFunc(h *Hub, sessionID string) func(msg *message.Message) error {
	return func(msg *message.Message) error {
		msg.Ack()
		e, err := events.DecodeEntry(msg)
		if err != nil {
			log.Warn().Err(err).Str("component", "webmirror").Msg("failed to decode entry payload")
			return nil
		}
		if sessionID != "" && e.SessionID != sessionID {
			return nil
		}
		h.Broadcast(e)
		return nil
	}
}

// NewMux serves the feed at /ws and a liveness probe at /healthz.
func NewMux(h *Hub) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/ws", Handler(h, websocket.Upgrader{
		CheckOrigin: func(*http.Request) bool { return true },
	}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

// Serve runs the mirror on addr until ctx is done.
func Serve(ctx context.Context, addr string, h *Hub) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           NewMux(h),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("web mirror listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "web mirror")
	case <-ctx.Done():
		h.CloseAll()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return errors.Wrap(err, "web mirror shutdown")
		}
		return nil
	}
}
