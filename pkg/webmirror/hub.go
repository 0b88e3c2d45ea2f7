package webmirror

import (
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/go-go-golems/smartsql-chat/pkg/transcript"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	defaultSendBuffer   = 64
	defaultBacklog      = 500
	defaultWriteTimeout = 5 * time.Second
)

type wsConn interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

type client struct {
	conn wsConn
	send chan []byte
	done chan struct{}
	once sync.Once
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

// Hub fans transcript entries out to websocket clients. New clients first
// receive the recent backlog in sequence order. A client whose send buffer is
// full is dropped.
type Hub struct {
	mu      sync.Mutex
	clients map[*client]struct{}
	backlog []transcript.Entry

	sendBuffer   int
	backlogSize  int
	writeTimeout time.Duration
}

type HubOption func(*Hub)

func WithSendBuffer(n int) HubOption {
	return func(h *Hub) { h.sendBuffer = n }
}

// WithBacklog sets how many entries a newly connected client is replayed.
func WithBacklog(n int) HubOption {
	return func(h *Hub) { h.backlogSize = n }
}

func WithWriteTimeout(d time.Duration) HubOption {
	return func(h *Hub) { h.writeTimeout = d }
}

func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		clients:      map[*client]struct{}{},
		sendBuffer:   defaultSendBuffer,
		backlogSize:  defaultBacklog,
		writeTimeout: defaultWriteTimeout,
	}
	for _, o := range opts {
		o(h)
	}
	if h.sendBuffer <= 0 {
		h.sendBuffer = 1
	}
	return h
}

// Add registers conn and starts its writer. The backlog is queued before any
// live entry.
func (h *Hub) Add(conn wsConn) {
	if conn == nil {
		return
	}
	h.mu.Lock()
	c := &client{
		conn: conn,
		send: make(chan []byte, max(h.sendBuffer, len(h.backlog))),
		done: make(chan struct{}),
	}
	for _, e := range h.backlog {
		if b, err := json.Marshal(e); err == nil {
			c.send <- b
		}
	}
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	go h.writeLoop(c)
}

// Remove drops conn if it is registered.
func (h *Hub) Remove(conn wsConn) {
	h.mu.Lock()
	var found *client
	for c := range h.clients {
		if c.conn == conn {
			found = c
			delete(h.clients, c)
			break
		}
	}
	h.mu.Unlock()
	if found != nil {
		found.close()
	}
}

func (h *Hub) writeLoop(c *client) {
	for {
		select {
		case <-c.done:
			return
		case data := <-c.send:
			if h.writeTimeout > 0 {
				_ = c.conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Debug().Err(err).Str("component", "webmirror").Msg("ws write failed, dropping client")
				h.drop(c)
				return
			}
		}
	}
}

func (h *Hub) drop(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	c.close()
}

// Broadcast records e in the backlog and queues it for every client.
func (h *Hub) Broadcast(e transcript.Entry) {
	data, err := json.Marshal(e)
	if err != nil {
		log.Warn().Err(err).Str("component", "webmirror").Uint64("seq", e.Seq).Msg("failed to encode entry")
		return
	}

	h.mu.Lock()
	h.remember(e)
	var slow []*client
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
			delete(h.clients, c)
		}
	}
	h.mu.Unlock()

	for _, c := range slow {
		log.Warn().Str("component", "webmirror").Msg("ws client too slow, dropping")
		c.close()
	}
}

func (h *Hub) remember(e transcript.Entry) {
	if h.backlogSize <= 0 {
		return
	}
	i := sort.Search(len(h.backlog), func(i int) bool { return h.backlog[i].Seq >= e.Seq })
	if i < len(h.backlog) && h.backlog[i].Seq == e.Seq {
		return
	}
	h.backlog = append(h.backlog, transcript.Entry{})
	copy(h.backlog[i+1:], h.backlog[i:])
	h.backlog[i] = e
	if over := len(h.backlog) - h.backlogSize; over > 0 {
		h.backlog = append(h.backlog[:0], h.backlog[over:]...)
	}
}

func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// CloseAll disconnects every client.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
		delete(h.clients, c)
	}
	h.mu.Unlock()
	for _, c := range clients {
		c.close()
	}
}
