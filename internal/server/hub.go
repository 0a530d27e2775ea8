package server

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// frame is the push-channel envelope. Clients send subscribe frames; the
// hub sends message frames. Mirrored by the client's notify package.
type frame struct {
	Type    string          `json:"type"`
	Topic   string          `json:"topic"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type hubClient struct {
	conn *websocket.Conn
	send chan []byte

	mu     sync.Mutex
	closed bool
	topics map[string]bool
}

func newHubClient(conn *websocket.Conn) *hubClient {
	c := &hubClient{
		conn:   conn,
		send:   make(chan []byte, 64),
		topics: make(map[string]bool),
	}
	go c.writePump()
	return c
}

func (c *hubClient) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

func (c *hubClient) subscribe(topic string) {
	c.mu.Lock()
	c.topics[topic] = true
	c.mu.Unlock()
}

func (c *hubClient) subscribed(topic string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.topics[topic]
}

// trySend queues data for the write pump without blocking. It reports
// false when the client's buffer is full; a closed client swallows the
// send. The mutex orders trySend against close, so a publish racing a
// disconnect can never hit a closed channel.
func (c *hubClient) trySend(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return true
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *hubClient) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// Hub accepts push-endpoint connections and fans published payloads out to
// the clients subscribed to the payload's topic. A connection receives
// nothing until it sends a subscribe frame, which is also why clients must
// resubscribe after every reconnect.
type Hub struct {
	log            zerolog.Logger
	allowedOrigins []string

	mu      sync.RWMutex
	clients map[*hubClient]bool
}

func NewHub(allowedOrigins []string, log zerolog.Logger) *Hub {
	return &Hub{
		log:            log.With().Str("component", "hub").Logger(),
		allowedOrigins: allowedOrigins,
		clients:        make(map[*hubClient]bool),
	}
}

// HandleWS upgrades the connection and pumps inbound frames until the
// client goes away. The push endpoint is not session-gated; only the REST
// data endpoints require one.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{CheckOrigin: h.checkOrigin}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("ws upgrade failed")
		return
	}

	c := newHubClient(conn)
	h.mu.Lock()
	h.clients[c] = true
	h.mu.Unlock()
	h.log.Debug().Str("remote", r.RemoteAddr).Msg("push client connected")

	defer func() {
		h.remove(c)
		h.log.Debug().Str("remote", r.RemoteAddr).Msg("push client disconnected")
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			h.log.Warn().Err(err).Msg("unreadable client frame, dropped")
			continue
		}
		if f.Type == "subscribe" && f.Topic != "" {
			c.subscribe(f.Topic)
			h.log.Debug().Str("topic", f.Topic).Msg("client subscribed")
		}
	}
}

func (h *Hub) remove(c *hubClient) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		c.close()
	}
	h.mu.Unlock()
}

// Publish sends one payload to every client subscribed to topic. Clients
// that cannot keep up are dropped rather than slowing the rest.
func (h *Hub) Publish(topic string, payload []byte) {
	data, err := json.Marshal(frame{Type: "message", Topic: topic, Payload: payload})
	if err != nil {
		h.log.Error().Err(err).Str("topic", topic).Msg("publish marshal failed")
		return
	}

	h.mu.RLock()
	clients := make([]*hubClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		if !c.subscribed(topic) {
			continue
		}
		if !c.trySend(data) {
			h.log.Warn().Msg("push client too slow, disconnecting")
			h.remove(c)
		}
	}
}

// ClientCount returns the number of connected clients, subscribed or not.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// checkOrigin admits same-host and localhost browsers, origins listed in
// server.allowed_origins (full origin or bare host), and non-browser
// clients that send no Origin at all.
func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	parsed, err := url.Parse(origin)
	if err != nil || parsed.Host == "" {
		return false
	}
	host := parsed.Host
	if host == r.Host {
		return true
	}
	for _, allowed := range h.allowedOrigins {
		if origin == allowed || host == allowed {
			return true
		}
	}
	for _, local := range []string{"localhost", "127.0.0.1", "[::1]", "::1"} {
		if host == local || strings.HasPrefix(host, local+":") {
			return true
		}
	}
	return false
}
