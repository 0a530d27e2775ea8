package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Notification is the stored and pushed payload. Wire format is mirrored
// by the client's api package.
type Notification struct {
	ID        string    `json:"id"`
	Message   string    `json:"message"`
	Type      string    `json:"type"` // INFO, ALERT, SUCCESS
	UserID    string    `json:"userId,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Read      bool      `json:"read"`
}

type sendRequest struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	UserID  string `json:"userId"`
}

// Notifications stores the history newest-first and publishes each new
// entry on the bus after storing it.
type Notifications struct {
	bus   Publisher
	topic string
	log   zerolog.Logger

	mu    sync.RWMutex
	items []Notification // newest-first
}

func NewNotifications(bus Publisher, topic string, log zerolog.Logger) *Notifications {
	return &Notifications{
		bus:   bus,
		topic: topic,
		log:   log.With().Str("component", "notifications").Logger(),
	}
}

// HandleSend stores the notification, publishes it to subscribers, and
// returns the stored record.
func (n *Notifications) HandleSend(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	if req.Message == "" {
		http.Error(w, "message required", http.StatusBadRequest)
		return
	}
	if req.Type == "" {
		req.Type = "INFO"
	}

	saved := Notification{
		ID:        uuid.NewString(),
		Message:   req.Message,
		Type:      req.Type,
		UserID:    req.UserID,
		Timestamp: time.Now().UTC(),
	}

	n.mu.Lock()
	n.items = append([]Notification{saved}, n.items...)
	n.mu.Unlock()

	data, err := json.Marshal(saved)
	if err != nil {
		n.log.Error().Err(err).Msg("notification marshal failed")
	} else if err := n.bus.Publish(r.Context(), n.topic, data); err != nil {
		// Stored but not pushed; history readers still see it.
		n.log.Error().Err(err).Msg("notification publish failed")
	}

	writeJSON(w, http.StatusOK, saved)
}

// HandleList returns the history, newest-first.
func (n *Notifications) HandleList(w http.ResponseWriter, r *http.Request) {
	n.mu.RLock()
	out := make([]Notification, len(n.items))
	copy(out, n.items)
	n.mu.RUnlock()
	writeJSON(w, http.StatusOK, out)
}
