package telemedicine

import (
	"sync"
	"time"

	"github.com/matheuspdias/managerclin/pkg/logging"
)

// EventType names a session state change pushed to live subscribers.
type EventType string

const (
	EventSnapshot       EventType = "session.snapshot"
	EventStarted        EventType = "session.started"
	EventCreditsDebited EventType = "session.credits_debited"
	EventTerminated     EventType = "session.terminated"
	EventCompleted      EventType = "session.completed"
	EventCancelled      EventType = "session.cancelled"
)

// Event is the payload streamed to clients.
type Event struct {
	Type       EventType `json:"type"`
	OrgID      string    `json:"org_id"`
	SessionID  string    `json:"session_id"`
	Session    *Session  `json:"session,omitempty"`
	Debited    int       `json:"debited,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Publisher fans session events out to subscribers.
type Publisher interface {
	Publish(evt Event)
}

const subscriberBuffer = 16

// Hub is an in-process Publisher keyed by org and session.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[chan Event]struct{}
	logger *logging.Logger
}

func NewHub(logger *logging.Logger) *Hub {
	if logger == nil {
		logger = logging.Default()
	}
	return &Hub{subs: make(map[string]map[chan Event]struct{}), logger: logger}
}

func hubKey(orgID, sessionID string) string {
	return orgID + ":" + sessionID
}

// Subscribe returns a channel of events for one session and a function that
// unsubscribes and closes it.
func (h *Hub) Subscribe(orgID, sessionID string) (<-chan Event, func()) {
	key := hubKey(orgID, sessionID)
	ch := make(chan Event, subscriberBuffer)

	h.mu.Lock()
	if h.subs[key] == nil {
		h.subs[key] = make(map[chan Event]struct{})
	}
	h.subs[key][ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs[key], ch)
			if len(h.subs[key]) == 0 {
				delete(h.subs, key)
			}
			h.mu.Unlock()
			close(ch)
		})
	}
}

// Publish never blocks; a subscriber with a full buffer misses the event.
func (h *Hub) Publish(evt Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs[hubKey(evt.OrgID, evt.SessionID)] {
		select {
		case ch <- evt:
		default:
			h.logger.Warn("telemedicine: dropped event for slow subscriber", "session_id", evt.SessionID, "type", evt.Type)
		}
	}
}

// Subscribers reports how many listeners a session has.
func (h *Hub) Subscribers(orgID, sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[hubKey(orgID, sessionID)])
}
