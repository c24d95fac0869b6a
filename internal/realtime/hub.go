package realtime

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"
)

// entry holds one user's open connections and the role recorded at their most
// recent registration. An entry never exists with an empty connection set.
type entry struct {
	role    string
	clients map[*Client]struct{}
}

// Hub is the process-wide connection registry. It is constructed once per
// process and injected; delivery fan-out reads it while connection churn
// mutates it concurrently.
type Hub struct {
	mu      sync.RWMutex
	entries map[string]*entry
	logger  *zap.Logger
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		entries: make(map[string]*entry),
		logger:  logger,
	}
}

// Register adds the client to its user's connection set, creating the entry if
// absent. The stored role is overwritten with the supplied value, latest write
// wins. Registering the same client twice is idempotent.
func (h *Hub) Register(c *Client) {
	if c == nil || c.userID == "" {
		return
	}
	h.mu.Lock()
	e := h.entries[c.userID]
	if e == nil {
		e = &entry{clients: make(map[*Client]struct{})}
		h.entries[c.userID] = e
	}
	e.role = c.role
	e.clients[c] = struct{}{}
	h.mu.Unlock()

	h.broadcastPresence(c.userID, c.role, PresenceOnline)
}

// Unregister removes the client; when the set empties the entry is deleted and
// a single offline transition is broadcast. Unknown clients are a no-op.
func (h *Hub) Unregister(c *Client) {
	if c == nil || c.userID == "" {
		return
	}
	wentOffline := false
	var role string
	h.mu.Lock()
	e := h.entries[c.userID]
	if e != nil {
		if _, present := e.clients[c]; present {
			delete(e.clients, c)
			if len(e.clients) == 0 {
				delete(h.entries, c.userID)
				wentOffline = true
				role = e.role
			}
		}
	}
	h.mu.Unlock()
	c.Close()

	if wentOffline {
		h.broadcastPresence(c.userID, role, PresenceOffline)
	}
}

// ConnectionsFor returns a point-in-time snapshot of a user's connections.
// The snapshot may be stale immediately after return; fan-out tolerates that.
func (h *Hub) ConnectionsFor(userID string) []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	e := h.entries[userID]
	if e == nil {
		return nil
	}
	out := make([]*Client, 0, len(e.clients))
	for c := range e.clients {
		out = append(out, c)
	}
	return out
}

// ConnectionsForRole snapshots every connection whose user currently holds the
// given role.
func (h *Hub) ConnectionsForRole(role string) []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var out []*Client
	for _, e := range h.entries {
		if e.role != role {
			continue
		}
		for c := range e.clients {
			out = append(out, c)
		}
	}
	return out
}

// Online reports whether the user has at least one open connection.
func (h *Hub) Online(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.entries[userID]
	return ok
}

// broadcastPresence pushes an online/offline event to every connection except
// the subject's own. Best-effort: slow or closed clients are skipped.
func (h *Hub) broadcastPresence(userID, role, status string) {
	payload, err := json.Marshal(PresenceEvent{
		Event:  EventPresence(status),
		UserID: userID,
		Role:   role,
		Status: status,
	})
	if err != nil {
		return
	}

	h.mu.RLock()
	var targets []*Client
	for id, e := range h.entries {
		if id == userID {
			continue
		}
		for c := range e.clients {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if !c.Enqueue(payload) && h.logger != nil {
			h.logger.Debug("presence broadcast dropped", zap.String("to", c.UserID()))
		}
	}
}
