// Package hub is the realtime core: it tracks every live connection per
// authenticated user, routes inbound commands to handlers, and fans resulting
// events out to all of a target user's connections.
package hub

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"

	"go-comms/internal/metrics"
)

// Hub is the connection registry and fan-out engine. All of a user's live
// connections form one delivery group keyed by user id, so a broadcast
// reaches every device.
type Hub struct {
	mu          sync.RWMutex
	connections map[int64]map[*Client]struct{}
	logger      zerolog.Logger
}

func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		connections: make(map[int64]map[*Client]struct{}),
		logger:      logger.With().Str("component", "hub").Logger(),
	}
}

// Register adds a connection under its identity's set. Registering the same
// connection twice is a no-op.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	set := h.connections[c.identity.ID]
	if set == nil {
		set = make(map[*Client]struct{})
		h.connections[c.identity.ID] = set
	}
	_, dup := set[c]
	set[c] = struct{}{}
	h.mu.Unlock()

	if !dup {
		metrics.ConnectionsActive.Inc()
		h.logger.Info().
			Int64("user_id", c.identity.ID).
			Str("conn_id", c.id).
			Msg("connection registered")
	}
}

// Deregister removes a connection. It is idempotent; the identity's entry is
// pruned when its last connection goes away.
func (h *Hub) Deregister(c *Client) {
	h.mu.Lock()
	set, ok := h.connections[c.identity.ID]
	if ok {
		if _, ok = set[c]; ok {
			delete(set, c)
			if len(set) == 0 {
				delete(h.connections, c.identity.ID)
			}
		}
	}
	h.mu.Unlock()

	if ok {
		metrics.ConnectionsActive.Dec()
		h.logger.Info().
			Int64("user_id", c.identity.ID).
			Str("conn_id", c.id).
			Msg("connection deregistered")
	}
}

// ConnectionsOf returns a snapshot of the user's live connections. The
// snapshot is only valid for a single fan-out pass; the registry may mutate
// underneath it at any time.
func (h *Hub) ConnectionsOf(userID int64) []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	set := h.connections[userID]
	if len(set) == 0 {
		return nil
	}
	conns := make([]*Client, 0, len(set))
	for c := range set {
		conns = append(conns, c)
	}
	return conns
}

// Broadcast delivers event to every live connection of userID. A connection
// whose send buffer is full is dropped rather than blocking the others; a
// user with no connections makes this a no-op.
func (h *Hub) Broadcast(userID int64, event Event) {
	conns := h.ConnectionsOf(userID)
	if len(conns) == 0 {
		return
	}

	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error().Err(err).Str("event", event.EventType()).Msg("event not serializable")
		return
	}

	for _, c := range conns {
		if c.enqueue(data) {
			metrics.EventsBroadcast.WithLabelValues(event.EventType()).Inc()
		} else {
			metrics.SlowClientsDropped.Inc()
			h.logger.Warn().
				Int64("user_id", userID).
				Str("conn_id", c.id).
				Msg("dropping slow connection")
			// Close touches the registry lock, so take it off this path.
			go c.Close()
		}
	}
}

// Close shuts down every live connection. Used at process exit.
func (h *Hub) Close() {
	h.mu.RLock()
	var conns []*Client
	for _, set := range h.connections {
		for c := range set {
			conns = append(conns, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range conns {
		c.Close()
	}
}
