package hub

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"go-comms/internal/auth"
	"go-comms/internal/metrics"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Clients are native apps authenticating with bearer tokens; origin
		// checks do not apply.
		return true
	},
}

// Server owns the upgrade endpoint: authenticate, upgrade, register, pump.
type Server struct {
	hub    *Hub
	router *Router
	gate   *auth.Gate
	logger zerolog.Logger
}

func NewServer(h *Hub, rt *Router, gate *auth.Gate, logger zerolog.Logger) *Server {
	return &Server{
		hub:    h,
		router: rt,
		gate:   gate,
		logger: logger.With().Str("component", "ws").Logger(),
	}
}

// ServeWS authenticates and upgrades a connection. A missing or invalid
// credential refuses the connection outright; nothing unauthenticated ever
// reaches the registry.
func (s *Server) ServeWS(w http.ResponseWriter, r *http.Request) {
	identity, err := s.gate.Authenticate(r)
	if err != nil {
		metrics.AuthRefused.Inc()
		http.Error(w, "invalid or missing token", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("upgrade failed")
		return
	}

	client := &Client{
		id:       uuid.NewString(),
		identity: identity,
		hub:      s.hub,
		router:   s.router,
		conn:     conn,
		logger: s.logger.With().
			Int64("user_id", identity.ID).
			Logger(),
		send: make(chan []byte, sendBufferSize),
	}
	s.hub.Register(client)

	go client.writePump()
	go client.readPump()
}
