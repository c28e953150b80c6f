package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/cpilot-dev/cpilot/internal/domain/events"
	"github.com/cpilot-dev/cpilot/internal/domain/ports"
	"github.com/cpilot-dev/cpilot/internal/hub"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 15 * time.Second

	// Time allowed to read the next pong message from the peer.
	// Generous to tolerate flaky mobile networks.
	pongWait = 90 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 512 * 1024 // 512KB

	// Send buffer size per client. Sized for bursts of screen updates.
	sendBufferSize = 1024

	// Application-level heartbeat interval. Sent as a JSON event (not a
	// WebSocket ping) for client-side monitoring.
	defaultHeartbeatInterval = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// The server binds to loopback by default; clients on the LAN
		// connect via the pairing URL, so origins are not restricted.
		return true
	},
}

// StatusProvider supplies the fields of the periodic heartbeat event.
type StatusProvider interface {
	ActiveSessions() int
	UptimeSeconds() int64
}

// subscribeCommand is the only message clients are expected to send.
// An empty workspace_id with command "subscribe" resets to all workspaces.
type subscribeCommand struct {
	Command     string `json:"command"`
	WorkspaceID string `json:"workspace_id,omitempty"`
}

// Server is the WebSocket event fan-out endpoint. It does not own a
// listener; HandleUpgrade is mounted on the API server's router so HTTP
// and WebSocket share one port.
type Server struct {
	hub               ports.EventHub
	statusProvider    StatusProvider
	heartbeatInterval time.Duration

	mu      sync.RWMutex
	clients map[string]*Client
	filters map[string]*hub.FilteredSubscriber

	heartbeatDone chan struct{}
	heartbeatSeq  int64
	startTime     time.Time
}

// NewServer creates a new WebSocket fan-out server.
func NewServer(eventHub ports.EventHub) *Server {
	return &Server{
		hub:               eventHub,
		heartbeatInterval: defaultHeartbeatInterval,
		clients:           make(map[string]*Client),
		filters:           make(map[string]*hub.FilteredSubscriber),
		heartbeatDone:     make(chan struct{}),
		startTime:         time.Now(),
	}
}

// SetStatusProvider sets the status provider for heartbeat events.
func (s *Server) SetStatusProvider(provider StatusProvider) {
	s.statusProvider = provider
}

// SetHeartbeatInterval overrides the heartbeat period. Must be called
// before Start.
func (s *Server) SetHeartbeatInterval(d time.Duration) {
	if d > 0 {
		s.heartbeatInterval = d
	}
}

// Start begins the heartbeat broadcaster. Connections arrive through
// HandleUpgrade on whatever listener it is mounted on.
func (s *Server) Start() error {
	go s.heartbeatLoop()
	return nil
}

// Stop disconnects all clients and stops the heartbeat.
func (s *Server) Stop(ctx context.Context) error {
	log.Info().Msg("WebSocket server stopping")

	close(s.heartbeatDone)

	s.mu.Lock()
	for _, client := range s.clients {
		client.Close()
	}
	s.clients = make(map[string]*Client)
	s.filters = make(map[string]*hub.FilteredSubscriber)
	s.mu.Unlock()

	return nil
}

// HandleUpgrade upgrades an HTTP request to a WebSocket connection and
// registers the client with the event hub.
func (s *Server) HandleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("failed to upgrade connection")
		return
	}

	client := NewClient(conn, s.handleCommand, func(id string) {
		if s.hub != nil {
			s.hub.Unsubscribe(id)
		}
		s.removeClient(id)
	})

	// Wrap the client in a workspace filter so subscribe commands can
	// narrow what it receives; the default forwards everything.
	filtered := hub.NewFilteredSubscriber(NewClientSubscriber(client))

	s.mu.Lock()
	s.clients[client.ID()] = client
	s.filters[client.ID()] = filtered
	s.mu.Unlock()

	if s.hub != nil {
		s.hub.Subscribe(filtered)
	}

	log.Info().
		Str("client_id", client.ID()).
		Str("remote_addr", conn.RemoteAddr().String()).
		Msg("client connected")

	client.Start()
}

// handleCommand processes an incoming client message. The only supported
// commands adjust the client's workspace filter.
func (s *Server) handleCommand(clientID string, message []byte) {
	var cmd subscribeCommand
	if err := json.Unmarshal(message, &cmd); err != nil {
		log.Debug().Err(err).Str("client_id", clientID).Msg("unparsable client command")
		return
	}

	s.mu.RLock()
	filtered := s.filters[clientID]
	s.mu.RUnlock()
	if filtered == nil {
		return
	}

	switch cmd.Command {
	case "subscribe":
		if cmd.WorkspaceID == "" {
			filtered.SubscribeAll()
		} else {
			filtered.SubscribeWorkspace(cmd.WorkspaceID)
		}
	case "unsubscribe":
		if cmd.WorkspaceID != "" {
			filtered.UnsubscribeWorkspace(cmd.WorkspaceID)
		}
	case "subscribe_all":
		filtered.SubscribeAll()
	default:
		log.Debug().
			Str("client_id", clientID).
			Str("command", cmd.Command).
			Msg("unknown client command")
	}
}

// removeClient removes a client from the server.
func (s *Server) removeClient(id string) {
	s.mu.Lock()
	delete(s.clients, id)
	delete(s.filters, id)
	s.mu.Unlock()
	log.Info().Str("client_id", id).Msg("client disconnected")
}

// Broadcast sends a raw message to all connected clients.
func (s *Server) Broadcast(message []byte) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, client := range s.clients {
		client.Send(message)
	}
}

// ClientCount returns the number of connected clients.
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// GetClient returns a client by ID.
func (s *Server) GetClient(id string) *Client {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.clients[id]
}

// heartbeatLoop broadcasts periodic heartbeat events to all connected
// clients. This provides application-level connection monitoring beyond
// WebSocket ping/pong.
func (s *Server) heartbeatLoop() {
	ticker := time.NewTicker(s.heartbeatInterval)
	defer ticker.Stop()

	log.Debug().Dur("interval", s.heartbeatInterval).Msg("heartbeat loop started")

	for {
		select {
		case <-s.heartbeatDone:
			log.Debug().Msg("heartbeat loop stopped")
			return

		case <-ticker.C:
			s.broadcastHeartbeat()
		}
	}
}

// broadcastHeartbeat sends a heartbeat event to all connected clients.
func (s *Server) broadcastHeartbeat() {
	s.mu.RLock()
	clientCount := len(s.clients)
	s.mu.RUnlock()

	if clientCount == 0 {
		return
	}

	activeSessions := 0
	uptimeSeconds := int64(time.Since(s.startTime).Seconds())
	if s.statusProvider != nil {
		activeSessions = s.statusProvider.ActiveSessions()
		uptimeSeconds = s.statusProvider.UptimeSeconds()
	}

	seq := atomic.AddInt64(&s.heartbeatSeq, 1)
	heartbeat := events.NewHeartbeatEvent(seq, activeSessions, uptimeSeconds)

	data, err := heartbeat.ToJSON()
	if err != nil {
		log.Warn().Err(err).Msg("failed to serialize heartbeat")
		return
	}

	s.Broadcast(data)
	log.Trace().Int64("seq", seq).Int("clients", clientCount).Msg("heartbeat sent")
}
