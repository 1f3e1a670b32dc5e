package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/nerrad567/revend-core/internal/detection"
	"github.com/nerrad567/revend-core/internal/infrastructure/config"
	"github.com/nerrad567/revend-core/internal/infrastructure/logging"
)

// WebSocket message types.
const (
	WSTypeConnection      = "connection"
	WSTypeDetectionUpdate = "detection_update"
	WSTypeSessionStarted  = "session_started"
	WSTypeSessionEnded    = "session_ended"
	WSTypeKeepalive       = "keepalive"
	WSTypePing            = "ping"
	WSTypePong            = "pong"
	WSTypeError           = "error"

	// wsSendBufferSize is the per-client outbound message buffer size.
	wsSendBufferSize = 64
)

// WSMessage represents a message sent to/from a WebSocket client.
type WSMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Data      any    `json:"data,omitempty"`
}

// Hub manages WebSocket connections and routes events to them.
//
// Two kinds of client connect: user apps (keyed by user ID, fed
// detection updates) and kiosk displays (keyed by machine ID, fed
// session start/end events). The hub implements detection.Publisher.
type Hub struct {
	cfg     config.WebSocketConfig
	logger  *logging.Logger
	clients map[*WSClient]struct{}
	mu      sync.RWMutex
}

// WSClient represents one connected WebSocket client.
type WSClient struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	userID    string // non-empty for user app connections
	machineID string // non-empty for kiosk display connections
}

// upgrader configures the WebSocket upgrader.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		// Origin checking is handled by CORS middleware
		return true
	},
}

// NewHub creates a new WebSocket hub.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	return &Hub{
		cfg:     cfg,
		logger:  logger,
		clients: make(map[*WSClient]struct{}),
	}
}

// Run blocks until the context is cancelled, then disconnects all clients.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.closeAll()
}

// Register adds a client to the hub.
func (h *Hub) Register(client *WSClient) {
	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()
	h.logger.Debug("websocket client connected",
		"user_id", client.userID,
		"machine_id", client.machineID,
		"clients", h.ClientCount(),
	)
}

// Unregister removes a client from the hub.
// Only the goroutine that successfully removes the client from the map
// closes the send channel, preventing double-close panics during shutdown.
func (h *Hub) Unregister(client *WSClient) {
	h.mu.Lock()
	_, existed := h.clients[client]
	delete(h.clients, client)
	h.mu.Unlock()

	if existed {
		close(client.send)
	}
	h.logger.Debug("websocket client disconnected", "clients", h.ClientCount())
}

// PublishDetection pushes a detection outcome to every connection the
// user holds. Never blocks: slow clients miss the event.
func (h *Hub) PublishDetection(userID string, entry detection.HistoryEntry) {
	h.broadcast(WSTypeDetectionUpdate, entry, func(c *WSClient) bool {
		return c.userID == userID
	})
}

// PublishMachineEvent pushes a session event to a machine's display
// connections.
func (h *Hub) PublishMachineEvent(machineID, eventType string, data any) {
	h.broadcast(eventType, data, func(c *WSClient) bool {
		return c.machineID == machineID
	})
}

// broadcast sends a message to every client matching the filter.
// The client list is snapshotted under the hub lock and released before
// any send, so a stalled client cannot hold the hub.
func (h *Hub) broadcast(msgType string, data any, match func(*WSClient) bool) {
	payload, err := json.Marshal(WSMessage{
		Type:      msgType,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Data:      data,
	})
	if err != nil {
		h.logger.Error("failed to marshal broadcast message", "error", err)
		return
	}

	h.mu.RLock()
	clients := make([]*WSClient, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	sent := 0
	for _, client := range clients {
		if match(client) {
			client.trySend(payload)
			sent++
		}
	}
	if sent > 0 {
		h.logger.Debug("broadcast sent", "type", msgType, "recipients", sent)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// closeAll disconnects all clients and closes their send channels
// so writePump goroutines can exit cleanly.
func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		close(client.send)
		if client.conn != nil {
			client.conn.Close()
		}
		delete(h.clients, client)
	}
}

// handleWebSocket upgrades a user app connection. Authentication is via
// single-use ticket (obtained from POST /auth/ws-ticket), which carries
// the caller identity into the connection.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ticket := r.URL.Query().Get("ticket")
	if ticket == "" {
		writeUnauthorized(w, "ticket query parameter is required")
		return
	}
	userID, ok := s.tickets.redeem(ticket)
	if !ok {
		writeUnauthorized(w, "invalid or expired ticket")
		return
	}

	s.acceptClient(w, r, userID, "")
}

// handleMachineWebSocket upgrades a kiosk display connection. The machine
// token middleware has already authenticated the caller.
func (s *Server) handleMachineWebSocket(w http.ResponseWriter, r *http.Request) {
	machineID := chi.URLParam(r, "id")
	if machineID == "" {
		writeBadRequest(w, "machine id is required")
		return
	}

	s.acceptClient(w, r, "", machineID)
}

// acceptClient upgrades the connection, registers the client and starts
// its pumps. Every new client receives a connection message first.
func (s *Server) acceptClient(w http.ResponseWriter, r *http.Request, userID, machineID string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	client := &WSClient{
		hub:       s.Hub(),
		conn:      conn,
		send:      make(chan []byte, wsSendBufferSize),
		userID:    userID,
		machineID: machineID,
	}

	client.hub.Register(client)

	go client.writePump(s.wsCfg)
	go client.readPump(s.wsCfg)

	client.sendMessage(WSMessage{
		Type: WSTypeConnection,
		Data: map[string]any{
			"user_id":    userID,
			"machine_id": machineID,
		},
	})
}

// readPump reads messages from the WebSocket connection.
func (c *WSClient) readPump(cfg config.WebSocketConfig) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	if cfg.MaxMessageSize > 0 {
		c.conn.SetReadLimit(int64(cfg.MaxMessageSize))
	}
	pingInterval := time.Duration(cfg.PingInterval) * time.Second
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	pongWait := time.Duration(cfg.PongTimeout) * time.Second
	if pongWait <= 0 {
		pongWait = 10 * time.Second
	}
	//nolint:errcheck // Best-effort deadline on connection setup
	c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", "error", err)
			} else {
				c.hub.logger.Debug("websocket closed", "error", err)
			}
			return
		}
		// Any client message resets the read deadline (keeps the
		// connection alive even if the client never answers
		// protocol-level pings).
		//nolint:errcheck // Best-effort deadline reset
		c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
		c.handleMessage(message)
	}
}

// writePump writes queued messages, protocol pings, and periodic JSON
// keepalives to the connection.
func (c *WSClient) writePump(cfg config.WebSocketConfig) {
	pingInterval := time.Duration(cfg.PingInterval) * time.Second
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	ticker := time.NewTicker(pingInterval)

	keepaliveInterval := time.Duration(cfg.KeepaliveInterval) * time.Second
	if keepaliveInterval <= 0 {
		keepaliveInterval = 30 * time.Second
	}
	keepalive := time.NewTicker(keepaliveInterval)

	defer func() {
		ticker.Stop()
		keepalive.Stop()
		c.conn.Close()
	}()

	pongWait := time.Duration(cfg.PongTimeout) * time.Second
	if pongWait <= 0 {
		pongWait = 10 * time.Second
	}

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				// Hub closed the channel
				//nolint:errcheck // Best-effort close message
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			//nolint:errcheck // Best-effort deadline; write error caught below
			c.conn.SetWriteDeadline(time.Now().Add(pongWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			//nolint:errcheck // Best-effort deadline; ping error caught below
			c.conn.SetWriteDeadline(time.Now().Add(pongWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-keepalive.C:
			c.sendMessage(WSMessage{Type: WSTypeKeepalive})
		}
	}
}

// handleMessage processes an incoming WebSocket message.
func (c *WSClient) handleMessage(data []byte) {
	var msg WSMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.sendError("", "invalid JSON message")
		return
	}

	switch msg.Type {
	case WSTypePing:
		c.sendMessage(WSMessage{Type: WSTypePong, ID: msg.ID})
	default:
		c.sendError(msg.ID, "unknown message type: "+msg.Type)
	}
}

// trySend attempts to send data to the client's send channel.
// It silently handles closed channels (client disconnected during
// broadcast) and full buffers (slow client).
func (c *WSClient) trySend(data []byte) {
	defer func() {
		recover() //nolint:errcheck // Absorb send-on-closed-channel panic
	}()

	select {
	case c.send <- data:
	default:
		// Client buffer full, skip
	}
}

// sendMessage marshals and queues a message for the client.
// Routes through trySend to safely handle closed channels during shutdown.
func (c *WSClient) sendMessage(msg WSMessage) {
	if msg.Timestamp == "" {
		msg.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	c.trySend(data)
}

// sendError queues an error message for the client.
func (c *WSClient) sendError(id, message string) {
	c.sendMessage(WSMessage{
		Type: WSTypeError,
		ID:   id,
		Data: map[string]string{"message": message},
	})
}
