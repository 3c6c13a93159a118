package websocket

import (
	"context"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"chathub/pkg/interfaces"
	"chathub/pkg/types"
)

// EventHandler receives connection lifecycle and inbound client events. Events
// from a single connection are delivered sequentially, in arrival order.
type EventHandler interface {
	Connect(conn interfaces.Connection) error
	Disconnect(conn interfaces.Connection)
	HandleEvent(ctx context.Context, conn interfaces.Connection, event types.InboundEvent)
}

// HandlerConfig carries the transport settings of the websocket endpoint.
type HandlerConfig struct {
	PingInterval   time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	BufferSize     int
	MaxMessageSize int64
	AllowedOrigin  string // "*" or "" allows any origin
}

// DefaultHandlerConfig returns the 30s ping / 60s read deadline heartbeat.
func DefaultHandlerConfig() HandlerConfig {
	return HandlerConfig{
		PingInterval:   30 * time.Second,
		ReadTimeout:    60 * time.Second,
		WriteTimeout:   10 * time.Second,
		BufferSize:     100,
		MaxMessageSize: 64 * 1024,
		AllowedOrigin:  "*",
	}
}

// Handler upgrades HTTP requests and pumps frames between sockets and the hub.
type Handler struct {
	events   EventHandler
	config   HandlerConfig
	upgrader websocket.Upgrader
}

// NewHandler creates a websocket handler that reports to events.
func NewHandler(events EventHandler, config HandlerConfig) *Handler {
	defaults := DefaultHandlerConfig()
	if config.PingInterval <= 0 {
		config.PingInterval = defaults.PingInterval
	}
	if config.ReadTimeout <= 0 {
		config.ReadTimeout = defaults.ReadTimeout
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = defaults.WriteTimeout
	}
	if config.BufferSize <= 0 {
		config.BufferSize = defaults.BufferSize
	}
	if config.MaxMessageSize <= 0 {
		config.MaxMessageSize = defaults.MaxMessageSize
	}

	h := &Handler{
		events: events,
		config: config,
	}
	h.upgrader = websocket.Upgrader{
		CheckOrigin:      h.checkOrigin,
		HandshakeTimeout: 10 * time.Second,
	}
	return h
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	allowed := h.config.AllowedOrigin
	if allowed == "" || allowed == "*" {
		return true
	}

	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Scheme+"://"+u.Host, strings.TrimRight(allowed, "/"))
}

// HandleWebSocket serves GET /ws?userId=<id>. A missing or blank identity
// yields an anonymous session; a malformed one is rejected before upgrade.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	userID := types.NormalizeUserID(r.URL.Query().Get("userId"))
	if userID != "" && !types.IsValidUserID(userID) {
		http.Error(w, "Invalid userId format", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	wsConn := NewConnection(conn, userID, ConnectionOptions{
		BufferSize:   h.config.BufferSize,
		WriteTimeout: h.config.WriteTimeout,
	})

	if err := h.events.Connect(wsConn); err != nil {
		log.Printf("Failed to register connection for user %q: %v", userID, err)
		_ = wsConn.Close()
		return
	}

	if wsConn.IsAnonymous() {
		log.Printf("Anonymous connection %s opened from %s", wsConn.ID(), r.RemoteAddr)
	}

	go h.handleConnection(wsConn)
}

// handleConnection runs the read pump and heartbeat until the socket fails.
func (h *Handler) handleConnection(conn *Connection) {
	defer func() {
		h.events.Disconnect(conn)
		_ = conn.Close()
	}()

	conn.conn.SetReadLimit(h.config.MaxMessageSize)

	readTimeout := h.config.ReadTimeout
	if err := conn.conn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
		log.Printf("Failed to set read deadline: %v", err)
		return
	}
	conn.conn.SetPongHandler(func(string) error {
		return conn.conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	go h.pingLoop(conn)

	for {
		messageType, data, err := conn.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				log.Printf("WebSocket error for connection %s: %v", conn.ID(), err)
			}
			return
		}

		if messageType != websocket.TextMessage {
			continue
		}

		event, err := types.DecodeInbound(data)
		if err != nil {
			log.Printf("Dropping frame from connection %s: %v", conn.ID(), err)
			continue
		}

		h.events.HandleEvent(context.Background(), conn, event)
	}
}

func (h *Handler) pingLoop(conn *Connection) {
	ticker := time.NewTicker(h.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			deadline := time.Now().Add(h.config.WriteTimeout)
			if err := conn.conn.WriteControl(websocket.PingMessage, []byte{}, deadline); err != nil {
				return
			}
		case <-conn.Done():
			return
		}
	}
}
