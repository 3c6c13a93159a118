// Package hub coordinates the chat session layer: connection lifecycle,
// presence, group fan-out, typing state and delivery receipts.
package hub

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"chathub/internal/presence"
	"chathub/internal/receipts"
	"chathub/internal/typing"
	"chathub/internal/websocket"
	"chathub/pkg/interfaces"
	"chathub/pkg/types"
)

// Config holds hub tuning.
type Config struct {
	QueueSize           int
	CollaboratorTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{QueueSize: 1000, CollaboratorTimeout: 5 * time.Second}
}

type lifecycleKind int

const (
	connected lifecycleKind = iota
	disconnected
)

type lifecycleEvent struct {
	kind lifecycleKind
	conn interfaces.Connection
}

// Hub owns the registry and rooms. Lifecycle side effects and message fan-out
// run on one goroutine so presence snapshots and cleanup happen in the order
// connections opened and closed. Inbound client events run on the caller's
// goroutine.
type Hub struct {
	messageChannel   chan *types.Message
	lifecycleChannel chan lifecycleEvent
	shutdownChannel  chan struct{}
	stopping         chan struct{} // closed when the loop starts to exit
	done             chan struct{}

	registry  *websocket.Registry
	rooms     *websocket.Rooms
	presence  *presence.Broadcaster
	typing    *typing.Service
	receipts  *receipts.Service
	directory interfaces.UserDirectory

	config  Config
	now     func() time.Time
	pending sync.WaitGroup // last-seen writes in flight

	running bool
	mu      sync.RWMutex
}

var (
	_ websocket.EventHandler = (*Hub)(nil)
	_ typing.Notifier        = (*Hub)(nil)
	_ receipts.Notifier      = (*Hub)(nil)
)

// NewHub wires the session components around registry and rooms.
func NewHub(registry *websocket.Registry, rooms *websocket.Rooms, repo interfaces.MessageRepository, directory interfaces.UserDirectory, config Config) *Hub {
	defaults := DefaultConfig()
	if config.QueueSize <= 0 {
		config.QueueSize = defaults.QueueSize
	}
	if config.CollaboratorTimeout <= 0 {
		config.CollaboratorTimeout = defaults.CollaboratorTimeout
	}

	h := &Hub{
		messageChannel:   make(chan *types.Message, config.QueueSize),
		lifecycleChannel: make(chan lifecycleEvent, config.QueueSize),
		registry:         registry,
		rooms:            rooms,
		directory:        directory,
		config:           config,
		now:              time.Now,
	}
	h.presence = presence.NewBroadcaster(registry, h.deliver)
	h.typing = typing.NewService(directory, h)
	h.receipts = receipts.NewService(repo, h)

	return h
}

// Start begins hub processing
func (h *Hub) Start(ctx context.Context) error {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return ErrHubAlreadyRunning
	}
	h.running = true
	h.shutdownChannel = make(chan struct{})
	h.stopping = make(chan struct{})
	h.done = make(chan struct{})
	shutdown, stopping, done := h.shutdownChannel, h.stopping, h.done
	h.mu.Unlock()

	log.Println("Starting chat hub...")

	go h.run(ctx, shutdown, stopping, done)

	return nil
}

// Stop shuts the loop down, runs the disconnect sequence for every connection
// still open, waits for pending last-seen writes and closes the connections.
func (h *Hub) Stop() error {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return ErrHubNotRunning
	}
	h.running = false
	close(h.shutdownChannel)
	done := h.done
	h.mu.Unlock()

	log.Println("Stopping chat hub...")

	<-done

	for _, conn := range h.registry.All() {
		h.Disconnect(conn)
		_ = conn.Close()
	}
	h.pending.Wait()

	return nil
}

func (h *Hub) IsRunning() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.running
}

// Connect registers conn and schedules a presence broadcast.
func (h *Hub) Connect(conn interfaces.Connection) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if !h.running {
		return ErrHubNotRunning
	}

	if err := h.registry.Register(conn); err != nil {
		return err
	}

	select {
	case h.lifecycleChannel <- lifecycleEvent{kind: connected, conn: conn}:
		log.Printf("Connection registered: id=%s user=%q", conn.ID(), conn.UserID())
		return nil
	default:
		h.registry.Unregister(conn)
		return ErrLifecycleChannelFull
	}
}

// Disconnect removes conn and runs its cleanup exactly once. While the loop
// runs, cleanup is queued behind earlier lifecycle events; otherwise it runs
// on the caller.
func (h *Hub) Disconnect(conn interfaces.Connection) {
	if !h.registry.Unregister(conn) {
		return
	}
	log.Printf("Connection deregistered: id=%s user=%q", conn.ID(), conn.UserID())

	event := lifecycleEvent{kind: disconnected, conn: conn}

	// The loop drains the lifecycle channel under the write lock after it
	// stops, so an event queued under the read lock while running is handled.
	h.mu.RLock()
	if h.running {
		select {
		case h.lifecycleChannel <- event:
			h.mu.RUnlock()
			return
		case <-h.stopping:
		}
	}
	h.mu.RUnlock()

	h.cleanup(conn, false)
}

// HandleEvent applies one inbound client event.
func (h *Hub) HandleEvent(ctx context.Context, conn interfaces.Connection, event types.InboundEvent) {
	if !h.IsRunning() {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, h.config.CollaboratorTimeout)
	defer cancel()

	var err error
	switch e := event.(type) {
	case types.JoinGroup:
		if !types.IsValidGroupID(e.GroupID) {
			err = types.ErrInvalidGroupID
			break
		}
		if h.rooms.Join(conn, e.GroupID) {
			log.Printf("Connection %s joined %s, rooms=%v", conn.ID(), e.GroupID, h.rooms.RoomsOf(conn.ID()))
		}
	case types.LeaveGroup:
		h.rooms.Leave(conn, e.GroupID)
	case types.StartTyping:
		err = h.typing.StartTyping(ctx, conn.UserID(), e.ReceiverID)
	case types.StopTyping:
		err = h.typing.StopTyping(ctx, conn.UserID(), e.ReceiverID)
	case types.MessageDelivered:
		_, err = h.receipts.AcknowledgeDelivered(ctx, e.MessageID)
	case types.MessageRead:
		_, err = h.receipts.AcknowledgeRead(ctx, e.MessageID)
	default:
		err = types.ErrUnknownEvent
	}

	if err != nil {
		log.Printf("Event %s from connection %s dropped: %v", event.EventName(), conn.ID(), err)
	}
}

// SendMessage queues a persisted message for fan-out to its receiver's
// connections or its group's members.
func (h *Hub) SendMessage(message *types.Message) error {
	if message == nil {
		return ErrNilMessage
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	if !h.running {
		return ErrHubNotRunning
	}

	select {
	case h.messageChannel <- message:
		return nil
	default:
		return ErrMessageChannelFull
	}
}

// NotifyUser sends event to every open connection of userID and returns how
// many accepted it.
func (h *Hub) NotifyUser(userID string, event *types.Outbound) int {
	sent := 0
	for _, conn := range h.registry.ConnectionsFor(userID) {
		if h.deliver(conn, event) {
			sent++
		}
	}
	return sent
}

// IsOnline reports whether userID has at least one open connection.
func (h *Hub) IsOnline(userID string) bool {
	return h.registry.IsOnline(userID)
}

// OnlineUsers returns the current presence snapshot.
func (h *Hub) OnlineUsers() []string {
	return h.presence.Snapshot()
}

// GetStats returns hub statistics for monitoring and debugging
func (h *Hub) GetStats() map[string]int {
	stats := h.registry.GetStats()
	stats["rooms"] = h.rooms.Count()
	stats["typing"] = h.typing.State().Len()
	stats["queued_messages"] = len(h.messageChannel)
	stats["queued_lifecycle_events"] = len(h.lifecycleChannel)
	return stats
}

func (h *Hub) run(ctx context.Context, shutdown <-chan struct{}, stopping, done chan struct{}) {
	defer func() {
		close(stopping)

		h.mu.Lock()
		h.running = false
		h.drainLifecycle()
		h.mu.Unlock()

		close(done)
		log.Println("Hub processing stopped")
	}()

	for {
		select {
		case message := <-h.messageChannel:
			h.routeMessage(message)

		case event := <-h.lifecycleChannel:
			h.handleLifecycle(event)

		case <-shutdown:
			log.Println("Hub shutdown requested")
			return

		case <-ctx.Done():
			log.Println("Hub context cancelled")
			return
		}
	}
}

// drainLifecycle finishes cleanup for connections that closed before shutdown.
func (h *Hub) drainLifecycle() {
	for {
		select {
		case event := <-h.lifecycleChannel:
			h.handleLifecycle(event)
		default:
			return
		}
	}
}

func (h *Hub) handleLifecycle(event lifecycleEvent) {
	switch event.kind {
	case connected:
		h.presence.Broadcast()

	case disconnected:
		h.cleanup(event.conn, true)
	}
}

// cleanup is the disconnect sequence: leave rooms, end typing, announce
// presence, stamp last seen. Typing ends before the presence broadcast, so a
// recipient sees userStopTyping ahead of the getOnlineUsers without the sender.
// With async false the last-seen write runs on the caller.
func (h *Hub) cleanup(conn interfaces.Connection, async bool) {
	h.rooms.LeaveAll(conn)

	userID := conn.UserID()
	if userID != "" {
		h.typing.Disconnect(userID)
	}

	h.presence.Broadcast()

	if userID == "" {
		return
	}
	if async {
		h.stampLastSeen(userID)
		return
	}
	h.updateLastSeen(userID, h.now())
}

func (h *Hub) stampLastSeen(userID string) {
	at := h.now()

	h.pending.Add(1)
	go func() {
		defer h.pending.Done()
		h.updateLastSeen(userID, at)
	}()
}

func (h *Hub) updateLastSeen(userID string, at time.Time) {
	ctx, cancel := context.WithTimeout(context.Background(), h.config.CollaboratorTimeout)
	defer cancel()

	if err := h.directory.UpdateLastSeen(ctx, userID, at); err != nil {
		log.Printf("Failed to update last seen for %s: %v", userID, err)
	}
}

func (h *Hub) routeMessage(message *types.Message) {
	event := types.MessageEvent(message)

	var targets []interfaces.Connection
	switch {
	case message.IsGroup():
		targets = h.rooms.Members(*message.GroupID)
	case message.ReceiverID != nil && *message.ReceiverID != "":
		targets = h.registry.ConnectionsFor(*message.ReceiverID)
	default:
		log.Printf("Message %s dropped: %v", message.ID, ErrMessageWithoutTarget)
		return
	}

	for _, conn := range targets {
		h.deliver(conn, event)
	}
}

// deliver never blocks. A connection whose buffer is full is closed so a slow
// consumer cannot stall the hub.
func (h *Hub) deliver(conn interfaces.Connection, event *types.Outbound) bool {
	err := conn.Send(event)
	switch {
	case err == nil:
		return true
	case errors.Is(err, websocket.ErrConnectionClosed):
	case errors.Is(err, websocket.ErrSendBufferFull):
		log.Printf("Closing slow connection %s (user %q): %v", conn.ID(), conn.UserID(), err)
		_ = conn.Close()
	default:
		log.Printf("Failed to send %s to connection %s: %v", event.Event, conn.ID(), err)
	}
	return false
}
