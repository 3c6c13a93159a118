// Package presence announces the set of online users to every connection.
package presence

import (
	"chathub/pkg/interfaces"
	"chathub/pkg/types"
)

// Source is the live view of connections the broadcaster reads from.
type Source interface {
	OnlineUsers() []string
	All() []interfaces.Connection
}

// SendFunc delivers one event to one connection and reports whether it was
// accepted.
type SendFunc func(conn interfaces.Connection, event *types.Outbound) bool

// Broadcaster sends getOnlineUsers snapshots.
type Broadcaster struct {
	source Source
	send   SendFunc
}

// NewBroadcaster creates a broadcaster. A nil send writes directly to the
// connection.
func NewBroadcaster(source Source, send SendFunc) *Broadcaster {
	if send == nil {
		send = func(conn interfaces.Connection, event *types.Outbound) bool { return conn.Send(event) == nil }
	}
	return &Broadcaster{source: source, send: send}
}

// Broadcast sends the current online set to every open connection, anonymous
// ones included. It returns the set that was sent and how many connections
// accepted it.
func (b *Broadcaster) Broadcast() ([]string, int) {
	online := b.source.OnlineUsers()
	event := types.OnlineUsersEvent(online)

	sent := 0
	for _, conn := range b.source.All() {
		if b.send(conn, event) {
			sent++
		}
	}
	return online, sent
}

// Snapshot returns the current online set without sending it.
func (b *Broadcaster) Snapshot() []string {
	online := b.source.OnlineUsers()
	if online == nil {
		return []string{}
	}
	return online
}
