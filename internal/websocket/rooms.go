package websocket

import (
	"sort"
	"sync"

	"chathub/pkg/interfaces"
)

// Rooms tracks named broadcast groups. Membership belongs to a connection, not
// to a user, and is dropped when the connection closes.
type Rooms struct {
	mu      sync.RWMutex
	members map[string]map[string]interfaces.Connection // roomID -> connID -> Connection
	joined  map[string]map[string]struct{}              // connID -> roomIDs
}

func NewRooms() *Rooms {
	return &Rooms{
		members: make(map[string]map[string]interfaces.Connection),
		joined:  make(map[string]map[string]struct{}),
	}
}

// Join adds conn to roomID. It reports false if conn was already a member.
func (r *Rooms) Join(conn interfaces.Connection, roomID string) bool {
	if conn == nil || roomID == "" {
		return false
	}
	id := conn.ID()

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.joined[id][roomID]; ok {
		return false
	}

	if r.members[roomID] == nil {
		r.members[roomID] = make(map[string]interfaces.Connection)
	}
	r.members[roomID][id] = conn

	if r.joined[id] == nil {
		r.joined[id] = make(map[string]struct{})
	}
	r.joined[id][roomID] = struct{}{}

	return true
}

// Leave removes conn from roomID. Leaving a room that was never joined is a no-op.
func (r *Rooms) Leave(conn interfaces.Connection, roomID string) bool {
	if conn == nil {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	return r.leaveLocked(conn.ID(), roomID)
}

// LeaveAll drops every membership of conn and returns the rooms it was in.
func (r *Rooms) LeaveAll(conn interfaces.Connection) []string {
	if conn == nil {
		return nil
	}
	id := conn.ID()

	r.mu.Lock()
	defer r.mu.Unlock()

	left := make([]string, 0, len(r.joined[id]))
	for roomID := range r.joined[id] {
		left = append(left, roomID)
	}
	for _, roomID := range left {
		r.leaveLocked(id, roomID)
	}
	sort.Strings(left)
	return left
}

func (r *Rooms) leaveLocked(connID, roomID string) bool {
	rooms, ok := r.joined[connID]
	if !ok {
		return false
	}
	if _, ok := rooms[roomID]; !ok {
		return false
	}

	delete(rooms, roomID)
	if len(rooms) == 0 {
		delete(r.joined, connID)
	}

	if members, ok := r.members[roomID]; ok {
		delete(members, connID)
		if len(members) == 0 {
			delete(r.members, roomID)
		}
	}
	return true
}

// Members returns the connections currently in roomID.
func (r *Rooms) Members(roomID string) []interfaces.Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := r.members[roomID]
	out := make([]interfaces.Connection, 0, len(members))
	for _, conn := range members {
		out = append(out, conn)
	}
	return out
}

// RoomsOf returns the sorted rooms a connection has joined.
func (r *Rooms) RoomsOf(connID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.joined[connID]))
	for roomID := range r.joined[connID] {
		out = append(out, roomID)
	}
	sort.Strings(out)
	return out
}

// Count returns the number of non-empty rooms.
func (r *Rooms) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}
