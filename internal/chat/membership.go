package chat

import "sync"

// MembershipTracker records which rooms each live connection currently
// receives broadcasts for. It is a transport-routing index, distinct from
// the repository's participant facts: a user can be a room participant
// without any of their connections being joined here.
type MembershipTracker struct {
	mu        sync.RWMutex
	roomConns map[int64]map[string]struct{}
	connRooms map[string]map[int64]struct{}
}

// NewMembershipTracker constructs an empty tracker.
func NewMembershipTracker() *MembershipTracker {
	return &MembershipTracker{
		roomConns: make(map[int64]map[string]struct{}),
		connRooms: make(map[string]map[int64]struct{}),
	}
}

// Join subscribes the connection to a room's broadcasts. Idempotent.
func (t *MembershipTracker) Join(connID string, roomID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.roomConns[roomID]; !ok {
		t.roomConns[roomID] = make(map[string]struct{})
	}
	t.roomConns[roomID][connID] = struct{}{}

	if _, ok := t.connRooms[connID]; !ok {
		t.connRooms[connID] = make(map[int64]struct{})
	}
	t.connRooms[connID][roomID] = struct{}{}
}

// Leave unsubscribes the connection from a room. Unknown pairs are a no-op.
func (t *MembershipTracker) Leave(connID string, roomID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.leaveLocked(connID, roomID)
}

func (t *MembershipTracker) leaveLocked(connID string, roomID int64) {
	if conns, ok := t.roomConns[roomID]; ok {
		delete(conns, connID)
		if len(conns) == 0 {
			delete(t.roomConns, roomID)
		}
	}
	if rooms, ok := t.connRooms[connID]; ok {
		delete(rooms, roomID)
		if len(rooms) == 0 {
			delete(t.connRooms, connID)
		}
	}
}

// LeaveAll removes the connection from every room it had joined.
// Called on disconnect.
func (t *MembershipTracker) LeaveAll(connID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for roomID := range t.connRooms[connID] {
		t.leaveLocked(connID, roomID)
	}
}

// MembersOf returns the connection IDs currently joined to a room.
// Broadcast fan-out iterates this index, never the full connection table.
func (t *MembershipTracker) MembersOf(roomID int64) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	conns := make([]string, 0, len(t.roomConns[roomID]))
	for connID := range t.roomConns[roomID] {
		conns = append(conns, connID)
	}
	return conns
}

// RoomsOf returns the rooms a connection is currently joined to.
func (t *MembershipTracker) RoomsOf(connID string) []int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()

	rooms := make([]int64, 0, len(t.connRooms[connID]))
	for roomID := range t.connRooms[connID] {
		rooms = append(rooms, roomID)
	}
	return rooms
}
