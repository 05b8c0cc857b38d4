package chat

import "github.com/talkroom/talkroom-server/internal/store"

// EventKind is a notification the gateway emits to connections.
type EventKind int

const (
	// EventOnlineUsers carries the deduplicated online-user snapshot.
	EventOnlineUsers EventKind = iota
	// EventRoomList carries a user's rooms ordered by recency.
	EventRoomList
	// EventRoomCreated notifies room members about a new room.
	EventRoomCreated
	// EventNewMessage delivers a persisted message to room members.
	EventNewMessage
	// EventHistory delivers one page of room history to a connection.
	EventHistory
	// EventTyping signals that a user started typing in a room.
	EventTyping
	// EventStopTyping signals that a user stopped typing in a room.
	EventStopTyping
	// EventError reports a domain error to the originating connection.
	EventError
)

// HistoryPage is one page of a room's messages, newest first.
type HistoryPage struct {
	Messages   []*store.Message
	Total      int
	Page       int
	TotalPages int
}

// TypingInfo identifies who is typing where.
type TypingInfo struct {
	RoomID   int64
	UserID   int64
	Username string
}

// Event is sent to connections to describe what happened in the system.
// Exactly one payload field is set, matching Kind.
type Event struct {
	Kind    EventKind
	Users   []store.User
	Rooms   []*store.Room
	Room    *store.Room
	Message *store.Message
	History *HistoryPage
	Typing  *TypingInfo
	Err     *Error
}
