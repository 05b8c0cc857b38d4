package proto

import "encoding/json"

// Inbound is the envelope for events coming from the client.
type Inbound struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Outbound is the envelope for events sent to the client.
type Outbound struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// Inbound event names. Payloads mirror the gateway operations one-to-one.
const (
	InboundRoomCreate  = "room:create"
	InboundMessageSend = "message:send"
	InboundMessagesGet = "messages:get"
	InboundTyping      = "user:typing"
	InboundStopTyping  = "user:stop-typing"
)

// Outbound event names.
const (
	OutboundUsersOnline  = "users:online"
	OutboundRoomsList    = "rooms:list"
	OutboundRoomCreated  = "room:created"
	OutboundMessageNew   = "message:new"
	OutboundMessagesList = "messages:list"
	OutboundTyping       = "user:typing"
	OutboundStopTyping   = "user:stop-typing"
	OutboundError        = "error"
)

// RoomCreateData requests a private room with another user.
type RoomCreateData struct {
	UserID int64 `json:"userId"`
}

// FileData describes an uploaded attachment on an inbound message.
type FileData struct {
	URL  string `json:"url"`
	Name string `json:"name"`
	Size int64  `json:"size"`
	Type string `json:"type"`
}

// MessageSendData is a chat message from the client. Type is optional;
// when omitted the server classifies the content.
type MessageSendData struct {
	RoomID  int64     `json:"roomId"`
	Content string    `json:"content"`
	Type    string    `json:"type,omitempty"`
	File    *FileData `json:"file,omitempty"`
}

// MessagesGetData requests one page of room history.
type MessagesGetData struct {
	RoomID int64 `json:"roomId"`
	Page   int   `json:"page"`
	Limit  int   `json:"limit"`
}

// TypingData marks a typing signal for a room.
type TypingData struct {
	RoomID int64 `json:"roomId"`
}

// User is the wire shape of an identity.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Avatar   string `json:"avatar,omitempty"`
	IsOnline bool   `json:"isOnline"`
	LastSeen *int64 `json:"lastSeen"` // unix seconds, null while online
}

// LastMessage is the wire shape of a room's last-message summary.
type LastMessage struct {
	Content   string `json:"content"`
	SenderID  int64  `json:"senderId"`
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
}

// Room is the wire shape of a room.
type Room struct {
	ID           int64        `json:"id"`
	Name         string       `json:"name"`
	Type         string       `json:"type"`
	Participants []User       `json:"participants"`
	CreatedBy    int64        `json:"createdBy"`
	LastMessage  *LastMessage `json:"lastMessage,omitempty"`
}

// Message is the wire shape of a persisted message.
type Message struct {
	ID        int64     `json:"id"`
	RoomID    int64     `json:"roomId"`
	Sender    User      `json:"sender"`
	Content   string    `json:"content"`
	Type      string    `json:"type"`
	Emojis    []string  `json:"emojis"`
	File      *FileData `json:"file,omitempty"`
	CreatedAt int64     `json:"createdAt"`
}

// MessagesList is one page of room history, newest first.
type MessagesList struct {
	Messages   []Message `json:"messages"`
	Total      int       `json:"total"`
	Page       int       `json:"page"`
	TotalPages int       `json:"totalPages"`
}

// Typing identifies who is typing where. Username is omitted on stop.
type Typing struct {
	RoomID   int64  `json:"roomId"`
	UserID   int64  `json:"userId"`
	Username string `json:"username,omitempty"`
}

// Error is the unicast error payload.
type Error struct {
	Message string `json:"message"`
}
