package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// User represents a user in the system.
type User struct {
	ID           int64
	Username     string
	Email        string
	PasswordHash string
	Avatar       string
	IsOnline     bool
	LastSeen     *time.Time // nil while the user is online
	CreatedAt    time.Time
}

// RoomKind defines the two room shapes.
type RoomKind string

const (
	RoomKindPrivate RoomKind = "private"
	RoomKindGroup   RoomKind = "group"
)

// LastMessage is the summary a room carries about its most recent message.
type LastMessage struct {
	Content   string
	SenderID  int64
	Kind      MessageKind
	Timestamp time.Time
}

// Room represents a chat room with its participants resolved.
type Room struct {
	ID           int64
	Name         string
	Kind         RoomKind
	CreatedBy    int64
	Participants []User
	LastMessage  *LastMessage
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// MessageKind classifies message content.
type MessageKind string

const (
	MessageKindText          MessageKind = "text"
	MessageKindEmoji         MessageKind = "emoji"
	MessageKindTextWithEmoji MessageKind = "text_with_emoji"
	MessageKindImage         MessageKind = "image"
	MessageKindFile          MessageKind = "file"
)

// FileMeta describes an uploaded attachment referenced by a message.
type FileMeta struct {
	URL      string
	Name     string
	Size     int64
	MimeType string
}

// Message represents a persisted chat message. Messages are immutable once
// appended.
type Message struct {
	ID        int64
	RoomID    int64
	SenderID  int64
	Sender    *User // resolved on read paths
	Content   string
	Kind      MessageKind
	Emojis    []string
	File      *FileMeta // set for image/file kinds
	CreatedAt time.Time
}

// UserStore handles user persistence.
type UserStore interface {
	// CreateUser creates a new user with hashed password.
	CreateUser(ctx context.Context, username, email, passwordHash string) (*User, error)

	// GetUserByID retrieves a user by ID. Returns ErrNotFound if absent.
	GetUserByID(ctx context.Context, id int64) (*User, error)

	// GetUserByUsername retrieves a user by username.
	GetUserByUsername(ctx context.Context, username string) (*User, error)

	// GetUserByEmail retrieves a user by email.
	GetUserByEmail(ctx context.Context, email string) (*User, error)

	// SearchUsers searches for users by username substring.
	SearchUsers(ctx context.Context, query string) ([]*User, error)

	// SetOnline flips the user's presence flag. Going offline stamps
	// last_seen with the current time; going online clears it.
	SetOnline(ctx context.Context, userID int64, online bool) error
}

// RoomStore handles room persistence and membership facts.
type RoomStore interface {
	// CreateRoom creates a group room with the given participants.
	// The creator is always added to the participant set.
	CreateRoom(ctx context.Context, name string, kind RoomKind, creatorID int64, participantIDs []int64) (*Room, error)

	// CreatePrivateRoom creates, or returns the existing, private room
	// between two users. First writer wins under concurrent creation.
	CreatePrivateRoom(ctx context.Context, userA, userB int64) (*Room, error)

	// GetRoomByID retrieves a room with resolved participants.
	GetRoomByID(ctx context.Context, id int64) (*Room, error)

	// RoomsOf lists a user's rooms ordered by most recent activity.
	RoomsOf(ctx context.Context, userID int64) ([]*Room, error)

	// IsParticipant reports whether the user belongs to the room.
	IsParticipant(ctx context.Context, roomID, userID int64) (bool, error)

	// UpdateLastMessage replaces the room's last-message summary and
	// bumps its activity timestamp.
	UpdateLastMessage(ctx context.Context, roomID int64, last LastMessage) error
}

// MessageStore handles message persistence.
type MessageStore interface {
	// AppendMessage persists a message and returns it with ID, sender
	// and creation time filled in.
	AppendMessage(ctx context.Context, msg *Message) (*Message, error)

	// PagedMessages returns one page of a room's messages ordered
	// newest-first, plus the total message count for the room.
	PagedMessages(ctx context.Context, roomID int64, page, pageSize int) ([]*Message, int, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	UserStore
	RoomStore
	MessageStore

	// Close closes the underlying database connection.
	Close() error
}
