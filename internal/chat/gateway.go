package chat

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/talkroom/talkroom-server/internal/store"
)

// Summary placeholders persisted instead of raw content for attachments.
const (
	summarySentImage = "sent an image"
	summarySentFile  = "sent a file"
)

// IdentityVerifier resolves a signed session token to a user identity.
type IdentityVerifier interface {
	VerifyToken(ctx context.Context, token string) (*store.User, error)
}

// SendMessageRequest carries one inbound message:send operation.
// Kind is optional; when empty the content is classified. File must be
// set when Kind is image or file.
type SendMessageRequest struct {
	RoomID  int64
	Content string
	Kind    store.MessageKind
	File    *store.FileMeta
}

// Gateway orchestrates the real-time session engine: it owns the
// connection lifecycle, the presence registry and the room membership
// index, and performs all broadcast fan-out.
//
// Handlers may run concurrently across connections; the registries
// provide the only shared mutable state and serialize their own
// operations. Repository calls are the suspension points.
type Gateway struct {
	store    store.Store
	verifier IdentityVerifier
	presence *PresenceRegistry
	rooms    *MembershipTracker
	log      *zerolog.Logger
}

// NewGateway constructs a gateway with empty registries.
func NewGateway(st store.Store, verifier IdentityVerifier, logger *zerolog.Logger) *Gateway {
	return &Gateway{
		store:    st,
		verifier: verifier,
		presence: NewPresenceRegistry(st, logger),
		rooms:    NewMembershipTracker(),
		log:      logger,
	}
}

// Presence exposes the registry for transport-level queries.
func (g *Gateway) Presence() *PresenceRegistry {
	return g.presence
}

// Connect drives the Pending -> Active transition: verify the bearer
// token, register presence, join the connection to every room of the
// identity, broadcast the online list to everyone and emit the room
// list to this connection. Any failure leaves the registries untouched
// and the connection must be closed by the caller.
func (g *Gateway) Connect(ctx context.Context, conn *Conn, token string) error {
	identity, err := g.verifier.VerifyToken(ctx, token)
	if err != nil {
		conn.close()
		return gatewayError(CodeInvalidToken, "authentication failed")
	}

	if !conn.activate(identity) {
		return errUnauthenticated
	}

	if err := g.presence.Register(ctx, conn); err != nil {
		conn.close()
		return fmt.Errorf("register presence: %w", err)
	}

	roomList, err := g.store.RoomsOf(ctx, identity.ID)
	if err != nil {
		g.presence.Unregister(ctx, conn.ID)
		conn.close()
		return fmt.Errorf("load rooms: %w", err)
	}
	for _, room := range roomList {
		g.rooms.Join(conn.ID, room.ID)
	}

	g.broadcastOnline()
	conn.Send(&Event{Kind: EventRoomList, Rooms: roomList})

	g.log.Info().
		Str("conn_id", conn.ID).
		Int64("user_id", identity.ID).
		Str("username", identity.Username).
		Msg("connection active")
	return nil
}

// Disconnect drives the transition to Closed: leave all rooms, withdraw
// presence and broadcast the updated online list to the remaining
// connections. Safe to call more than once.
func (g *Gateway) Disconnect(ctx context.Context, conn *Conn) {
	if !conn.close() {
		return
	}

	g.rooms.LeaveAll(conn.ID)
	g.presence.Unregister(ctx, conn.ID)
	g.broadcastOnline()

	if identity := conn.Identity(); identity != nil {
		g.log.Info().
			Str("conn_id", conn.ID).
			Int64("user_id", identity.ID).
			Msg("connection closed")
	}
}

// CreatePrivateRoom creates, or fetches, the private room between the
// caller and the target user, joins both sides' live connections to it,
// broadcasts the room to its members and refreshes both users' room
// lists.
func (g *Gateway) CreatePrivateRoom(ctx context.Context, conn *Conn, targetUserID int64) (*store.Room, error) {
	identity, err := requireActive(conn)
	if err != nil {
		return nil, err
	}
	if targetUserID == identity.ID {
		return nil, gatewayError(CodeValidation, "cannot create a private room with yourself")
	}

	if _, err := g.store.GetUserByID(ctx, targetUserID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, errUserNotFound
		}
		return nil, fmt.Errorf("load target user: %w", err)
	}

	room, err := g.store.CreatePrivateRoom(ctx, identity.ID, targetUserID)
	if err != nil {
		return nil, fmt.Errorf("create private room: %w", err)
	}

	g.rooms.Join(conn.ID, room.ID)
	targetConns := g.presence.ConnsOf(targetUserID)
	for _, tc := range targetConns {
		g.rooms.Join(tc.ID, room.ID)
	}

	g.broadcastToRoom(room.ID, &Event{Kind: EventRoomCreated, Room: room})

	g.pushRoomList(ctx, conn)
	for _, tc := range targetConns {
		g.pushRoomList(ctx, tc)
	}
	return room, nil
}

// SendMessage validates repository membership, classifies and persists
// the message, updates the room summary and fans the message out to
// every connection joined to the room. Each participant's live
// connections also receive a refreshed room list so recency ordering
// stays consistent across devices.
func (g *Gateway) SendMessage(ctx context.Context, conn *Conn, req SendMessageRequest) (*store.Message, error) {
	identity, err := requireActive(conn)
	if err != nil {
		return nil, err
	}

	room, err := g.validateParticipant(ctx, req.RoomID, identity.ID)
	if err != nil {
		return nil, err
	}

	msg := &store.Message{
		RoomID:   req.RoomID,
		SenderID: identity.ID,
		Content:  req.Content,
		Kind:     req.Kind,
	}

	if (req.Kind == store.MessageKindImage || req.Kind == store.MessageKindFile) && req.File == nil {
		return nil, gatewayError(CodeValidation, "file metadata is required for attachment messages")
	}

	summary := req.Content
	switch req.Kind {
	case store.MessageKindImage:
		msg.File = req.File
		summary = summarySentImage
	case store.MessageKindFile:
		msg.File = req.File
		summary = summarySentFile
	case "":
		msg.Kind, msg.Emojis = Classify(req.Content)
	}

	saved, err := g.store.AppendMessage(ctx, msg)
	if err != nil {
		return nil, fmt.Errorf("append message: %w", err)
	}

	if err := g.store.UpdateLastMessage(ctx, req.RoomID, store.LastMessage{
		Content:   summary,
		SenderID:  identity.ID,
		Kind:      saved.Kind,
		Timestamp: saved.CreatedAt,
	}); err != nil {
		return nil, fmt.Errorf("update last message: %w", err)
	}

	g.broadcastToRoom(req.RoomID, &Event{Kind: EventNewMessage, Message: saved})

	for _, uid := range lo.Map(room.Participants, func(u store.User, _ int) int64 { return u.ID }) {
		for _, pc := range g.presence.ConnsOf(uid) {
			g.pushRoomList(ctx, pc)
		}
	}
	return saved, nil
}

// FetchHistory returns one page of room messages, newest first. As a
// side effect the connection is joined to the room so subsequent
// messages reach it even without the connect-time auto-join.
func (g *Gateway) FetchHistory(ctx context.Context, conn *Conn, roomID int64, page, pageSize int) error {
	identity, err := requireActive(conn)
	if err != nil {
		return err
	}

	if _, err := g.validateParticipant(ctx, roomID, identity.ID); err != nil {
		return err
	}

	g.rooms.Join(conn.ID, roomID)

	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 1
	}

	messages, total, err := g.store.PagedMessages(ctx, roomID, page, pageSize)
	if err != nil {
		return fmt.Errorf("page messages: %w", err)
	}

	conn.Send(&Event{Kind: EventHistory, History: &HistoryPage{
		Messages:   messages,
		Total:      total,
		Page:       page,
		TotalPages: (total + pageSize - 1) / pageSize,
	}})
	return nil
}

// Typing broadcasts a transient typing signal to every other connection
// in the room. Nothing is persisted and no timeout is tracked; a stop
// arrives only when the client sends one.
func (g *Gateway) Typing(ctx context.Context, conn *Conn, roomID int64) error {
	return g.signalTyping(ctx, conn, roomID, EventTyping)
}

// StopTyping broadcasts the matching stop signal. Disconnects do not
// emit an implicit stop; clients are expected to cope with a dangling
// typing indicator.
func (g *Gateway) StopTyping(ctx context.Context, conn *Conn, roomID int64) error {
	return g.signalTyping(ctx, conn, roomID, EventStopTyping)
}

func (g *Gateway) signalTyping(ctx context.Context, conn *Conn, roomID int64, kind EventKind) error {
	identity, err := requireActive(conn)
	if err != nil {
		return err
	}
	if _, err := g.validateParticipant(ctx, roomID, identity.ID); err != nil {
		return err
	}

	info := &TypingInfo{RoomID: roomID, UserID: identity.ID}
	if kind == EventTyping {
		info.Username = identity.Username
	}

	for _, connID := range g.rooms.MembersOf(roomID) {
		if connID == conn.ID {
			continue
		}
		if member, ok := g.presence.Get(connID); ok {
			member.Send(&Event{Kind: kind, Typing: info})
		}
	}
	return nil
}

// validateParticipant checks the repository membership fact, which is
// independent of whether any connection has joined the room at the
// transport level.
func (g *Gateway) validateParticipant(ctx context.Context, roomID, userID int64) (*store.Room, error) {
	room, err := g.store.GetRoomByID(ctx, roomID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, errRoomNotFound
		}
		return nil, fmt.Errorf("load room: %w", err)
	}

	if !lo.ContainsBy(room.Participants, func(u store.User) bool { return u.ID == userID }) {
		return nil, errNotMember
	}
	return room, nil
}

func requireActive(conn *Conn) (*store.User, error) {
	if conn.State() != StateActive {
		return nil, errUnauthenticated
	}
	return conn.Identity(), nil
}

// broadcastOnline pushes the current online snapshot to every
// registered connection.
func (g *Gateway) broadcastOnline() {
	event := &Event{Kind: EventOnlineUsers, Users: g.presence.ListOnline()}
	for _, conn := range g.presence.All() {
		conn.Send(event)
	}
}

// broadcastToRoom fans an event out over the membership index.
func (g *Gateway) broadcastToRoom(roomID int64, event *Event) {
	for _, connID := range g.rooms.MembersOf(roomID) {
		if conn, ok := g.presence.Get(connID); ok {
			conn.Send(event)
		}
	}
}

// pushRoomList unicasts a fresh recency-ordered room list.
func (g *Gateway) pushRoomList(ctx context.Context, conn *Conn) {
	roomList, err := g.store.RoomsOf(ctx, conn.Identity().ID)
	if err != nil {
		g.log.Warn().Err(err).Str("conn_id", conn.ID).Msg("failed to refresh room list")
		return
	}
	conn.Send(&Event{Kind: EventRoomList, Rooms: roomList})
}
