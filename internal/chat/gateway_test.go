package chat

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/talkroom/talkroom-server/internal/store"
	"github.com/talkroom/talkroom-server/internal/store/sqlite"
)

// staticVerifier resolves tokens from a fixed map, standing in for the
// JWT-backed verifier in gateway tests.
type staticVerifier struct {
	users map[string]*store.User
}

func (v staticVerifier) VerifyToken(_ context.Context, token string) (*store.User, error) {
	user, ok := v.users[token]
	if !ok {
		return nil, fmt.Errorf("unknown token %q", token)
	}
	return user, nil
}

type gatewayFixture struct {
	gateway *Gateway
	store   *sqlite.SQLiteStore
	tokens  map[string]*store.User
}

func newGatewayFixture(t *testing.T) *gatewayFixture {
	t.Helper()

	st, err := sqlite.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	tokens := make(map[string]*store.User)
	logger := zerolog.Nop()
	return &gatewayFixture{
		gateway: NewGateway(st, staticVerifier{users: tokens}, &logger),
		store:   st,
		tokens:  tokens,
	}
}

// addUser creates a user whose token equals its username.
func (f *gatewayFixture) addUser(t *testing.T, username string) *store.User {
	t.Helper()
	user, err := f.store.CreateUser(context.Background(), username, username+"@example.com", "x")
	require.NoError(t, err)
	f.tokens[username] = user
	return user
}

// connect opens an authenticated connection for the given token.
func (f *gatewayFixture) connect(t *testing.T, connID, token string) *Conn {
	t.Helper()
	conn := NewConn(connID)
	require.NoError(t, f.gateway.Connect(context.Background(), conn, token))
	return conn
}

func nextEvent(t *testing.T, conn *Conn) *Event {
	t.Helper()
	select {
	case event := <-conn.Events:
		return event
	case <-time.After(2 * time.Second):
		t.Fatalf("conn %s: no event within deadline", conn.ID)
		return nil
	}
}

func requireNoEvent(t *testing.T, conn *Conn) {
	t.Helper()
	select {
	case event := <-conn.Events:
		t.Fatalf("conn %s: unexpected event kind %d", conn.ID, event.Kind)
	default:
	}
}

func TestGateway_ConnectEmitsSnapshots(t *testing.T) {
	req := require.New(t)
	f := newGatewayFixture(t)
	alice := f.addUser(t, "alice")

	conn := f.connect(t, "a1", "alice")
	req.Equal(StateActive, conn.State())

	online := nextEvent(t, conn)
	req.Equal(EventOnlineUsers, online.Kind)
	req.Len(online.Users, 1)
	req.Equal(alice.ID, online.Users[0].ID)
	req.True(online.Users[0].IsOnline)

	roomList := nextEvent(t, conn)
	req.Equal(EventRoomList, roomList.Kind)
	req.Empty(roomList.Rooms)
}

func TestGateway_ConnectRejectsBadToken(t *testing.T) {
	req := require.New(t)
	f := newGatewayFixture(t)

	conn := NewConn("c1")
	err := f.gateway.Connect(context.Background(), conn, "bogus")
	req.Error(err)
	req.Equal(CodeInvalidToken, AsError(err).Code)
	req.Equal(StateClosed, conn.State())
	req.Empty(f.gateway.Presence().All())
}

func TestGateway_PrivateRoomMessageFlow(t *testing.T) {
	req := require.New(t)
	f := newGatewayFixture(t)
	alice := f.addUser(t, "alice")
	bob := f.addUser(t, "bob")

	aliceConn := f.connect(t, "a1", "alice")
	nextEvent(t, aliceConn) // users:online
	nextEvent(t, aliceConn) // rooms:list

	bobConn := f.connect(t, "b1", "bob")
	nextEvent(t, bobConn) // users:online
	nextEvent(t, bobConn) // rooms:list

	// Bob's arrival reaches Alice too.
	online := nextEvent(t, aliceConn)
	req.Equal(EventOnlineUsers, online.Kind)
	req.Len(online.Users, 2)

	room, err := f.gateway.CreatePrivateRoom(context.Background(), aliceConn, bob.ID)
	req.NoError(err)
	req.Equal(store.RoomKindPrivate, room.Kind)
	req.Len(room.Participants, 2)

	for _, conn := range []*Conn{aliceConn, bobConn} {
		created := nextEvent(t, conn)
		req.Equal(EventRoomCreated, created.Kind)
		req.Equal(room.ID, created.Room.ID)

		list := nextEvent(t, conn)
		req.Equal(EventRoomList, list.Kind)
		req.Len(list.Rooms, 1)
	}

	// Creating it again returns the same room.
	again, err := f.gateway.CreatePrivateRoom(context.Background(), aliceConn, bob.ID)
	req.NoError(err)
	req.Equal(room.ID, again.ID)
	nextEvent(t, aliceConn) // room:created
	nextEvent(t, aliceConn) // rooms:list
	nextEvent(t, bobConn)
	nextEvent(t, bobConn)

	saved, err := f.gateway.SendMessage(context.Background(), aliceConn, SendMessageRequest{
		RoomID:  room.ID,
		Content: "hi 👋",
	})
	req.NoError(err)
	req.Equal(store.MessageKindTextWithEmoji, saved.Kind)
	req.Equal([]string{"👋"}, saved.Emojis)
	req.Equal(alice.ID, saved.SenderID)

	for _, conn := range []*Conn{aliceConn, bobConn} {
		incoming := nextEvent(t, conn)
		req.Equal(EventNewMessage, incoming.Kind)
		req.Equal(saved.ID, incoming.Message.ID)
		req.Equal("hi 👋", incoming.Message.Content)

		list := nextEvent(t, conn)
		req.Equal(EventRoomList, list.Kind)
		req.Len(list.Rooms, 1)
		req.NotNil(list.Rooms[0].LastMessage)
		req.Equal("hi 👋", list.Rooms[0].LastMessage.Content)
		req.Equal(alice.ID, list.Rooms[0].LastMessage.SenderID)
	}
}

func TestGateway_CreatePrivateRoomValidation(t *testing.T) {
	req := require.New(t)
	f := newGatewayFixture(t)
	alice := f.addUser(t, "alice")
	conn := f.connect(t, "a1", "alice")

	_, err := f.gateway.CreatePrivateRoom(context.Background(), conn, alice.ID)
	req.Error(err)
	req.Equal(CodeValidation, AsError(err).Code)

	_, err = f.gateway.CreatePrivateRoom(context.Background(), conn, 9999)
	req.Error(err)
	req.Equal(CodeNotFound, AsError(err).Code)
}

func TestGateway_SendMessageNonMember(t *testing.T) {
	req := require.New(t)
	f := newGatewayFixture(t)
	f.addUser(t, "alice")
	bob := f.addUser(t, "bob")
	f.addUser(t, "charlie")

	aliceConn := f.connect(t, "a1", "alice")
	room, err := f.gateway.CreatePrivateRoom(context.Background(), aliceConn, bob.ID)
	req.NoError(err)
	for len(aliceConn.Events) > 0 {
		<-aliceConn.Events
	}

	charlieConn := f.connect(t, "c1", "charlie")
	for len(charlieConn.Events) > 0 {
		<-charlieConn.Events
	}
	nextEvent(t, aliceConn) // users:online for charlie

	_, err = f.gateway.SendMessage(context.Background(), charlieConn, SendMessageRequest{
		RoomID:  room.ID,
		Content: "let me in",
	})
	req.Error(err)
	req.Equal(CodeNotMember, AsError(err).Code)

	// Nothing persisted, nothing broadcast.
	_, total, err := f.store.PagedMessages(context.Background(), room.ID, 1, 10)
	req.NoError(err)
	req.Zero(total)
	requireNoEvent(t, aliceConn)

	_, err = f.gateway.SendMessage(context.Background(), charlieConn, SendMessageRequest{
		RoomID:  9999,
		Content: "anyone here",
	})
	req.Error(err)
	req.Equal(CodeNotFound, AsError(err).Code)
}

func TestGateway_SendMessageAttachmentNeedsFile(t *testing.T) {
	req := require.New(t)
	f := newGatewayFixture(t)
	f.addUser(t, "alice")
	bob := f.addUser(t, "bob")

	conn := f.connect(t, "a1", "alice")
	room, err := f.gateway.CreatePrivateRoom(context.Background(), conn, bob.ID)
	req.NoError(err)

	_, err = f.gateway.SendMessage(context.Background(), conn, SendMessageRequest{
		RoomID: room.ID,
		Kind:   store.MessageKindImage,
	})
	req.Error(err)
	req.Equal(CodeValidation, AsError(err).Code)
}

func TestGateway_SendImageUpdatesSummary(t *testing.T) {
	req := require.New(t)
	f := newGatewayFixture(t)
	alice := f.addUser(t, "alice")
	bob := f.addUser(t, "bob")

	conn := f.connect(t, "a1", "alice")
	room, err := f.gateway.CreatePrivateRoom(context.Background(), conn, bob.ID)
	req.NoError(err)

	saved, err := f.gateway.SendMessage(context.Background(), conn, SendMessageRequest{
		RoomID: room.ID,
		Kind:   store.MessageKindImage,
		File: &store.FileMeta{
			URL:      "http://localhost:8080/uploads/pic.png",
			Name:     "pic.png",
			Size:     1024,
			MimeType: "image/png",
		},
	})
	req.NoError(err)
	req.Equal(store.MessageKindImage, saved.Kind)
	req.NotNil(saved.File)

	rooms, err := f.store.RoomsOf(context.Background(), alice.ID)
	req.NoError(err)
	req.Len(rooms, 1)
	req.NotNil(rooms[0].LastMessage)
	req.Equal("sent an image", rooms[0].LastMessage.Content)
}

func TestGateway_FetchHistoryPaging(t *testing.T) {
	req := require.New(t)
	f := newGatewayFixture(t)
	f.addUser(t, "alice")
	bob := f.addUser(t, "bob")

	conn := f.connect(t, "a1", "alice")
	room, err := f.gateway.CreatePrivateRoom(context.Background(), conn, bob.ID)
	req.NoError(err)

	for i := 1; i <= 45; i++ {
		_, err := f.gateway.SendMessage(context.Background(), conn, SendMessageRequest{
			RoomID:  room.ID,
			Content: fmt.Sprintf("message %d", i),
		})
		req.NoError(err)
	}
	for len(conn.Events) > 0 {
		<-conn.Events
	}

	req.NoError(f.gateway.FetchHistory(context.Background(), conn, room.ID, 2, 20))

	event := nextEvent(t, conn)
	req.Equal(EventHistory, event.Kind)
	req.Equal(45, event.History.Total)
	req.Equal(2, event.History.Page)
	req.Equal(3, event.History.TotalPages)
	req.Len(event.History.Messages, 20)
	// Newest first: page 2 starts at the 21st newest message.
	req.Equal("message 25", event.History.Messages[0].Content)
	req.Equal("message 6", event.History.Messages[19].Content)
}

func TestGateway_TypingExcludesSender(t *testing.T) {
	req := require.New(t)
	f := newGatewayFixture(t)
	alice := f.addUser(t, "alice")
	bob := f.addUser(t, "bob")

	aliceConn := f.connect(t, "a1", "alice")
	room, err := f.gateway.CreatePrivateRoom(context.Background(), aliceConn, bob.ID)
	req.NoError(err)

	bobConn := f.connect(t, "b1", "bob")
	for len(aliceConn.Events) > 0 {
		<-aliceConn.Events
	}
	for len(bobConn.Events) > 0 {
		<-bobConn.Events
	}

	req.NoError(f.gateway.Typing(context.Background(), aliceConn, room.ID))

	typing := nextEvent(t, bobConn)
	req.Equal(EventTyping, typing.Kind)
	req.Equal(room.ID, typing.Typing.RoomID)
	req.Equal(alice.ID, typing.Typing.UserID)
	req.Equal("alice", typing.Typing.Username)
	requireNoEvent(t, aliceConn)

	req.NoError(f.gateway.StopTyping(context.Background(), aliceConn, room.ID))

	stop := nextEvent(t, bobConn)
	req.Equal(EventStopTyping, stop.Kind)
	req.Equal(alice.ID, stop.Typing.UserID)
	req.Empty(stop.Typing.Username)
	requireNoEvent(t, aliceConn)
}

func TestGateway_DisconnectIsIdempotent(t *testing.T) {
	req := require.New(t)
	f := newGatewayFixture(t)
	alice := f.addUser(t, "alice")
	bob := f.addUser(t, "bob")

	aliceConn := f.connect(t, "a1", "alice")
	bobConn := f.connect(t, "b1", "bob")
	for len(bobConn.Events) > 0 {
		<-bobConn.Events
	}

	f.gateway.Disconnect(context.Background(), aliceConn)
	f.gateway.Disconnect(context.Background(), aliceConn)

	req.Equal(StateClosed, aliceConn.State())
	online := nextEvent(t, bobConn)
	req.Equal(EventOnlineUsers, online.Kind)
	req.Len(online.Users, 1)
	req.Equal(bob.ID, online.Users[0].ID)
	requireNoEvent(t, bobConn)

	stored, err := f.store.GetUserByID(context.Background(), alice.ID)
	req.NoError(err)
	req.False(stored.IsOnline)
	req.NotNil(stored.LastSeen)

	// Operations on a closed connection are rejected.
	_, err = f.gateway.SendMessage(context.Background(), aliceConn, SendMessageRequest{RoomID: 1, Content: "hi"})
	req.Error(err)
	req.Equal(CodeUnauthenticated, AsError(err).Code)
}

func TestGateway_MultiDevicePresence(t *testing.T) {
	req := require.New(t)
	f := newGatewayFixture(t)
	alice := f.addUser(t, "alice")

	c1 := f.connect(t, "a1", "alice")
	c2 := f.connect(t, "a2", "alice")

	req.Len(f.gateway.Presence().ListOnline(), 1)

	f.gateway.Disconnect(context.Background(), c1)
	stored, err := f.store.GetUserByID(context.Background(), alice.ID)
	req.NoError(err)
	req.True(stored.IsOnline)

	f.gateway.Disconnect(context.Background(), c2)
	stored, err = f.store.GetUserByID(context.Background(), alice.ID)
	req.NoError(err)
	req.False(stored.IsOnline)
}

func TestGateway_OfflineTargetSeesRoomOnConnect(t *testing.T) {
	req := require.New(t)
	f := newGatewayFixture(t)
	f.addUser(t, "alice")
	f.addUser(t, "bob")

	// Bob is offline the whole time Alice sets things up.
	aliceConn := f.connect(t, "a1", "alice")
	room, err := f.gateway.CreatePrivateRoom(context.Background(), aliceConn, f.tokens["bob"].ID)
	req.NoError(err)
	_, err = f.gateway.SendMessage(context.Background(), aliceConn, SendMessageRequest{
		RoomID:  room.ID,
		Content: "hi 👋",
	})
	req.NoError(err)
	for len(aliceConn.Events) > 0 {
		<-aliceConn.Events
	}

	bobConn := f.connect(t, "b1", "bob")
	nextEvent(t, bobConn) // users:online

	list := nextEvent(t, bobConn)
	req.Equal(EventRoomList, list.Kind)
	req.Len(list.Rooms, 1)
	req.Equal(room.ID, list.Rooms[0].ID)
	req.NotNil(list.Rooms[0].LastMessage)
	req.Equal("hi 👋", list.Rooms[0].LastMessage.Content)
	req.Equal(store.MessageKindTextWithEmoji, list.Rooms[0].LastMessage.Kind)

	// Connect-time auto-join means new messages reach Bob immediately.
	nextEvent(t, aliceConn) // users:online for bob
	_, err = f.gateway.SendMessage(context.Background(), aliceConn, SendMessageRequest{
		RoomID:  room.ID,
		Content: "there you are",
	})
	req.NoError(err)
	incoming := nextEvent(t, bobConn)
	req.Equal(EventNewMessage, incoming.Kind)
	req.Equal("there you are", incoming.Message.Content)
}

func TestGateway_DisconnectedConnIsNoBroadcastTarget(t *testing.T) {
	req := require.New(t)
	f := newGatewayFixture(t)
	f.addUser(t, "alice")
	bob := f.addUser(t, "bob")

	aliceConn := f.connect(t, "a1", "alice")
	room, err := f.gateway.CreatePrivateRoom(context.Background(), aliceConn, bob.ID)
	req.NoError(err)

	bobConn := f.connect(t, "b1", "bob")

	first, err := f.gateway.SendMessage(context.Background(), bobConn, SendMessageRequest{
		RoomID:  room.ID,
		Content: "before",
	})
	req.NoError(err)

	f.gateway.Disconnect(context.Background(), aliceConn)
	req.NotContains(f.gateway.rooms.MembersOf(room.ID), aliceConn.ID)

	_, err = f.gateway.SendMessage(context.Background(), bobConn, SendMessageRequest{
		RoomID:  room.ID,
		Content: "after",
	})
	req.NoError(err)

	// Alice's earlier history survives her disconnect.
	messages, total, err := f.store.PagedMessages(context.Background(), room.ID, 1, 10)
	req.NoError(err)
	req.Equal(2, total)
	req.Equal("after", messages[0].Content)
	req.Equal("before", messages[1].Content)
	req.Equal(first.ID, messages[1].ID)
}
