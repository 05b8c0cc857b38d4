package http

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/samber/lo"

	"github.com/talkroom/talkroom-server/internal/chat"
	"github.com/talkroom/talkroom-server/internal/proto"
	"github.com/talkroom/talkroom-server/internal/store"
)

// dispatch decodes one inbound envelope and invokes the matching gateway
// operation. Returned errors are delivered to the originating connection
// only, as an error event.
func dispatch(ctx context.Context, gateway *chat.Gateway, conn *chat.Conn, inbound proto.Inbound) error {
	switch inbound.Event {
	case proto.InboundRoomCreate:
		var data proto.RoomCreateData
		if err := json.Unmarshal(inbound.Data, &data); err != nil {
			return fmt.Errorf("decode %s: %w", inbound.Event, err)
		}
		_, err := gateway.CreatePrivateRoom(ctx, conn, data.UserID)
		return err

	case proto.InboundMessageSend:
		var data proto.MessageSendData
		if err := json.Unmarshal(inbound.Data, &data); err != nil {
			return fmt.Errorf("decode %s: %w", inbound.Event, err)
		}
		req := chat.SendMessageRequest{
			RoomID:  data.RoomID,
			Content: data.Content,
			Kind:    store.MessageKind(data.Type),
		}
		if data.File != nil {
			req.File = &store.FileMeta{
				URL:      data.File.URL,
				Name:     data.File.Name,
				Size:     data.File.Size,
				MimeType: data.File.Type,
			}
		}
		_, err := gateway.SendMessage(ctx, conn, req)
		return err

	case proto.InboundMessagesGet:
		var data proto.MessagesGetData
		if err := json.Unmarshal(inbound.Data, &data); err != nil {
			return fmt.Errorf("decode %s: %w", inbound.Event, err)
		}
		return gateway.FetchHistory(ctx, conn, data.RoomID, data.Page, data.Limit)

	case proto.InboundTyping:
		var data proto.TypingData
		if err := json.Unmarshal(inbound.Data, &data); err != nil {
			return fmt.Errorf("decode %s: %w", inbound.Event, err)
		}
		return gateway.Typing(ctx, conn, data.RoomID)

	case proto.InboundStopTyping:
		var data proto.TypingData
		if err := json.Unmarshal(inbound.Data, &data); err != nil {
			return fmt.Errorf("decode %s: %w", inbound.Event, err)
		}
		return gateway.StopTyping(ctx, conn, data.RoomID)

	default:
		return fmt.Errorf("unknown event %q", inbound.Event)
	}
}

// outboundFromEvent converts a gateway event into its wire envelope.
func outboundFromEvent(event *chat.Event) proto.Outbound {
	switch event.Kind {
	case chat.EventOnlineUsers:
		return proto.Outbound{
			Event: proto.OutboundUsersOnline,
			Data: lo.Map(event.Users, func(u store.User, _ int) proto.User {
				return userDTO(&u)
			}),
		}
	case chat.EventRoomList:
		return proto.Outbound{Event: proto.OutboundRoomsList, Data: roomsDTO(event.Rooms)}
	case chat.EventRoomCreated:
		return proto.Outbound{Event: proto.OutboundRoomCreated, Data: roomDTO(event.Room)}
	case chat.EventNewMessage:
		return proto.Outbound{Event: proto.OutboundMessageNew, Data: messageDTO(event.Message)}
	case chat.EventHistory:
		return proto.Outbound{
			Event: proto.OutboundMessagesList,
			Data: proto.MessagesList{
				Messages: lo.Map(event.History.Messages, func(m *store.Message, _ int) proto.Message {
					return messageDTO(m)
				}),
				Total:      event.History.Total,
				Page:       event.History.Page,
				TotalPages: event.History.TotalPages,
			},
		}
	case chat.EventTyping:
		return proto.Outbound{
			Event: proto.OutboundTyping,
			Data: proto.Typing{
				RoomID:   event.Typing.RoomID,
				UserID:   event.Typing.UserID,
				Username: event.Typing.Username,
			},
		}
	case chat.EventStopTyping:
		return proto.Outbound{
			Event: proto.OutboundStopTyping,
			Data: proto.Typing{
				RoomID: event.Typing.RoomID,
				UserID: event.Typing.UserID,
			},
		}
	case chat.EventError:
		msg := "internal error"
		if event.Err != nil {
			msg = event.Err.Message
		}
		return proto.Outbound{Event: proto.OutboundError, Data: proto.Error{Message: msg}}
	default:
		return proto.Outbound{Event: proto.OutboundError, Data: proto.Error{Message: "unknown event"}}
	}
}

func userDTO(u *store.User) proto.User {
	dto := proto.User{
		ID:       u.ID,
		Username: u.Username,
		Email:    u.Email,
		Avatar:   u.Avatar,
		IsOnline: u.IsOnline,
	}
	if u.LastSeen != nil {
		ts := u.LastSeen.Unix()
		dto.LastSeen = &ts
	}
	return dto
}

func roomDTO(r *store.Room) proto.Room {
	dto := proto.Room{
		ID:   r.ID,
		Name: r.Name,
		Type: string(r.Kind),
		Participants: lo.Map(r.Participants, func(u store.User, _ int) proto.User {
			return userDTO(&u)
		}),
		CreatedBy: r.CreatedBy,
	}
	if r.LastMessage != nil {
		dto.LastMessage = &proto.LastMessage{
			Content:   r.LastMessage.Content,
			SenderID:  r.LastMessage.SenderID,
			Type:      string(r.LastMessage.Kind),
			Timestamp: r.LastMessage.Timestamp.Unix(),
		}
	}
	return dto
}

func roomsDTO(roomList []*store.Room) []proto.Room {
	return lo.Map(roomList, func(r *store.Room, _ int) proto.Room { return roomDTO(r) })
}

func messageDTO(m *store.Message) proto.Message {
	dto := proto.Message{
		ID:        m.ID,
		RoomID:    m.RoomID,
		Content:   m.Content,
		Type:      string(m.Kind),
		Emojis:    m.Emojis,
		CreatedAt: m.CreatedAt.Unix(),
	}
	if dto.Emojis == nil {
		dto.Emojis = []string{}
	}
	if m.Sender != nil {
		dto.Sender = userDTO(m.Sender)
	}
	if m.File != nil {
		dto.File = &proto.FileData{
			URL:  m.File.URL,
			Name: m.File.Name,
			Size: m.File.Size,
			Type: m.File.MimeType,
		}
	}
	return dto
}
