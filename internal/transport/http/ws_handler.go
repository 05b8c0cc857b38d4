package http

import (
	"context"
	"errors"
	"io"
	stdhttp "net/http"
	"strings"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/talkroom/talkroom-server/internal/chat"
	"github.com/talkroom/talkroom-server/internal/proto"
	"github.com/talkroom/talkroom-server/internal/utils"
)

// WSHandler upgrades HTTP connections and bridges them to chat.Conn.
type WSHandler struct {
	gateway *chat.Gateway
	log     *zerolog.Logger
}

// NewWSHandler builds the websocket entry point.
func NewWSHandler(gateway *chat.Gateway, logger *zerolog.Logger) gin.HandlerFunc {
	h := &WSHandler{gateway: gateway, log: logger}
	return func(c *gin.Context) {
		h.serve(c.Writer, c.Request)
	}
}

// bearerToken extracts the handshake token from the Authorization header
// or, for browser clients that cannot set headers on websocket dials,
// the token query parameter.
func bearerToken(r *stdhttp.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && parts[0] == "Bearer" {
			return parts[1]
		}
	}
	return r.URL.Query().Get("token")
}

func (h *WSHandler) serve(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	ctx := r.Context()

	wsConn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer wsConn.Close(websocket.StatusInternalError, "internal error")

	conn := chat.NewConn(utils.NewID())

	// Auth handshake: no token, no session. The close gives no reason
	// beyond the status so nothing leaks about why auth failed.
	if err := h.gateway.Connect(ctx, conn, bearerToken(r)); err != nil {
		h.log.Warn().Err(err).Str("conn_id", conn.ID).Msg("ws handshake rejected")
		wsConn.Close(websocket.StatusPolicyViolation, "unauthorized")
		return
	}
	// The request context dies with this handler; presence teardown
	// must still reach the store.
	defer h.gateway.Disconnect(context.WithoutCancel(ctx), conn)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, wsConn, conn)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, wsConn, conn)
	}()

	err = <-errCh
	cancel() // stop the other goroutine
	<-errCh

	status := websocket.StatusNormalClosure
	reason := "closing"
	if err != nil && !errors.Is(err, context.Canceled) {
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if s := websocket.CloseStatus(err); s != 0 {
			status = s
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			if status == websocket.StatusNormalClosure {
				status = websocket.StatusInternalError
			}
			reason = err.Error()
			h.log.Warn().Err(err).Str("conn_id", conn.ID).Msg("ws connection closed with error")
		}
	}

	wsConn.Close(status, reason)
}

func (h *WSHandler) readLoop(ctx context.Context, wsConn *websocket.Conn, conn *chat.Conn) error {
	for {
		var inbound proto.Inbound
		if err := wsjson.Read(ctx, wsConn, &inbound); err != nil {
			return err
		}

		if err := dispatch(ctx, h.gateway, conn, inbound); err != nil {
			h.log.Debug().Err(err).
				Str("conn_id", conn.ID).
				Str("event", inbound.Event).
				Msg("inbound event failed")
			conn.Send(&chat.Event{Kind: chat.EventError, Err: chat.AsError(err)})
		}
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, wsConn *websocket.Conn, conn *chat.Conn) error {
	for {
		select {
		case event, ok := <-conn.Events:
			if !ok {
				return nil
			}
			if err := wsjson.Write(ctx, wsConn, outboundFromEvent(event)); err != nil {
				h.log.Error().Err(err).Str("conn_id", conn.ID).Msg("write ws event")
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
