package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/talkroom/talkroom-server/internal/chat"
	"github.com/talkroom/talkroom-server/internal/proto"
	"github.com/talkroom/talkroom-server/internal/store"
)

// UserHandlers provides HTTP handlers for user lookup.
type UserHandlers struct {
	store   store.Store
	gateway *chat.Gateway
	log     *zerolog.Logger
}

// NewUserHandlers creates a new user handlers instance.
func NewUserHandlers(st store.Store, gateway *chat.Gateway, logger *zerolog.Logger) *UserHandlers {
	return &UserHandlers{
		store:   st,
		gateway: gateway,
		log:     logger,
	}
}

// Search finds users by username substring, for starting private chats.
// GET /api/users?q=
func (h *UserHandlers) Search(c *gin.Context) {
	query := c.Query("q")
	if query == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "query parameter q is required"})
		return
	}

	users, err := h.store.SearchUsers(c.Request.Context(), query)
	if err != nil {
		h.log.Error().Err(err).Str("query", query).Msg("failed to search users")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.JSON(http.StatusOK, lo.Map(users, func(u *store.User, _ int) proto.User {
		return userDTO(u)
	}))
}

// Online returns the presence registry's current snapshot.
// GET /api/users/online
func (h *UserHandlers) Online(c *gin.Context) {
	online := h.gateway.Presence().ListOnline()
	c.JSON(http.StatusOK, lo.Map(online, func(u store.User, _ int) proto.User {
		return userDTO(&u)
	}))
}
