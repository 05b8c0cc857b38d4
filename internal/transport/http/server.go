package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/talkroom/talkroom-server/internal/auth"
	"github.com/talkroom/talkroom-server/internal/chat"
	"github.com/talkroom/talkroom-server/internal/config"
	"github.com/talkroom/talkroom-server/internal/store"
	"github.com/talkroom/talkroom-server/internal/upload"
)

// NewServer builds the HTTP server: REST API, upload endpoint, static
// uploads and the websocket entry point.
func NewServer(gateway *chat.Gateway, authService *auth.Service, st store.Store, uploads *upload.Service, cfg config.Config, logger *zerolog.Logger) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery(), LoggerMiddleware(logger))

	router.GET("/health", healthHandler)
	router.GET("/ws", NewWSHandler(gateway, logger))
	if uploads != nil {
		router.Static("/uploads", uploads.Dir())
	}

	authHandlers := NewAuthHandlers(authService, logger)
	roomHandlers := NewRoomHandlers(st, logger)
	userHandlers := NewUserHandlers(st, gateway, logger)

	// Brute-force cap on credential endpoints.
	limiter := newRateLimiter(60)
	limiterStop := make(chan struct{})
	limiter.startReset(limiterStop)

	api := router.Group("/api")
	credentials := api.Group("", RateLimitMiddleware(limiter))
	credentials.POST("/auth/register", authHandlers.Register)
	credentials.POST("/auth/login", authHandlers.Login)

	authorized := api.Group("", AuthMiddleware(authService, logger))
	authorized.GET("/users", userHandlers.Search)
	authorized.GET("/users/online", userHandlers.Online)
	authorized.POST("/rooms", roomHandlers.CreateRoom)
	authorized.GET("/rooms", roomHandlers.ListRooms)
	if uploads != nil {
		uploadHandlers := NewUploadHandlers(uploads, logger)
		authorized.POST("/upload", uploadHandlers.Upload)
	}

	server := &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
	server.RegisterOnShutdown(func() { close(limiterStop) })
	return server
}

func healthHandler(c *gin.Context) {
	c.String(stdhttp.StatusOK, "ok")
}
