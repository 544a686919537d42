package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/blackroom/relay/internal/blob"
	"github.com/blackroom/relay/internal/config"
	"github.com/blackroom/relay/internal/core"
	"github.com/blackroom/relay/internal/store"
)

// ErrorResponse represents an error response body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// NewServer builds the HTTP server with all REST routes and the WebSocket
// gateway.
func NewServer(
	hub *core.Hub,
	ingestor *core.Ingestor,
	resolver *core.IdentityResolver,
	st store.Store,
	blobs *blob.Store,
	cfg config.Config,
	logger *zerolog.Logger,
) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(LoggerMiddleware(logger), gin.Recovery())

	deviceHandlers := NewDeviceHandlers(resolver, logger)
	messageHandlers := NewMessageHandlers(ingestor, st, cfg.HistoryLimit, logger)
	uploadHandlers := NewUploadHandlers(ingestor, blobs, cfg.DefaultRoom, logger)
	wsHandler := NewWSHandler(hub, ingestor, logger)

	router.GET("/health", healthHandler)

	router.POST("/device/upsert", deviceHandlers.Upsert)
	router.POST("/messages", messageHandlers.Post)
	router.GET("/rooms/:name/history", messageHandlers.History)

	router.POST("/upload/voice", uploadHandlers.Voice)
	router.POST("/upload/blob", uploadHandlers.Blob)
	router.GET("/files/audio/:key", uploadHandlers.ServeAudio)
	router.GET("/files/blob/:key", uploadHandlers.ServeBlob)

	router.GET("/ws/:room", wsHandler.Handle)

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

func healthHandler(c *gin.Context) {
	c.String(stdhttp.StatusOK, "ok")
}
