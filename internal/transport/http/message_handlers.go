package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/blackroom/relay/internal/core"
	"github.com/blackroom/relay/internal/store"
)

// MessageHandlers provides HTTP handlers for message ingestion and history.
type MessageHandlers struct {
	ingestor     *core.Ingestor
	store        store.MessageStore
	historyLimit int
	log          *zerolog.Logger
}

// NewMessageHandlers creates a new message handlers instance.
func NewMessageHandlers(ingestor *core.Ingestor, st store.MessageStore, historyLimit int, logger *zerolog.Logger) *MessageHandlers {
	return &MessageHandlers{
		ingestor:     ingestor,
		store:        st,
		historyLimit: historyLimit,
		log:          logger,
	}
}

// PostMessageRequest represents the send-message request body.
type PostMessageRequest struct {
	Room        string `json:"room" binding:"required,min=1,max=80"`
	ContentType string `json:"content_type" binding:"omitempty,oneof=text voice file system"`
	Content     string `json:"content"`
	FileRef     string `json:"file_ref"`
	Fingerprint string `json:"fingerprint"`
	Label       string `json:"label"`
}

// PostMessageResponse carries the assigned message id.
type PostMessageResponse struct {
	OK bool  `json:"ok"`
	ID int64 `json:"id"`
}

// HistoryEntryResponse represents one message row in history output.
type HistoryEntryResponse struct {
	ID          int64     `json:"id"`
	Room        string    `json:"room"`
	DeviceLabel *string   `json:"device_label"`
	IP          *string   `json:"ip"`
	ContentType string    `json:"content_type"`
	Content     *string   `json:"content"`
	FileRef     *string   `json:"file_ref"`
	TS          time.Time `json:"ts"`
}

// Post ingests a message over HTTP: resolve device, ensure room, append,
// broadcast.
// POST /messages
func (h *MessageHandlers) Post(c *gin.Context) {
	var req PostMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid message request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	msg, _, err := h.ingestor.Ingest(c.Request.Context(), core.IngestInput{
		Room:        req.Room,
		ContentType: req.ContentType,
		Content:     req.Content,
		FileRef:     req.FileRef,
		Fingerprint: req.Fingerprint,
		Label:       req.Label,
		RemoteAddr:  c.ClientIP(),
		UserAgent:   c.Request.UserAgent(),
	})
	if err != nil {
		h.log.Error().Err(err).Str("room", req.Room).Msg("failed to ingest message")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.JSON(http.StatusOK, PostMessageResponse{OK: true, ID: msg.ID})
}

// History returns the last N messages of a room in chronological order. An
// unknown room yields an empty list, not an error.
// GET /rooms/:name/history?limit=N
func (h *MessageHandlers) History(c *gin.Context) {
	room := c.Param("name")

	limit := h.historyLimit
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	entries, err := h.store.RoomHistory(c.Request.Context(), room, limit)
	if err != nil {
		h.log.Error().Err(err).Str("room", room).Msg("failed to load history")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	response := make([]HistoryEntryResponse, 0, len(entries))
	for _, e := range entries {
		response = append(response, HistoryEntryResponse{
			ID:          e.ID,
			Room:        e.Room,
			DeviceLabel: optionalString(e.DeviceLabel),
			IP:          optionalString(e.IP),
			ContentType: e.ContentType,
			Content:     optionalString(e.Content),
			FileRef:     optionalString(e.FileRef),
			TS:          e.CreatedAt,
		})
	}

	c.JSON(http.StatusOK, response)
}
