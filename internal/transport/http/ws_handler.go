package http

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/blackroom/relay/internal/core"
	"github.com/blackroom/relay/internal/proto"
)

// WSHandler upgrades HTTP connections into room sessions: subscribe on open,
// relay inbound msg frames through the ingest pipeline, unsubscribe on close.
type WSHandler struct {
	hub      *core.Hub
	ingestor *core.Ingestor
	log      *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(hub *core.Hub, ingestor *core.Ingestor, logger *zerolog.Logger) *WSHandler {
	return &WSHandler{hub: hub, ingestor: ingestor, log: logger}
}

// Handle serves one session on GET /ws/:room.
func (h *WSHandler) Handle(c *gin.Context) {
	room := c.Param("room")

	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Str("room", room).Msg("ws accept error")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")

	client := core.NewClient(uuid.NewString())

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	writeErr := make(chan error, 1)
	go func() {
		writeErr <- h.writeLoop(ctx, conn, client)
	}()

	// The write pump is running, so the subscribe-time presence event has
	// somewhere to go.
	h.hub.Subscribe(room, client)

	err = h.readLoop(ctx, conn, room)

	// Cleanup is idempotent: the subscription never outlives the session.
	h.hub.Unsubscribe(room, client)
	client.Close()
	cancel()
	<-writeErr

	status := websocket.StatusNormalClosure
	reason := "closing"
	if err != nil && !errors.Is(err, context.Canceled) {
		if s := websocket.CloseStatus(err); s == websocket.StatusNormalClosure || s == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			status = websocket.StatusInternalError
			reason = "session error"
			h.log.Warn().Err(err).Str("room", room).Str("client_id", client.ID).Msg("ws session closed with error")
		}
	}

	conn.Close(status, reason)
}

// readLoop consumes frames until the connection drops. Frames that do not
// parse as the expected JSON structure are silently discarded; a storage
// failure aborts the session since an unpersisted message must never be
// broadcast.
func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, room string) error {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}

		var frame proto.Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			continue
		}
		if frame.Type != proto.FrameTypeMsg {
			continue
		}

		// Raw WebSocket frames carry no trustworthy network metadata, so
		// RemoteAddr/UserAgent stay unset here, unlike the HTTP path.
		_, _, err = h.ingestor.Ingest(ctx, core.IngestInput{
			Room:        room,
			ContentType: frame.ContentType,
			Content:     frame.Content,
			FileRef:     frame.FileRef,
			Fingerprint: frame.Fingerprint,
			Label:       frame.Label,
		})
		if err != nil {
			return err
		}
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, client *core.Client) error {
	for {
		select {
		case event, ok := <-client.Events:
			if !ok {
				return nil
			}
			if err := wsjson.Write(ctx, conn, event); err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
