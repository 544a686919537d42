package core

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/blackroom/relay/internal/proto"
	"github.com/blackroom/relay/internal/store"
)

// IngestInput is one inbound message, whatever transport it arrived on.
type IngestInput struct {
	Room        string
	ContentType string // defaults to text
	Content     string
	FileRef     string
	Fingerprint string
	Label       string
	// RemoteAddr and UserAgent stay empty on the WebSocket path; only the
	// HTTP path can supply them.
	RemoteAddr string
	UserAgent  string
	// Mime is carried in the broadcast for blob uploads, not persisted.
	Mime string
}

// Ingestor is the shared resolve-device, ensure-room, append, broadcast
// pipeline behind both the HTTP and WebSocket ingestion paths.
type Ingestor struct {
	store    store.Store
	resolver *IdentityResolver
	hub      *Hub
	log      *zerolog.Logger
}

// NewIngestor wires the pipeline.
func NewIngestor(st store.Store, resolver *IdentityResolver, hub *Hub, logger *zerolog.Logger) *Ingestor {
	return &Ingestor{
		store:    st,
		resolver: resolver,
		hub:      hub,
		log:      logger,
	}
}

// Ingest persists one message and fans it out to the room's subscribers.
// The broadcast only happens after a successful append: storage failures
// propagate to the caller and nothing is delivered.
func (i *Ingestor) Ingest(ctx context.Context, in IngestInput) (*store.Message, *store.Device, error) {
	dev, err := i.resolver.Resolve(ctx, ResolveInput{
		Fingerprint: in.Fingerprint,
		Label:       in.Label,
		RemoteAddr:  in.RemoteAddr,
		UserAgent:   in.UserAgent,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("resolve device: %w", err)
	}

	room, err := i.store.EnsureRoom(ctx, in.Room)
	if err != nil {
		return nil, nil, fmt.Errorf("ensure room: %w", err)
	}

	contentType := in.ContentType
	if contentType == "" {
		contentType = proto.ContentTypeText
	}

	msg, err := i.store.InsertMessage(ctx, &store.Message{
		RoomID:      room.ID,
		DeviceID:    &dev.ID,
		ContentType: contentType,
		Content:     in.Content,
		FileRef:     in.FileRef,
		IPAtSend:    in.RemoteAddr,
		UAAtSend:    in.UserAgent,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("append message: %w", err)
	}

	i.log.Debug().
		Str("room", room.Name).
		Int64("message_id", msg.ID).
		Int64("device_id", dev.ID).
		Str("content_type", msg.ContentType).
		Msg("message ingested")

	i.hub.Broadcast(room.Name, messageEvent(room.Name, dev, msg, in.Mime))

	return msg, dev, nil
}

// messageEvent shapes the persisted record into the broadcast envelope.
func messageEvent(room string, dev *store.Device, msg *store.Message, mime string) *proto.Event {
	return &proto.Event{
		Type:        proto.EventTypeMsg,
		Room:        room,
		Device:      deviceInfo(dev, msg.IPAtSend),
		ContentType: msg.ContentType,
		Content:     optional(msg.Content),
		FileRef:     optional(msg.FileRef),
		Mime:        mime,
		TS:          msg.CreatedAt,
		ID:          msg.ID,
	}
}

func deviceInfo(dev *store.Device, ip string) *proto.DeviceInfo {
	return &proto.DeviceInfo{
		ID:    dev.ID,
		Label: optional(dev.Label),
		IP:    optional(ip),
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
