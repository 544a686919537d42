package proto

import "time"

// Frame is the envelope for messages coming from a WebSocket client.
// Unknown or malformed frames are dropped by the gateway.
type Frame struct {
	Type        string `json:"type"`
	ContentType string `json:"content_type,omitempty"`
	Content     string `json:"content,omitempty"`
	FileRef     string `json:"file_ref,omitempty"`
	Fingerprint string `json:"fingerprint,omitempty"`
	Label       string `json:"label,omitempty"`
}

const (
	FrameTypeMsg = "msg"

	EventTypePresence = "presence"
	EventTypeMsg      = "msg"
)

// Content kinds carried by messages.
const (
	ContentTypeText   = "text"
	ContentTypeVoice  = "voice"
	ContentTypeImage  = "image"
	ContentTypeVideo  = "video"
	ContentTypeFile   = "file"
	ContentTypeSystem = "system"
)

// DeviceInfo identifies the sender inside a broadcast event.
type DeviceInfo struct {
	ID    int64   `json:"id"`
	Label *string `json:"label"`
	IP    *string `json:"ip"`
}

// Event is the envelope broadcast to room subscribers, for both presence
// updates and chat messages.
type Event struct {
	Type        string      `json:"type"`
	Room        string      `json:"room"`
	Count       int         `json:"count,omitempty"`
	Device      *DeviceInfo `json:"device,omitempty"`
	ContentType string      `json:"content_type,omitempty"`
	Content     *string     `json:"content,omitempty"`
	FileRef     *string     `json:"file_ref,omitempty"`
	Mime        string      `json:"mime,omitempty"`
	TS          time.Time   `json:"ts,omitzero"`
	ID          int64       `json:"id,omitempty"`
}

// NewPresenceEvent builds a presence update for a room.
func NewPresenceEvent(room string, count int) *Event {
	return &Event{
		Type:  EventTypePresence,
		Room:  room,
		Count: count,
	}
}
