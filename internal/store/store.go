package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Device identifies a sender without an account. The fingerprint is a
// client-generated persistent id; the label is a weak, human-friendly
// fallback. Empty string fields map to NULL columns.
type Device struct {
	ID          int64
	Fingerprint string
	Label       string
	UserAgent   string
	IPFirst     string
	IPLast      string
	FirstSeen   time.Time
	LastSeen    time.Time
	Active      bool
}

// Room is a named channel, created lazily on first reference.
type Room struct {
	ID        int64
	Name      string
	CreatedAt time.Time
}

// Message is an immutable event belonging to exactly one room. DeviceID is
// nil when the transport could not identify the sender.
type Message struct {
	ID          int64
	RoomID      int64
	DeviceID    *int64
	ContentType string
	Content     string
	FileRef     string
	IPAtSend    string
	UAAtSend    string
	CreatedAt   time.Time
}

// HistoryEntry is a message row joined with its sender for history reads.
type HistoryEntry struct {
	ID          int64
	Room        string
	DeviceLabel string
	IP          string
	ContentType string
	Content     string
	FileRef     string
	CreatedAt   time.Time
}

// DeviceStore handles device persistence.
type DeviceStore interface {
	// GetDeviceByFingerprint looks a device up by its unique fingerprint.
	GetDeviceByFingerprint(ctx context.Context, fingerprint string) (*Device, error)

	// GetDeviceByLabel looks a device up by label. Labels are not unique;
	// the first match wins.
	GetDeviceByLabel(ctx context.Context, label string) (*Device, error)

	// CreateDevice inserts a new device and returns it with the assigned
	// id and timestamps.
	CreateDevice(ctx context.Context, dev *Device) (*Device, error)

	// UpdateDeviceSeen persists label/metadata changes and refreshes
	// last_seen for an existing device.
	UpdateDeviceSeen(ctx context.Context, dev *Device) (*Device, error)
}

// RoomStore handles room persistence.
type RoomStore interface {
	// EnsureRoom returns the room with the given name, creating it if
	// absent. Concurrent calls for the same new name yield one row.
	EnsureRoom(ctx context.Context, name string) (*Room, error)

	// GetRoomByName retrieves a room by name.
	GetRoomByName(ctx context.Context, name string) (*Room, error)
}

// MessageStore handles the append-only message log.
type MessageStore interface {
	// InsertMessage appends a message and returns it with the assigned id
	// and timestamp. Existing rows are never mutated.
	InsertMessage(ctx context.Context, msg *Message) (*Message, error)

	// RoomHistory returns at most limit most recent messages for the named
	// room, ordered oldest first. An unknown room yields an empty slice.
	RoomHistory(ctx context.Context, roomName string, limit int) ([]*HistoryEntry, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	DeviceStore
	RoomStore
	MessageStore

	// Close closes the underlying database connection.
	Close() error
}
