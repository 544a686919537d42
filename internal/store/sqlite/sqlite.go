package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/blackroom/relay/internal/store"
)

// Schema is applied idempotently every time the store opens. There is no
// migration history yet; the tables only grow.
const schema = `
CREATE TABLE IF NOT EXISTS devices (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	fingerprint TEXT UNIQUE,
	label       TEXT,
	user_agent  TEXT,
	ip_first    TEXT,
	ip_last     TEXT,
	first_seen  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	last_seen   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	active      BOOLEAN NOT NULL DEFAULT 1
);

CREATE INDEX IF NOT EXISTS idx_devices_last_seen ON devices(last_seen DESC);

CREATE TABLE IF NOT EXISTS rooms (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	name       TEXT NOT NULL UNIQUE,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS messages (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	room_id      INTEGER NOT NULL,
	device_id    INTEGER,
	content_type TEXT NOT NULL DEFAULT 'text',
	content      TEXT,
	file_ref     TEXT,
	ip_at_send   TEXT,
	ua_at_send   TEXT,
	created_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	FOREIGN KEY (room_id) REFERENCES rooms(id),
	FOREIGN KEY (device_id) REFERENCES devices(id)
);

CREATE INDEX IF NOT EXISTS idx_messages_room_created ON messages(room_id, created_at);
CREATE INDEX IF NOT EXISTS idx_messages_device_created ON messages(device_id, created_at);
`

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// New creates a new SQLite store and applies the schema.
// dbPath is the path to the SQLite database file (":memory:" for tests).
func New(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ==== DeviceStore implementation ====

const deviceColumns = `
	id,
	COALESCE(fingerprint, ''),
	COALESCE(label, ''),
	COALESCE(user_agent, ''),
	COALESCE(ip_first, ''),
	COALESCE(ip_last, ''),
	first_seen,
	last_seen,
	active
`

func (s *SQLiteStore) scanDevice(row *sql.Row) (*store.Device, error) {
	var dev store.Device
	err := row.Scan(
		&dev.ID,
		&dev.Fingerprint,
		&dev.Label,
		&dev.UserAgent,
		&dev.IPFirst,
		&dev.IPLast,
		&dev.FirstSeen,
		&dev.LastSeen,
		&dev.Active,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("scan device: %w", err)
	}
	return &dev, nil
}

// GetDeviceByFingerprint looks a device up by its unique fingerprint.
func (s *SQLiteStore) GetDeviceByFingerprint(ctx context.Context, fingerprint string) (*store.Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices WHERE fingerprint = ?`
	return s.scanDevice(s.db.QueryRowContext(ctx, query, fingerprint))
}

// GetDeviceByLabel looks a device up by label. Labels are not unique; the
// oldest match wins.
func (s *SQLiteStore) GetDeviceByLabel(ctx context.Context, label string) (*store.Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices WHERE label = ? ORDER BY id LIMIT 1`
	return s.scanDevice(s.db.QueryRowContext(ctx, query, label))
}

func (s *SQLiteStore) getDeviceByID(ctx context.Context, id int64) (*store.Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices WHERE id = ?`
	return s.scanDevice(s.db.QueryRowContext(ctx, query, id))
}

// CreateDevice inserts a new device. Empty strings are stored as NULL so the
// fingerprint UNIQUE constraint allows any number of fingerprint-less rows.
func (s *SQLiteStore) CreateDevice(ctx context.Context, dev *store.Device) (*store.Device, error) {
	query := `
		INSERT INTO devices (fingerprint, label, user_agent, ip_first, ip_last)
		VALUES (NULLIF(?, ''), NULLIF(?, ''), NULLIF(?, ''), NULLIF(?, ''), NULLIF(?, ''))
	`
	result, err := s.db.ExecContext(ctx, query,
		dev.Fingerprint, dev.Label, dev.UserAgent, dev.IPFirst, dev.IPLast)
	if err != nil {
		return nil, fmt.Errorf("insert device: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	return s.getDeviceByID(ctx, id)
}

// UpdateDeviceSeen persists label/metadata changes and refreshes last_seen.
func (s *SQLiteStore) UpdateDeviceSeen(ctx context.Context, dev *store.Device) (*store.Device, error) {
	query := `
		UPDATE devices
		SET label      = NULLIF(?, ''),
		    user_agent = NULLIF(?, ''),
		    ip_last    = NULLIF(?, ''),
		    last_seen  = CURRENT_TIMESTAMP
		WHERE id = ?
	`
	if _, err := s.db.ExecContext(ctx, query, dev.Label, dev.UserAgent, dev.IPLast, dev.ID); err != nil {
		return nil, fmt.Errorf("update device: %w", err)
	}

	return s.getDeviceByID(ctx, dev.ID)
}

// ==== RoomStore implementation ====

// EnsureRoom returns the named room, creating it if absent. The UNIQUE
// constraint on rooms.name serializes concurrent creation: INSERT OR IGNORE
// leaves exactly one row and the re-select picks it up either way.
func (s *SQLiteStore) EnsureRoom(ctx context.Context, name string) (*store.Room, error) {
	insert := `INSERT OR IGNORE INTO rooms (name) VALUES (?)`
	if _, err := s.db.ExecContext(ctx, insert, name); err != nil {
		return nil, fmt.Errorf("insert room: %w", err)
	}

	return s.GetRoomByName(ctx, name)
}

// GetRoomByName retrieves a room by name.
func (s *SQLiteStore) GetRoomByName(ctx context.Context, name string) (*store.Room, error) {
	query := `SELECT id, name, created_at FROM rooms WHERE name = ?`

	var room store.Room
	err := s.db.QueryRowContext(ctx, query, name).Scan(&room.ID, &room.Name, &room.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("query room: %w", err)
	}

	return &room, nil
}

// ==== MessageStore implementation ====

// InsertMessage appends a message and returns the stored row.
func (s *SQLiteStore) InsertMessage(ctx context.Context, msg *store.Message) (*store.Message, error) {
	query := `
		INSERT INTO messages (room_id, device_id, content_type, content, file_ref, ip_at_send, ua_at_send)
		VALUES (?, ?, ?, NULLIF(?, ''), NULLIF(?, ''), NULLIF(?, ''), NULLIF(?, ''))
	`
	result, err := s.db.ExecContext(ctx, query,
		msg.RoomID, msg.DeviceID, msg.ContentType, msg.Content, msg.FileRef, msg.IPAtSend, msg.UAAtSend)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	return s.getMessageByID(ctx, id)
}

func (s *SQLiteStore) getMessageByID(ctx context.Context, id int64) (*store.Message, error) {
	query := `
		SELECT id, room_id, device_id, content_type,
		       COALESCE(content, ''), COALESCE(file_ref, ''),
		       COALESCE(ip_at_send, ''), COALESCE(ua_at_send, ''), created_at
		FROM messages
		WHERE id = ?
	`
	var msg store.Message
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&msg.ID,
		&msg.RoomID,
		&msg.DeviceID,
		&msg.ContentType,
		&msg.Content,
		&msg.FileRef,
		&msg.IPAtSend,
		&msg.UAAtSend,
		&msg.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("query message: %w", err)
	}

	return &msg, nil
}

// RoomHistory returns at most limit most recent messages for the named room,
// re-ordered oldest first. An unknown room yields an empty slice, not an
// error.
func (s *SQLiteStore) RoomHistory(ctx context.Context, roomName string, limit int) ([]*store.HistoryEntry, error) {
	query := `
		SELECT m.id, r.name, COALESCE(d.label, ''), COALESCE(m.ip_at_send, ''),
		       m.content_type, COALESCE(m.content, ''), COALESCE(m.file_ref, ''), m.created_at
		FROM messages m
		JOIN rooms r ON r.id = m.room_id
		LEFT JOIN devices d ON d.id = m.device_id
		WHERE r.name = ?
		ORDER BY m.created_at DESC, m.id DESC
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, roomName, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	entries := make([]*store.HistoryEntry, 0, limit)
	for rows.Next() {
		var e store.HistoryEntry
		if err := rows.Scan(
			&e.ID,
			&e.Room,
			&e.DeviceLabel,
			&e.IP,
			&e.ContentType,
			&e.Content,
			&e.FileRef,
			&e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}

	// Rows come newest-first so LIMIT keeps the most recent; flip to
	// chronological order before returning.
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}

	return entries, nil
}
