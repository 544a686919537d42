package sqlite

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/blackroom/relay/internal/store"
)

func newStore(t *testing.T) *SQLiteStore {
	t.Helper()

	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	return s
}

func TestEnsureRoomIdempotent(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	first, err := s.EnsureRoom(ctx, "alpha")
	if err != nil {
		t.Fatalf("ensure room: %v", err)
	}
	second, err := s.EnsureRoom(ctx, "alpha")
	if err != nil {
		t.Fatalf("ensure room again: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("expected one room, got ids %d and %d", first.ID, second.ID)
	}
}

func TestEnsureRoomConcurrent(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	const workers = 8
	ids := make([]int64, workers)

	var wg sync.WaitGroup
	for i := range workers {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			room, err := s.EnsureRoom(ctx, "contested")
			if err != nil {
				t.Errorf("ensure room: %v", err)
				return
			}
			ids[slot] = room.ID
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		if id != ids[0] {
			t.Fatalf("concurrent ensure created duplicate rooms: %v", ids)
		}
	}
}

func TestDeviceLookupNotFound(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	if _, err := s.GetDeviceByFingerprint(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := s.GetDeviceByLabel(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCreateDeviceAllowsManyWithoutFingerprint(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	// Empty fingerprints are stored as NULL, which the UNIQUE constraint
	// does not count as duplicates.
	for range 3 {
		if _, err := s.CreateDevice(ctx, &store.Device{}); err != nil {
			t.Fatalf("create fingerprint-less device: %v", err)
		}
	}

	if _, err := s.CreateDevice(ctx, &store.Device{Fingerprint: "fp-1"}); err != nil {
		t.Fatalf("create device: %v", err)
	}
	if _, err := s.CreateDevice(ctx, &store.Device{Fingerprint: "fp-1"}); err == nil {
		t.Fatal("expected duplicate fingerprint to be rejected")
	}
}

func TestUpdateDeviceSeenPreservesFirstSeen(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	dev, err := s.CreateDevice(ctx, &store.Device{Fingerprint: "fp-1", Label: "old", IPFirst: "10.0.0.1", IPLast: "10.0.0.1"})
	if err != nil {
		t.Fatalf("create device: %v", err)
	}

	dev.Label = "new"
	dev.IPLast = "10.0.0.2"
	updated, err := s.UpdateDeviceSeen(ctx, dev)
	if err != nil {
		t.Fatalf("update device: %v", err)
	}

	if updated.Label != "new" || updated.IPLast != "10.0.0.2" {
		t.Fatalf("update not applied: %+v", updated)
	}
	if updated.IPFirst != "10.0.0.1" {
		t.Fatalf("ip_first must never change: %+v", updated)
	}
	if !updated.Active {
		t.Fatalf("device should stay active: %+v", updated)
	}
}

func TestRoomHistoryOrderingAndLimit(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	room, err := s.EnsureRoom(ctx, "alpha")
	if err != nil {
		t.Fatalf("ensure room: %v", err)
	}
	dev, err := s.CreateDevice(ctx, &store.Device{Fingerprint: "fp-1", Label: "Alpha"})
	if err != nil {
		t.Fatalf("create device: %v", err)
	}

	contents := []string{"one", "two", "three", "four", "five"}
	for _, content := range contents {
		if _, err := s.InsertMessage(ctx, &store.Message{
			RoomID:      room.ID,
			DeviceID:    &dev.ID,
			ContentType: "text",
			Content:     content,
		}); err != nil {
			t.Fatalf("insert %q: %v", content, err)
		}
	}

	entries, err := s.RoomHistory(ctx, "alpha", 3)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}

	// Most recent three, back in chronological order.
	want := []string{"three", "four", "five"}
	for i, e := range entries {
		if e.Content != want[i] {
			t.Fatalf("entry %d: expected %q, got %q", i, want[i], e.Content)
		}
		if e.Room != "alpha" || e.DeviceLabel != "Alpha" {
			t.Fatalf("entry %d: unexpected join fields: %+v", i, e)
		}
	}
}

func TestRoomHistoryUnknownRoomIsEmpty(t *testing.T) {
	s := newStore(t)

	entries, err := s.RoomHistory(context.Background(), "ghost", 100)
	if err != nil {
		t.Fatalf("history for unknown room must not error: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected empty history, got %d entries", len(entries))
	}
}

func TestInsertMessageWithoutDevice(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	room, err := s.EnsureRoom(ctx, "alpha")
	if err != nil {
		t.Fatalf("ensure room: %v", err)
	}

	msg, err := s.InsertMessage(ctx, &store.Message{
		RoomID:      room.ID,
		ContentType: "system",
		Content:     "maintenance at midnight",
	})
	if err != nil {
		t.Fatalf("insert message: %v", err)
	}
	if msg.DeviceID != nil {
		t.Fatalf("expected nil device id, got %v", *msg.DeviceID)
	}

	entries, err := s.RoomHistory(ctx, "alpha", 10)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(entries) != 1 || entries[0].DeviceLabel != "" {
		t.Fatalf("expected one device-less entry, got %+v", entries)
	}
}
