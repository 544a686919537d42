package http

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/blackroom/relay/internal/proto"
)

func dialRoom(t *testing.T, ctx context.Context, baseURL, room string) *websocket.Conn {
	t.Helper()

	wsURL := strings.Replace(baseURL, "http", "ws", 1) + "/ws/" + room
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", wsURL, err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "test done") })

	return conn
}

func readEvent(t *testing.T, ctx context.Context, conn *websocket.Conn) proto.Event {
	t.Helper()

	var ev proto.Event
	if err := wsjson.Read(ctx, conn, &ev); err != nil {
		t.Fatalf("read event: %v", err)
	}
	return ev
}

func TestWSPresenceLifecycle(t *testing.T) {
	ts := newTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	a := dialRoom(t, ctx, ts.URL, "alpha")
	ev := readEvent(t, ctx, a)
	if ev.Type != proto.EventTypePresence || ev.Count != 1 {
		t.Fatalf("expected presence count 1, got %+v", ev)
	}

	b := dialRoom(t, ctx, ts.URL, "alpha")
	ev = readEvent(t, ctx, b)
	if ev.Type != proto.EventTypePresence || ev.Count != 2 {
		t.Fatalf("expected presence count 2, got %+v", ev)
	}

	a.Close(websocket.StatusNormalClosure, "leaving")

	ev = readEvent(t, ctx, b)
	if ev.Type != proto.EventTypePresence || ev.Count != 1 {
		t.Fatalf("expected presence count 1 after peer left, got %+v", ev)
	}
}

func TestWSMessageBroadcast(t *testing.T) {
	ts := newTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	a := dialRoom(t, ctx, ts.URL, "alpha")
	readEvent(t, ctx, a)
	b := dialRoom(t, ctx, ts.URL, "alpha")
	readEvent(t, ctx, b)

	frame := proto.Frame{
		Type:        proto.FrameTypeMsg,
		Content:     "hi",
		Fingerprint: "fp-ws-a",
		Label:       "Alpha iPhone",
	}
	if err := wsjson.Write(ctx, a, frame); err != nil {
		t.Fatalf("send frame: %v", err)
	}

	for name, conn := range map[string]*websocket.Conn{"sender": a, "peer": b} {
		ev := readEvent(t, ctx, conn)
		if ev.Type != proto.EventTypeMsg {
			t.Fatalf("%s: expected msg event, got %+v", name, ev)
		}
		if ev.Content == nil || *ev.Content != "hi" {
			t.Fatalf("%s: unexpected content: %+v", name, ev.Content)
		}
		if ev.ID == 0 {
			t.Fatalf("%s: broadcast must carry the persisted message id", name)
		}
		if ev.Device == nil || ev.Device.Label == nil || *ev.Device.Label != "Alpha iPhone" {
			t.Fatalf("%s: unexpected device info: %+v", name, ev.Device)
		}
		// Raw WebSocket sessions carry no network metadata.
		if ev.Device.IP != nil {
			t.Fatalf("%s: expected nil ip, got %q", name, *ev.Device.IP)
		}
	}
}

func TestWSSurvivesMalformedFrames(t *testing.T) {
	ts := newTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dialRoom(t, ctx, ts.URL, "alpha")
	readEvent(t, ctx, conn)

	if err := conn.Write(ctx, websocket.MessageText, []byte("this is not json")); err != nil {
		t.Fatalf("send garbage: %v", err)
	}
	if err := wsjson.Write(ctx, conn, map[string]string{"type": "ping"}); err != nil {
		t.Fatalf("send unknown frame type: %v", err)
	}

	frame := proto.Frame{Type: proto.FrameTypeMsg, Content: "still here"}
	if err := wsjson.Write(ctx, conn, frame); err != nil {
		t.Fatalf("send frame: %v", err)
	}

	ev := readEvent(t, ctx, conn)
	if ev.Type != proto.EventTypeMsg || ev.Content == nil || *ev.Content != "still here" {
		t.Fatalf("expected the valid frame to be delivered, got %+v", ev)
	}
}

func TestWSMessageLandsInHistory(t *testing.T) {
	ts := newTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dialRoom(t, ctx, ts.URL, "alpha")
	readEvent(t, ctx, conn)

	frame := proto.Frame{Type: proto.FrameTypeMsg, Content: "for the record", Fingerprint: "fp-hist"}
	if err := wsjson.Write(ctx, conn, frame); err != nil {
		t.Fatalf("send frame: %v", err)
	}
	readEvent(t, ctx, conn)

	resp, err := ts.Client().Get(ts.URL + "/rooms/alpha/history")
	if err != nil {
		t.Fatalf("history request: %v", err)
	}
	entries := decodeJSON[[]HistoryEntryResponse](t, resp)
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].Content == nil || *entries[0].Content != "for the record" {
		t.Fatalf("unexpected history entry: %+v", entries[0])
	}
}
