package core

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/blackroom/relay/internal/proto"
)

// Hub tracks which clients are subscribed to which room and fans events out
// to them. It is the single piece of state shared by every connection
// goroutine; one lock guards the whole registry since room counts stay
// small. The lock is never held across socket sends or storage writes.
type Hub struct {
	mu    sync.Mutex
	rooms map[string]map[*Client]struct{}
	log   *zerolog.Logger
}

// NewHub creates an empty hub.
func NewHub(logger *zerolog.Logger) *Hub {
	return &Hub{
		rooms: make(map[string]map[*Client]struct{}),
		log:   logger,
	}
}

// Subscribe adds the client to the room's subscriber set, creating the set
// if absent, and sends the client a presence event with the current count.
func (h *Hub) Subscribe(room string, c *Client) {
	h.mu.Lock()
	set, ok := h.rooms[room]
	if !ok {
		set = make(map[*Client]struct{})
		h.rooms[room] = set
	}
	set[c] = struct{}{}
	count := len(set)
	h.mu.Unlock()

	h.log.Debug().Str("room", room).Str("client_id", c.ID).Int("count", count).Msg("client subscribed")

	if err := c.Send(proto.NewPresenceEvent(room, count)); err != nil {
		h.drop(room, c)
	}
}

// Unsubscribe removes the client from the room's set, then broadcasts the
// decremented presence count to the remaining subscribers. A no-op if the
// client was already gone.
func (h *Hub) Unsubscribe(room string, c *Client) {
	h.mu.Lock()
	set, ok := h.rooms[room]
	if ok {
		if _, member := set[c]; !member {
			ok = false
		} else {
			delete(set, c)
			if len(set) == 0 {
				delete(h.rooms, room)
			}
		}
	}
	h.mu.Unlock()

	if !ok {
		return
	}

	h.log.Debug().Str("room", room).Str("client_id", c.ID).Msg("client unsubscribed")
	h.Broadcast(room, proto.NewPresenceEvent(room, h.Count(room)))
}

// Broadcast delivers the event to every current subscriber of the room.
// Delivery is best-effort per connection: a failed send prunes that client
// from the set and never aborts delivery to the others. Each client observes
// events for a room in broadcast order.
func (h *Hub) Broadcast(room string, ev *proto.Event) {
	h.mu.Lock()
	set := h.rooms[room]
	targets := make([]*Client, 0, len(set))
	for c := range set {
		targets = append(targets, c)
	}
	h.mu.Unlock()

	var dead []*Client
	for _, c := range targets {
		if err := c.Send(ev); err != nil {
			dead = append(dead, c)
		}
	}

	for _, c := range dead {
		h.drop(room, c)
	}
}

// Count reports the number of live subscribers in the room.
func (h *Hub) Count(room string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms[room])
}

// drop removes a dead client without notifying anyone. The next presence
// event the room sees will carry the corrected count.
func (h *Hub) drop(room string, c *Client) {
	h.mu.Lock()
	if set, ok := h.rooms[room]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.rooms, room)
		}
	}
	h.mu.Unlock()

	h.log.Debug().Str("room", room).Str("client_id", c.ID).Msg("pruned dead client")
}
