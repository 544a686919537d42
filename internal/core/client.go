package core

import (
	"errors"
	"sync"

	"github.com/blackroom/relay/internal/proto"
)

// ErrClientGone reports that a send to a client failed, either because its
// connection closed or its event buffer is full (a stalled consumer with no
// heartbeat is indistinguishable from a dead one).
var ErrClientGone = errors.New("client gone")

const eventBufferSize = 16

// Client is the hub's handle for one live connection. Events delivered
// through it preserve send order; the transport drains Events into the
// socket.
type Client struct {
	ID     string
	Events chan *proto.Event

	mu     sync.Mutex
	closed bool
}

// NewClient constructs a client handle with a buffered event channel.
func NewClient(id string) *Client {
	return &Client{
		ID:     id,
		Events: make(chan *proto.Event, eventBufferSize),
	}
}

// Send queues an event for delivery. It never blocks: a closed client or a
// full buffer yields ErrClientGone so the hub can prune the subscription.
func (c *Client) Send(ev *proto.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClientGone
	}

	select {
	case c.Events <- ev:
		return nil
	default:
		return ErrClientGone
	}
}

// Close marks the client dead and closes its event channel. Idempotent.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	close(c.Events)
}
