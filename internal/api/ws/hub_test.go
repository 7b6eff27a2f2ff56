package ws

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/workbenchd/workbench/internal/infrastructure/logging"
)

func TestBroadcastAfterDisconnectDoesNotPanic(t *testing.T) {
	hub := NewHub(logging.NewNop(), nil)
	c := newClient(hub, nil)
	hub.register(c)
	hub.unregister(c)

	require.NotPanics(t, func() {
		hub.Broadcast(Message{Type: MsgPong})
	})
	assert.Empty(t, c.send, "a disconnected client receives nothing new")
}

// Fan-out snapshots the client list and enqueues outside the hub lock, so
// a disconnect can land between the two. Hammer that interleaving from
// both sides; any send on a torn-down client must be a silent drop.
func TestBroadcastRacingDisconnect(t *testing.T) {
	hub := NewHub(logging.NewNop(), nil)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		c := newClient(hub, nil)
		hub.register(c)

		wg.Add(2)
		go func(c *Client) {
			defer wg.Done()
			hub.unregister(c)
		}(c)
		go func() {
			defer wg.Done()
			hub.Broadcast(Message{Type: MsgStateReport})
		}()
	}
	wg.Wait()
	assert.Equal(t, 0, hub.ClientCount())
}

func TestUnregisterIsIdempotent(t *testing.T) {
	hub := NewHub(logging.NewNop(), nil)
	c := newClient(hub, nil)
	hub.register(c)

	require.NotPanics(t, func() {
		hub.unregister(c)
		hub.unregister(c)
	})
}
