package services

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, c *Client) WebSocketMessage {
	t.Helper()
	select {
	case payload, ok := <-c.send:
		require.True(t, ok, "client channel closed")
		var msg WebSocketMessage
		require.NoError(t, json.Unmarshal(payload, &msg))
		return msg
	case <-time.After(time.Second):
		t.Fatal("no message delivered")
	}
	return WebSocketMessage{}
}

func TestHubBroadcastSkipsSender(t *testing.T) {
	hub := NewHub(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	alice := NewClient(hub, nil, "alice")
	bob := NewClient(hub, nil, "bob")
	hub.Register(alice)
	hub.Register(bob)

	msg, err := NewMessage("events", map[string]string{"action": "created"})
	require.NoError(t, err)
	hub.Broadcast(msg, "alice")

	got := receive(t, bob)
	assert.Equal(t, "events", got.Type)
	assert.JSONEq(t, `{"action":"created"}`, string(got.Data))
	assert.Empty(t, alice.send)

	hub.Broadcast(msg, "")
	assert.Equal(t, "events", receive(t, alice).Type)
	assert.Equal(t, "events", receive(t, bob).Type)
}

func TestDeliverAfterUnregister(t *testing.T) {
	hub := NewHub(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	c := NewClient(hub, nil, "u1")
	hub.Register(c)
	msg, err := NewMessage("tasks", []string{})
	require.NoError(t, err)
	assert.True(t, c.Deliver(msg))

	hub.Unregister(c)
	assert.Eventually(t, func() bool { return !c.Deliver(msg) }, time.Second, 10*time.Millisecond)
}

func TestHubShutdownClosesClients(t *testing.T) {
	hub := NewHub(nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()

	c := NewClient(hub, nil, "u1")
	hub.Register(c)
	cancel()
	<-done

	msg, err := NewMessage("tasks", nil)
	require.NoError(t, err)
	assert.False(t, c.Deliver(msg))

	// calls after shutdown return instead of blocking
	hub.Unregister(c)
	hub.Broadcast(msg, "")
}
