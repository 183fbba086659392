package websocket

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asyncpoller/api/internal/model"
)

func startHub(t *testing.T) *Hub {
	t.Helper()
	h := NewHub(zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go h.Run(ctx)
	return h
}

func receive(t *testing.T, c *Client) map[string]interface{} {
	t.Helper()
	select {
	case data, ok := <-c.Send:
		require.True(t, ok, "send channel closed")
		var msg map[string]interface{}
		require.NoError(t, json.Unmarshal(data, &msg))
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
		return nil
	}
}

func TestHub_BroadcastsToJobSubscribers(t *testing.T) {
	h := startHub(t)

	watcher := &Client{JobID: "job-1", Send: make(chan []byte, 8)}
	other := &Client{JobID: "job-2", Send: make(chan []byte, 8)}
	h.Register(watcher)
	h.Register(other)

	h.Progress("job-1", 2, "")
	h.Complete("job-1", "Your flight departs at 10:00.")

	msg := receive(t, watcher)
	assert.Equal(t, model.WSMessageTypeProgress, msg["type"])
	assert.Equal(t, float64(2), msg["attempt"])

	msg = receive(t, watcher)
	assert.Equal(t, model.WSMessageTypeComplete, msg["type"])
	assert.Equal(t, "Your flight departs at 10:00.", msg["message"])

	select {
	case <-other.Send:
		t.Fatal("unrelated job received an event")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHub_FailEvent(t *testing.T) {
	h := startHub(t)
	c := &Client{JobID: "job-err", Send: make(chan []byte, 1)}
	h.Register(c)

	h.Fail("job-err", "TIMEOUT", "Request timed out upstream.")

	msg := receive(t, c)
	assert.Equal(t, model.WSMessageTypeError, msg["type"])
	errObj := msg["error"].(map[string]interface{})
	assert.Equal(t, "TIMEOUT", errObj["code"])
}

func TestHub_UnregisterClosesSend(t *testing.T) {
	h := startHub(t)
	c := &Client{JobID: "job-1", Send: make(chan []byte, 1)}
	h.Register(c)
	h.Unregister(c)

	select {
	case _, ok := <-c.Send:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("send channel not closed")
	}
	assert.Equal(t, 0, h.Subscribers("job-1"))
}

func TestHub_PublishWithoutRunDoesNotBlock(t *testing.T) {
	h := NewHub(zerolog.Nop())

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			h.Progress("job", i, "")
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publishing blocked")
	}
}

func TestHub_RegisterAfterStopReturns(t *testing.T) {
	h := NewHub(zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(stopped)
	}()
	cancel()
	<-stopped

	c := &Client{JobID: "late", Send: make(chan []byte, 1)}
	done := make(chan struct{})
	go func() {
		h.Register(c)
		h.Unregister(c)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("register blocked after hub stopped")
	}
}
