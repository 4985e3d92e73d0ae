package natsclient

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew_Defaults(t *testing.T) {
	c := New("nats://localhost:4222")
	assert.Equal(t, "nats://localhost:4222", c.url)
	assert.Equal(t, -1, c.maxReconnects)
	assert.False(t, c.IsHealthy())
}

func TestPublish_NotConnected(t *testing.T) {
	c := New("nats://localhost:4222")
	assert.ErrorIs(t, c.Publish("events.device", []byte("x")), ErrNotConnected)
}

func TestClose_Idempotent(t *testing.T) {
	c := New("nats://localhost:4222")
	c.Close()
	c.Close()
	assert.False(t, c.IsHealthy())
}
