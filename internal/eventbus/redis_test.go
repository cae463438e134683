package eventbus

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisMirrorPublishesEmittedEvents(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	bus := New(nil)
	mirror := NewRedisMirror(client, "submarine:chain")
	mirror.Attach(bus)

	ctx := context.Background()
	sub := client.Subscribe(ctx, "submarine:chain")
	defer sub.Close()
	_, err = sub.Receive(ctx)
	require.NoError(t, err)

	bus.Emit("chain:start", map[string]interface{}{"chain_id": "c1"})

	msg, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)
	assert.Contains(t, msg.Payload, "chain:start")
	assert.Contains(t, msg.Payload, "c1")
}

func TestRedisMirrorNeverBlocksWhenUnreachable(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	defer client.Close()

	bus := New(nil)
	mirror := NewRedisMirror(client, "submarine:chain")
	mirror.Attach(bus)

	done := make(chan struct{})
	go func() {
		bus.Emit("chain:start", map[string]interface{}{"chain_id": "c1"})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Emit blocked on an unreachable redis mirror")
	}
}
