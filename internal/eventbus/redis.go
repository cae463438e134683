package eventbus

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
)

// RedisMirror publishes every event it receives onto a Redis pub/sub
// channel, for out-of-process observers. Grounded on
// db/repository/interfaces.go's CacheRepository.Publish contract;
// in-process delivery (Bus.handlers) never depends on this — a mirror
// failure is silently dropped, never logged or surfaced to the emitting
// component.
type RedisMirror struct {
	client  *redis.Client
	channel string
}

// NewRedisMirror builds a mirror publishing onto channel via client.
func NewRedisMirror(client *redis.Client, channel string) *RedisMirror {
	return &RedisMirror{client: client, channel: channel}
}

// Attach registers the mirror as a Bus handler.
func (m *RedisMirror) Attach(bus *Bus) {
	bus.Subscribe(m.publish)
}

func (m *RedisMirror) publish(evt Event) {
	payload, err := json.Marshal(map[string]interface{}{
		"type":      evt.Type,
		"data":      evt.Data,
		"timestamp": evt.Timestamp,
	})
	if err != nil {
		return
	}
	// Fire-and-forget with a background context: the emitting call must
	// never block on Redis availability.
	m.client.Publish(context.Background(), m.channel, payload)
}
