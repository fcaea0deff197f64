package realtime

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const channelPrefix = "chat:conversation:"

// RedisBroker shares events across instances through Redis pub/sub.
type RedisBroker struct {
	client *redis.Client
	hub    *Hub
	log    *logrus.Logger
}

func NewRedisBroker(client *redis.Client, hub *Hub, log *logrus.Logger) *RedisBroker {
	return &RedisBroker{client: client, hub: hub, log: log}
}

func (b *RedisBroker) Publish(ctx context.Context, ev Event) error {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, channelPrefix+ev.ChatID, data).Err()
}

// Run subscribes to every conversation channel and feeds the local hub until ctx ends.
func (b *RedisBroker) Run(ctx context.Context) {
	backoff := time.Second
	for ctx.Err() == nil {
		if b.receive(ctx) {
			backoff = time.Second
			continue
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > 30*time.Second {
			backoff = 30 * time.Second
		}
	}
}

// receive returns true when it stopped after at least one message.
func (b *RedisBroker) receive(ctx context.Context) bool {
	pubsub := b.client.PSubscribe(ctx, channelPrefix+"*")
	defer pubsub.Close()
	b.log.WithField("pattern", channelPrefix+"*").Info("Realtime Redis subscriber started")

	got := false
	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			if ctx.Err() == nil {
				b.log.WithError(err).Warn("Realtime Redis subscriber error")
			}
			return got
		}
		got = true

		var ev Event
		if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
			b.log.WithError(err).Warn("Failed to unmarshal realtime event")
			continue
		}
		b.hub.FanOut(ev)
	}
}
