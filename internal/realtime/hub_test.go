package realtime

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHubFanOut(t *testing.T) {
	hub := NewHub()
	a, unsubA := hub.Subscribe("chat-1")
	b, unsubB := hub.Subscribe("chat-1")
	other, unsubOther := hub.Subscribe("chat-2")
	defer unsubB()
	defer unsubOther()

	n := hub.FanOut(Event{Type: EventMessageCreated, ChatID: "chat-1"})
	assert.Equal(t, 2, n)

	require.Len(t, a, 1)
	require.Len(t, b, 1)
	assert.Len(t, other, 0)

	unsubA()
	unsubA()
	_, open := <-a
	assert.True(t, open)
	_, open = <-a
	assert.False(t, open)
	assert.Equal(t, 1, hub.Subscribers("chat-1"))
}

func TestHubDropsForSlowSubscriber(t *testing.T) {
	hub := NewHub()
	ch, unsub := hub.Subscribe("c")
	defer unsub()

	for i := 0; i < subscriberBuffer+5; i++ {
		hub.FanOut(Event{ChatID: "c"})
	}
	assert.Len(t, ch, subscriberBuffer)
}

func TestLocalBrokerStampsTimestamp(t *testing.T) {
	hub := NewHub()
	ch, unsub := hub.Subscribe("c")
	defer unsub()

	require.NoError(t, NewLocalBroker(hub).Publish(context.Background(), Event{Type: EventTypingStart, ChatID: "c"}))
	ev := <-ch
	assert.False(t, ev.Timestamp.IsZero())
	assert.NoError(t, Discard{}.Publish(context.Background(), ev))
}
