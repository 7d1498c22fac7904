package events

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBusDeliversToAllSubscribers(t *testing.T) {
	b := NewBus(4)
	ch1, cancel1 := b.Subscribe()
	ch2, cancel2 := b.Subscribe()
	defer cancel1()
	defer cancel2()

	evt := Event{Kind: EventMessageAppended, UserID: "u1", ConversationID: "c1"}
	require.Equal(t, 2, b.Publish(evt))
	require.Equal(t, evt, <-ch1)
	require.Equal(t, evt, <-ch2)
}

func TestBusDropsWhenBufferFull(t *testing.T) {
	b := NewBus(1)
	ch, cancel := b.Subscribe()
	defer cancel()

	require.Equal(t, 1, b.Publish(Event{Kind: EventUserUpdated, UserID: "u1"}))
	// Buffer is full; this one is dropped instead of blocking.
	require.Equal(t, 0, b.Publish(Event{Kind: EventUserUpdated, UserID: "u1"}))

	require.Len(t, ch, 1)
}

func TestBusUnsubscribe(t *testing.T) {
	b := NewBus(4)
	ch, cancel := b.Subscribe()
	cancel()
	cancel() // safe to call twice

	require.Equal(t, 0, b.Publish(Event{Kind: EventUserUpdated, UserID: "u1"}))
	_, open := <-ch
	require.False(t, open)
}
