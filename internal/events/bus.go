package events

import "sync"

// EventKind represents the type of change produced by the storage layer.
type EventKind string

const (
	EventUserUpdated         EventKind = "user_updated"
	EventConversationCreated EventKind = "conversation_created"
	EventConversationUpdated EventKind = "conversation_updated"
	EventConversationDeleted EventKind = "conversation_deleted"
	EventMessageAppended     EventKind = "message_appended"
	EventMessagesDeleted     EventKind = "messages_deleted"
)

// Event carries only identifiers; subscribers re-read full state from the
// store, so a dropped event at worst delays a snapshot until the next change.
type Event struct {
	Kind           EventKind
	UserID         string
	ConversationID string
}

type subscriber struct {
	id int
	ch chan Event
}

// Bus is a lightweight in-process pub-sub fan-out backed by buffered channels,
// one per subscriber. Publish never blocks: a subscriber whose buffer is full
// misses that event.
type Bus struct {
	mu     sync.Mutex
	subs   []subscriber
	nextID int
	buffer int
}

// DefaultBuffer is the per-subscriber channel capacity used when callers
// have no reason to pick another.
const DefaultBuffer = 16

// NewBus creates a bus whose subscriber channels hold up to buffer events.
func NewBus(buffer int) *Bus {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Bus{buffer: buffer}
}

// Publish delivers evt to every subscriber without blocking.
// Returns the number of subscribers that received it.
func (b *Bus) Publish(evt Event) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	delivered := 0
	for _, s := range b.subs {
		select {
		case s.ch <- evt:
			delivered++
		default:
		}
	}
	return delivered
}

// Subscribe registers a new consumer. The returned cancel func removes the
// subscription and closes its channel; it is safe to call more than once.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	ch := make(chan Event, b.buffer)
	b.subs = append(b.subs, subscriber{id: id, ch: ch})

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			for i, s := range b.subs {
				if s.id == id {
					b.subs = append(b.subs[:i], b.subs[i+1:]...)
					close(s.ch)
					return
				}
			}
		})
	}
	return ch, cancel
}
