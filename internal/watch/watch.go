// Package watch turns store change events into realtime snapshot
// subscriptions: callbacks receive full state re-read from the store, never
// deltas, so a missed event only delays the next snapshot.
package watch

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/pozgpt/chat/internal/events"
	"github.com/pozgpt/chat/internal/model"
	"github.com/pozgpt/chat/internal/store"
)

type Watcher struct {
	store store.Store
	bus   *events.Bus
	log   zerolog.Logger
}

func New(st store.Store, bus *events.Bus, log zerolog.Logger) *Watcher {
	return &Watcher{store: st, bus: bus, log: log}
}

// SubscribeUserRecord delivers the user's record to fn now and after every
// change to it. The callback runs on a dedicated goroutine; the returned
// func cancels the subscription.
func (w *Watcher) SubscribeUserRecord(userID string, fn func(*model.User)) func() {
	ch, cancel := w.bus.Subscribe()
	go func() {
		w.pushUser(userID, fn)
		for evt := range ch {
			if evt.UserID != userID || evt.Kind != events.EventUserUpdated {
				continue
			}
			w.pushUser(userID, fn)
		}
	}()
	return cancel
}

// SubscribeConversationList delivers the user's conversation list (newest
// first) to fn now and after every change to the collection.
func (w *Watcher) SubscribeConversationList(userID string, fn func([]*model.Conversation)) func() {
	ch, cancel := w.bus.Subscribe()
	go func() {
		w.pushConversations(userID, fn)
		for evt := range ch {
			if evt.UserID != userID {
				continue
			}
			switch evt.Kind {
			case events.EventConversationCreated, events.EventConversationUpdated, events.EventConversationDeleted:
				w.pushConversations(userID, fn)
			}
		}
	}()
	return cancel
}

func (w *Watcher) pushUser(userID string, fn func(*model.User)) {
	u, err := w.store.Users().Get(context.Background(), userID)
	if err != nil {
		w.log.Warn().Err(err).Str("user_id", userID).Msg("user snapshot read failed")
		return
	}
	fn(u)
}

func (w *Watcher) pushConversations(userID string, fn func([]*model.Conversation)) {
	list, err := w.store.Conversations().List(context.Background(), userID)
	if err != nil {
		w.log.Warn().Err(err).Str("user_id", userID).Msg("conversation list snapshot read failed")
		return
	}
	fn(list)
}
