// Package notify decorates a store.Store so that every mutation publishes a
// change event. Subscribers (internal/watch) re-read full snapshots, so the
// events carry identifiers only.
package notify

import (
	"context"

	"github.com/pozgpt/chat/internal/events"
	"github.com/pozgpt/chat/internal/model"
	"github.com/pozgpt/chat/internal/store"
)

type Store struct {
	inner store.Store
	bus   *events.Bus
}

// New wraps inner so its mutations are announced on bus.
func New(inner store.Store, bus *events.Bus) *Store {
	return &Store{inner: inner, bus: bus}
}

// Bus returns the bus mutations are published to.
func (s *Store) Bus() *events.Bus { return s.bus }

func (s *Store) Users() store.Users {
	return &users{inner: s.inner.Users(), bus: s.bus}
}

func (s *Store) Conversations() store.Conversations {
	return &conversations{inner: s.inner.Conversations(), bus: s.bus}
}

func (s *Store) Messages() store.Messages {
	return &messages{inner: s.inner.Messages(), bus: s.bus}
}

// --- Users ---

type users struct {
	inner store.Users
	bus   *events.Bus
}

func (u *users) Create(ctx context.Context, m *model.User) (*model.User, error) {
	out, err := u.inner.Create(ctx, m)
	if err == nil {
		u.bus.Publish(events.Event{Kind: events.EventUserUpdated, UserID: out.UserID})
	}
	return out, err
}

func (u *users) Get(ctx context.Context, userID string) (*model.User, error) {
	return u.inner.Get(ctx, userID)
}

func (u *users) UpdateFields(ctx context.Context, userID string, patch model.UserPatch) error {
	err := u.inner.UpdateFields(ctx, userID, patch)
	if err == nil {
		u.bus.Publish(events.Event{Kind: events.EventUserUpdated, UserID: userID})
	}
	return err
}

func (u *users) Delete(ctx context.Context, userID string) error {
	err := u.inner.Delete(ctx, userID)
	if err == nil {
		u.bus.Publish(events.Event{Kind: events.EventUserUpdated, UserID: userID})
	}
	return err
}

// --- Conversations ---

type conversations struct {
	inner store.Conversations
	bus   *events.Bus
}

func (c *conversations) Create(ctx context.Context, userID, title string) (*model.Conversation, error) {
	out, err := c.inner.Create(ctx, userID, title)
	if err == nil {
		c.bus.Publish(events.Event{
			Kind:           events.EventConversationCreated,
			UserID:         userID,
			ConversationID: out.ConversationID,
		})
	}
	return out, err
}

func (c *conversations) GetByID(ctx context.Context, userID, conversationID string) (*model.Conversation, error) {
	return c.inner.GetByID(ctx, userID, conversationID)
}

func (c *conversations) List(ctx context.Context, userID string) ([]*model.Conversation, error) {
	return c.inner.List(ctx, userID)
}

func (c *conversations) UpdateFields(ctx context.Context, userID, conversationID string, patch model.ConversationPatch) error {
	err := c.inner.UpdateFields(ctx, userID, conversationID, patch)
	if err == nil {
		c.bus.Publish(events.Event{
			Kind:           events.EventConversationUpdated,
			UserID:         userID,
			ConversationID: conversationID,
		})
	}
	return err
}

func (c *conversations) Delete(ctx context.Context, userID, conversationID string) error {
	err := c.inner.Delete(ctx, userID, conversationID)
	if err == nil {
		c.bus.Publish(events.Event{
			Kind:           events.EventConversationDeleted,
			UserID:         userID,
			ConversationID: conversationID,
		})
	}
	return err
}

// --- Messages ---

type messages struct {
	inner store.Messages
	bus   *events.Bus
}

func (m *messages) Append(ctx context.Context, userID, conversationID string, role model.Role, content string) (*model.Message, error) {
	out, err := m.inner.Append(ctx, userID, conversationID, role, content)
	if err == nil {
		m.bus.Publish(events.Event{
			Kind:           events.EventMessageAppended,
			UserID:         userID,
			ConversationID: conversationID,
		})
	}
	return out, err
}

func (m *messages) List(ctx context.Context, req model.ListMessagesRequest) ([]*model.Message, error) {
	return m.inner.List(ctx, req)
}

func (m *messages) HasAny(ctx context.Context, userID, conversationID string) (bool, error) {
	return m.inner.HasAny(ctx, userID, conversationID)
}

func (m *messages) DeleteBatch(ctx context.Context, userID, conversationID string, batchSize int) (int, error) {
	n, err := m.inner.DeleteBatch(ctx, userID, conversationID, batchSize)
	if err == nil && n > 0 {
		m.bus.Publish(events.Event{
			Kind:           events.EventMessagesDeleted,
			UserID:         userID,
			ConversationID: conversationID,
		})
	}
	return n, err
}
