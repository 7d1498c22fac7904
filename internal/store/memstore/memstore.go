// Package memstore is an in-process store.Store used by tests and by the
// CLI's local mode. Timestamps come from a strictly monotonic clock so that
// rapid appends keep a stable order, mirroring server-assigned time.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pozgpt/chat/internal/model"
	"github.com/pozgpt/chat/internal/store"
)

type Store struct {
	mu       sync.Mutex
	users    map[string]*model.User
	convos   map[string]map[string]*model.Conversation // userID → convoID → convo
	messages map[string]map[string][]*model.Message    // userID → convoID → asc order
	lastTick time.Time
}

func New() *Store {
	return &Store{
		users:    make(map[string]*model.User),
		convos:   make(map[string]map[string]*model.Conversation),
		messages: make(map[string]map[string][]*model.Message),
	}
}

func (s *Store) Users() store.Users                 { return &users{s} }
func (s *Store) Conversations() store.Conversations { return &conversations{s} }
func (s *Store) Messages() store.Messages           { return &messages{s} }

// HealthPing always succeeds.
func (s *Store) HealthPing(ctx context.Context) error { return nil }

// now returns a strictly increasing timestamp. Callers must hold s.mu.
func (s *Store) now() time.Time {
	t := time.Now().UTC()
	if !t.After(s.lastTick) {
		t = s.lastTick.Add(time.Microsecond)
	}
	s.lastTick = t
	return t
}

// --- Users ---

type users struct{ s *Store }

func (u *users) Create(ctx context.Context, m *model.User) (*model.User, error) {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	if _, ok := u.s.users[m.UserID]; ok {
		return nil, model.ErrConflict
	}
	out := *m
	out.CreatedAt = u.s.now()
	u.s.users[m.UserID] = &out
	cp := out
	return &cp, nil
}

func (u *users) Get(ctx context.Context, userID string) (*model.User, error) {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	m, ok := u.s.users[userID]
	if !ok {
		return nil, model.ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (u *users) UpdateFields(ctx context.Context, userID string, patch model.UserPatch) error {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	m, ok := u.s.users[userID]
	if !ok {
		return model.ErrNotFound
	}
	if patch.Email != nil {
		m.Email = *patch.Email
	}
	if patch.Name != nil {
		m.Name = *patch.Name
	}
	if patch.DarkMode != nil {
		m.DarkMode = *patch.DarkMode
	}
	if patch.ClearActiveConversation {
		m.ActiveConversationID = nil
	} else if patch.ActiveConversationID != nil {
		id := *patch.ActiveConversationID
		m.ActiveConversationID = &id
	}
	if patch.WasBackgrounded != nil {
		m.WasBackgrounded = *patch.WasBackgrounded
	}
	if patch.Reloading != nil {
		m.Reloading = *patch.Reloading
	}
	if patch.LastOpenedAt != nil {
		t := *patch.LastOpenedAt
		m.LastOpenedAt = &t
	}
	if patch.LastBackgroundAt != nil {
		t := *patch.LastBackgroundAt
		m.LastBackgroundAt = &t
	}
	if patch.LastForegroundAt != nil {
		t := *patch.LastForegroundAt
		m.LastForegroundAt = &t
	}
	return nil
}

func (u *users) Delete(ctx context.Context, userID string) error {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	if _, ok := u.s.users[userID]; !ok {
		return model.ErrNotFound
	}
	delete(u.s.users, userID)
	delete(u.s.convos, userID)
	delete(u.s.messages, userID)
	return nil
}

// --- Conversations ---

type conversations struct{ s *Store }

func (c *conversations) Create(ctx context.Context, userID, title string) (*model.Conversation, error) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	if c.s.convos[userID] == nil {
		c.s.convos[userID] = make(map[string]*model.Conversation)
	}
	cv := &model.Conversation{
		ConversationID: uuid.New().String(),
		UserID:         userID,
		Title:          title,
		StartedAt:      c.s.now(),
	}
	c.s.convos[userID][cv.ConversationID] = cv
	cp := *cv
	return &cp, nil
}

func (c *conversations) GetByID(ctx context.Context, userID, conversationID string) (*model.Conversation, error) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	cv, ok := c.s.convos[userID][conversationID]
	if !ok {
		return nil, model.ErrNotFound
	}
	cp := *cv
	return &cp, nil
}

func (c *conversations) List(ctx context.Context, userID string) ([]*model.Conversation, error) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	var out []*model.Conversation
	for _, cv := range c.s.convos[userID] {
		cp := *cv
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out, nil
}

func (c *conversations) UpdateFields(ctx context.Context, userID, conversationID string, patch model.ConversationPatch) error {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	cv, ok := c.s.convos[userID][conversationID]
	if !ok {
		return model.ErrNotFound
	}
	if patch.Title != nil {
		cv.Title = *patch.Title
	}
	if patch.ArchivedAt != nil {
		t := *patch.ArchivedAt
		cv.ArchivedAt = &t
	}
	return nil
}

func (c *conversations) Delete(ctx context.Context, userID, conversationID string) error {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	if _, ok := c.s.convos[userID][conversationID]; !ok {
		return model.ErrNotFound
	}
	delete(c.s.convos[userID], conversationID)
	return nil
}

// --- Messages ---

type messages struct{ s *Store }

func (m *messages) Append(ctx context.Context, userID, conversationID string, role model.Role, content string) (*model.Message, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if m.s.messages[userID] == nil {
		m.s.messages[userID] = make(map[string][]*model.Message)
	}
	msg := &model.Message{
		MessageID:      uuid.New().String(),
		UserID:         userID,
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		CreatedAt:      m.s.now(),
	}
	m.s.messages[userID][conversationID] = append(m.s.messages[userID][conversationID], msg)
	cp := *msg
	return &cp, nil
}

func (m *messages) List(ctx context.Context, req model.ListMessagesRequest) ([]*model.Message, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	msgs := m.s.messages[req.UserID][req.ConversationID]
	if req.Limit > 0 && req.Limit < len(msgs) {
		msgs = msgs[:req.Limit]
	}
	out := make([]*model.Message, 0, len(msgs))
	for _, msg := range msgs {
		cp := *msg
		out = append(out, &cp)
	}
	return out, nil
}

func (m *messages) HasAny(ctx context.Context, userID, conversationID string) (bool, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	return len(m.s.messages[userID][conversationID]) > 0, nil
}

func (m *messages) DeleteBatch(ctx context.Context, userID, conversationID string, batchSize int) (int, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	msgs := m.s.messages[userID][conversationID]
	if len(msgs) == 0 {
		return 0, nil
	}
	n := batchSize
	if n > len(msgs) {
		n = len(msgs)
	}
	m.s.messages[userID][conversationID] = msgs[n:]
	return n, nil
}
