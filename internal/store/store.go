package store

import (
	"context"

	"github.com/pozgpt/chat/internal/model"
)

// Store exposes persistence operations over the user / conversation / message
// hierarchy. Implementations live under internal/store/<driver>/
// (e.g., postgres, sqlite, memstore).
type Store interface {
	Users() Users
	Conversations() Conversations
	Messages() Messages
}

// Users operates on per-user root records. UpdateFields has merge semantics:
// only the named fields are written, concurrent writers of other fields are
// never clobbered.
type Users interface {
	Create(ctx context.Context, u *model.User) (*model.User, error)
	Get(ctx context.Context, userID string) (*model.User, error)
	UpdateFields(ctx context.Context, userID string, patch model.UserPatch) error
	Delete(ctx context.Context, userID string) error
}

// Conversations operates on a user's conversation collection. Create assigns
// the id and stamps StartedAt with server time.
type Conversations interface {
	Create(ctx context.Context, userID, title string) (*model.Conversation, error)
	GetByID(ctx context.Context, userID, conversationID string) (*model.Conversation, error)
	List(ctx context.Context, userID string) ([]*model.Conversation, error)
	UpdateFields(ctx context.Context, userID, conversationID string, patch model.ConversationPatch) error
	Delete(ctx context.Context, userID, conversationID string) error
}

// Messages operates on a conversation's message subcollection. Append stamps
// CreatedAt with server time; that timestamp is the authoritative order.
// DeleteBatch removes at most batchSize messages and reports how many went;
// callers repeat until it returns zero. A missing parent conversation reads
// as an empty collection.
type Messages interface {
	Append(ctx context.Context, userID, conversationID string, role model.Role, content string) (*model.Message, error)
	List(ctx context.Context, req model.ListMessagesRequest) ([]*model.Message, error)
	HasAny(ctx context.Context, userID, conversationID string) (bool, error)
	DeleteBatch(ctx context.Context, userID, conversationID string, batchSize int) (int, error)
}
