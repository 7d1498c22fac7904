package model

import "time"

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// SentinelTitle is the placeholder title assigned to a conversation at
// creation and replaced when the conversation is finalized.
const SentinelTitle = "New chat"

// FallbackReply is the assistant turn synthesized when the relay fails.
const FallbackReply = "Error in the AI's response."

// User is the identity-scoped root record.
type User struct {
	UserID               string     `json:"userId"`
	Email                string     `json:"email"`
	Name                 string     `json:"name,omitempty"`
	Gender               string     `json:"gender,omitempty"`
	DarkMode             bool       `json:"darkMode"`
	ActiveConversationID *string    `json:"activeConversationId,omitempty"`
	WasBackgrounded      bool       `json:"wasBackgrounded"`
	Reloading            bool       `json:"reloading"`
	CreatedAt            time.Time  `json:"createdAt"`
	LastOpenedAt         *time.Time `json:"lastOpenedAt,omitempty"`
	LastBackgroundAt     *time.Time `json:"lastBackgroundAt,omitempty"`
	LastForegroundAt     *time.Time `json:"lastForegroundAt,omitempty"`
}

// Conversation is one chat thread owned by exactly one user.
// ArchivedAt is nil while the conversation is open.
type Conversation struct {
	ConversationID string     `json:"conversationId"`
	UserID         string     `json:"userId"`
	Title          string     `json:"title"`
	StartedAt      time.Time  `json:"startedAt"`
	ArchivedAt     *time.Time `json:"archivedAt,omitempty"`
}

// Archived reports whether the conversation has been finalized.
func (c *Conversation) Archived() bool { return c.ArchivedAt != nil }

// Message is one immutable turn, ordered within its conversation by the
// store-assigned creation timestamp.
type Message struct {
	MessageID      string    `json:"messageId"`
	UserID         string    `json:"userId"`
	ConversationID string    `json:"conversationId"`
	Role           Role      `json:"role"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"createdAt"`
}

// UserPatch names the user fields an update may touch. Nil fields are left
// untouched by the store; merge semantics, never a whole-document overwrite.
type UserPatch struct {
	Email                *string
	Name                 *string
	DarkMode             *bool
	ActiveConversationID *string
	// ClearActiveConversation sets activeConversationId to null.
	ClearActiveConversation bool
	WasBackgrounded         *bool
	Reloading               *bool
	LastOpenedAt            *time.Time
	LastBackgroundAt        *time.Time
	LastForegroundAt        *time.Time
}

// ConversationPatch names the conversation fields an update may touch.
type ConversationPatch struct {
	Title      *string
	ArchivedAt *time.Time
}

// ListMessagesRequest captures filters used when listing messages.
// Order is always createdAt ascending.
type ListMessagesRequest struct {
	UserID         string
	ConversationID string
	Limit          int
}
