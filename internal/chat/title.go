package chat

import (
	"context"
	"strings"
	"time"

	"github.com/pozgpt/chat/internal/model"
)

const (
	// titleScanLimit caps how many of the earliest messages finalize reads
	// when looking for the first user turn.
	titleScanLimit = 20
	// titleMaxRunes is the derived-title length cap, counted in codepoints.
	titleMaxRunes = 20
)

// deriveTitle builds an archive title from the conversation's first user
// message. Any failure falls through to the timestamp title; finalize never
// aborts on derivation.
func (c *Controller) deriveTitle(ctx context.Context, userID, conversationID string) string {
	now := c.now()
	msgs, err := c.store.Messages().List(ctx, model.ListMessagesRequest{
		UserID:         userID,
		ConversationID: conversationID,
		Limit:          titleScanLimit,
	})
	if err != nil {
		c.log.Warn().Err(err).Str("conversation_id", conversationID).Msg("title derivation read failed")
		return timestampTitle(now)
	}
	for _, m := range msgs {
		if m.Role != model.RoleUser {
			continue
		}
		if t := titleFromContent(m.Content); t != "" {
			return t
		}
		break
	}
	return timestampTitle(now)
}

// titleFromContent normalizes whitespace and truncates to titleMaxRunes
// codepoints, appending an ellipsis when the text was longer. Returns ""
// when nothing printable remains.
func titleFromContent(s string) string {
	norm := strings.Join(strings.Fields(s), " ")
	if norm == "" {
		return ""
	}
	runes := []rune(norm)
	if len(runes) <= titleMaxRunes {
		return norm
	}
	return string(runes[:titleMaxRunes]) + "..."
}

func timestampTitle(t time.Time) string {
	return t.Local().Format("Chat — 2006-01-02 15:04")
}
