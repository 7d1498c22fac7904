// Package account implements the account-and-data deletion cascade.
package account

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/pozgpt/chat/internal/auth"
	"github.com/pozgpt/chat/internal/session"
	"github.com/pozgpt/chat/internal/store"
)

const defaultBatchSize = 300

// Deleter removes a user's data and identity. The cascade is not
// transactional; a failure mid-way leaves orphaned records that later reads
// tolerate and a retry can finish removing.
type Deleter struct {
	store     store.Store
	provider  auth.Provider
	session   *session.Tracker
	log       zerolog.Logger
	batchSize int
}

func NewDeleter(st store.Store, provider auth.Provider, tracker *session.Tracker, log zerolog.Logger, batchSize int) *Deleter {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &Deleter{store: st, provider: provider, session: tracker, log: log, batchSize: batchSize}
}

// DeleteAccount re-authenticates, then removes every conversation with its
// messages, the user record, and finally the identity itself. Re-auth failure
// aborts before anything is deleted.
func (d *Deleter) DeleteAccount(ctx context.Context, password string) error {
	uid, err := d.session.UserID()
	if err != nil {
		return err
	}
	if err := d.provider.Reauthenticate(ctx, password); err != nil {
		return fmt.Errorf("reauthenticate: %w", err)
	}

	convos, err := d.store.Conversations().List(ctx, uid)
	if err != nil {
		return fmt.Errorf("list conversations: %w", err)
	}
	for _, convo := range convos {
		if err := d.deleteConversation(ctx, uid, convo.ConversationID); err != nil {
			return err
		}
	}
	if err := d.store.Users().Delete(ctx, uid); err != nil {
		return fmt.Errorf("delete user record: %w", err)
	}
	if err := d.provider.DeleteIdentity(ctx); err != nil {
		return fmt.Errorf("delete identity: %w", err)
	}
	d.log.Info().Str("user_id", uid).Msg("account deleted")
	return nil
}

func (d *Deleter) deleteConversation(ctx context.Context, uid, conversationID string) error {
	for {
		n, err := d.store.Messages().DeleteBatch(ctx, uid, conversationID, d.batchSize)
		if err != nil {
			return fmt.Errorf("delete message batch: %w", err)
		}
		if n == 0 {
			break
		}
	}
	if err := d.store.Conversations().Delete(ctx, uid, conversationID); err != nil {
		return fmt.Errorf("delete conversation %s: %w", conversationID, err)
	}
	return nil
}
