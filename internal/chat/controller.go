// Package chat implements the conversation lifecycle core: the controller
// that owns the active-conversation pointer and the new/switch-chat path,
// title derivation at finalization, and the turn orchestrator that drives a
// user turn through the inference relay.
package chat

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/pozgpt/chat/internal/model"
	"github.com/pozgpt/chat/internal/session"
	"github.com/pozgpt/chat/internal/store"
)

const (
	defaultDeleteBatchSize = 300
	defaultReloadDebounce  = 500 * time.Millisecond

	// switchKey collapses concurrent new/switch triggers into one execution.
	switchKey = "new-or-switch"
)

// Options tunes controller behavior. Zero values pick the defaults.
type Options struct {
	DeleteBatchSize int
	ReloadDebounce  time.Duration
	Clock           func() time.Time
}

// SwitchRequest parameterizes HandleNewOrSwitchChat. An empty TargetID means
// "new chat if the current one has messages, else reuse it".
type SwitchRequest struct {
	TargetID string
	Force    bool
}

// Controller owns the active-conversation pointer and the single-flight
// new/switch-chat orchestration. One controller serves one signed-in session;
// it resets itself when the session ends.
type Controller struct {
	store   store.Store
	session *session.Tracker
	log     zerolog.Logger
	opts    Options

	flight singleflight.Group

	mu           sync.Mutex
	activeID     string
	history      []*model.Message
	pendingInput string
	reloadTimer  *time.Timer
}

// NewController wires a controller to the store and session tracker. It
// registers a sign-out hook that drops all per-user state.
func NewController(st store.Store, tracker *session.Tracker, log zerolog.Logger, opts Options) *Controller {
	if opts.DeleteBatchSize <= 0 {
		opts.DeleteBatchSize = defaultDeleteBatchSize
	}
	if opts.ReloadDebounce <= 0 {
		opts.ReloadDebounce = defaultReloadDebounce
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	c := &Controller{store: st, session: tracker, log: log, opts: opts}
	tracker.OnSignOut(c.Reset)
	return c
}

func (c *Controller) now() time.Time { return c.opts.Clock() }

// ActiveConversationID returns the locally mirrored active pointer, empty
// when none has been resolved yet.
func (c *Controller) ActiveConversationID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activeID
}

// History returns a copy of the cached message list for the active
// conversation, ordered by creation time.
func (c *Controller) History() []*model.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*model.Message, len(c.history))
	copy(out, c.history)
	return out
}

// PendingInput returns the draft text carried for the active conversation.
func (c *Controller) PendingInput() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pendingInput
}

// SetPendingInput stores draft text. A conversation switch clears it.
func (c *Controller) SetPendingInput(text string) {
	c.mu.Lock()
	c.pendingInput = text
	c.mu.Unlock()
}

// appendLocal adds a turn to the cached history ahead of persistence.
func (c *Controller) appendLocal(m *model.Message) {
	c.mu.Lock()
	m.CreatedAt = c.now()
	c.history = append(c.history, m)
	c.mu.Unlock()
}

// Reset drops all per-user in-memory state. Runs on sign-out.
func (c *Controller) Reset() {
	c.mu.Lock()
	c.activeID = ""
	c.history = nil
	c.pendingInput = ""
	if c.reloadTimer != nil {
		c.reloadTimer.Stop()
		c.reloadTimer = nil
	}
	c.mu.Unlock()
}

// EnsureActiveConversation resolves the user's active conversation, creating
// a fresh sentinel-titled one when the pointer is absent. The pointer is
// verified on every resolution; a pointer to a conversation that no longer
// exists is treated as absent and healed with a fresh conversation.
func (c *Controller) EnsureActiveConversation(ctx context.Context) (string, error) {
	uid, err := c.session.UserID()
	if err != nil {
		return "", err
	}
	u, err := c.store.Users().Get(ctx, uid)
	if err != nil {
		return "", fmt.Errorf("read user record: %w", err)
	}
	if u.ActiveConversationID != nil {
		id := *u.ActiveConversationID
		_, err := c.store.Conversations().GetByID(ctx, uid, id)
		switch {
		case err == nil:
			c.mu.Lock()
			c.activeID = id
			c.mu.Unlock()
			return id, nil
		case errors.Is(err, model.ErrNotFound):
			c.log.Warn().Str("user_id", uid).Str("conversation_id", id).
				Msg("active pointer refers to a missing conversation, creating a fresh one")
		default:
			return "", fmt.Errorf("verify active conversation: %w", err)
		}
	}
	return c.createActive(ctx, uid)
}

// createActive creates a sentinel conversation and points the user record at
// it.
func (c *Controller) createActive(ctx context.Context, uid string) (string, error) {
	convo, err := c.store.Conversations().Create(ctx, uid, model.SentinelTitle)
	if err != nil {
		return "", fmt.Errorf("create conversation: %w", err)
	}
	id := convo.ConversationID
	if err := c.store.Users().UpdateFields(ctx, uid, model.UserPatch{ActiveConversationID: &id}); err != nil {
		return "", fmt.Errorf("set active conversation: %w", err)
	}
	c.mu.Lock()
	c.activeID = id
	c.mu.Unlock()
	return id, nil
}

// StartNewChatIfNeeded resolves the active conversation and, when it already
// holds messages, finalizes it and creates a fresh one. An empty conversation
// is reused as-is, never archived.
func (c *Controller) StartNewChatIfNeeded(ctx context.Context) (string, error) {
	uid, err := c.session.UserID()
	if err != nil {
		return "", err
	}
	id, err := c.EnsureActiveConversation(ctx)
	if err != nil {
		return "", err
	}
	hasMessages, err := c.store.Messages().HasAny(ctx, uid, id)
	if err != nil {
		return "", fmt.Errorf("probe conversation messages: %w", err)
	}
	if !hasMessages {
		return id, nil
	}
	if err := c.Finalize(ctx, id, ""); err != nil {
		return "", err
	}
	return c.createActive(ctx, uid)
}

// Finalize archives the conversation with explicitTitle, or with a title
// derived from its first user message (timestamp fallback). Derivation
// failures are absorbed; the archive write itself surfaces to the caller.
func (c *Controller) Finalize(ctx context.Context, conversationID, explicitTitle string) error {
	uid, err := c.session.UserID()
	if err != nil {
		return err
	}
	title := explicitTitle
	if title == "" {
		title = c.deriveTitle(ctx, uid, conversationID)
	}
	now := c.now()
	patch := model.ConversationPatch{Title: &title, ArchivedAt: &now}
	if err := c.store.Conversations().UpdateFields(ctx, uid, conversationID, patch); err != nil {
		return fmt.Errorf("archive conversation: %w", err)
	}
	return nil
}

// HandleNewOrSwitchChat runs the new/switch-chat path with single-flight
// semantics: concurrent triggers collapse to one execution and every caller
// observes that execution's outcome. A target that does not exist aborts the
// switch silently.
func (c *Controller) HandleNewOrSwitchChat(ctx context.Context, req SwitchRequest) error {
	_, err, _ := c.flight.Do(switchKey, func() (interface{}, error) {
		return nil, c.switchChat(ctx, req)
	})
	return err
}

func (c *Controller) switchChat(ctx context.Context, req SwitchRequest) error {
	uid, err := c.session.UserID()
	if err != nil {
		return err
	}

	// Capture the pre-switch pointer: resolution below may already move it.
	c.mu.Lock()
	current := c.activeID
	c.mu.Unlock()

	var resolved string
	if req.TargetID != "" {
		_, err := c.store.Conversations().GetByID(ctx, uid, req.TargetID)
		if errors.Is(err, model.ErrNotFound) {
			c.log.Warn().Str("user_id", uid).Str("conversation_id", req.TargetID).
				Msg("switch target does not exist, aborting")
			return nil
		}
		if err != nil {
			return fmt.Errorf("verify switch target: %w", err)
		}
		resolved = req.TargetID
	} else {
		resolved, err = c.StartNewChatIfNeeded(ctx)
		if err != nil {
			return err
		}
	}

	if resolved == current && !req.Force {
		return nil
	}

	now := c.now()
	patch := model.UserPatch{ActiveConversationID: &resolved, LastOpenedAt: &now}
	if err := c.store.Users().UpdateFields(ctx, uid, patch); err != nil {
		return fmt.Errorf("set active conversation: %w", err)
	}

	history, err := c.store.Messages().List(ctx, model.ListMessagesRequest{
		UserID:         uid,
		ConversationID: resolved,
	})
	if err != nil {
		return fmt.Errorf("load conversation history: %w", err)
	}

	c.mu.Lock()
	c.activeID = resolved
	c.history = history
	c.pendingInput = ""
	c.mu.Unlock()
	return nil
}

// DeleteConversation removes the conversation's messages in batches, then the
// conversation record. Deleting the active conversation clears the pointer
// and re-runs the switch path so a fresh conversation becomes active.
func (c *Controller) DeleteConversation(ctx context.Context, conversationID string) error {
	uid, err := c.session.UserID()
	if err != nil {
		return err
	}
	for {
		n, err := c.store.Messages().DeleteBatch(ctx, uid, conversationID, c.opts.DeleteBatchSize)
		if err != nil {
			return fmt.Errorf("delete message batch: %w", err)
		}
		if n == 0 {
			break
		}
	}
	if err := c.store.Conversations().Delete(ctx, uid, conversationID); err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}

	c.mu.Lock()
	wasActive := c.activeID == conversationID
	if wasActive {
		c.activeID = ""
		c.history = nil
	}
	c.mu.Unlock()

	if !wasActive {
		return nil
	}
	if err := c.store.Users().UpdateFields(ctx, uid, model.UserPatch{ClearActiveConversation: true}); err != nil {
		return fmt.Errorf("clear active conversation: %w", err)
	}
	return c.HandleNewOrSwitchChat(ctx, SwitchRequest{})
}

// ReconcileForeground consumes the backgrounding flag: when set, it is
// cleared and the no-target switch path runs, mirroring app-restart
// semantics. When the flag is clear nothing changes.
func (c *Controller) ReconcileForeground(ctx context.Context) error {
	uid, err := c.session.UserID()
	if err != nil {
		return err
	}
	u, err := c.store.Users().Get(ctx, uid)
	if err != nil {
		return fmt.Errorf("read user record: %w", err)
	}
	if !u.WasBackgrounded {
		return nil
	}
	cleared := false
	now := c.now()
	patch := model.UserPatch{WasBackgrounded: &cleared, LastForegroundAt: &now}
	if err := c.store.Users().UpdateFields(ctx, uid, patch); err != nil {
		return fmt.Errorf("clear backgrounding flag: %w", err)
	}
	return c.HandleNewOrSwitchChat(ctx, SwitchRequest{})
}

// MarkBackgrounded records the foreground-to-background transition. The flag
// is consumed by the next ReconcileForeground.
func (c *Controller) MarkBackgrounded(ctx context.Context) error {
	uid, err := c.session.UserID()
	if err != nil {
		return err
	}
	set := true
	now := c.now()
	patch := model.UserPatch{WasBackgrounded: &set, LastBackgroundAt: &now}
	if err := c.store.Users().UpdateFields(ctx, uid, patch); err != nil {
		return fmt.Errorf("set backgrounding flag: %w", err)
	}
	return nil
}

// FlipReloading raises the transient reloading flag and schedules its clear
// after the debounce window. Bookkeeping writes are logged, never surfaced.
func (c *Controller) FlipReloading(ctx context.Context) {
	uid, err := c.session.UserID()
	if err != nil {
		return
	}
	on := true
	if err := c.store.Users().UpdateFields(ctx, uid, model.UserPatch{Reloading: &on}); err != nil {
		c.log.Warn().Err(err).Str("user_id", uid).Msg("reloading flag write failed")
		return
	}
	c.mu.Lock()
	if c.reloadTimer != nil {
		c.reloadTimer.Stop()
	}
	c.reloadTimer = time.AfterFunc(c.opts.ReloadDebounce, func() {
		off := false
		if err := c.store.Users().UpdateFields(context.Background(), uid, model.UserPatch{Reloading: &off}); err != nil {
			c.log.Warn().Err(err).Str("user_id", uid).Msg("reloading flag clear failed")
		}
	})
	c.mu.Unlock()
}
