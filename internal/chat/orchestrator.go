package chat

import (
	"context"
	"strings"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/pozgpt/chat/internal/model"
	"github.com/pozgpt/chat/internal/relay"
)

// Completer is the relay surface the orchestrator depends on.
type Completer interface {
	Complete(ctx context.Context, turns []relay.Turn) (*relay.Turn, error)
}

// TurnOrchestrator drives one user turn end to end: optimistic local append,
// user-turn persistence, relay call, assistant-turn persistence. Every user
// turn yields exactly one assistant turn; relay failures produce the
// synthesized fallback reply instead of an error.
type TurnOrchestrator struct {
	ctrl     *Controller
	relay    Completer
	log      zerolog.Logger
	awaiting atomic.Bool
}

// NewTurnOrchestrator wires the orchestrator to the controller and relay.
func NewTurnOrchestrator(ctrl *Controller, completer Completer, log zerolog.Logger) *TurnOrchestrator {
	return &TurnOrchestrator{ctrl: ctrl, relay: completer, log: log}
}

// Awaiting reports whether a relay call is in flight, for busy indicators.
func (o *TurnOrchestrator) Awaiting() bool { return o.awaiting.Load() }

// SendTurn appends the user's turn and its assistant reply to the active
// conversation. Blank input is a no-op. The user turn is shown optimistically
// before persistence; a failed persist is logged, never rolled back.
func (o *TurnOrchestrator) SendTurn(ctx context.Context, text string) error {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}
	uid, err := o.ctrl.session.UserID()
	if err != nil {
		return err
	}
	conversationID, err := o.ctrl.EnsureActiveConversation(ctx)
	if err != nil {
		return err
	}

	userTurn := &model.Message{
		UserID:         uid,
		ConversationID: conversationID,
		Role:           model.RoleUser,
		Content:        trimmed,
	}
	o.ctrl.appendLocal(userTurn)
	o.persist(ctx, uid, conversationID, model.RoleUser, trimmed)

	reply := o.complete(ctx)

	replyTurn := &model.Message{
		UserID:         uid,
		ConversationID: conversationID,
		Role:           model.Role(reply.Role),
		Content:        reply.Content,
	}
	o.ctrl.appendLocal(replyTurn)
	o.persist(ctx, uid, conversationID, replyTurn.Role, replyTurn.Content)
	return nil
}

// complete calls the relay with the full local history and always returns a
// turn: the relay's reply, or the fallback when the relay fails.
func (o *TurnOrchestrator) complete(ctx context.Context) *relay.Turn {
	turns := make([]relay.Turn, 0, len(o.ctrl.History()))
	for _, m := range o.ctrl.History() {
		turns = append(turns, relay.Turn{Role: string(m.Role), Content: m.Content})
	}

	o.awaiting.Store(true)
	defer o.awaiting.Store(false)

	reply, err := o.relay.Complete(ctx, turns)
	if err != nil {
		o.log.Warn().Err(err).Msg("relay call failed, using fallback reply")
		return &relay.Turn{Role: string(model.RoleAssistant), Content: model.FallbackReply}
	}
	if reply.Role == "" || reply.Content == "" {
		return &relay.Turn{Role: string(model.RoleAssistant), Content: model.FallbackReply}
	}
	return reply
}

func (o *TurnOrchestrator) persist(ctx context.Context, uid, conversationID string, role model.Role, content string) {
	if _, err := o.ctrl.store.Messages().Append(ctx, uid, conversationID, role, content); err != nil {
		o.log.Warn().Err(err).
			Str("conversation_id", conversationID).
			Str("role", string(role)).
			Msg("message persist failed, local state kept")
	}
}
