package chat

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/pozgpt/chat/internal/model"
	"github.com/pozgpt/chat/internal/relay"
	"github.com/pozgpt/chat/internal/session"
)

type fakeCompleter struct {
	reply *relay.Turn
	err   error
	calls int
	seen  [][]relay.Turn
}

func (f *fakeCompleter) Complete(ctx context.Context, turns []relay.Turn) (*relay.Turn, error) {
	f.calls++
	f.seen = append(f.seen, turns)
	return f.reply, f.err
}

func TestSendTurn_BlankInputIsNoop(t *testing.T) {
	ctx := context.Background()
	ctrl, st := newTestController(t, &model.User{UserID: "u1"})
	fc := &fakeCompleter{}
	orch := NewTurnOrchestrator(ctrl, fc, zerolog.Nop())

	require.NoError(t, orch.SendTurn(ctx, "   \n\t"))
	require.Zero(t, fc.calls)

	convos, err := st.Conversations().List(ctx, "u1")
	require.NoError(t, err)
	require.Empty(t, convos)
}

func TestSendTurn_AppendsUserAndAssistantTurns(t *testing.T) {
	ctx := context.Background()
	ctrl, st := newTestController(t, &model.User{UserID: "u1"})
	fc := &fakeCompleter{reply: &relay.Turn{Role: "assistant", Content: "hello back"}}
	orch := NewTurnOrchestrator(ctrl, fc, zerolog.Nop())

	require.NoError(t, orch.SendTurn(ctx, "  hello  "))

	id := ctrl.ActiveConversationID()
	require.NotEmpty(t, id)
	msgs, err := st.Messages().List(ctx, model.ListMessagesRequest{UserID: "u1", ConversationID: id})
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	require.Equal(t, model.RoleUser, msgs[0].Role)
	require.Equal(t, "hello", msgs[0].Content)
	require.Equal(t, model.RoleAssistant, msgs[1].Role)
	require.Equal(t, "hello back", msgs[1].Content)

	history := ctrl.History()
	require.Len(t, history, 2)
	require.Equal(t, 1, fc.calls)
	// The relay saw the user turn that was just appended.
	require.Equal(t, "hello", fc.seen[0][len(fc.seen[0])-1].Content)
}

func TestSendTurn_RelayFailureYieldsFallbackReply(t *testing.T) {
	ctx := context.Background()
	ctrl, st := newTestController(t, &model.User{UserID: "u1"})
	fc := &fakeCompleter{err: errors.New("upstream timeout")}
	orch := NewTurnOrchestrator(ctrl, fc, zerolog.Nop())

	require.NoError(t, orch.SendTurn(ctx, "are you there"))

	id := ctrl.ActiveConversationID()
	msgs, err := st.Messages().List(ctx, model.ListMessagesRequest{UserID: "u1", ConversationID: id})
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	require.Equal(t, model.RoleAssistant, msgs[1].Role)
	require.Equal(t, model.FallbackReply, msgs[1].Content)
	require.Equal(t, 1, fc.calls)
}

func TestSendTurn_EmptyReplyCoercedToFallback(t *testing.T) {
	ctx := context.Background()
	ctrl, st := newTestController(t, &model.User{UserID: "u1"})
	fc := &fakeCompleter{reply: &relay.Turn{}}
	orch := NewTurnOrchestrator(ctrl, fc, zerolog.Nop())

	require.NoError(t, orch.SendTurn(ctx, "hi"))

	id := ctrl.ActiveConversationID()
	msgs, err := st.Messages().List(ctx, model.ListMessagesRequest{UserID: "u1", ConversationID: id})
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	require.Equal(t, model.FallbackReply, msgs[1].Content)
}

func TestSendTurn_NotSignedIn(t *testing.T) {
	ctx := context.Background()
	ctrl, _ := newTestController(t, &model.User{UserID: "u1"})
	ctrl.session = session.NewStatic("")
	orch := NewTurnOrchestrator(ctrl, &fakeCompleter{}, zerolog.Nop())

	err := orch.SendTurn(ctx, "hello")
	require.ErrorIs(t, err, model.ErrNotAuthenticated)
}
