package chat

import (
	"context"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/pozgpt/chat/internal/model"
	"github.com/pozgpt/chat/internal/session"
	"github.com/pozgpt/chat/internal/store/memstore"
)

func newTestController(t *testing.T, u *model.User) (*Controller, *memstore.Store) {
	t.Helper()
	st := memstore.New()
	_, err := st.Users().Create(context.Background(), u)
	require.NoError(t, err)
	tracker := session.NewStatic(u.UserID)
	ctrl := NewController(st, tracker, zerolog.Nop(), Options{})
	return ctrl, st
}

func TestEnsureActiveConversation_CreatesWhenAbsent(t *testing.T) {
	ctx := context.Background()
	ctrl, st := newTestController(t, &model.User{UserID: "u1", Email: "u1@example.com"})

	id, err := ctrl.EnsureActiveConversation(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	convo, err := st.Conversations().GetByID(ctx, "u1", id)
	require.NoError(t, err)
	require.Equal(t, model.SentinelTitle, convo.Title)
	require.False(t, convo.Archived())

	u, err := st.Users().Get(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, u.ActiveConversationID)
	require.Equal(t, id, *u.ActiveConversationID)
}

func TestEnsureActiveConversation_ReusesExisting(t *testing.T) {
	ctx := context.Background()
	ctrl, _ := newTestController(t, &model.User{UserID: "u1"})

	first, err := ctrl.EnsureActiveConversation(ctx)
	require.NoError(t, err)
	second, err := ctrl.EnsureActiveConversation(ctx)
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestEnsureActiveConversation_HealsStalePointer(t *testing.T) {
	ctx := context.Background()
	stale := "gone"
	ctrl, st := newTestController(t, &model.User{UserID: "u1", ActiveConversationID: &stale})

	id, err := ctrl.EnsureActiveConversation(ctx)
	require.NoError(t, err)
	require.NotEqual(t, stale, id)

	u, err := st.Users().Get(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, id, *u.ActiveConversationID)
}

func TestSwitchToMissingTargetAborts(t *testing.T) {
	ctx := context.Background()
	ctrl, st := newTestController(t, &model.User{UserID: "u1"})

	active, err := ctrl.EnsureActiveConversation(ctx)
	require.NoError(t, err)

	err = ctrl.HandleNewOrSwitchChat(ctx, SwitchRequest{TargetID: "nope"})
	require.NoError(t, err)
	require.Equal(t, active, ctrl.ActiveConversationID())

	u, err := st.Users().Get(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, active, *u.ActiveConversationID)
}

func TestStartNewChatIfNeeded_ReusesEmptyConversation(t *testing.T) {
	ctx := context.Background()
	ctrl, st := newTestController(t, &model.User{UserID: "u1"})

	first, err := ctrl.StartNewChatIfNeeded(ctx)
	require.NoError(t, err)
	second, err := ctrl.StartNewChatIfNeeded(ctx)
	require.NoError(t, err)
	require.Equal(t, first, second)

	convos, err := st.Conversations().List(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, convos, 1)
	require.False(t, convos[0].Archived())
}

func TestStartNewChatIfNeeded_FinalizesNonEmpty(t *testing.T) {
	ctx := context.Background()
	ctrl, st := newTestController(t, &model.User{UserID: "u1"})

	first, err := ctrl.EnsureActiveConversation(ctx)
	require.NoError(t, err)
	_, err = st.Messages().Append(ctx, "u1", first, model.RoleUser, "hello there")
	require.NoError(t, err)

	second, err := ctrl.StartNewChatIfNeeded(ctx)
	require.NoError(t, err)
	require.NotEqual(t, first, second)

	old, err := st.Conversations().GetByID(ctx, "u1", first)
	require.NoError(t, err)
	require.True(t, old.Archived())
	require.Equal(t, "hello there", old.Title)

	fresh, err := st.Conversations().GetByID(ctx, "u1", second)
	require.NoError(t, err)
	require.Equal(t, model.SentinelTitle, fresh.Title)
	require.False(t, fresh.Archived())
}

func TestFinalize_ExplicitTitle(t *testing.T) {
	ctx := context.Background()
	ctrl, st := newTestController(t, &model.User{UserID: "u1"})

	id, err := ctrl.EnsureActiveConversation(ctx)
	require.NoError(t, err)
	require.NoError(t, ctrl.Finalize(ctx, id, "my title"))

	convo, err := st.Conversations().GetByID(ctx, "u1", id)
	require.NoError(t, err)
	require.Equal(t, "my title", convo.Title)
	require.True(t, convo.Archived())
}

func TestFinalize_TimestampFallbackWithoutUserMessage(t *testing.T) {
	ctx := context.Background()
	ctrl, st := newTestController(t, &model.User{UserID: "u1"})

	id, err := ctrl.EnsureActiveConversation(ctx)
	require.NoError(t, err)
	_, err = st.Messages().Append(ctx, "u1", id, model.RoleAssistant, "unsolicited greeting")
	require.NoError(t, err)
	require.NoError(t, ctrl.Finalize(ctx, id, ""))

	convo, err := st.Conversations().GetByID(ctx, "u1", id)
	require.NoError(t, err)
	require.Regexp(t, regexp.MustCompile(`^Chat — \d{4}-\d{2}-\d{2} \d{2}:\d{2}$`), convo.Title)
}

func TestHandleNewOrSwitchChat_ConcurrentTriggersCollapse(t *testing.T) {
	ctx := context.Background()
	ctrl, st := newTestController(t, &model.User{UserID: "u1"})

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			require.NoError(t, ctrl.HandleNewOrSwitchChat(ctx, SwitchRequest{}))
		}()
	}
	wg.Wait()

	convos, err := st.Conversations().List(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, convos, 1)
}

func TestHandleNewOrSwitchChat_SameTargetIsNoop(t *testing.T) {
	ctx := context.Background()
	ctrl, st := newTestController(t, &model.User{UserID: "u1"})

	id, err := ctrl.EnsureActiveConversation(ctx)
	require.NoError(t, err)

	require.NoError(t, ctrl.HandleNewOrSwitchChat(ctx, SwitchRequest{TargetID: id}))

	// The no-op path skips the pointer write, so lastOpenedAt stays unset.
	u, err := st.Users().Get(ctx, "u1")
	require.NoError(t, err)
	require.Nil(t, u.LastOpenedAt)
}

func TestHandleNewOrSwitchChat_LoadsTargetHistory(t *testing.T) {
	ctx := context.Background()
	ctrl, st := newTestController(t, &model.User{UserID: "u1"})

	_, err := ctrl.EnsureActiveConversation(ctx)
	require.NoError(t, err)
	other, err := st.Conversations().Create(ctx, "u1", "older chat")
	require.NoError(t, err)
	_, err = st.Messages().Append(ctx, "u1", other.ConversationID, model.RoleUser, "one")
	require.NoError(t, err)
	_, err = st.Messages().Append(ctx, "u1", other.ConversationID, model.RoleAssistant, "two")
	require.NoError(t, err)

	ctrl.SetPendingInput("draft")
	require.NoError(t, ctrl.HandleNewOrSwitchChat(ctx, SwitchRequest{TargetID: other.ConversationID}))

	require.Equal(t, other.ConversationID, ctrl.ActiveConversationID())
	history := ctrl.History()
	require.Len(t, history, 2)
	require.Equal(t, "one", history[0].Content)
	require.Equal(t, "two", history[1].Content)
	require.Empty(t, ctrl.PendingInput())
}

func TestDeleteConversation_CascadesAndReactivates(t *testing.T) {
	ctx := context.Background()
	ctrl, st := newTestController(t, &model.User{UserID: "u1"})
	ctrl.opts.DeleteBatchSize = 2

	id, err := ctrl.EnsureActiveConversation(ctx)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		_, err = st.Messages().Append(ctx, "u1", id, model.RoleUser, "msg")
		require.NoError(t, err)
	}

	require.NoError(t, ctrl.DeleteConversation(ctx, id))

	msgs, err := st.Messages().List(ctx, model.ListMessagesRequest{UserID: "u1", ConversationID: id})
	require.NoError(t, err)
	require.Empty(t, msgs)
	_, err = st.Conversations().GetByID(ctx, "u1", id)
	require.ErrorIs(t, err, model.ErrNotFound)

	fresh := ctrl.ActiveConversationID()
	require.NotEmpty(t, fresh)
	require.NotEqual(t, id, fresh)
	u, err := st.Users().Get(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, fresh, *u.ActiveConversationID)
}

func TestDeleteConversation_InactiveLeavesPointerAlone(t *testing.T) {
	ctx := context.Background()
	ctrl, st := newTestController(t, &model.User{UserID: "u1"})

	active, err := ctrl.EnsureActiveConversation(ctx)
	require.NoError(t, err)
	other, err := st.Conversations().Create(ctx, "u1", "side chat")
	require.NoError(t, err)

	require.NoError(t, ctrl.DeleteConversation(ctx, other.ConversationID))
	require.Equal(t, active, ctrl.ActiveConversationID())
}

func TestReconcileForeground_ConsumesFlag(t *testing.T) {
	ctx := context.Background()
	ctrl, st := newTestController(t, &model.User{UserID: "u1", WasBackgrounded: true})

	first, err := ctrl.EnsureActiveConversation(ctx)
	require.NoError(t, err)
	_, err = st.Messages().Append(ctx, "u1", first, model.RoleUser, "hi")
	require.NoError(t, err)

	require.NoError(t, ctrl.ReconcileForeground(ctx))

	u, err := st.Users().Get(ctx, "u1")
	require.NoError(t, err)
	require.False(t, u.WasBackgrounded)
	require.NotNil(t, u.LastForegroundAt)

	old, err := st.Conversations().GetByID(ctx, "u1", first)
	require.NoError(t, err)
	require.True(t, old.Archived())
	require.NotEqual(t, first, ctrl.ActiveConversationID())
}

func TestReconcileForeground_NoFlagNoChange(t *testing.T) {
	ctx := context.Background()
	ctrl, st := newTestController(t, &model.User{UserID: "u1"})

	first, err := ctrl.EnsureActiveConversation(ctx)
	require.NoError(t, err)
	_, err = st.Messages().Append(ctx, "u1", first, model.RoleUser, "hi")
	require.NoError(t, err)

	require.NoError(t, ctrl.ReconcileForeground(ctx))

	require.Equal(t, first, ctrl.ActiveConversationID())
	old, err := st.Conversations().GetByID(ctx, "u1", first)
	require.NoError(t, err)
	require.False(t, old.Archived())
}

func TestMarkBackgrounded_SetsFlag(t *testing.T) {
	ctx := context.Background()
	ctrl, st := newTestController(t, &model.User{UserID: "u1"})

	require.NoError(t, ctrl.MarkBackgrounded(ctx))

	u, err := st.Users().Get(ctx, "u1")
	require.NoError(t, err)
	require.True(t, u.WasBackgrounded)
	require.NotNil(t, u.LastBackgroundAt)
}

func TestFlipReloading_DebouncedClear(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	_, err := st.Users().Create(ctx, &model.User{UserID: "u1"})
	require.NoError(t, err)
	tracker := session.NewStatic("u1")
	ctrl := NewController(st, tracker, zerolog.Nop(), Options{ReloadDebounce: 20 * time.Millisecond})

	ctrl.FlipReloading(ctx)

	u, err := st.Users().Get(ctx, "u1")
	require.NoError(t, err)
	require.True(t, u.Reloading)

	require.Eventually(t, func() bool {
		u, err := st.Users().Get(ctx, "u1")
		return err == nil && !u.Reloading
	}, time.Second, 10*time.Millisecond)
}
