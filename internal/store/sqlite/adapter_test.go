package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pozgpt/chat/internal/model"
)

func newTestStore(t *testing.T) *SqliteStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chat.db")
	st, err := New(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func seedUser(t *testing.T, st *SqliteStore, uid string) {
	t.Helper()
	_, err := st.Users().Create(context.Background(), &model.User{UserID: uid, Email: uid + "@example.com"})
	require.NoError(t, err)
}

func TestUserRecordRoundTrip(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	seedUser(t, st, "u1")

	u, err := st.Users().Get(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, "u1@example.com", u.Email)
	require.Nil(t, u.ActiveConversationID)

	_, err = st.Users().Get(ctx, "missing")
	require.ErrorIs(t, err, model.ErrNotFound)
}

func TestUserUpdateFields_MergeSemantics(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	seedUser(t, st, "u1")

	convo, err := st.Conversations().Create(ctx, "u1", model.SentinelTitle)
	require.NoError(t, err)

	id := convo.ConversationID
	dark := true
	require.NoError(t, st.Users().UpdateFields(ctx, "u1", model.UserPatch{
		ActiveConversationID: &id,
		DarkMode:             &dark,
	}))

	// A later patch of one field leaves the others untouched.
	backgrounded := true
	require.NoError(t, st.Users().UpdateFields(ctx, "u1", model.UserPatch{WasBackgrounded: &backgrounded}))

	u, err := st.Users().Get(ctx, "u1")
	require.NoError(t, err)
	require.True(t, u.DarkMode)
	require.True(t, u.WasBackgrounded)
	require.NotNil(t, u.ActiveConversationID)
	require.Equal(t, id, *u.ActiveConversationID)

	require.NoError(t, st.Users().UpdateFields(ctx, "u1", model.UserPatch{ClearActiveConversation: true}))
	u, err = st.Users().Get(ctx, "u1")
	require.NoError(t, err)
	require.Nil(t, u.ActiveConversationID)
	require.True(t, u.DarkMode)
}

func TestConversationLifecycle(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	seedUser(t, st, "u1")

	first, err := st.Conversations().Create(ctx, "u1", model.SentinelTitle)
	require.NoError(t, err)
	second, err := st.Conversations().Create(ctx, "u1", model.SentinelTitle)
	require.NoError(t, err)

	list, err := st.Conversations().List(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	// Newest first.
	require.Equal(t, second.ConversationID, list[0].ConversationID)

	title := "archived chat"
	now := first.StartedAt.Add(1)
	require.NoError(t, st.Conversations().UpdateFields(ctx, "u1", first.ConversationID, model.ConversationPatch{
		Title:      &title,
		ArchivedAt: &now,
	}))
	got, err := st.Conversations().GetByID(ctx, "u1", first.ConversationID)
	require.NoError(t, err)
	require.Equal(t, title, got.Title)
	require.True(t, got.Archived())

	require.NoError(t, st.Conversations().Delete(ctx, "u1", first.ConversationID))
	_, err = st.Conversations().GetByID(ctx, "u1", first.ConversationID)
	require.ErrorIs(t, err, model.ErrNotFound)
}

func TestMessagesOrderAndBatchDelete(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	seedUser(t, st, "u1")
	convo, err := st.Conversations().Create(ctx, "u1", model.SentinelTitle)
	require.NoError(t, err)
	id := convo.ConversationID

	contents := []string{"one", "two", "three", "four", "five"}
	for _, c := range contents {
		_, err := st.Messages().Append(ctx, "u1", id, model.RoleUser, c)
		require.NoError(t, err)
	}

	msgs, err := st.Messages().List(ctx, model.ListMessagesRequest{UserID: "u1", ConversationID: id})
	require.NoError(t, err)
	require.Len(t, msgs, 5)
	for i, m := range msgs {
		require.Equal(t, contents[i], m.Content)
	}

	has, err := st.Messages().HasAny(ctx, "u1", id)
	require.NoError(t, err)
	require.True(t, has)

	total := 0
	for {
		n, err := st.Messages().DeleteBatch(ctx, "u1", id, 2)
		require.NoError(t, err)
		if n == 0 {
			break
		}
		total += n
	}
	require.Equal(t, 5, total)

	has, err = st.Messages().HasAny(ctx, "u1", id)
	require.NoError(t, err)
	require.False(t, has)
}

func TestMissingParentReadsAsEmpty(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	seedUser(t, st, "u1")

	msgs, err := st.Messages().List(ctx, model.ListMessagesRequest{UserID: "u1", ConversationID: "ghost"})
	require.NoError(t, err)
	require.Empty(t, msgs)

	n, err := st.Messages().DeleteBatch(ctx, "u1", "ghost", 10)
	require.NoError(t, err)
	require.Zero(t, n)
}
