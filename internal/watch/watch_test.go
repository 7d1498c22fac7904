package watch

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/pozgpt/chat/internal/events"
	"github.com/pozgpt/chat/internal/model"
	"github.com/pozgpt/chat/internal/store/memstore"
	"github.com/pozgpt/chat/internal/store/notify"
)

func newWatchFixture(t *testing.T) (*notify.Store, *Watcher) {
	t.Helper()
	bus := events.NewBus(events.DefaultBuffer)
	st := notify.New(memstore.New(), bus)
	w := New(st, bus, zerolog.Nop())
	_, err := st.Users().Create(context.Background(), &model.User{UserID: "u1"})
	require.NoError(t, err)
	return st, w
}

func TestSubscribeUserRecord_InitialAndChangedSnapshots(t *testing.T) {
	ctx := context.Background()
	st, w := newWatchFixture(t)

	snaps := make(chan *model.User, 8)
	cancel := w.SubscribeUserRecord("u1", func(u *model.User) { snaps <- u })
	defer cancel()

	select {
	case u := <-snaps:
		require.False(t, u.DarkMode)
	case <-time.After(time.Second):
		t.Fatal("no initial snapshot")
	}

	dark := true
	require.NoError(t, st.Users().UpdateFields(ctx, "u1", model.UserPatch{DarkMode: &dark}))

	select {
	case u := <-snaps:
		require.True(t, u.DarkMode)
	case <-time.After(time.Second):
		t.Fatal("no snapshot after update")
	}
}

func TestSubscribeConversationList_TracksCollection(t *testing.T) {
	ctx := context.Background()
	st, w := newWatchFixture(t)

	snaps := make(chan []*model.Conversation, 8)
	cancel := w.SubscribeConversationList("u1", func(list []*model.Conversation) { snaps <- list })
	defer cancel()

	select {
	case list := <-snaps:
		require.Empty(t, list)
	case <-time.After(time.Second):
		t.Fatal("no initial snapshot")
	}

	_, err := st.Conversations().Create(ctx, "u1", model.SentinelTitle)
	require.NoError(t, err)

	select {
	case list := <-snaps:
		require.Len(t, list, 1)
	case <-time.After(time.Second):
		t.Fatal("no snapshot after create")
	}
}

func TestSubscribeConversationList_IgnoresOtherUsers(t *testing.T) {
	ctx := context.Background()
	st, w := newWatchFixture(t)
	_, err := st.Users().Create(ctx, &model.User{UserID: "u2"})
	require.NoError(t, err)

	snaps := make(chan []*model.Conversation, 8)
	cancel := w.SubscribeConversationList("u1", func(list []*model.Conversation) { snaps <- list })
	defer cancel()

	<-snaps // initial

	_, err = st.Conversations().Create(ctx, "u2", model.SentinelTitle)
	require.NoError(t, err)

	select {
	case <-snaps:
		t.Fatal("received snapshot for another user's change")
	case <-time.After(100 * time.Millisecond):
	}
}
