package services_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chorus/messaging-service/services"
	"chorus/messaging-service/utils"
)

func TestPresenceReferenceCounting(t *testing.T) {
	e := newEnv(t, services.UnreadClearsOnSeen)
	ctx := context.Background()
	u := e.user(t, "ursula")

	change, err := e.presence.Connect(ctx, u.ID, "c1")
	require.NoError(t, err)
	assert.Equal(t, services.TransitionOnline, change.Transition)

	change, err = e.presence.Connect(ctx, u.ID, "c2")
	require.NoError(t, err)
	assert.Equal(t, services.TransitionNone, change.Transition)

	change, err = e.presence.Disconnect(ctx, u.ID, "c1")
	require.NoError(t, err)
	assert.Equal(t, services.TransitionNone, change.Transition)

	online, err := e.presence.IsOnline(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, online)

	change, err = e.presence.Disconnect(ctx, u.ID, "c2")
	require.NoError(t, err)
	assert.Equal(t, services.TransitionOffline, change.Transition)
	require.NotNil(t, change.LastSeenAt)

	online, err = e.presence.IsOnline(ctx, u.ID)
	require.NoError(t, err)
	assert.False(t, online)

	stored, err := e.users.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsOnline)
	require.NotNil(t, stored.LastSeenAt)
	assert.True(t, stored.LastSeenAt.Equal(*change.LastSeenAt))
}

func TestPresenceExactlyOneOfflineBroadcast(t *testing.T) {
	e := newEnv(t, services.UnreadClearsOnSeen)
	ctx := context.Background()
	u := e.user(t, "ursula")

	steps := []struct {
		connect bool
		id      string
	}{
		{true, "c1"}, {true, "c2"}, {false, "c1"}, {false, "c2"},
	}
	for _, s := range steps {
		var change services.PresenceChange
		var err error
		if s.connect {
			change, err = e.presence.Connect(ctx, u.ID, s.id)
		} else {
			change, err = e.presence.Disconnect(ctx, u.ID, s.id)
		}
		require.NoError(t, err)
		e.notifier.PresenceChanged(change)
	}

	broadcasts := e.pushes.byEvent("user-status-changed")
	require.Len(t, broadcasts, 2)
	assert.Equal(t, u.ID, broadcasts[0].exclude)
	assert.Equal(t, u.ID, broadcasts[1].exclude)
}

func TestPresenceDuplicateConnectAndUnknownDisconnect(t *testing.T) {
	e := newEnv(t, services.UnreadClearsOnSeen)
	ctx := context.Background()
	u := e.user(t, "ursula")

	change, err := e.presence.Disconnect(ctx, u.ID, "never-connected")
	require.NoError(t, err)
	assert.Equal(t, services.TransitionNone, change.Transition)

	_, err = e.presence.Connect(ctx, u.ID, "c1")
	require.NoError(t, err)
	change, err = e.presence.Connect(ctx, u.ID, "c1")
	require.NoError(t, err)
	assert.Equal(t, services.TransitionNone, change.Transition)

	n, err := e.presence.ConnectionCount(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	change, err = e.presence.Disconnect(ctx, u.ID, "c1")
	require.NoError(t, err)
	assert.Equal(t, services.TransitionOffline, change.Transition)

	change, err = e.presence.Disconnect(ctx, u.ID, "c1")
	require.NoError(t, err)
	assert.Equal(t, services.TransitionNone, change.Transition)
}

func TestPresenceOnlineUsersAndReset(t *testing.T) {
	e := newEnv(t, services.UnreadClearsOnSeen)
	ctx := context.Background()
	a := e.user(t, "ann")
	b := e.user(t, "ben")

	_, err := e.presence.Connect(ctx, a.ID, "a1")
	require.NoError(t, err)
	_, err = e.presence.Connect(ctx, b.ID, "b1")
	require.NoError(t, err)

	ids, err := e.presence.OnlineUsers(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uuid.UUID{a.ID, b.ID}, ids)

	require.NoError(t, e.presence.Reset(ctx))

	ids, err = e.presence.OnlineUsers(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)

	online, err := e.presence.IsOnline(ctx, a.ID)
	require.NoError(t, err)
	assert.False(t, online)

	stored, err := e.users.GetUser(ctx, b.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsOnline)

	// A fresh connect after reset is a real online edge again.
	change, err := e.presence.Connect(ctx, a.ID, "a2")
	require.NoError(t, err)
	assert.Equal(t, services.TransitionOnline, change.Transition)
}

func TestPresenceStatus(t *testing.T) {
	e := newEnv(t, services.UnreadClearsOnSeen)
	ctx := context.Background()
	u := e.user(t, "ursula")

	_, err := e.presence.Connect(ctx, u.ID, "c1")
	require.NoError(t, err)
	_, err = e.presence.Connect(ctx, u.ID, "c2")
	require.NoError(t, err)

	status, err := e.presence.Status(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, status.IsOnline)
	assert.Equal(t, int64(2), status.Connections)

	_, err = e.presence.Disconnect(ctx, u.ID, "c1")
	require.NoError(t, err)
	change, err := e.presence.Disconnect(ctx, u.ID, "c2")
	require.NoError(t, err)

	status, err = e.presence.Status(ctx, u.ID)
	require.NoError(t, err)
	assert.False(t, status.IsOnline)
	require.NotNil(t, status.LastSeenAt)
	assert.True(t, change.LastSeenAt.Equal(*status.LastSeenAt))

	_, err = e.presence.Status(ctx, uuid.New())
	assert.ErrorIs(t, err, services.ErrNotFound)
}

// heldOffline holds the first offline write until released, letting a later
// online edge reach the database first.
type heldOffline struct {
	services.UserStore
	entered chan struct{}
	release chan struct{}
	once    bool
}

func (h *heldOffline) SetPresence(ctx context.Context, id uuid.UUID, online bool, lastSeenAt *time.Time) error {
	if !online && !h.once {
		h.once = true
		close(h.entered)
		<-h.release
	}
	return h.UserStore.SetPresence(ctx, id, online, lastSeenAt)
}

func TestPresenceOvertakenOfflineWriteIsCorrected(t *testing.T) {
	e := newEnv(t, services.UnreadClearsOnSeen)
	ctx := context.Background()
	me := e.user(t, "me")
	u := e.user(t, "ursula")

	_, err := e.resolver.Resolve(ctx, me.ID, u.ID)
	require.NoError(t, err)

	store := &heldOffline{UserStore: e.users, entered: make(chan struct{}), release: make(chan struct{})}
	tracker := services.NewPresenceTracker(e.redis, store, utils.Discard())

	_, err = tracker.Connect(ctx, u.ID, "c1")
	require.NoError(t, err)

	done := make(chan services.PresenceChange)
	go func() {
		change, err := tracker.Disconnect(ctx, u.ID, "c1")
		assert.NoError(t, err)
		done <- change
	}()
	<-store.entered

	change, err := tracker.Connect(ctx, u.ID, "c2")
	require.NoError(t, err)
	require.Equal(t, services.TransitionOnline, change.Transition)

	close(store.release)
	offline := <-done
	assert.Equal(t, services.TransitionOffline, offline.Transition)

	stored, err := e.users.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsOnline, "stored flag follows the live connection")

	page, err := e.inbox.ListConversations(ctx, me.ID, 1, 10)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.True(t, page.Items[0].Counterpart.IsOnline)

	ids, err := tracker.OnlineUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{u.ID}, ids)
}

func TestOnlineAmong(t *testing.T) {
	e := newEnv(t, services.UnreadClearsOnSeen)
	ctx := context.Background()
	a := e.user(t, "ann")
	b := e.user(t, "ben")

	_, err := e.presence.Connect(ctx, a.ID, "a1")
	require.NoError(t, err)

	online, err := e.presence.OnlineAmong(ctx, []uuid.UUID{a.ID, b.ID})
	require.NoError(t, err)
	assert.Equal(t, map[uuid.UUID]bool{a.ID: true, b.ID: false}, online)

	empty, err := e.presence.OnlineAmong(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}
