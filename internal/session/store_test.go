package session

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/internal/broadcast"
	"storefront/internal/identity"
	"storefront/internal/storage"
)

func newTestStore(t *testing.T, channel broadcast.Channel) (*Store, storage.Storage, storage.Storage, *Jar) {
	t.Helper()
	durable := storage.NewMemory()
	scoped := storage.NewMemory()
	jar := NewJar()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewStore(durable, scoped, jar, channel, logger), durable, scoped, jar
}

func sampleUser() identity.User {
	return identity.User{ID: "42", Username: "ada", Email: "ada@example.com", Role: identity.RoleVendor, IsVerified: true}
}

func TestSaveWithoutTokenKeepsUser(t *testing.T) {
	ctx := context.Background()
	store, durable, _, _ := newTestStore(t, nil)

	require.NoError(t, durable.Set(ctx, TokenKey, "stale"))
	require.NoError(t, store.Save(ctx, "", sampleUser()))

	sess, err := store.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, sess.User)
	assert.Equal(t, sampleUser(), *sess.User)
	assert.Empty(t, sess.Token)
	assert.True(t, sess.Authenticated())

	_, ok, err := durable.Get(ctx, TokenKey)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, _, _, _ := newTestStore(t, nil)

	require.NoError(t, store.Save(ctx, "abc.def.ghi", sampleUser()))
	sess, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "abc.def.ghi", sess.Token)
	require.NotNil(t, sess.User)
	assert.Equal(t, identity.RoleVendor, sess.User.Role)
}

func TestLoadTreatsUnreadableUserAsAbsent(t *testing.T) {
	ctx := context.Background()
	store, durable, _, _ := newTestStore(t, nil)

	require.NoError(t, durable.Set(ctx, TokenKey, "tok"))
	require.NoError(t, durable.Set(ctx, UserKey, "{not json"))

	sess, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, sess.User)
	assert.Equal(t, "tok", sess.Token)
	assert.False(t, sess.Authenticated())
}

func TestLoadEmptyStorage(t *testing.T) {
	store, _, _, _ := newTestStore(t, nil)
	sess, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Session{}, sess)
}

func TestSaveTokenKeepsUser(t *testing.T) {
	ctx := context.Background()
	store, _, _, _ := newTestStore(t, nil)
	require.NoError(t, store.Save(ctx, "old", sampleUser()))

	require.NoError(t, store.SaveToken(ctx, "new"))
	sess, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "new", sess.Token)
	require.NotNil(t, sess.User)
	assert.Equal(t, identity.ID("42"), sess.User.ID)

	assert.Error(t, store.SaveToken(ctx, ""))
}

func TestClearWipesStorageAndCookies(t *testing.T) {
	ctx := context.Background()
	store, durable, scoped, jar := newTestStore(t, nil)

	require.NoError(t, store.Save(ctx, "tok", sampleUser()))
	require.NoError(t, durable.Set(ctx, "cart", "[1,2]"))
	require.NoError(t, scoped.Set(ctx, "oauth_state", "xyz"))
	apiURL, _ := url.Parse("https://api.example.com/api")
	jar.SetCookies(apiURL, []*http.Cookie{{Name: "sid", Value: "s1", Path: "/"}})
	require.Len(t, jar.Cookies(apiURL), 1)

	require.NoError(t, store.Clear(ctx))

	keys, err := durable.Keys(ctx)
	require.NoError(t, err)
	assert.Empty(t, keys)
	keys, err = scoped.Keys(ctx)
	require.NoError(t, err)
	assert.Empty(t, keys)
	assert.Empty(t, jar.Cookies(apiURL))

	sess, err := store.Load(ctx)
	require.NoError(t, err)
	assert.False(t, sess.Authenticated())
}

func TestMutationsPublishEvents(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	channel := broadcast.NewLocal()
	defer channel.Close()
	store, _, _, _ := newTestStore(t, channel)

	events, err := channel.Subscribe(ctx)
	require.NoError(t, err)

	require.NoError(t, store.Save(ctx, "tok", sampleUser()))
	require.NoError(t, store.Clear(ctx))

	for _, want := range []broadcast.Kind{broadcast.KindSessionSaved, broadcast.KindSessionCleared} {
		select {
		case got := <-events:
			assert.Equal(t, want, got.Kind)
			assert.Equal(t, store.Origin(), got.Origin)
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for %s", want)
		}
	}
}

func TestEventsSkipOwnOrigin(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	channel := broadcast.NewLocal()
	defer channel.Close()
	self, _, _, _ := newTestStore(t, channel)
	sibling, _, _, _ := newTestStore(t, channel)

	events, err := self.Events(ctx)
	require.NoError(t, err)

	require.NoError(t, self.Save(ctx, "mine", sampleUser()))
	require.NoError(t, sibling.Clear(ctx))

	select {
	case got := <-events:
		assert.Equal(t, broadcast.KindSessionCleared, got.Kind)
		assert.Equal(t, sibling.Origin(), got.Origin)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for sibling event")
	}
}

func TestEventsWithoutChannel(t *testing.T) {
	store, _, _, _ := newTestStore(t, nil)
	events, err := store.Events(context.Background())
	require.NoError(t, err)
	assert.Nil(t, events)
}
