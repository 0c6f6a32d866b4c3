package callerctx

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bwmarrin/snowflake"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSessionStore(t *testing.T) (*SessionStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewSessionStore(client), mr
}

func TestSessionStore_SaveAndResolve(t *testing.T) {
	store, mr := newSessionStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "tok", Caller{ID: 1010, NickName: "alice"}))

	mr.FastForward(20 * time.Minute)
	caller, err := store.Resolve(ctx, "tok")
	require.NoError(t, err)
	assert.Equal(t, snowflake.ID(1010), caller.ID)
	assert.Equal(t, "alice", caller.NickName)

	// resolving slides the TTL back to the full window
	assert.Equal(t, 30*time.Minute, mr.TTL(TokenKey("tok")))
}

func TestSessionStore_ResolveMissing(t *testing.T) {
	store, mr := newSessionStore(t)
	ctx := context.Background()

	_, err := store.Resolve(ctx, "")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	_, err = store.Resolve(ctx, "unknown")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	require.NoError(t, store.Save(ctx, "tok", Caller{ID: 5}))
	mr.FastForward(31 * time.Minute)
	_, err = store.Resolve(ctx, "tok")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}
