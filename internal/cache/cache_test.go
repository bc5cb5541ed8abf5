package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestTokenDenylist(t *testing.T) {
	t.Parallel()
	mr, client := newClient(t)
	ctx := context.Background()

	now := time.Now()
	d := NewTokenDenylist(client, "custody")
	d.now = func() time.Time { return now }

	revoked, err := d.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.False(t, revoked)

	require.NoError(t, d.Revoke(ctx, "jti-1", now.Add(time.Minute)))
	revoked, err = d.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.True(t, revoked)
	assert.True(t, mr.Exists("custody:revoked:jti-1"))

	mr.FastForward(2 * time.Minute)
	revoked, err = d.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.False(t, revoked)

	require.NoError(t, d.Revoke(ctx, "jti-2", now.Add(-time.Second)))
	assert.False(t, mr.Exists("custody:revoked:jti-2"))
}

func TestTokenDenylist_Unavailable(t *testing.T) {
	t.Parallel()
	mr, client := newClient(t)
	mr.Close()

	_, err := NewTokenDenylist(client, "custody").IsRevoked(context.Background(), "jti")
	assert.Error(t, err)
}

func TestJSONCache(t *testing.T) {
	t.Parallel()
	mr, client := newClient(t)
	ctx := context.Background()
	c := NewJSONCache(client, "custody")

	type stats struct {
		Keys   int `json:"keys"`
		Active int `json:"active"`
	}

	var got stats
	hit, err := c.Get(ctx, "dashboard", &got)
	require.NoError(t, err)
	assert.False(t, hit)

	require.NoError(t, c.Set(ctx, "dashboard", stats{Keys: 4, Active: 1}, 30*time.Second))
	hit, err = c.Get(ctx, "dashboard", &got)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, stats{Keys: 4, Active: 1}, got)

	mr.FastForward(31 * time.Second)
	hit, err = c.Get(ctx, "dashboard", &got)
	require.NoError(t, err)
	assert.False(t, hit)

	require.NoError(t, c.Set(ctx, "dashboard", stats{}, time.Minute))
	require.NoError(t, c.Delete(ctx, "dashboard"))
	assert.False(t, mr.Exists("custody:cache:dashboard"))
}
