package cache

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digkill/TGContentBot/internal/models"
)

func newTestCache(t *testing.T, ttl time.Duration) (*ImageCache, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return NewImageCache(rdb, ttl), mr
}

func TestImageCache_RoundTripAndNormalizedKey(t *testing.T) {
	c, mr := newTestCache(t, time.Hour)
	ctx := context.Background()

	_, ok, err := c.Get(ctx, "coffee")
	require.NoError(t, err)
	assert.False(t, ok)

	images := []models.Image{{ID: "1", URL: "https://img/1", Source: "unsplash", Author: "Ann"}}
	require.NoError(t, c.Set(ctx, "  Coffee   Shop ", images))

	got, ok, err := c.Get(ctx, "coffee shop")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, images, got)
	assert.True(t, mr.Exists("contentbot:images:coffee shop"))
}

func TestImageCache_Expires(t *testing.T) {
	c, mr := newTestCache(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "tea", []models.Image{{ID: "t"}}))
	mr.FastForward(2 * time.Minute)

	_, ok, err := c.Get(ctx, "tea")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestConnect(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	rdb, err := Connect(context.Background(), "redis://"+mr.Addr()+"/0")
	require.NoError(t, err)
	_ = rdb.Close()

	_, err = Connect(context.Background(), "not a url")
	require.Error(t, err)
}
