package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/digkill/TGContentBot/internal/models"
)

const keyPrefix = "contentbot:images:"

// ImageCache keeps stock photo search results per query.
type ImageCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// Connect parses a redis:// URL and pings the server.
func Connect(ctx context.Context, rawURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return rdb, nil
}

func NewImageCache(rdb *redis.Client, ttl time.Duration) *ImageCache {
	if ttl <= 0 {
		ttl = 6 * time.Hour
	}
	return &ImageCache{rdb: rdb, ttl: ttl}
}

func (c *ImageCache) Get(ctx context.Context, query string) ([]models.Image, bool, error) {
	raw, err := c.rdb.Get(ctx, cacheKey(query)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get cached images: %w", err)
	}
	var images []models.Image
	if err := json.Unmarshal(raw, &images); err != nil {
		return nil, false, fmt.Errorf("decode cached images: %w", err)
	}
	return images, true, nil
}

func (c *ImageCache) Set(ctx context.Context, query string, images []models.Image) error {
	raw, err := json.Marshal(images)
	if err != nil {
		return fmt.Errorf("encode images: %w", err)
	}
	if err := c.rdb.Set(ctx, cacheKey(query), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache images: %w", err)
	}
	return nil
}

func cacheKey(query string) string {
	return keyPrefix + strings.ToLower(strings.Join(strings.Fields(query), " "))
}
