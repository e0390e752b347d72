package fetcher

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const cachePrefix = "carbitrage:html:"

// RedisConfig addresses the HTML cache.
type RedisConfig struct {
	Address  string
	Password string
	DB       int
}

// NewRedisClient builds the client used by CachedFetcher.
func NewRedisClient(cfg RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
}

// CachedFetcher serves repeated page fetches from redis. Only successful,
// non-banned responses are stored. Cache errors never fail a fetch.
type CachedFetcher struct {
	next   Fetcher
	client *redis.Client
	ttl    time.Duration
	log    *zap.Logger
}

// NewCachedFetcher wraps next.
func NewCachedFetcher(next Fetcher, client *redis.Client, ttl time.Duration, log *zap.Logger) *CachedFetcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &CachedFetcher{next: next, client: client, ttl: ttl, log: log}
}

// CacheKey is the redis key for a URL at a profile level.
func CacheKey(req Request) string {
	sum := sha256.Sum256([]byte(req.URL))
	return fmt.Sprintf("%s%d:%s", cachePrefix, ClampProfile(req.Profile), hex.EncodeToString(sum[:]))
}

func (c *CachedFetcher) Fetch(ctx context.Context, req Request) (Response, error) {
	key := CacheKey(req)
	html, err := c.client.Get(ctx, key).Result()
	switch {
	case err == nil && html != "":
		c.log.Debug("html cache hit", zap.String("url", req.URL), zap.Int("profile", req.Profile))
		return Response{HTML: html, StatusCode: 200}, nil
	case err != nil && !errors.Is(err, redis.Nil):
		c.log.Warn("html cache read failed", zap.String("url", req.URL), zap.Error(err))
	}

	resp, err := c.next.Fetch(ctx, req)
	if err != nil || resp.Banned || resp.HTML == "" {
		return resp, err
	}
	if err := c.client.Set(ctx, key, resp.HTML, c.ttl).Err(); err != nil {
		c.log.Warn("html cache write failed", zap.String("url", req.URL), zap.Error(err))
	}
	return resp, nil
}
