package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/cache/v9"
	"github.com/redis/go-redis/v9"
)

var redisConfigPrefix = "automod/config/"

// Config store shared with the dashboard through redis. Documents are stored as plain JSON under
// "automod/config/<guild-id>", and cached in-process with a TinyLFU for LocalTTL.
type RedisProvider struct {
	Data *cache.Cache
	// TTL for the redis copy. Negative means no expiry; zero falls back to the cache library default (one hour).
	TTL time.Duration
}

var _ Store = (*RedisProvider)(nil)

func NewRedisProvider(redisURL string, localTTL time.Duration) (*RedisProvider, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opt)
	// check redis connection
	_, err = rdb.Ping(context.TODO()).Result()
	if err != nil {
		return nil, err
	}
	return NewRedisProviderClient(rdb, localTTL), nil
}

func NewRedisProviderClient(rdb *redis.Client, localTTL time.Duration) *RedisProvider {
	data := cache.New(&cache.Options{
		Redis:      rdb,
		LocalCache: cache.NewTinyLFU(10_000, localTTL),
		Marshal:    json.Marshal,
		Unmarshal:  json.Unmarshal,
	})
	return &RedisProvider{Data: data, TTL: -1}
}

func redisConfigKey(guildID string) string {
	return redisConfigPrefix + guildID
}

func (p *RedisProvider) GetConfig(ctx context.Context, guildID string) (*GuildAutomodConfig, error) {
	var cfg GuildAutomodConfig
	err := p.Data.Get(ctx, redisConfigKey(guildID), &cfg)
	if errors.Is(err, cache.ErrCacheMiss) {
		d := Default(guildID)
		d.Prepare()
		return d, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetching automod config from redis: %w", err)
	}
	cfg.GuildID = guildID
	cfg.Prepare()
	return &cfg, nil
}

func (p *RedisProvider) PutConfig(ctx context.Context, cfg *GuildAutomodConfig) error {
	if cfg.GuildID == "" {
		return fmt.Errorf("config is missing guild ID")
	}
	return p.Data.Set(&cache.Item{
		Ctx:   ctx,
		Key:   redisConfigKey(cfg.GuildID),
		Value: cfg,
		TTL:   p.TTL,
	})
}

// Drops both the local and redis copy of a guild's config.
func (p *RedisProvider) Purge(ctx context.Context, guildID string) error {
	err := p.Data.Delete(ctx, redisConfigKey(guildID))
	if errors.Is(err, cache.ErrCacheMiss) {
		return nil
	}
	return err
}
