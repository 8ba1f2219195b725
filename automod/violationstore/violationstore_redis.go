package violationstore

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

var redisViolationPrefix = "automod/violations/"

// Stores each user as a redis hash with "count", "banned" and "last_ms" fields.
type RedisStore struct {
	Client *redis.Client
	// expiry of a user's hash after the last save; zero means keep forever
	TTL time.Duration
}

var _ Store = (*RedisStore)(nil)

func NewRedisStore(redisURL string) (*RedisStore, error) {
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
	return &RedisStore{Client: rdb}, nil
}

func redisViolationKey(guildID, userID string) string {
	return redisViolationPrefix + guildID + "/" + userID
}

func (s *RedisStore) Load(ctx context.Context, guildID, userID string) (*UserState, error) {
	vals, err := s.Client.HGetAll(ctx, redisViolationKey(guildID, userID)).Result()
	if err != nil {
		return nil, err
	}
	if len(vals) == 0 {
		return nil, ErrNotFound
	}
	st := UserState{GuildID: guildID, UserID: userID}
	if st.Count, err = strconv.Atoi(vals["count"]); err != nil {
		return nil, err
	}
	st.Banned = vals["banned"] == "1"
	if ms, err := strconv.ParseInt(vals["last_ms"], 10, 64); err == nil && ms > 0 {
		st.LastViolationAt = time.UnixMilli(ms)
	}
	return &st, nil
}

func (s *RedisStore) Save(ctx context.Context, st UserState) error {
	key := redisViolationKey(st.GuildID, st.UserID)
	banned := "0"
	if st.Banned {
		banned = "1"
	}
	var lastMs int64
	if !st.LastViolationAt.IsZero() {
		lastMs = st.LastViolationAt.UnixMilli()
	}

	// write all fields and the expiry in a single redis round-trip
	multi := s.Client.TxPipeline()
	multi.HSet(ctx, key, "count", st.Count, "banned", banned, "last_ms", lastMs)
	if s.TTL > 0 {
		multi.Expire(ctx, key, s.TTL)
	}
	_, err := multi.Exec(ctx)
	return err
}

func (s *RedisStore) Delete(ctx context.Context, guildID, userID string) error {
	return s.Client.Del(ctx, redisViolationKey(guildID, userID)).Err()
}
