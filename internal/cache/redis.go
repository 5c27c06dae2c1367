package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	keyPrefix  = "shortlink:code:"
	gonePrefix = "shortlink:gone:"
)

// setUnlessGone writes KEYS[1] only while the tombstone KEYS[2] is absent.
var setUnlessGone = redis.NewScript(`
if redis.call("EXISTS", KEYS[2]) == 1 then
	return 0
end
redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[2])
return 1
`)

// Redis shares cached codes between shortener replicas.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedis(ctx context.Context, addr string, ttl time.Duration) (*Redis, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Redis{client: client, ttl: ttl}, nil
}

func (r *Redis) Get(ctx context.Context, code string) (string, bool) {
	fullURL, err := r.client.Get(ctx, keyPrefix+code).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Warn().Err(err).Str("short_code", code).Msg("redis get failed")
		}
		return "", false
	}
	return fullURL, true
}

func (r *Redis) Set(ctx context.Context, code, fullURL string) {
	keys := []string{keyPrefix + code, gonePrefix + code}
	if err := setUnlessGone.Run(ctx, r.client, keys, fullURL, r.ttl.Milliseconds()).Err(); err != nil {
		log.Warn().Err(err).Str("short_code", code).Msg("redis set failed")
	}
}

func (r *Redis) Delete(ctx context.Context, code string) {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, gonePrefix+code, 1, r.ttl)
		pipe.Del(ctx, keyPrefix+code)
		return nil
	})
	if err != nil {
		log.Warn().Err(err).Str("short_code", code).Msg("redis delete failed")
	}
}

func (r *Redis) Close() error {
	return r.client.Close()
}
