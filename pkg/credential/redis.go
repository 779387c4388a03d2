package credential

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
)

// DefaultRedisKey is the hash holding the shared credential
const DefaultRedisKey = "noah:credential"

// RedisStore keeps the credential in a Redis hash so several gateway
// instances share one session. Fields are "token" and "token_type".
type RedisStore struct {
	client *redis.Client
	key    string
}

// NewRedisStore connects to addr/db. The connection is lazy; the first
// command reports connectivity errors.
func NewRedisStore(addr string, db int, key string) *RedisStore {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisStore{
		client: redis.NewClient(&redis.Options{Addr: addr, DB: db}),
		key:    key,
	}
}

func (r *RedisStore) Load(ctx context.Context) (Credential, error) {
	vals, err := r.client.HGetAll(ctx, r.key).Result()
	if err != nil {
		return Credential{}, fmt.Errorf("reading credential from redis: %w", err)
	}
	return Credential{
		Token:     vals["token"],
		TokenType: vals["token_type"],
	}, nil
}

func (r *RedisStore) Save(ctx context.Context, c Credential) error {
	if err := r.client.HSet(ctx, r.key, "token", c.Token, "token_type", c.Type()).Err(); err != nil {
		return fmt.Errorf("writing credential to redis: %w", err)
	}
	return nil
}

func (r *RedisStore) Clear(ctx context.Context) error {
	if err := r.client.Del(ctx, r.key).Err(); err != nil {
		return fmt.Errorf("clearing credential in redis: %w", err)
	}
	return nil
}

// Close releases the Redis connection pool
func (r *RedisStore) Close() error {
	return r.client.Close()
}
