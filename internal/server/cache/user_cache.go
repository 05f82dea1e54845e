// Package cache keeps short-lived copies of user identities in Redis so the
// access gate does not hit the database on every request.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/server/models"
	"github.com/redis/go-redis/v9"
)

const (
	keyUser       = "user:"
	keyGeneration = "user-gen:"
)

// generationTTL outlives any in-flight fill; an expired generation reads as
// "0" and only makes a pending Set fail.
const generationTTL = 24 * time.Hour

// setIfCurrent stores the user only while its generation still equals the
// one read before the load.
const setIfCurrent = `
local gen = redis.call('GET', KEYS[1]) or '0'
if gen ~= ARGV[1] then
	return 0
end
redis.call('SET', KEYS[2], ARGV[2], 'PX', ARGV[3])
return 1
`

// bumpAndDelete advances the generation and drops the cached user.
const bumpAndDelete = `
redis.call('INCR', KEYS[1])
redis.call('PEXPIRE', KEYS[1], ARGV[1])
return redis.call('DEL', KEYS[2])
`

// UserCache stores identities. Cached users never carry the password hash
// or token fingerprints. Get returns (nil, nil) on a miss.
//
// Fills are versioned: read Generation before loading the user from the
// store and pass it to Set. An Invalidate in between makes that Set a no-op,
// so a snapshot taken before a write is never cached after it.
type UserCache interface {
	Get(ctx context.Context, id string) (*models.User, error)
	Generation(ctx context.Context, id string) (string, error)
	Set(ctx context.Context, u *models.User, generation string) error
	Invalidate(ctx context.Context, id string) error
}

// kv is the subset of *redis.Client used here.
type kv interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Eval(ctx context.Context, script string, keys []string, args ...any) *redis.Cmd
}

type RedisUserCache struct {
	rdb kv
	ttl time.Duration
}

const defaultTTL = 5 * time.Minute

func NewRedisUserCache(rdb *redis.Client, ttl time.Duration) *RedisUserCache {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &RedisUserCache{rdb: rdb, ttl: ttl}
}

func (c *RedisUserCache) Get(ctx context.Context, id string) (*models.User, error) {
	b, err := c.rdb.Get(ctx, keyUser+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	u := &models.User{}
	if err := json.Unmarshal(b, u); err != nil {
		return nil, err
	}
	return u, nil
}

func (c *RedisUserCache) Generation(ctx context.Context, id string) (string, error) {
	gen, err := c.rdb.Get(ctx, keyGeneration+id).Result()
	if errors.Is(err, redis.Nil) {
		return "0", nil
	}
	return gen, err
}

func (c *RedisUserCache) Set(ctx context.Context, u *models.User, generation string) error {
	b, err := json.Marshal(u)
	if err != nil {
		return err
	}
	keys := []string{keyGeneration + u.ID, keyUser + u.ID}
	return c.rdb.Eval(ctx, setIfCurrent, keys, generation, b, c.ttl.Milliseconds()).Err()
}

func (c *RedisUserCache) Invalidate(ctx context.Context, id string) error {
	keys := []string{keyGeneration + id, keyUser + id}
	return c.rdb.Eval(ctx, bumpAndDelete, keys, generationTTL.Milliseconds()).Err()
}

// Nop is the UserCache used when Redis is not configured.
type Nop struct{}

func (Nop) Get(context.Context, string) (*models.User, error)  { return nil, nil }
func (Nop) Generation(context.Context, string) (string, error) { return "0", nil }
func (Nop) Set(context.Context, *models.User, string) error    { return nil }
func (Nop) Invalidate(context.Context, string) error           { return nil }

// Connect opens a Redis client and pings it.
func Connect(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}

	return client, nil
}
