package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/esinanturan/Acontext/internal/errors"
)

// keyPrefix namespaces lock keys in a shared Redis instance.
const keyPrefix = "lock.skill_learn."

// releaseScript deletes the lock only when the caller still holds it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// renewScript refreshes the TTL only when the caller still holds the lock.
var renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// RedisService implements Service on a Redis instance using the SET NX EX
// acquisition pattern with a per-grant token value; renewal and release run
// as scripts so the token compare and the write are atomic.
type RedisService struct {
	client *redis.Client
}

// NewRedisService creates a RedisService from a redis URL
// (e.g. "redis://127.0.0.1:6379").
func NewRedisService(address string) (*RedisService, error) {
	if address == "" {
		address = "redis://127.0.0.1:6379"
	}
	options, err := redis.ParseURL(address)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return &RedisService{client: redis.NewClient(options)}, nil
}

// RedisKey builds the namespaced Redis key for a lease key. Exported so
// stores sharing the Redis instance can compare lease tokens inside their
// own scripts.
func RedisKey(key string) string {
	return keyPrefix + key
}

func lockKey(key string) string {
	return RedisKey(key)
}

// Acquire attempts SET key token NX EX ttl.
func (s *RedisService) Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, error) {
	token := NewToken()
	ok, err := s.client.SetNX(ctx, lockKey(key), token, ttl).Result()
	if err != nil {
		return Lease{}, fmt.Errorf("acquire %s: %w", key, err)
	}
	if !ok {
		return Lease{}, errors.ErrLockDenied
	}
	return Lease{Key: key, Token: token, TTL: ttl}, nil
}

// Renew refreshes the TTL if the token still holds the key.
func (s *RedisService) Renew(ctx context.Context, lease Lease) error {
	renewed, err := renewScript.Run(ctx, s.client,
		[]string{lockKey(lease.Key)}, lease.Token, lease.TTL.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("renew %s: %w", lease.Key, err)
	}
	if renewed == 0 {
		return errors.ErrLeaseExpired
	}
	return nil
}

// Release deletes the key if the token still holds it. Releasing a lease
// that already expired is not an error.
func (s *RedisService) Release(ctx context.Context, lease Lease) error {
	if _, err := releaseScript.Run(ctx, s.client,
		[]string{lockKey(lease.Key)}, lease.Token).Int(); err != nil {
		return fmt.Errorf("release %s: %w", lease.Key, err)
	}
	return nil
}

// Holder returns the token currently holding key, or "" when unheld.
func (s *RedisService) Holder(ctx context.Context, key string) (string, error) {
	token, err := s.client.Get(ctx, lockKey(key)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("holder %s: %w", key, err)
	}
	return token, nil
}

// Close releases the underlying Redis connection.
func (s *RedisService) Close() error {
	return s.client.Close()
}
