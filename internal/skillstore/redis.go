package skillstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/esinanturan/Acontext/internal/errors"
	"github.com/esinanturan/Acontext/internal/lock"
)

const skillKeyPrefix = "skill."

// writeScript commits the skill document only while the caller's token
// still holds the lock key. Token compare and write run in one script so a
// lease that expires mid-write cannot land a stale commit.
var writeScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	redis.call("SET", KEYS[2], ARGV[2])
	return 1
end
return 0
`)

// RedisStore persists skill documents as JSON values in the same Redis
// instance that backs the lock service.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(address string) (*RedisStore, error) {
	if address == "" {
		address = "redis://127.0.0.1:6379"
	}
	options, err := redis.ParseURL(address)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return &RedisStore{client: redis.NewClient(options)}, nil
}

func skillKey(id uuid.UUID) string {
	return skillKeyPrefix + id.String()
}

func (s *RedisStore) Read(ctx context.Context, id uuid.UUID) (Skill, error) {
	raw, err := s.client.Get(ctx, skillKey(id)).Bytes()
	if err == redis.Nil {
		return Skill{}, errors.ErrSkillNotFound
	}
	if err != nil {
		return Skill{}, fmt.Errorf("read skill %s: %w", id, err)
	}
	var skill Skill
	if err := json.Unmarshal(raw, &skill); err != nil {
		return Skill{}, fmt.Errorf("decode skill %s: %w", id, err)
	}
	return skill, nil
}

func (s *RedisStore) Write(ctx context.Context, id uuid.UUID, content string, lease lock.Lease) error {
	payload, err := json.Marshal(Skill{ID: id, Content: content, UpdatedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("encode skill %s: %w", id, err)
	}
	committed, err := writeScript.Run(ctx, s.client,
		[]string{lock.RedisKey(lease.Key), skillKey(id)}, lease.Token, payload).Int()
	if err != nil {
		return fmt.Errorf("write skill %s: %w", id, err)
	}
	if committed == 0 {
		return errors.ErrLeaseExpired
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
