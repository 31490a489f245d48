package matchqueue

import (
	"context"
	"errors"

	"github.com/Aidin1998/teammatch/pkg/models"
	"github.com/redis/go-redis/v9"
)

// RedisStore keeps each queue in a Redis list, shared by every service instance.
type RedisStore struct {
	rdb    redis.UniversalClient
	prefix string
}

// NewRedisStore creates a store whose list keys look like "<prefix>:<event>:<region>"
func NewRedisStore(rdb redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &RedisStore{rdb: rdb, prefix: prefix}
}

func (s *RedisStore) listKey(key QueueKey) string {
	return s.prefix + ":" + key.String()
}

func (s *RedisStore) Push(ctx context.Context, key QueueKey, req models.MatchRequest) error {
	data, err := encodeRequest(req)
	if err != nil {
		return err
	}
	if err := s.rdb.RPush(ctx, s.listKey(key), data).Err(); err != nil {
		return unavailable("push", key, err)
	}
	return nil
}

func (s *RedisStore) Size(ctx context.Context, key QueueKey) (int64, error) {
	n, err := s.rdb.LLen(ctx, s.listKey(key)).Result()
	if err != nil {
		return 0, unavailable("size", key, err)
	}
	return n, nil
}

func (s *RedisStore) Pop(ctx context.Context, key QueueKey) (models.MatchRequest, bool, error) {
	data, err := s.rdb.LPop(ctx, s.listKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.MatchRequest{}, false, nil
	}
	if err != nil {
		return models.MatchRequest{}, false, unavailable("pop", key, err)
	}
	req, err := decodeRequest(data)
	if err != nil {
		return models.MatchRequest{}, false, err
	}
	return req, true, nil
}

func (s *RedisStore) PushFront(ctx context.Context, key QueueKey, req models.MatchRequest) error {
	data, err := encodeRequest(req)
	if err != nil {
		return err
	}
	if err := s.rdb.LPush(ctx, s.listKey(key), data).Err(); err != nil {
		return unavailable("push-front", key, err)
	}
	return nil
}
