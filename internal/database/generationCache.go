package database

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/yurufuwayuya/visual-prompt-builder/internal/entity"
)

const generationKeyPrefix = "generation:"

type redisGenerationCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewGenerationCache(client *redis.Client, ttl time.Duration) GenerationCache {
	return &redisGenerationCache{client: client, ttl: ttl}
}

func (c *redisGenerationCache) Get(ctx context.Context, key string) (*entity.CachedGenerationRecord, bool, error) {
	data, err := c.client.Get(ctx, generationKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var record entity.CachedGenerationRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, false, err
	}
	return &record, true, nil
}

func (c *redisGenerationCache) Set(ctx context.Context, key string, record *entity.CachedGenerationRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return err
	}

	return c.client.Set(ctx, generationKeyPrefix+key, data, c.ttl).Err()
}
