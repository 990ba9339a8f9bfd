package dedup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/spec-kit/incident-service/internal/domain"
)

const redisKeyPrefix = "incident:submission:"

// RedisCache shares submission records between service instances. Keys
// expire server-side after ttl.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache wraps an existing client.
func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisCache{client: client, ttl: ttl}
}

func (c *RedisCache) Get(ctx context.Context, fingerprint string) (domain.SubmissionRecord, bool, error) {
	raw, err := c.client.Get(ctx, redisKeyPrefix+fingerprint).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.SubmissionRecord{}, false, nil
	}
	if err != nil {
		return domain.SubmissionRecord{}, false, fmt.Errorf("redis get: %w", err)
	}
	var record domain.SubmissionRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return domain.SubmissionRecord{}, false, fmt.Errorf("decode submission record: %w", err)
	}
	return record, true, nil
}

// Put stores the record unless another instance already remembered the
// same fingerprint; the first accepted result stays authoritative.
func (c *RedisCache) Put(ctx context.Context, record domain.SubmissionRecord) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode submission record: %w", err)
	}
	if err := c.client.SetNX(ctx, redisKeyPrefix+record.Fingerprint, payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis setnx: %w", err)
	}
	return nil
}

var _ Cache = (*RedisCache)(nil)
