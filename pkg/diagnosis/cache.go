package diagnosis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/synaptica-ai/triage/pkg/engine"
)

const cacheKeyPrefix = "triage:result"

// ResultCache stores encoded results by key. A miss is (nil, false, nil).
type ResultCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

type RedisCache struct {
	client *redis.Client
}

func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	value, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.client.Set(ctx, key, value, ttl).Err()
}

// cachedResult is what the cache holds: the scorer output and which scorer
// produced it. Session ids are never cached.
type cachedResult struct {
	Source string        `json:"source"`
	Result engine.Result `json:"result"`
}

type cacheKeyInput struct {
	Initial  bool            `json:"initial"`
	Sex      string          `json:"sex"`
	Age      int             `json:"age"`
	Evidence []engine.Answer `json:"evidence"`
}

// resultCacheKey hashes the JSON encoding of the normalized request, so ids
// containing separator characters cannot alias another request. The catalog
// fingerprint is part of the key, so reloading a changed catalog starts a
// fresh keyspace.
func resultCacheKey(fingerprint string, initial bool, p engine.Patient, answers []engine.Answer) string {
	payload, _ := json.Marshal(cacheKeyInput{Initial: initial, Sex: p.Sex, Age: p.Age, Evidence: answers})
	sum := sha256.Sum256(payload)
	return fmt.Sprintf("%s:%s:%s", cacheKeyPrefix, fingerprint, hex.EncodeToString(sum[:16]))
}
