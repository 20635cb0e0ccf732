package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"diagnostics/internal/model"
)

// GenerationFlagCache guards the one-time report generation trigger per student
type GenerationFlagCache interface {
	// Claim stores the flag only if it is absent and reports whether this call set it
	Claim(ctx context.Context, studentID string, claim *model.GenerationClaim) (bool, error)
	Get(ctx context.Context, studentID string) (*model.GenerationClaim, error)
	Release(ctx context.Context, studentID string) error
}

type generationFlagCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewGenerationFlagCache creates the claim flag cache
func NewGenerationFlagCache(client *redis.Client, ttl time.Duration) GenerationFlagCache {
	return &generationFlagCache{
		client: client,
		ttl:    ttl,
	}
}

func generationKey(studentID string) string {
	return fmt.Sprintf("diagnostic:student:%s:generation", studentID)
}

// Claim uses SET NX so the check and the claim are one atomic operation
func (c *generationFlagCache) Claim(ctx context.Context, studentID string, claim *model.GenerationClaim) (bool, error) {
	data, err := json.Marshal(claim)
	if err != nil {
		return false, err
	}
	return c.client.SetNX(ctx, generationKey(studentID), data, c.ttl).Result()
}

func (c *generationFlagCache) Get(ctx context.Context, studentID string) (*model.GenerationClaim, error) {
	data, err := c.client.Get(ctx, generationKey(studentID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var claim model.GenerationClaim
	if err := json.Unmarshal(data, &claim); err != nil {
		return nil, err
	}
	return &claim, nil
}

func (c *generationFlagCache) Release(ctx context.Context, studentID string) error {
	return c.client.Del(ctx, generationKey(studentID)).Err()
}
