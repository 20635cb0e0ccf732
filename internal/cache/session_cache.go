package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"diagnostics/internal/model"
)

// SessionStateCache holds the cached projection of each diagnostic session.
// Every read and write refreshes the TTL.
type SessionStateCache interface {
	Set(ctx context.Context, state *model.SessionState) error
	Get(ctx context.Context, sessionID string) (*model.SessionState, error)
	Delete(ctx context.Context, sessionID string) error
}

type sessionStateCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewSessionStateCache creates a session state cache
func NewSessionStateCache(client *redis.Client, ttl time.Duration) SessionStateCache {
	return &sessionStateCache{
		client: client,
		ttl:    ttl,
	}
}

func sessionStateKey(sessionID string) string {
	return fmt.Sprintf("diagnostic:session:%s:state", sessionID)
}

func (c *sessionStateCache) Set(ctx context.Context, state *model.SessionState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, sessionStateKey(state.SessionID), data, c.ttl).Err()
}

// Get returns nil, nil on a cache miss
func (c *sessionStateCache) Get(ctx context.Context, sessionID string) (*model.SessionState, error) {
	data, err := c.client.GetEx(ctx, sessionStateKey(sessionID), c.ttl).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var state model.SessionState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

func (c *sessionStateCache) Delete(ctx context.Context, sessionID string) error {
	return c.client.Del(ctx, sessionStateKey(sessionID)).Err()
}
