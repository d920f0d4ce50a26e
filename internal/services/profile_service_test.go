package services

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yoockh/fitcoach/internal/cache"
	"github.com/yoockh/fitcoach/internal/logger"
	"github.com/yoockh/fitcoach/internal/models"
	"github.com/yoockh/fitcoach/internal/utils"
)

type mapCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (c *mapCache) GetJSON(ctx context.Context, key string, dst any) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.data[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(b, dst)
}

func (c *mapCache) SetJSON(ctx context.Context, key string, val any, ttl time.Duration) error {
	b, err := json.Marshal(val)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = b
	return nil
}

func (c *mapCache) Del(ctx context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.data, k)
	}
	return nil
}

func TestProfileServiceReadThroughCache(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	c := &mapCache{data: map[string][]byte{}}
	svc := NewProfileService(memProfileRepo{store}, c, time.Minute, logger.Discard())

	_, err := svc.GetCurrent(ctx, userA)
	assert.True(t, utils.IsCode(err, utils.CodeNotFound))

	store.profiles[userA] = models.Profile{UserID: userA, ConversationID: "intake-1", Data: []byte(`{"goals":{"primary":"strength"}}`)}
	p, err := svc.GetCurrent(ctx, userA)
	require.NoError(t, err)
	assert.Equal(t, "intake-1", p.ConversationID)
	assert.Contains(t, c.data, cache.ProfileKey(userA))

	// stale until invalidated
	store.profiles[userA] = models.Profile{UserID: userA, ConversationID: "update-1", Data: []byte(`{"goals":{"primary":"endurance"}}`)}
	p, err = svc.GetCurrent(ctx, userA)
	require.NoError(t, err)
	assert.Equal(t, "intake-1", p.ConversationID)

	svc.Invalidate(ctx, userA)
	p, err = svc.GetCurrent(ctx, userA)
	require.NoError(t, err)
	assert.Equal(t, "update-1", p.ConversationID)

	doc, err := profileData("test", p)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"primary": "endurance"}, doc["goals"])
}

func TestProfileServiceRequiresUser(t *testing.T) {
	svc := NewProfileService(memProfileRepo{newMemStore()}, nil, time.Minute, logger.Discard())
	_, err := svc.GetCurrent(context.Background(), "")
	assert.True(t, utils.IsCode(err, utils.CodeInvalidArgument))
}
