package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/selcuk9494/react-sub001/internal/domain"
)

type RedisBranchCache struct {
	client *redis.Client
}

func NewRedisBranchCache(addr string, password string, db int) *RedisBranchCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisBranchCache{client: client}
}

func (c *RedisBranchCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisBranchCache) Close() error {
	return c.client.Close()
}

func (c *RedisBranchCache) Get(ctx context.Context, userID int64) ([]domain.BranchSummary, bool, error) {
	val, err := c.client.Get(ctx, branchKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var branches []domain.BranchSummary
	if err := json.Unmarshal(val, &branches); err != nil {
		return nil, false, err
	}
	return branches, true, nil
}

func (c *RedisBranchCache) Set(ctx context.Context, userID int64, branches []domain.BranchSummary, ttl time.Duration) error {
	if branches == nil {
		branches = []domain.BranchSummary{}
	}
	payload, err := json.Marshal(branches)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, branchKey(userID), payload, ttl).Err()
}

func (c *RedisBranchCache) Invalidate(ctx context.Context, userID int64) error {
	return c.client.Del(ctx, branchKey(userID)).Err()
}
