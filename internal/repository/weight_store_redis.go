package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"SignalPulse/internal/domain/models"
	"SignalPulse/internal/domain/repository"
	"SignalPulse/pkg/cache"
)

var ErrSaveInProgress = errors.New("weights save already in progress")

// RedisWeightStore keeps the learner snapshot as one JSON value. Writers
// take a short SETNX lock so two instances never interleave a save.
type RedisWeightStore struct {
	cache   cache.Service
	key     string
	lockTTL time.Duration
}

func NewRedisWeightStore(c cache.Service, key string) *RedisWeightStore {
	return &RedisWeightStore{cache: c, key: key, lockTTL: 10 * time.Second}
}

func (s *RedisWeightStore) Load(ctx context.Context) (models.WeightState, error) {
	var st models.WeightState
	if err := s.cache.Get(ctx, s.key, &st); err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return models.WeightState{}, models.ErrNoData
		}
		return models.WeightState{}, fmt.Errorf("load weights: %w", err)
	}
	return st, nil
}

func (s *RedisWeightStore) Save(ctx context.Context, st models.WeightState) error {
	lockKey := s.key + ":lock"
	ok, err := s.cache.TryLock(ctx, lockKey, s.lockTTL)
	if err != nil {
		return fmt.Errorf("lock weights: %w", err)
	}
	if !ok {
		return ErrSaveInProgress
	}
	defer func() { _ = s.cache.Unlock(context.WithoutCancel(ctx), lockKey) }()

	if err := s.cache.Set(ctx, s.key, st, 0); err != nil {
		return fmt.Errorf("save weights: %w", err)
	}
	return nil
}

func (s *RedisWeightStore) Close() error {
	return s.cache.Close()
}

var _ repository.WeightStore = (*RedisWeightStore)(nil)
