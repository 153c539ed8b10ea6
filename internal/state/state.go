package state

import (
	"context"
	"fmt"

	"pagoda/harvester/internal/domain"

	"github.com/redis/go-redis/v9"
)

// RunStateManager remembers which keywords finished, so an interrupted run
// resumes with only the remaining ones.
type RunStateManager interface {
	IsCompleted(ctx context.Context, term domain.SearchTerm) (bool, error)
	MarkCompleted(ctx context.Context, term domain.SearchTerm) error
}

type redisStateManager struct {
	redisClient *redis.Client
	key         string
}

func NewRedisStateManager(redisClient *redis.Client, runID string) RunStateManager {
	return &redisStateManager{
		redisClient: redisClient,
		key:         "pagoda:progress:keywords:" + runID,
	}
}

func (s *redisStateManager) IsCompleted(ctx context.Context, term domain.SearchTerm) (bool, error) {
	done, err := s.redisClient.SIsMember(ctx, s.key, term.String()).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check progress for %q: %w", term, err)
	}
	return done, nil
}

func (s *redisStateManager) MarkCompleted(ctx context.Context, term domain.SearchTerm) error {
	if err := s.redisClient.SAdd(ctx, s.key, term.String()).Err(); err != nil {
		return fmt.Errorf("failed to mark %q completed: %w", term, err)
	}
	return nil
}
