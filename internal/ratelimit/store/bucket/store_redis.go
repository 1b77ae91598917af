package bucket

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"talentgate/internal/domain"
	"talentgate/internal/ratelimit/models"
	"talentgate/pkg/platform/sentinel"
)

const redisKeyPrefix = "talentgate:bucket:"

// casAttempts bounds the optimistic WATCH/MULTI retry loop.
const casAttempts = 5

// RedisStore implements Store on Redis so multiple engine instances share
// one bucket per provider. State is a hash {tokens, last_refill_ns} updated
// under WATCH so concurrent acquires never jointly overdraw.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a Redis-backed bucket store.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Acquire refills the bucket for key and takes cost tokens if available.
func (s *RedisStore) Acquire(ctx context.Context, key string, cfg domain.BucketConfig, cost float64, now time.Time) (models.BucketState, bool, error) {
	var (
		result   models.BucketState
		admitted bool
	)
	redisKey := redisKeyPrefix + key

	txn := func(tx *redis.Tx) error {
		state, err := readState(ctx, tx, redisKey)
		if err != nil {
			return err
		}
		state = refill(state, cfg, now)

		admitted = state.Tokens >= cost
		if admitted {
			state.Tokens -= cost
		}
		result = state

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, redisKey, map[string]any{
				"tokens":         strconv.FormatFloat(state.Tokens, 'f', -1, 64),
				"last_refill_ns": strconv.FormatInt(state.LastRefill.UnixNano(), 10),
			})
			return nil
		})
		return err
	}

	for range casAttempts {
		err := s.client.Watch(ctx, txn, redisKey)
		if err == nil {
			return result, admitted, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return models.BucketState{}, false, fmt.Errorf("redis bucket acquire: %w", err)
	}
	return models.BucketState{}, false, fmt.Errorf("redis bucket acquire: %w", sentinel.ErrConflict)
}

// Snapshot returns the refilled state without consuming tokens.
func (s *RedisStore) Snapshot(ctx context.Context, key string, cfg domain.BucketConfig, now time.Time) (models.BucketState, error) {
	state, err := readState(ctx, s.client, redisKeyPrefix+key)
	if err != nil {
		return models.BucketState{}, fmt.Errorf("redis bucket snapshot: %w", err)
	}
	return refill(state, cfg, now), nil
}

type hashGetter interface {
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
}

func readState(ctx context.Context, c hashGetter, redisKey string) (models.BucketState, error) {
	fields, err := c.HGetAll(ctx, redisKey).Result()
	if err != nil {
		return models.BucketState{}, err
	}
	if len(fields) == 0 {
		return models.BucketState{}, nil
	}

	tokens, err := strconv.ParseFloat(fields["tokens"], 64)
	if err != nil {
		return models.BucketState{}, fmt.Errorf("corrupt bucket tokens: %w", err)
	}
	refillNS, err := strconv.ParseInt(fields["last_refill_ns"], 10, 64)
	if err != nil {
		return models.BucketState{}, fmt.Errorf("corrupt bucket refill time: %w", err)
	}
	return models.BucketState{Tokens: tokens, LastRefill: time.Unix(0, refillNS)}, nil
}
