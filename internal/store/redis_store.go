package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/resolutinsurance/ipap-insurance-agent-sub001/internal/domain"
)

// maxOptimisticAttempts bounds WATCH/MULTI contention on a single flow key.
// It only guards concurrent writers; it is not a user-facing retry.
const maxOptimisticAttempts = 5

// RedisStore persists flow state as JSON under per-flow keys with a TTL that is
// refreshed on every write.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

func NewRedisStore(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisStore {
	trimmedPrefix := strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if trimmedPrefix == "" {
		trimmedPrefix = "ipap:portal"
	}
	return &RedisStore{client: client, prefix: trimmedPrefix, ttl: ttl}
}

func (s *RedisStore) key(key FlowKey) string {
	return fmt.Sprintf("%s:flow:%s:%s", s.prefix, key.AgentID, key.Variant)
}

func (s *RedisStore) Get(ctx context.Context, key FlowKey) (domain.PaymentVerificationState, error) {
	if err := key.Validate(); err != nil {
		return domain.PaymentVerificationState{}, err
	}
	raw, err := s.client.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.PaymentVerificationState{}, ErrStateNotFound
	}
	if err != nil {
		return domain.PaymentVerificationState{}, fmt.Errorf("failed to read flow state: %w", err)
	}

	var state domain.PaymentVerificationState
	if err := json.Unmarshal(raw, &state); err != nil {
		return domain.PaymentVerificationState{}, fmt.Errorf("failed to decode flow state: %w", err)
	}
	return state, nil
}

func (s *RedisStore) Update(ctx context.Context, key FlowKey, fn Mutator) (domain.PaymentVerificationState, error) {
	if err := key.Validate(); err != nil {
		return domain.PaymentVerificationState{}, err
	}
	redisKey := s.key(key)

	var next domain.PaymentVerificationState
	txf := func(tx *redis.Tx) error {
		current := domain.PaymentVerificationState{}
		raw, err := tx.Get(ctx, redisKey).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return fmt.Errorf("failed to read flow state: %w", err)
		default:
			if err := json.Unmarshal(raw, &current); err != nil {
				return fmt.Errorf("failed to decode flow state: %w", err)
			}
		}

		updated, err := applyMutator(current, fn, time.Now().UTC())
		if err != nil {
			return err
		}
		encoded, err := json.Marshal(updated)
		if err != nil {
			return fmt.Errorf("failed to encode flow state: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, redisKey, encoded, s.ttl)
			return nil
		})
		if err == nil {
			next = updated
		}
		return err
	}

	for attempt := 1; attempt <= maxOptimisticAttempts; attempt++ {
		err := s.client.Watch(ctx, txf, redisKey)
		if err == nil {
			return next, nil
		}
		if !errors.Is(err, redis.TxFailedErr) {
			return domain.PaymentVerificationState{}, err
		}
		log.Printf("level=warn component=flow_store backend=redis msg=\"concurrent flow update; retrying\" key=%s attempt=%d", redisKey, attempt)
	}
	return domain.PaymentVerificationState{}, fmt.Errorf("flow state update for %s lost %d optimistic races", key, maxOptimisticAttempts)
}

func (s *RedisStore) Clear(ctx context.Context, key FlowKey) error {
	if err := key.Validate(); err != nil {
		return err
	}
	return s.client.Del(ctx, s.key(key)).Err()
}

func (s *RedisStore) ClearAgent(ctx context.Context, agentID string) error {
	if agentID == "" {
		return ErrInvalidKey
	}
	keys := make([]string, 0, len(domain.AllVariants))
	for _, variant := range domain.AllVariants {
		keys = append(keys, s.key(FlowKey{AgentID: agentID, Variant: variant}))
	}
	return s.client.Del(ctx, keys...).Err()
}

// PurgeExpired is a no-op: redis expires keys on its own.
func (s *RedisStore) PurgeExpired(ctx context.Context) (int, error) {
	return 0, nil
}
