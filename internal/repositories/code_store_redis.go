package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/BradenHooton/authgate/internal/auth"
	"github.com/BradenHooton/authgate/internal/models"
	"github.com/redis/go-redis/v9"
)

const (
	codeKeyPrefix    = "authgate"
	markUsedRetries  = 4
	minimumRecordTTL = time.Second
)

// RedisCodeStore keeps one-time codes and WebAuthn challenges in Redis.
// Each record lives until ExpiresAt plus the grace period.
type RedisCodeStore struct {
	redis *redis.Client
	grace time.Duration
	clock auth.Clock
}

func NewRedisCodeStore(client *redis.Client, clock auth.Clock, grace time.Duration) *RedisCodeStore {
	if grace <= 0 {
		grace = DefaultCodeGrace
	}
	return &RedisCodeStore{redis: client, grace: grace, clock: clock}
}

func otpKey(id string) string {
	return codeKeyPrefix + ":otp:" + id
}

func otpSubjectKey(subject, purpose string) string {
	return codeKeyPrefix + ":otp:subject:" + subject + ":" + purpose
}

func challengeKey(id string) string {
	return codeKeyPrefix + ":challenge:" + id
}

func (s *RedisCodeStore) ttl(expiresAt time.Time) time.Duration {
	ttl := expiresAt.Add(s.grace).Sub(s.clock.Now())
	if ttl < minimumRecordTTL {
		return minimumRecordTTL
	}
	return ttl
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
}

func (s *RedisCodeStore) PutOTP(ctx context.Context, code *models.OneTimeCode) error {
	encoded, err := json.Marshal(code)
	if err != nil {
		return err
	}

	ttl := s.ttl(code.ExpiresAt)
	indexKey := otpSubjectKey(code.Subject, code.Purpose)

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, otpKey(code.ID), encoded, ttl)
		pipe.SAdd(ctx, indexKey, code.ID)
		pipe.Expire(ctx, indexKey, ttl)
		return nil
	})
	if err != nil {
		return unavailable(err)
	}
	return nil
}

// ListOTPs returns the live codes for subject and purpose, oldest first.
// Ids whose records have already been evicted are pruned from the index.
func (s *RedisCodeStore) ListOTPs(ctx context.Context, subject, purpose string) ([]*models.OneTimeCode, error) {
	indexKey := otpSubjectKey(subject, purpose)

	ids, err := s.redis.SMembers(ctx, indexKey).Result()
	if err != nil {
		return nil, unavailable(err)
	}

	codes := make([]*models.OneTimeCode, 0, len(ids))
	if len(ids) == 0 {
		return codes, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = otpKey(id)
	}

	values, err := s.redis.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, unavailable(err)
	}

	stale := make([]interface{}, 0)
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			stale = append(stale, ids[i])
			continue
		}
		var code models.OneTimeCode
		if err := json.Unmarshal([]byte(raw), &code); err != nil {
			return nil, fmt.Errorf("failed to decode otp record: %w", err)
		}
		codes = append(codes, &code)
	}

	if len(stale) > 0 {
		s.redis.SRem(ctx, indexKey, stale...)
	}

	sort.Slice(codes, func(i, j int) bool {
		return codes[i].CreatedAt.Before(codes[j].CreatedAt)
	})
	return codes, nil
}

func (s *RedisCodeStore) PutChallenge(ctx context.Context, challenge *models.Challenge) error {
	encoded, err := json.Marshal(challenge)
	if err != nil {
		return err
	}

	if err := s.redis.Set(ctx, challengeKey(challenge.ID), encoded, s.ttl(challenge.ExpiresAt)).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

func (s *RedisCodeStore) GetChallenge(ctx context.Context, id string) (*models.Challenge, error) {
	data, err := s.redis.Get(ctx, challengeKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, unavailable(err)
	}

	var challenge models.Challenge
	if err := json.Unmarshal(data, &challenge); err != nil {
		return nil, fmt.Errorf("failed to decode challenge record: %w", err)
	}
	return &challenge, nil
}

// MarkUsed flips the used flag under WATCH so only one concurrent caller wins
func (s *RedisCodeStore) MarkUsed(ctx context.Context, id string) error {
	keys := []string{otpKey(id), challengeKey(id)}

	for i := 0; i < markUsedRetries; i++ {
		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			for _, key := range keys {
				data, err := tx.Get(ctx, key).Bytes()
				if errors.Is(err, redis.Nil) {
					continue
				}
				if err != nil {
					return err
				}
				return markRecordUsed(ctx, tx, key, data)
			}
			return models.ErrNotFound
		}, keys...)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			if errors.Is(err, models.ErrNotFound) || errors.Is(err, models.ErrAlreadyUsed) {
				return err
			}
			return unavailable(err)
		}
		return nil
	}

	// every retry lost the race to another consumer
	return models.ErrAlreadyUsed
}

func markRecordUsed(ctx context.Context, tx *redis.Tx, key string, data []byte) error {
	var record map[string]json.RawMessage
	if err := json.Unmarshal(data, &record); err != nil {
		return fmt.Errorf("failed to decode record: %w", err)
	}

	var used bool
	if raw, ok := record["used"]; ok {
		if err := json.Unmarshal(raw, &used); err != nil {
			return fmt.Errorf("failed to decode used flag: %w", err)
		}
	}
	if used {
		return models.ErrAlreadyUsed
	}

	record["used"] = json.RawMessage("true")
	updated, err := json.Marshal(record)
	if err != nil {
		return err
	}

	_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SetArgs(ctx, key, updated, redis.SetArgs{KeepTTL: true})
		return nil
	})
	return err
}

// Ping reports whether Redis is reachable
func (s *RedisCodeStore) Ping(ctx context.Context) error {
	return s.redis.Ping(ctx).Err()
}
