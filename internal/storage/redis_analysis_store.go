package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/token-analytics/internal/types"
)

// RedisAnalysisStore persists analyses in Redis.
//
// Keys:
//
//	latest:<token>              most recent analysis, no expiry
//	analysis:<token>:<ms>:<id>  history entry, expires after the history TTL
//	analysis_index:<token>      sorted set of history keys scored by timestamp
type RedisAnalysisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisAnalysisStore creates a store on top of an open Redis connection
func NewRedisAnalysisStore(db *RedisDB, ttl time.Duration) *RedisAnalysisStore {
	if ttl <= 0 {
		ttl = DefaultHistoryTTL
	}
	return &RedisAnalysisStore{client: db.Client(), ttl: ttl}
}

func latestKey(token string) string {
	return "latest:" + token
}

// historyKey includes the analysis id so that two analyses stored within the
// same millisecond keep separate history entries
func historyKey(token string, ts int64, id string) string {
	return fmt.Sprintf("analysis:%s:%d:%s", token, ts, id)
}

func historyIndexKey(token string) string {
	return "analysis_index:" + token
}

// Store overwrites latest:<token> and writes a TTL'd history entry
func (s *RedisAnalysisStore) Store(ctx context.Context, token string, analysis *types.Analysis) error {
	if analysis == nil {
		return fmt.Errorf("nil analysis for %s", token)
	}
	key := normalizeToken(token)

	payload, err := json.Marshal(analysis)
	if err != nil {
		return fmt.Errorf("failed to encode analysis: %w", err)
	}

	entryKey := historyKey(key, analysis.Timestamp, analysis.AnalysisID)
	indexKey := historyIndexKey(key)

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, latestKey(key), payload, 0)
		pipe.Set(ctx, entryKey, payload, s.ttl)
		pipe.ZAdd(ctx, indexKey, redis.Z{Score: float64(analysis.Timestamp), Member: entryKey})
		pipe.Expire(ctx, indexKey, s.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to store analysis for %s: %w", key, err)
	}

	return nil
}

// Latest returns the most recently stored analysis for token
func (s *RedisAnalysisStore) Latest(ctx context.Context, token string) (*types.Analysis, error) {
	key := normalizeToken(token)

	raw, err := s.client.Get(ctx, latestKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, notFound("latest analysis", token)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest analysis for %s: %w", key, err)
	}

	var a types.Analysis
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, fmt.Errorf("failed to decode analysis for %s: %w", key, err)
	}
	return &a, nil
}

// History returns up to limit unexpired analyses, oldest first.
// Index members whose entry has expired are removed as a side effect.
func (s *RedisAnalysisStore) History(ctx context.Context, token string, limit int) ([]*types.Analysis, error) {
	key := normalizeToken(token)

	exists, err := s.client.Exists(ctx, latestKey(key)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to check analysis for %s: %w", key, err)
	}
	if exists == 0 {
		return nil, notFound("analysis history", token)
	}

	members, err := s.client.ZRange(ctx, historyIndexKey(key), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read history index for %s: %w", key, err)
	}
	if len(members) == 0 {
		return []*types.Analysis{}, nil
	}

	values, err := s.client.MGet(ctx, members...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read history for %s: %w", key, err)
	}

	out := make([]*types.Analysis, 0, len(values))
	var expired []interface{}
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			expired = append(expired, members[i])
			continue
		}
		var a types.Analysis
		if err := json.Unmarshal([]byte(raw), &a); err != nil {
			return nil, fmt.Errorf("failed to decode history entry %s: %w", members[i], err)
		}
		out = append(out, &a)
	}

	if len(expired) > 0 {
		// best effort; a stale member is filtered again on the next read
		_ = s.client.ZRem(ctx, historyIndexKey(key), expired...).Err()
	}

	return tail(out, limit), nil
}
