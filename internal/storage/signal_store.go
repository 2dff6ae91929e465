package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/token-analytics/internal/types"
)

// DefaultSignalTTL is how long AI signals are kept
const DefaultSignalTTL = 2 * time.Hour

// SignalStore keeps weighted-strategy signals and per-token sentiment
type SignalStore interface {
	StoreSignal(ctx context.Context, signal *types.AISignal) error
	LatestSignal(ctx context.Context, token string) (*types.AISignal, error)
	StoreSentiment(ctx context.Context, token string, sentiment float64) error
	Sentiment(ctx context.Context, token string) (float64, error)
}

// RedisSignalStore stores signals as ai_signal:<token>:<ms> plus a
// latest pointer, and sentiment as sentiment:<token>, all with a TTL.
type RedisSignalStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisSignalStore creates a signal store on an open Redis connection
func NewRedisSignalStore(db *RedisDB, ttl time.Duration) *RedisSignalStore {
	if ttl <= 0 {
		ttl = DefaultSignalTTL
	}
	return &RedisSignalStore{client: db.Client(), ttl: ttl}
}

func signalKey(token string, ts int64) string {
	return fmt.Sprintf("ai_signal:%s:%d", token, ts)
}

func latestSignalKey(token string) string {
	return "ai_signal_latest:" + token
}

func sentimentKey(token string) string {
	return "sentiment:" + token
}

// StoreSignal writes the signal entry and moves the latest pointer to it
func (s *RedisSignalStore) StoreSignal(ctx context.Context, signal *types.AISignal) error {
	key := normalizeToken(signal.TokenAddress)

	payload, err := json.Marshal(signal)
	if err != nil {
		return fmt.Errorf("failed to encode signal: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, signalKey(key, signal.Timestamp), payload, s.ttl)
		pipe.Set(ctx, latestSignalKey(key), payload, s.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to store signal for %s: %w", key, err)
	}
	return nil
}

// LatestSignal returns the newest unexpired signal for token
func (s *RedisSignalStore) LatestSignal(ctx context.Context, token string) (*types.AISignal, error) {
	key := normalizeToken(token)

	raw, err := s.client.Get(ctx, latestSignalKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, notFound("ai signal", token)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get signal for %s: %w", key, err)
	}

	var sig types.AISignal
	if err := json.Unmarshal(raw, &sig); err != nil {
		return nil, fmt.Errorf("failed to decode signal for %s: %w", key, err)
	}
	return &sig, nil
}

// StoreSentiment records a sentiment score in [0,1] for token
func (s *RedisSignalStore) StoreSentiment(ctx context.Context, token string, sentiment float64) error {
	if err := s.client.Set(ctx, sentimentKey(normalizeToken(token)), sentiment, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store sentiment for %s: %w", token, err)
	}
	return nil
}

// Sentiment returns the stored sentiment for token
func (s *RedisSignalStore) Sentiment(ctx context.Context, token string) (float64, error) {
	v, err := s.client.Get(ctx, sentimentKey(normalizeToken(token))).Float64()
	if errors.Is(err, redis.Nil) {
		return 0, notFound("sentiment", token)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get sentiment for %s: %w", token, err)
	}
	return v, nil
}

// MemorySignalStore is the in-process SignalStore
type MemorySignalStore struct {
	mu        sync.RWMutex
	signals   map[string]*types.AISignal
	sentiment map[string]float64
}

// NewMemorySignalStore creates an empty store
func NewMemorySignalStore() *MemorySignalStore {
	return &MemorySignalStore{
		signals:   make(map[string]*types.AISignal),
		sentiment: make(map[string]float64),
	}
}

func (s *MemorySignalStore) StoreSignal(ctx context.Context, signal *types.AISignal) error {
	s.mu.Lock()
	s.signals[normalizeToken(signal.TokenAddress)] = signal
	s.mu.Unlock()
	return nil
}

func (s *MemorySignalStore) LatestSignal(ctx context.Context, token string) (*types.AISignal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sig, ok := s.signals[normalizeToken(token)]
	if !ok {
		return nil, notFound("ai signal", token)
	}
	return sig, nil
}

func (s *MemorySignalStore) StoreSentiment(ctx context.Context, token string, sentiment float64) error {
	s.mu.Lock()
	s.sentiment[normalizeToken(token)] = sentiment
	s.mu.Unlock()
	return nil
}

func (s *MemorySignalStore) Sentiment(ctx context.Context, token string) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.sentiment[normalizeToken(token)]
	if !ok {
		return 0, notFound("sentiment", token)
	}
	return v, nil
}
