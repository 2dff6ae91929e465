package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	apperrors "github.com/token-analytics/internal/errors"
	"github.com/token-analytics/internal/types"
)

// DefaultHistoryTTL is how long individual history entries are kept
const DefaultHistoryTTL = time.Hour

// AnalysisStore keeps the latest analysis per token plus a short history.
//
// Latest and History return an error wrapping apperrors.ErrNotFound for
// tokens that were never stored.
type AnalysisStore interface {
	Store(ctx context.Context, token string, analysis *types.Analysis) error
	Latest(ctx context.Context, token string) (*types.Analysis, error)
	History(ctx context.Context, token string, limit int) ([]*types.Analysis, error)
}

func normalizeToken(token string) string {
	return strings.ToLower(strings.TrimSpace(token))
}

func notFound(what, token string) error {
	return fmt.Errorf("%s for %s: %w", what, token, apperrors.ErrNotFound)
}

type historyEntry struct {
	analysis  *types.Analysis
	expiresAt time.Time
}

type tokenAnalyses struct {
	latest  *types.Analysis
	history []historyEntry // ordered by analysis timestamp
}

// MemoryAnalysisStore is an in-process AnalysisStore used when Redis is disabled
type MemoryAnalysisStore struct {
	mu     sync.RWMutex
	tokens map[string]*tokenAnalyses
	ttl    time.Duration
	now    func() time.Time
}

// NewMemoryAnalysisStore creates an empty store. A non-positive ttl uses DefaultHistoryTTL.
func NewMemoryAnalysisStore(ttl time.Duration) *MemoryAnalysisStore {
	return NewMemoryAnalysisStoreWithClock(ttl, time.Now)
}

// NewMemoryAnalysisStoreWithClock creates an empty store with an injected clock
func NewMemoryAnalysisStoreWithClock(ttl time.Duration, now func() time.Time) *MemoryAnalysisStore {
	if ttl <= 0 {
		ttl = DefaultHistoryTTL
	}
	return &MemoryAnalysisStore{
		tokens: make(map[string]*tokenAnalyses),
		ttl:    ttl,
		now:    now,
	}
}

// Store overwrites the latest analysis and appends it to the token history
func (s *MemoryAnalysisStore) Store(ctx context.Context, token string, analysis *types.Analysis) error {
	if analysis == nil {
		return fmt.Errorf("nil analysis for %s", token)
	}
	key := normalizeToken(token)
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	ta, ok := s.tokens[key]
	if !ok {
		ta = &tokenAnalyses{}
		s.tokens[key] = ta
	}

	ta.latest = analysis
	ta.history = append(pruneExpired(ta.history, now), historyEntry{
		analysis:  analysis,
		expiresAt: now.Add(s.ttl),
	})
	sort.SliceStable(ta.history, func(i, j int) bool {
		return ta.history[i].analysis.Timestamp < ta.history[j].analysis.Timestamp
	})

	return nil
}

// Latest returns the most recently stored analysis for token
func (s *MemoryAnalysisStore) Latest(ctx context.Context, token string) (*types.Analysis, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ta, ok := s.tokens[normalizeToken(token)]
	if !ok || ta.latest == nil {
		return nil, notFound("latest analysis", token)
	}
	return ta.latest, nil
}

// History returns up to limit unexpired analyses, oldest first.
// A non-positive limit returns every unexpired entry.
func (s *MemoryAnalysisStore) History(ctx context.Context, token string, limit int) ([]*types.Analysis, error) {
	now := s.now()

	s.mu.RLock()
	defer s.mu.RUnlock()

	ta, ok := s.tokens[normalizeToken(token)]
	if !ok {
		return nil, notFound("analysis history", token)
	}

	out := make([]*types.Analysis, 0, len(ta.history))
	for _, e := range ta.history {
		if now.Before(e.expiresAt) {
			out = append(out, e.analysis)
		}
	}
	return tail(out, limit), nil
}

func pruneExpired(entries []historyEntry, now time.Time) []historyEntry {
	kept := entries[:0]
	for _, e := range entries {
		if now.Before(e.expiresAt) {
			kept = append(kept, e)
		}
	}
	return kept
}

// tail keeps the last limit items
func tail[T any](items []T, limit int) []T {
	if limit > 0 && len(items) > limit {
		return items[len(items)-limit:]
	}
	return items
}
