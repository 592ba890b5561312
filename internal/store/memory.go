package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/quantumnexus/journal-engine/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing and
// for demo runs without a database. Not suitable for production (no
// persistence).
type MemoryStore struct {
	mu        sync.RWMutex
	trades    map[string]*model.Trade // keyed by external ID
	snapshots []model.AccountSnapshot
	version   int64
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		trades: make(map[string]*model.Trade),
	}
}

func (s *MemoryStore) UpsertTrade(_ context.Context, t *model.Trade) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Store a copy to avoid external mutation.
	cp := *t
	s.trades[t.ExternalID] = &cp
	return nil
}

func (s *MemoryStore) GetTradeByExternalID(_ context.Context, externalID string) (*model.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.trades[externalID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *MemoryStore) QueryPeriod(_ context.Context, from, to time.Time) ([]model.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Trade
	for _, t := range s.trades {
		if t.Status != model.StatusClosed {
			continue
		}
		if t.CloseTime.Before(from) || !t.CloseTime.Before(to) {
			continue
		}
		result = append(result, *t)
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CloseTime.Equal(result[j].CloseTime) {
			return result[i].CloseTime.Before(result[j].CloseTime)
		}
		return result[i].OpenTime.Before(result[j].OpenTime)
	})
	return result, nil
}

func (s *MemoryStore) QueryOpen(_ context.Context) ([]model.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Trade
	for _, t := range s.trades {
		if t.Status == model.StatusOpen {
			result = append(result, *t)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].OpenTime.Before(result[j].OpenTime)
	})
	return result, nil
}

func (s *MemoryStore) CountTrades(_ context.Context) (int, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	open := 0
	for _, t := range s.trades {
		if t.Status == model.StatusOpen {
			open++
		}
	}
	return len(s.trades), open, nil
}

func (s *MemoryStore) AppendSnapshot(_ context.Context, snap *model.AccountSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n := len(s.snapshots); n > 0 && !snap.Timestamp.After(s.snapshots[n-1].Timestamp) {
		return nil // append-only, monotonic; drop out-of-order readings
	}
	s.snapshots = append(s.snapshots, *snap)
	return nil
}

func (s *MemoryStore) LatestSnapshot(_ context.Context) (*model.AccountSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.snapshots) == 0 {
		return nil, ErrNotFound
	}
	cp := s.snapshots[len(s.snapshots)-1]
	return &cp, nil
}

func (s *MemoryStore) SnapshotRange(_ context.Context, from, to time.Time) ([]model.AccountSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.AccountSnapshot
	for _, snap := range s.snapshots {
		if snap.Timestamp.Before(from) || !snap.Timestamp.Before(to) {
			continue
		}
		result = append(result, snap)
	}
	return result, nil
}

func (s *MemoryStore) Version(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version, nil
}

func (s *MemoryStore) BumpVersion(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.version++
	return s.version, nil
}
