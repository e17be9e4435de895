package memory

import (
	"context"
	"sync"

	"backtest-lab/internal/domain"
	"backtest-lab/internal/storage"
)

// ParameterStore is an in-memory implementation of storage.ParameterStore.
type ParameterStore struct {
	mu   sync.RWMutex
	data []domain.ParameterRecord
	ids  map[string]struct{}
}

// NewParameterStore creates a new in-memory parameter store.
func NewParameterStore() *ParameterStore {
	return &ParameterStore{
		ids: make(map[string]struct{}),
	}
}

// Insert adds a new record. Returns ErrDuplicateKey if id exists.
func (s *ParameterStore) Insert(_ context.Context, rec *domain.ParameterRecord) error {
	if rec == nil || rec.ID == "" || rec.Market == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.ids[rec.ID]; exists {
		return storage.ErrDuplicateKey
	}
	s.ids[rec.ID] = struct{}{}
	s.data = append(s.data, *rec)
	return nil
}

// GetLatest returns the newest record for a market. Ties resolve to the later insert.
func (s *ParameterStore) GetLatest(_ context.Context, market string) (*domain.ParameterRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *domain.ParameterRecord
	for i := range s.data {
		rec := &s.data[i]
		if rec.Market != market {
			continue
		}
		if latest == nil || rec.CreatedAtMs >= latest.CreatedAtMs {
			latest = rec
		}
	}
	if latest == nil {
		return nil, storage.ErrNotFound
	}

	copy := *latest
	return &copy, nil
}

var _ storage.ParameterStore = (*ParameterStore)(nil)
