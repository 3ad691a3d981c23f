// Package memory is a process-local RedemptionStore for tests and demos.
package memory

import (
	"context"
	"sync"

	"golden-ticket/internal/domain/model"
	"golden-ticket/internal/domain/ports/repository"
)

var (
	_ repository.RedemptionStore = (*Store)(nil)
	_ repository.RecordInserter  = (*Store)(nil)
)

// Store keeps records behind a RWMutex and hands out copies.
type Store struct {
	mu   sync.RWMutex
	data model.RedemptionSet
}

func New() *Store {
	return &Store{data: model.NewRedemptionSet()}
}

func (s *Store) Backend() string { return "memory" }

func (s *Store) Load(ctx context.Context) (model.RedemptionSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.Clone(), nil
}

func (s *Store) Save(ctx context.Context, set model.RedemptionSet) error {
	cp := set.Clone()
	s.mu.Lock()
	s.data = cp
	s.mu.Unlock()
	return nil
}

func (s *Store) Insert(ctx context.Context, rec *model.RedemptionRecord) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.data[rec.Code]; ok && existing != nil {
		return false, nil
	}
	s.data[rec.Code] = model.RedemptionSet{rec.Code: rec}.Clone()[rec.Code]
	return true, nil
}
