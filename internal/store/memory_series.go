package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"bisca/internal/domain"
	"bisca/internal/ports"
)

type seriesEntry struct {
	mu   sync.Mutex
	data []byte
}

// MemorySeriesStore is the volatile ports.SeriesStore counterpart of
// MemoryGameStore. Series are never swept: they are few and small, and a
// finished series stays readable for its participants.
type MemorySeriesStore struct {
	mu     sync.Mutex
	series map[string]*seriesEntry
}

func NewMemorySeriesStore() *MemorySeriesStore {
	return &MemorySeriesStore{series: make(map[string]*seriesEntry)}
}

func (s *MemorySeriesStore) Create(ctx context.Context, sr *domain.Series) error {
	data, err := json.Marshal(sr)
	if err != nil {
		return fmt.Errorf("encode series: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.series[sr.ID]; exists {
		return fmt.Errorf("series %s already exists", sr.ID)
	}
	s.series[sr.ID] = &seriesEntry{data: data}
	return nil
}

func (s *MemorySeriesStore) Get(ctx context.Context, seriesID string) (*domain.Series, error) {
	entry, err := s.entry(seriesID)
	if err != nil {
		return nil, err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	return decodeSeries(entry.data)
}

func (s *MemorySeriesStore) WithLock(ctx context.Context, seriesID string, fn func(*domain.Series) error) (*domain.Series, error) {
	entry, err := s.entry(seriesID)
	if err != nil {
		return nil, err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	sr, err := decodeSeries(entry.data)
	if err != nil {
		return nil, err
	}
	if err := fn(sr); err != nil {
		return nil, err
	}

	data, err := json.Marshal(sr)
	if err != nil {
		return nil, fmt.Errorf("encode series: %w", err)
	}
	entry.data = data
	return sr, nil
}

func (s *MemorySeriesStore) entry(seriesID string) (*seriesEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.series[seriesID]
	if !ok {
		return nil, ports.ErrSeriesNotFound
	}
	return entry, nil
}

func decodeSeries(data []byte) (*domain.Series, error) {
	var sr domain.Series
	if err := json.Unmarshal(data, &sr); err != nil {
		return nil, fmt.Errorf("decode series: %w", err)
	}
	return &sr, nil
}
