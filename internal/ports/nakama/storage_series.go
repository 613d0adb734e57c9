package nakama

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"bisca/internal/domain"
	"bisca/internal/ports"

	"github.com/heroiclabs/nakama-common/runtime"
)

// NakamaSeriesStore is the durable ports.SeriesStore counterpart of
// NakamaGameStore, with the same version-checked write discipline.
type NakamaSeriesStore struct {
	nk    storageAPI
	locks *keyedMutex
}

// NewNakamaSeriesStore creates a storage-backed series store.
func NewNakamaSeriesStore(nk storageAPI) *NakamaSeriesStore {
	return &NakamaSeriesStore{nk: nk, locks: newKeyedMutex()}
}

func (s *NakamaSeriesStore) Create(ctx context.Context, sr *domain.Series) error {
	value, err := json.Marshal(sr)
	if err != nil {
		return fmt.Errorf("failed to marshal series: %w", err)
	}

	writes := []*runtime.StorageWrite{{
		Collection:      seriesCollection,
		Key:             sr.ID,
		Value:           string(value),
		Version:         "*",
		PermissionRead:  runtime.STORAGE_PERMISSION_NO_READ,
		PermissionWrite: runtime.STORAGE_PERMISSION_NO_WRITE,
	}}

	if _, err := s.nk.StorageWrite(ctx, writes); err != nil {
		if errors.Is(err, runtime.ErrStorageRejectedVersion) {
			return fmt.Errorf("series %s already exists", sr.ID)
		}
		return fmt.Errorf("failed to write series: %w", err)
	}
	return nil
}

func (s *NakamaSeriesStore) Get(ctx context.Context, seriesID string) (*domain.Series, error) {
	sr, _, err := s.read(ctx, seriesID)
	return sr, err
}

func (s *NakamaSeriesStore) WithLock(ctx context.Context, seriesID string, fn func(*domain.Series) error) (*domain.Series, error) {
	lock := s.locks.get(seriesID)
	lock.Lock()
	defer lock.Unlock()

	for attempt := 0; attempt < withLockAttempts; attempt++ {
		sr, version, err := s.read(ctx, seriesID)
		if err != nil {
			return nil, err
		}
		if err := fn(sr); err != nil {
			return nil, err
		}

		value, err := json.Marshal(sr)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal series: %w", err)
		}

		writes := []*runtime.StorageWrite{{
			Collection:      seriesCollection,
			Key:             seriesID,
			Value:           string(value),
			Version:         version,
			PermissionRead:  runtime.STORAGE_PERMISSION_NO_READ,
			PermissionWrite: runtime.STORAGE_PERMISSION_NO_WRITE,
		}}

		if _, err := s.nk.StorageWrite(ctx, writes); err != nil {
			if errors.Is(err, runtime.ErrStorageRejectedVersion) {
				continue
			}
			return nil, fmt.Errorf("failed to write series: %w", err)
		}
		return sr, nil
	}
	return nil, ports.ErrConflict
}

func (s *NakamaSeriesStore) read(ctx context.Context, seriesID string) (*domain.Series, string, error) {
	reads := []*runtime.StorageRead{{
		Collection: seriesCollection,
		Key:        seriesID,
	}}
	objects, err := s.nk.StorageRead(ctx, reads)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read series: %w", err)
	}
	if len(objects) == 0 {
		return nil, "", ports.ErrSeriesNotFound
	}

	var sr domain.Series
	if err := json.Unmarshal([]byte(objects[0].Value), &sr); err != nil {
		return nil, "", fmt.Errorf("failed to unmarshal series: %w", err)
	}
	return &sr, objects[0].Version, nil
}

var _ ports.SeriesStore = (*NakamaSeriesStore)(nil)
