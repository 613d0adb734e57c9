package nakama

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"bisca/internal/domain"
	"bisca/internal/ports"

	"github.com/heroiclabs/nakama-common/api"
	"github.com/heroiclabs/nakama-common/runtime"
)

// storageAPI is the slice of runtime.NakamaModule the stores need,
// narrowed so tests can substitute a fake storage engine.
type storageAPI interface {
	StorageRead(ctx context.Context, reads []*runtime.StorageRead) ([]*api.StorageObject, error)
	StorageWrite(ctx context.Context, writes []*runtime.StorageWrite) ([]*api.StorageObjectAck, error)
	StorageList(ctx context.Context, callerID, userID, collection string, limit int, cursor string) ([]*api.StorageObject, string, error)
}

const withLockAttempts = 3

// keyedMutex hands out one mutex per key so mutations on the same game
// serialize within the process while different games stay independent.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*sync.Mutex)}
}

func (k *keyedMutex) get(id string) *sync.Mutex {
	k.mu.Lock()
	defer k.mu.Unlock()
	l, ok := k.locks[id]
	if !ok {
		l = &sync.Mutex{}
		k.locks[id] = l
	}
	return l
}

// NakamaGameStore is the durable ports.SessionStore for wagered games,
// backed by Nakama's storage engine. Objects are system-owned and carry
// Nakama's object version; writes are version-checked, so a concurrent
// writer from another node loses cleanly and the mutation retries on
// fresh state. The per-game process mutex keeps local callers from ever
// racing in the first place, which makes version conflicts rare and
// mutation reruns the exception rather than the rule.
type NakamaGameStore struct {
	nk    storageAPI
	locks *keyedMutex
}

// NewNakamaGameStore creates a storage-backed game store.
func NewNakamaGameStore(nk storageAPI) *NakamaGameStore {
	return &NakamaGameStore{nk: nk, locks: newKeyedMutex()}
}

func (s *NakamaGameStore) Create(ctx context.Context, game *domain.Game) error {
	value, err := json.Marshal(game)
	if err != nil {
		return fmt.Errorf("failed to marshal game: %w", err)
	}

	writes := []*runtime.StorageWrite{{
		Collection:      gamesCollection,
		Key:             game.ID,
		Value:           string(value),
		Version:         "*", // must not exist yet
		PermissionRead:  runtime.STORAGE_PERMISSION_NO_READ,
		PermissionWrite: runtime.STORAGE_PERMISSION_NO_WRITE,
	}}

	if _, err := s.nk.StorageWrite(ctx, writes); err != nil {
		if errors.Is(err, runtime.ErrStorageRejectedVersion) {
			return fmt.Errorf("game %s already exists", game.ID)
		}
		return fmt.Errorf("failed to write game: %w", err)
	}
	return nil
}

func (s *NakamaGameStore) Get(ctx context.Context, gameID string) (*domain.Game, error) {
	game, _, err := s.read(ctx, gameID)
	return game, err
}

func (s *NakamaGameStore) WithLock(ctx context.Context, gameID string, fn func(*domain.Game) error) (*domain.Game, error) {
	lock := s.locks.get(gameID)
	lock.Lock()
	defer lock.Unlock()

	for attempt := 0; attempt < withLockAttempts; attempt++ {
		game, version, err := s.read(ctx, gameID)
		if err != nil {
			return nil, err
		}
		if err := fn(game); err != nil {
			return nil, err
		}

		value, err := json.Marshal(game)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal game: %w", err)
		}

		writes := []*runtime.StorageWrite{{
			Collection:      gamesCollection,
			Key:             gameID,
			Value:           string(value),
			Version:         version,
			PermissionRead:  runtime.STORAGE_PERMISSION_NO_READ,
			PermissionWrite: runtime.STORAGE_PERMISSION_NO_WRITE,
		}}

		if _, err := s.nk.StorageWrite(ctx, writes); err != nil {
			if errors.Is(err, runtime.ErrStorageRejectedVersion) {
				continue
			}
			return nil, fmt.Errorf("failed to write game: %w", err)
		}
		return game, nil
	}
	return nil, ports.ErrConflict
}

// ListOpenGames returns pending wagered games with an open seat, for the
// lobby to offer to joiners.
func (s *NakamaGameStore) ListOpenGames(ctx context.Context, limit int) ([]*domain.Game, error) {
	objects, _, err := s.nk.StorageList(ctx, "", "", gamesCollection, limit, "")
	if err != nil {
		return nil, fmt.Errorf("failed to list games: %w", err)
	}

	var open []*domain.Game
	for _, obj := range objects {
		var g domain.Game
		if err := json.Unmarshal([]byte(obj.Value), &g); err != nil {
			continue
		}
		if g.Phase == domain.PhasePending && g.Sides[domain.SideB].IsZero() {
			// Prospective joiners only need the table facts.
			g.Hands = [2][]domain.Card{}
			g.DrawPile = nil
			open = append(open, &g)
		}
	}
	return open, nil
}

func (s *NakamaGameStore) read(ctx context.Context, gameID string) (*domain.Game, string, error) {
	reads := []*runtime.StorageRead{{
		Collection: gamesCollection,
		Key:        gameID,
	}}
	objects, err := s.nk.StorageRead(ctx, reads)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read game: %w", err)
	}
	if len(objects) == 0 {
		return nil, "", ports.ErrGameNotFound
	}

	var g domain.Game
	if err := json.Unmarshal([]byte(objects[0].Value), &g); err != nil {
		return nil, "", fmt.Errorf("failed to unmarshal game: %w", err)
	}
	return &g, objects[0].Version, nil
}

var _ ports.SessionStore = (*NakamaGameStore)(nil)
