package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"bisca/internal/domain"
	"bisca/internal/ports"
)

// DefaultRetention is how long finished games stay readable before the
// sweep drops them.
const DefaultRetention = 30 * time.Minute

type gameEntry struct {
	mu   sync.Mutex
	data []byte // JSON snapshot, the single source of truth; guarded by mu

	// Sweep metadata, guarded by the store's mu rather than the entry's,
	// so the sweep never has to touch data while a mutation holds mu.
	terminal bool
	endedAt  time.Time
}

// MemoryGameStore is the volatile ports.SessionStore used for free bot
// and anonymous games. State lives only in process memory; every read
// decodes a private copy so callers can never alias the stored state.
// Terminal games are swept opportunistically on access, never by a
// background goroutine.
type MemoryGameStore struct {
	mu        sync.Mutex
	games     map[string]*gameEntry
	retention time.Duration
	now       func() time.Time
}

// NewMemoryGameStore creates an empty store with the given retention for
// finished games. A non-positive retention uses DefaultRetention.
func NewMemoryGameStore(retention time.Duration) *MemoryGameStore {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &MemoryGameStore{
		games:     make(map[string]*gameEntry),
		retention: retention,
		now:       time.Now,
	}
}

func (s *MemoryGameStore) Create(ctx context.Context, game *domain.Game) error {
	data, err := json.Marshal(game)
	if err != nil {
		return fmt.Errorf("encode game: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked()

	if _, exists := s.games[game.ID]; exists {
		return fmt.Errorf("game %s already exists", game.ID)
	}
	entry := &gameEntry{data: data, terminal: game.Phase.Terminal()}
	if game.EndedAt != nil {
		entry.endedAt = *game.EndedAt
	}
	s.games[game.ID] = entry
	return nil
}

func (s *MemoryGameStore) Get(ctx context.Context, gameID string) (*domain.Game, error) {
	entry, err := s.entry(gameID)
	if err != nil {
		return nil, err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	return decodeGame(entry.data)
}

func (s *MemoryGameStore) WithLock(ctx context.Context, gameID string, fn func(*domain.Game) error) (*domain.Game, error) {
	entry, err := s.entry(gameID)
	if err != nil {
		return nil, err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	game, err := decodeGame(entry.data)
	if err != nil {
		return nil, err
	}
	if err := fn(game); err != nil {
		return nil, err
	}

	data, err := json.Marshal(game)
	if err != nil {
		return nil, fmt.Errorf("encode game: %w", err)
	}
	entry.data = data

	// Refresh the sweep metadata under the store lock. The entry lock is
	// taken before the store lock here; nothing acquires them in the
	// opposite order.
	s.mu.Lock()
	entry.terminal = game.Phase.Terminal()
	if game.EndedAt != nil {
		entry.endedAt = *game.EndedAt
	}
	s.mu.Unlock()
	return game, nil
}

func (s *MemoryGameStore) entry(gameID string) (*gameEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked()

	entry, ok := s.games[gameID]
	if !ok {
		return nil, ports.ErrGameNotFound
	}
	return entry, nil
}

// sweepLocked drops terminal games older than the retention window. The
// caller holds s.mu, which also guards the per-entry sweep metadata, so
// the sweep never reads entry.data and never needs the entry locks.
func (s *MemoryGameStore) sweepLocked() {
	cutoff := s.now().Add(-s.retention)
	for id, entry := range s.games {
		if entry.terminal && !entry.endedAt.IsZero() && entry.endedAt.Before(cutoff) {
			delete(s.games, id)
		}
	}
}

func decodeGame(data []byte) (*domain.Game, error) {
	var g domain.Game
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("decode game: %w", err)
	}
	return &g, nil
}
