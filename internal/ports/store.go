package ports

import (
	"context"
	"errors"

	"bisca/internal/domain"
)

var (
	// ErrGameNotFound is returned for unknown game ids.
	ErrGameNotFound = errors.New("game not found")
	// ErrSeriesNotFound is returned for unknown series ids.
	ErrSeriesNotFound = errors.New("series not found")
	// ErrConflict is returned when concurrent writers exhausted the
	// store's retry budget. Callers may safely retry the whole intent.
	ErrConflict = errors.New("concurrent modification conflict")
)

// SessionStore is keyed storage for game state with per-game mutual
// exclusion. Implementations guarantee that no two WithLock mutations on
// the same game id interleave and that a mutation is persisted atomically
// or not at all.
type SessionStore interface {
	// Create persists a new game. The id must not already exist.
	Create(ctx context.Context, game *domain.Game) error

	// Get returns the current state of a game, or ErrGameNotFound.
	Get(ctx context.Context, gameID string) (*domain.Game, error)

	// WithLock loads the game, applies fn and persists the result while
	// holding the game's exclusive lock. If fn returns an error nothing
	// is persisted and the error is returned unchanged. fn may run more
	// than once under optimistic concurrency, so it must derive all its
	// effects from the state it is handed.
	WithLock(ctx context.Context, gameID string, fn func(*domain.Game) error) (*domain.Game, error)
}

// SeriesStore is the equivalent keyed storage for best-of series state.
type SeriesStore interface {
	Create(ctx context.Context, series *domain.Series) error
	Get(ctx context.Context, seriesID string) (*domain.Series, error)
	WithLock(ctx context.Context, seriesID string, fn func(*domain.Series) error) (*domain.Series, error)
}
