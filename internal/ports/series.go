package ports

import (
	"context"

	"bisca/internal/domain"
)

// GameResult is the terminal outcome the engine reports when a game ends.
type GameResult struct {
	GameID     string
	Winner     domain.PlayerRef // zero ref on draw
	IsDraw     bool
	Resigned   bool
	SideAScore int
	SideBScore int
}

// SeriesPort receives finished-game notifications for games that belong
// to a best-of series, so the series collaborator can award a mark and
// either start the next game or end the series.
type SeriesPort interface {
	OnGameFinished(ctx context.Context, game *domain.Game, result GameResult) error
}
