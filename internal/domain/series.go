package domain

import "time"

// SeriesStatus is the lifecycle stage of a best-of series.
type SeriesStatus string

const (
	SeriesPending SeriesStatus = "pending"
	SeriesPlaying SeriesStatus = "playing"
	SeriesEnded   SeriesStatus = "ended"
)

// Series is the best-of wrapper around consecutive games between the same
// two sides. A decisive game awards its winner one mark; the first side to
// reach the configured mark target wins the series and the pooled stakes.
// Draw games award no mark.
type Series struct {
	ID   string `json:"id"`
	Type int    `json:"type"` // hand size of every game in the series

	Sides [2]PlayerRef `json:"sides"`
	Marks [2]int       `json:"marks"`
	// Points accumulates each side's card points across all games, kept
	// for reporting only; it never decides the series.
	Points [2]int `json:"points"`

	Stake         int64        `json:"stake"`
	Status        SeriesStatus `json:"status"`
	CurrentGameID string       `json:"current_game_id,omitempty"`
	GamesPlayed   int          `json:"games_played"`

	StartedAt  time.Time  `json:"started_at"`
	EndedAt    *time.Time `json:"ended_at,omitempty"`
	WinnerSide *Side      `json:"winner_side,omitempty"`
}

// SideOf returns the side occupied by the given player, or false if the
// player is not a participant.
func (s *Series) SideOf(p PlayerRef) (Side, bool) {
	for i := range s.Sides {
		if s.Sides[i].Equal(p) {
			return Side(i), true
		}
	}
	return 0, false
}
