package app

import "bisca/internal/domain"

// EventKind identifies emitted engine events.
type EventKind string

const (
	EventGameCreated   EventKind = "game_created"
	EventPlayerJoined  EventKind = "player_joined"
	EventCardPlayed    EventKind = "card_played"
	EventTrickResolved EventKind = "trick_resolved"
	EventGameEnded     EventKind = "game_ended"
	EventGameResigned  EventKind = "game_resigned"
)

// Event is an engine event with optional targeted recipients.
type Event struct {
	Kind       EventKind
	Payload    any
	Recipients []domain.PlayerRef // empty means broadcast
}

type GameCreatedPayload struct {
	GameID    string      `json:"game_id"`
	Type      int         `json:"type"`
	TrumpCard domain.Card `json:"trump_card"`
	FirstSide domain.Side `json:"first_side"`
}

type PlayerJoinedPayload struct {
	GameID    string           `json:"game_id"`
	Joiner    domain.PlayerRef `json:"joiner"`
	FirstSide domain.Side      `json:"first_side"`
}

type CardPlayedPayload struct {
	GameID        string      `json:"game_id"`
	Side          domain.Side `json:"side"`
	Card          domain.Card `json:"card"`
	TrickComplete bool        `json:"trick_complete"`
	NextSide      domain.Side `json:"next_side"`
}

type TrickResolvedPayload struct {
	GameID     string      `json:"game_id"`
	WinnerSide domain.Side `json:"winner_side"`
	Points     [2]int      `json:"points"`
	DrawnCards [2]int      `json:"drawn_cards"` // number of cards drawn per side
}

type GameEndedPayload struct {
	GameID     string       `json:"game_id"`
	WinnerSide *domain.Side `json:"winner_side,omitempty"`
	IsDraw     bool         `json:"is_draw"`
	Points     [2]int       `json:"points"`
	Resigned   bool         `json:"resigned"`
}

type GameResignedPayload struct {
	GameID     string      `json:"game_id"`
	ResignedBy domain.Side `json:"resigned_by"`
}
