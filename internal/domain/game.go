package domain

import "time"

// Phase represents the lifecycle stage of a Bisca game.
type Phase string

const (
	// PhasePending indicates a wagered game waiting for its second player.
	PhasePending Phase = "pending"
	// PhaseInProgress indicates the game is actively being played.
	PhaseInProgress Phase = "in_progress"
	// PhaseTrickComplete indicates the current trick holds two cards and
	// must be resolved before further play.
	PhaseTrickComplete Phase = "trick_complete"
	// PhaseFinished indicates the game ended by card play.
	PhaseFinished Phase = "finished"
	// PhaseResigned indicates the game ended by resignation.
	PhaseResigned Phase = "resigned"
)

// Terminal reports whether the phase is an end state.
func (p Phase) Terminal() bool {
	return p == PhaseFinished || p == PhaseResigned
}

// Side indexes one of the two seats of a game.
type Side int

const (
	SideA Side = 0
	SideB Side = 1
)

// Other returns the opposing side.
func (s Side) Other() Side {
	if s == SideA {
		return SideB
	}
	return SideA
}

// PlayerKind discriminates the PlayerRef variants.
type PlayerKind string

const (
	PlayerHuman     PlayerKind = "human"
	PlayerBot       PlayerKind = "bot"
	PlayerAnonymous PlayerKind = "anonymous"
)

// PlayerRef identifies who occupies a side: a registered user, the engine
// bot, or an anonymous guest. Bot refs carry no id; guest refs carry an
// ephemeral id minted with their token.
type PlayerRef struct {
	Kind PlayerKind `json:"kind"`
	ID   string     `json:"id,omitempty"`
}

// Human returns a PlayerRef for a registered user id.
func Human(id string) PlayerRef {
	return PlayerRef{Kind: PlayerHuman, ID: id}
}

// Bot returns the engine bot PlayerRef.
func Bot() PlayerRef {
	return PlayerRef{Kind: PlayerBot}
}

// Anonymous returns a guest PlayerRef for an ephemeral guest id.
func Anonymous(id string) PlayerRef {
	return PlayerRef{Kind: PlayerAnonymous, ID: id}
}

func (p PlayerRef) IsBot() bool   { return p.Kind == PlayerBot }
func (p PlayerRef) IsHuman() bool { return p.Kind == PlayerHuman }

// IsZero reports whether the ref is unset (no side assigned yet).
func (p PlayerRef) IsZero() bool { return p.Kind == "" }

// Equal reports whether two refs identify the same player.
func (p PlayerRef) Equal(o PlayerRef) bool {
	return p.Kind == o.Kind && p.ID == o.ID
}

func (p PlayerRef) String() string {
	switch p.Kind {
	case PlayerBot:
		return "bot"
	case PlayerAnonymous:
		return "guest:" + p.ID
	default:
		return p.ID
	}
}

// PlayedCard is a card placed into the current trick, tagged with the side
// that played it.
type PlayedCard struct {
	Card     Card      `json:"card"`
	Side     Side      `json:"side"`
	PlayedAt time.Time `json:"played_at"`
}

// Game holds the authoritative state for a single Bisca game. It is mutated
// only through the app service's validated move intents and round-trips
// losslessly through encoding/json for persistence.
type Game struct {
	ID   string `json:"id"`
	Type int    `json:"type"` // hand size: 3 or 9

	Sides      [2]PlayerRef `json:"sides"`
	Hands      [2][]Card    `json:"hands"`
	TrickPiles [2][]Card    `json:"trick_piles"`
	Points     [2]int       `json:"points"`

	DrawPile  []Card `json:"draw_pile"`
	TrumpCard Card   `json:"trump_card"`
	TrumpSuit Suit   `json:"trump_suit"`

	CurrentTrick []PlayedCard `json:"current_trick"`
	CurrentSide  Side         `json:"current_side"`
	TrickLeader  Side         `json:"trick_leader"`

	Phase Phase `json:"phase"`

	// Stake is the per-side wager in coins. Zero for free games.
	Stake    int64  `json:"stake"`
	SeriesID string `json:"series_id,omitempty"`

	StartedAt  time.Time  `json:"started_at"`
	EndedAt    *time.Time `json:"ended_at,omitempty"`
	LastMoveAt time.Time  `json:"last_move_at"`

	WinnerSide *Side `json:"winner_side,omitempty"`
	IsDraw     bool  `json:"is_draw"`
	ResignedBy *Side `json:"resigned_by,omitempty"`
}

// SideOf returns the side occupied by the given player, or false if the
// player is not a participant.
func (g *Game) SideOf(p PlayerRef) (Side, bool) {
	for i := range g.Sides {
		if g.Sides[i].Equal(p) {
			return Side(i), true
		}
	}
	return 0, false
}

// Winner returns the winning player ref, or a zero ref for a draw or a
// still-running game.
func (g *Game) Winner() PlayerRef {
	if g.WinnerSide == nil {
		return PlayerRef{}
	}
	return g.Sides[*g.WinnerSide]
}

// TotalTimeSeconds returns the elapsed play time once the game has ended.
func (g *Game) TotalTimeSeconds() float64 {
	if g.EndedAt == nil {
		return 0
	}
	return g.EndedAt.Sub(g.StartedAt).Seconds()
}

// CardCount returns the number of cards across all containers. It must
// equal DeckSize for every reachable state of a fully dealt game.
func (g *Game) CardCount() int {
	n := len(g.DrawPile) + len(g.CurrentTrick)
	for i := range g.Hands {
		n += len(g.Hands[i]) + len(g.TrickPiles[i])
	}
	return n
}
