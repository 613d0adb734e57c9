package bot

import (
	"errors"

	"bisca/internal/domain"
)

// Brain is the interface bot strategies implement. ChooseCard must be a
// pure function of its inputs so bot behaviour is reproducible in tests.
type Brain interface {
	ChooseCard(hand []domain.Card, trick []domain.PlayedCard, trump domain.Suit) (domain.Card, error)
}

// ErrEmptyHand is returned when the bot is asked to move with no cards.
var ErrEmptyHand = errors.New("bot hand is empty")

// Minimal is the default deterministic strategy: lead with the cheapest
// card; when following, win with the cheapest winning card or throw the
// cheapest card if the trick cannot be won. No randomness, no lookahead.
type Minimal struct{}

// New returns the default strategy.
func New() Brain {
	return Minimal{}
}

// ChooseCard implements Brain.
func (Minimal) ChooseCard(hand []domain.Card, trick []domain.PlayedCard, trump domain.Suit) (domain.Card, error) {
	if len(hand) == 0 {
		return domain.Card{}, ErrEmptyHand
	}

	if len(trick) == 0 {
		return lowest(hand), nil
	}

	lead := trick[0].Card
	var winning []domain.Card
	for _, c := range hand {
		if domain.Beats(c, lead, trump) {
			winning = append(winning, c)
		}
	}
	if len(winning) > 0 {
		return lowest(winning), nil
	}
	return lowest(hand), nil
}

// lowest returns the first card with the minimum comparison value, so ties
// resolve by stable hand order.
func lowest(cards []domain.Card) domain.Card {
	best := cards[0]
	for _, c := range cards[1:] {
		if c.Value < best.Value {
			best = c
		}
	}
	return best
}
