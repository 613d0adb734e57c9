package domain

// HandSize3 and HandSize9 are the two Bisca variants: Bisca de 3 and
// Bisca de 9.
const (
	HandSize3 = 3
	HandSize9 = 9
)

// ValidHandSize reports whether n is a playable Bisca hand size.
func ValidHandSize(n int) bool {
	return n == HandSize3 || n == HandSize9
}

// Deal takes handSize cards for each side in turn from the top of the
// deck, then reveals the next card as trump. The trump card stays in play:
// it is moved to the bottom of the draw pile and is the final card drawn.
func Deal(deck []Card, handSize int) (handA, handB []Card, trump Card, pile []Card) {
	handA = append([]Card(nil), deck[:handSize]...)
	handB = append([]Card(nil), deck[handSize:2*handSize]...)
	trump = deck[2*handSize]
	pile = append([]Card(nil), deck[2*handSize+1:]...)
	pile = append(pile, trump)
	return handA, handB, trump, pile
}

// DealOne deals handSize cards for a single side and reveals trump,
// leaving the second hand undealt. Used for wagered games created before
// the opponent is known; the deferred hand is drawn with DealDeferred.
func DealOne(deck []Card, handSize int) (hand []Card, trump Card, pile []Card) {
	hand = append([]Card(nil), deck[:handSize]...)
	trump = deck[handSize]
	pile = append([]Card(nil), deck[handSize+1:]...)
	pile = append(pile, trump)
	return hand, trump, pile
}

// DealDeferred draws the deferred opponent hand from the top of the pile.
func DealDeferred(pile []Card, handSize int) (hand []Card, rest []Card) {
	hand = append([]Card(nil), pile[:handSize]...)
	rest = append([]Card(nil), pile[handSize:]...)
	return hand, rest
}

// Beats reports whether the candidate card wins over the incumbent under
// the given trump suit. Trump beats non-trump; within a shared suit the
// higher comparison value wins; across two non-trump suits the incumbent
// (earlier-played) card always holds.
func Beats(candidate, incumbent Card, trump Suit) bool {
	if candidate.Suit == trump && incumbent.Suit != trump {
		return true
	}
	if incumbent.Suit == trump && candidate.Suit != trump {
		return false
	}
	if candidate.Suit == incumbent.Suit {
		return candidate.Value > incumbent.Value
	}
	return false
}

// TrickWinner applies Beats to a completed two-card trick and returns the
// winning side. A one-card trick (degenerate final-phase case) is won by
// whoever played it.
func TrickWinner(trick []PlayedCard, trump Suit) Side {
	winner := trick[0]
	for _, pc := range trick[1:] {
		if Beats(pc.Card, winner.Card, trump) {
			winner = pc
		}
	}
	return winner.Side
}

// PilePoints sums card points over a trick pile. Scores are recomputed
// from the piles after every resolution rather than accumulated.
func PilePoints(pile []Card) int {
	total := 0
	for _, c := range pile {
		total += c.Points
	}
	return total
}

// IsTerminal reports whether play can no longer continue: the draw pile is
// empty and at least one hand is exhausted. Hand sizes can diverge once
// the pile runs dry, so the check is on either hand.
func IsTerminal(handA, handB, pile []Card) bool {
	return len(pile) == 0 && (len(handA) == 0 || len(handB) == 0)
}

// RemoveCard removes the card with the given id from a hand. It returns
// the removed card, the updated hand and whether the card was found.
func RemoveCard(hand []Card, cardID string) (Card, []Card, bool) {
	for i, c := range hand {
		if c.ID == cardID {
			updated := make([]Card, 0, len(hand)-1)
			updated = append(updated, hand[:i]...)
			updated = append(updated, hand[i+1:]...)
			return c, updated, true
		}
	}
	return Card{}, hand, false
}
