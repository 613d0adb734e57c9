package domain

import (
	"fmt"
	"math/rand"
)

// Suit is one of the four suits of the Portuguese 40-card deck.
type Suit string

const (
	SuitCups   Suit = "copas"
	SuitSwords Suit = "espadas"
	SuitCoins  Suit = "ouros"
	SuitClubs  Suit = "paus"
)

// Suits lists all suits in deck construction order.
var Suits = []Suit{SuitCups, SuitSwords, SuitCoins, SuitClubs}

// Card is a single immutable Bisca card. Value encodes the non-monotonic
// Bisca rank order (Ace=14 highest, 7=13 second-highest, face cards below
// the 6) and is only meaningful relative to other cards of the same suit
// or against trump.
type Card struct {
	ID     string `json:"id"`
	Suit   Suit   `json:"suit"`
	Rank   int    `json:"rank"`
	Value  int    `json:"value"`
	Points int    `json:"points"`
	Name   string `json:"name"`
}

type rankSpec struct {
	rank   int
	value  int
	points int
	name   string
}

// Rank ids keep the traditional numbering (1..7, 11..13) so card ids map
// directly onto client-side image assets.
var rankSpecs = []rankSpec{
	{rank: 1, value: 14, points: 11, name: "As"},
	{rank: 2, value: 2, points: 0, name: "2"},
	{rank: 3, value: 3, points: 0, name: "3"},
	{rank: 4, value: 4, points: 0, name: "4"},
	{rank: 5, value: 5, points: 0, name: "5"},
	{rank: 6, value: 6, points: 0, name: "6"},
	{rank: 7, value: 13, points: 10, name: "7"},
	{rank: 11, value: 8, points: 2, name: "Valete"},
	{rank: 12, value: 9, points: 3, name: "Dama"},
	{rank: 13, value: 10, points: 4, name: "Rei"},
}

// DeckSize is the number of cards in a full Bisca deck.
const DeckSize = 40

// TotalPoints is the sum of card points across the full deck.
const TotalPoints = 120

// NewDeck returns the full 40-card Bisca deck in deterministic order.
func NewDeck() []Card {
	deck := make([]Card, 0, DeckSize)
	for _, suit := range Suits {
		for _, spec := range rankSpecs {
			deck = append(deck, Card{
				ID:     fmt.Sprintf("%s_%d", suit, spec.rank),
				Suit:   suit,
				Rank:   spec.rank,
				Value:  spec.value,
				Points: spec.points,
				Name:   spec.name,
			})
		}
	}
	return deck
}

// ShuffleDeck returns a uniformly shuffled copy of the given deck.
func ShuffleDeck(deck []Card, rng *rand.Rand) []Card {
	out := make([]Card, len(deck))
	copy(out, deck)
	rng.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}
