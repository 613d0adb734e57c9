package app

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"bisca/internal/domain"
	"bisca/internal/store"
)

type ledgerCall struct {
	userID string
	amount int64
	ref    string
	reason string
}

type fakeEconomy struct {
	mu       sync.Mutex
	balances map[string]int64
	debits   []ledgerCall
	credits  []ledgerCall
}

func newFakeEconomy() *fakeEconomy {
	return &fakeEconomy{balances: map[string]int64{}}
}

func (f *fakeEconomy) GetBalance(_ context.Context, userID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.balances[userID], nil
}

func (f *fakeEconomy) DebitFee(_ context.Context, userID string, amount int64, ref string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balances[userID] -= amount
	f.debits = append(f.debits, ledgerCall{userID: userID, amount: amount, ref: ref})
	return nil
}

func (f *fakeEconomy) CreditPayout(_ context.Context, userID string, amount int64, ref, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balances[userID] += amount
	f.credits = append(f.credits, ledgerCall{userID: userID, amount: amount, ref: ref, reason: reason})
	return nil
}

func (f *fakeEconomy) creditsFor(userID string) []ledgerCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []ledgerCall
	for _, c := range f.credits {
		if c.userID == userID {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeEconomy) debitsFor(userID string) []ledgerCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []ledgerCall
	for _, c := range f.debits {
		if c.userID == userID {
			out = append(out, c)
		}
	}
	return out
}

func newTestService(seed int64, economy *fakeEconomy) *Service {
	deps := Deps{
		Durable:  store.NewMemoryGameStore(0),
		Volatile: store.NewMemoryGameStore(0),
	}
	if economy != nil {
		deps.Economy = economy
	}
	return NewService(deps, rand.New(rand.NewSource(seed)))
}

func countCards(g *domain.Game) int {
	n := len(g.DrawPile) + len(g.CurrentTrick)
	for side := range g.Hands {
		n += len(g.Hands[side]) + len(g.TrickPiles[side])
	}
	return n
}

func TestCreateBotGame(t *testing.T) {
	ctx := context.Background()
	s := newTestService(1, nil)
	human := domain.Human("u1")

	g, events, err := s.CreateGame(ctx, CreateGameParams{Type: domain.HandSize3, Creator: human})
	if err != nil {
		t.Fatalf("CreateGame: %v", err)
	}
	if g.Phase != domain.PhaseInProgress {
		t.Fatalf("phase = %s, want in_progress", g.Phase)
	}
	if !g.Sides[domain.SideB].IsBot() {
		t.Fatal("side B is not the bot")
	}
	if len(g.Hands[domain.SideA]) != 3 || len(g.Hands[domain.SideB]) != 3 {
		t.Fatalf("hand sizes = %d/%d, want 3/3", len(g.Hands[domain.SideA]), len(g.Hands[domain.SideB]))
	}
	if countCards(g) != domain.DeckSize {
		t.Fatalf("card count = %d, want %d", countCards(g), domain.DeckSize)
	}
	if last := g.DrawPile[len(g.DrawPile)-1]; last.ID != g.TrumpCard.ID {
		t.Fatal("trump card is not the final draw")
	}
	if g.TrumpSuit != g.TrumpCard.Suit {
		t.Fatal("trump suit does not match trump card")
	}
	if len(events) != 1 || events[0].Kind != EventGameCreated {
		t.Fatalf("events = %v, want single game_created", events)
	}
}

func TestCreateGameRejectsBadHandSize(t *testing.T) {
	s := newTestService(1, nil)
	_, _, err := s.CreateGame(context.Background(), CreateGameParams{Type: 5, Creator: domain.Human("u1")})
	if !errors.Is(err, ErrInvalidHandSize) {
		t.Fatalf("err = %v, want ErrInvalidHandSize", err)
	}
}

func TestTurnLegality(t *testing.T) {
	ctx := context.Background()
	s := newTestService(2, nil)
	human := domain.Human("u1")

	g, _, err := s.CreateGame(ctx, CreateGameParams{Type: domain.HandSize3, Creator: human})
	if err != nil {
		t.Fatalf("CreateGame: %v", err)
	}

	if g.CurrentSide == domain.SideB {
		// Bring the bot's lead onto the table first.
		if g, _, err = s.MakeMove(ctx, g.ID, human, Move{Action: MoveRequestBotMove}); err != nil {
			t.Fatalf("bot move: %v", err)
		}
		// With the bot's card down it is the human's turn; a second bot
		// move request must be rejected.
		if _, _, err = s.MakeMove(ctx, g.ID, human, Move{Action: MoveRequestBotMove}); !errors.Is(err, ErrNotBotTurn) {
			t.Fatalf("bot move out of turn = %v, want ErrNotBotTurn", err)
		}
	}

	// Playing a card the hand does not hold is rejected.
	if _, _, err = s.MakeMove(ctx, g.ID, human, Move{Action: MovePlayCard, CardID: "nope"}); !errors.Is(err, ErrCardNotHeld) {
		t.Fatalf("unknown card = %v, want ErrCardNotHeld", err)
	}

	// A non-participant can do nothing.
	if _, _, err = s.MakeMove(ctx, g.ID, domain.Human("intruder"), Move{Action: MovePlayCard, CardID: "x"}); !errors.Is(err, ErrNotParticipant) {
		t.Fatalf("intruder = %v, want ErrNotParticipant", err)
	}
}

func TestBotRespondsWithinSameMove(t *testing.T) {
	ctx := context.Background()
	s := newTestService(3, nil)
	human := domain.Human("u1")

	g, _, err := s.CreateGame(ctx, CreateGameParams{Type: domain.HandSize3, Creator: human})
	if err != nil {
		t.Fatalf("CreateGame: %v", err)
	}
	if g.CurrentSide != domain.SideA {
		if g, _, err = s.MakeMove(ctx, g.ID, human, Move{Action: MoveRequestBotMove}); err != nil {
			t.Fatalf("bot lead: %v", err)
		}
		if g, _, err = s.MakeMove(ctx, g.ID, human, Move{Action: MovePlayCard, CardID: g.Hands[domain.SideA][0].ID}); err != nil {
			t.Fatalf("human follow: %v", err)
		}
	} else {
		g, _, err = s.MakeMove(ctx, g.ID, human, Move{Action: MovePlayCard, CardID: g.Hands[domain.SideA][0].ID})
		if err != nil {
			t.Fatalf("human lead: %v", err)
		}
	}

	if g.Phase != domain.PhaseTrickComplete {
		t.Fatalf("phase = %s, want trick_complete", g.Phase)
	}
	if len(g.CurrentTrick) != 2 {
		t.Fatalf("trick size = %d, want 2", len(g.CurrentTrick))
	}

	// Further plays are rejected until the trick is resolved.
	if len(g.Hands[domain.SideA]) > 0 {
		_, _, err = s.MakeMove(ctx, g.ID, human, Move{Action: MovePlayCard, CardID: g.Hands[domain.SideA][0].ID})
		if !errors.Is(err, ErrTrickFull) {
			t.Fatalf("play into full trick = %v, want ErrTrickFull", err)
		}
	}
}

func TestResolveEmptyTrickIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newTestService(4, nil)
	human := domain.Human("u1")

	g, _, err := s.CreateGame(ctx, CreateGameParams{Type: domain.HandSize3, Creator: human})
	if err != nil {
		t.Fatalf("CreateGame: %v", err)
	}

	before, _ := s.GetState(ctx, g.ID, human)
	after, _, err := s.MakeMove(ctx, g.ID, human, Move{Action: MoveResolveTrick})
	if err != nil {
		t.Fatalf("resolve empty trick: %v", err)
	}
	if after.Points != before.Points || len(after.CurrentTrick) != 0 || after.Phase != before.Phase {
		t.Fatal("resolving an empty trick changed state")
	}
}

// playBotGameToEnd drives a full bot game with a first-card human policy,
// checking card conservation after every mutation.
func playBotGameToEnd(t *testing.T, s *Service, gameID string, human domain.PlayerRef) *domain.Game {
	t.Helper()
	ctx := context.Background()

	g, err := s.GetState(ctx, gameID, human)
	if err != nil {
		t.Fatalf("GetState: %v", err)
	}

	for steps := 0; !g.Phase.Terminal(); steps++ {
		if steps > 300 {
			t.Fatal("game did not terminate")
		}

		var mv Move
		switch {
		case g.Phase == domain.PhaseTrickComplete:
			mv = Move{Action: MoveResolveTrick}
		case g.Sides[g.CurrentSide].IsBot():
			mv = Move{Action: MoveRequestBotMove}
		default:
			hand := g.Hands[g.CurrentSide]
			if len(hand) == 0 {
				t.Fatalf("current side %d has no cards in a non-terminal game", g.CurrentSide)
			}
			mv = Move{Action: MovePlayCard, CardID: hand[0].ID}
		}

		g, _, err = s.MakeMove(ctx, gameID, human, mv)
		if err != nil {
			t.Fatalf("step %d (%s): %v", steps, mv.Action, err)
		}
		if n := countCards(g); n != domain.DeckSize {
			t.Fatalf("step %d: card count = %d, want %d", steps, n, domain.DeckSize)
		}
	}
	return g
}

func TestFullBotGamePlayout(t *testing.T) {
	for seed := int64(0); seed < 10; seed++ {
		seed := seed
		t.Run(fmt.Sprintf("seed=%d", seed), func(t *testing.T) {
			ctx := context.Background()
			s := newTestService(seed, nil)
			human := domain.Human("u1")

			g, _, err := s.CreateGame(ctx, CreateGameParams{Type: domain.HandSize3, Creator: human})
			if err != nil {
				t.Fatalf("CreateGame: %v", err)
			}

			final := playBotGameToEnd(t, s, g.ID, human)

			if final.Phase != domain.PhaseFinished {
				t.Fatalf("phase = %s, want finished", final.Phase)
			}
			total := final.Points[domain.SideA] + final.Points[domain.SideB]
			if total != domain.TotalPoints {
				t.Fatalf("total points = %d, want %d", total, domain.TotalPoints)
			}
			if len(final.Hands[domain.SideA]) != 0 && len(final.Hands[domain.SideB]) != 0 {
				t.Fatal("terminal game with both hands non-empty")
			}
			if len(final.DrawPile) != 0 {
				t.Fatal("terminal game with cards still in the draw pile")
			}
			a, b := final.Points[domain.SideA], final.Points[domain.SideB]
			switch {
			case final.IsDraw:
				if a != b {
					t.Fatalf("draw with %d vs %d points", a, b)
				}
			case final.WinnerSide == nil:
				t.Fatal("decisive game without winner")
			case final.Points[*final.WinnerSide] <= final.Points[final.WinnerSide.Other()]:
				t.Fatal("winner has fewer points than loser")
			}

			// A terminal game rejects every further intent.
			if _, _, err := s.MakeMove(ctx, g.ID, human, Move{Action: MoveResign}); !errors.Is(err, ErrGameNotActive) {
				t.Fatalf("move after end = %v, want ErrGameNotActive", err)
			}
		})
	}
}

func TestNineCardBotGamePlayout(t *testing.T) {
	ctx := context.Background()
	s := newTestService(11, nil)
	human := domain.Human("u1")

	g, _, err := s.CreateGame(ctx, CreateGameParams{Type: domain.HandSize9, Creator: human})
	if err != nil {
		t.Fatalf("CreateGame: %v", err)
	}
	if len(g.Hands[domain.SideA]) != 9 {
		t.Fatalf("hand size = %d, want 9", len(g.Hands[domain.SideA]))
	}

	final := playBotGameToEnd(t, s, g.ID, human)
	if total := final.Points[domain.SideA] + final.Points[domain.SideB]; total != domain.TotalPoints {
		t.Fatalf("total points = %d, want %d", total, domain.TotalPoints)
	}
}

// seedGame plants a crafted mid-game state directly in the volatile store.
func seedGame(t *testing.T, s *Service, g *domain.Game) {
	t.Helper()
	now := time.Now().UTC()
	if g.StartedAt.IsZero() {
		g.StartedAt = now
	}
	g.LastMoveAt = now
	if err := s.volatile.Create(context.Background(), g); err != nil {
		t.Fatalf("seed game: %v", err)
	}
}

func card(t *testing.T, id string) domain.Card {
	t.Helper()
	for _, c := range domain.NewDeck() {
		if c.ID == id {
			return c
		}
	}
	t.Fatalf("no card %s in deck", id)
	return domain.Card{}
}

func TestTrumpAceTakesLastTrick(t *testing.T) {
	ctx := context.Background()
	s := newTestService(5, nil)
	human := domain.Human("u1")

	// Endgame: pile empty, one card each. The bot leads the 7 of clubs;
	// the human holds the ace of trumps (cups) and must take the trick.
	g := &domain.Game{
		ID:        "crafted-ace",
		Type:      domain.HandSize3,
		TrumpCard: card(t, "copas_2"),
		TrumpSuit: domain.SuitCups,
		Phase:     domain.PhaseInProgress,
	}
	g.Sides[domain.SideA] = human
	g.Sides[domain.SideB] = domain.Bot()
	g.Hands[domain.SideA] = []domain.Card{card(t, "copas_1")}
	g.Hands[domain.SideB] = []domain.Card{card(t, "paus_7")}
	g.CurrentSide, g.TrickLeader = domain.SideB, domain.SideB
	g.Points[domain.SideA] = 50
	g.Points[domain.SideB] = 49
	seedGame(t, s, g)

	g2, _, err := s.MakeMove(ctx, g.ID, human, Move{Action: MoveRequestBotMove})
	if err != nil {
		t.Fatalf("bot lead: %v", err)
	}
	g2, _, err = s.MakeMove(ctx, g.ID, human, Move{Action: MovePlayCard, CardID: "copas_1"})
	if err != nil {
		t.Fatalf("human follow: %v", err)
	}
	if g2.Phase != domain.PhaseTrickComplete {
		t.Fatalf("phase = %s, want trick_complete", g2.Phase)
	}

	final, _, err := s.MakeMove(ctx, g.ID, human, Move{Action: MoveResolveTrick})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !final.Phase.Terminal() {
		t.Fatalf("phase = %s, want terminal", final.Phase)
	}
	// 50 + ace (11) + seven (10) = 71 for the human.
	if final.Points[domain.SideA] != 71 {
		t.Fatalf("human points = %d, want 71", final.Points[domain.SideA])
	}
	if final.WinnerSide == nil || *final.WinnerSide != domain.SideA {
		t.Fatal("trump ace did not win the game")
	}
}

func TestDegenerateSingleCardTrick(t *testing.T) {
	ctx := context.Background()
	s := newTestService(6, nil)
	human := domain.Human("u1")

	// Pile empty, the human holds the very last card, the bot none.
	g := &domain.Game{
		ID:        "crafted-degenerate",
		Type:      domain.HandSize3,
		TrumpCard: card(t, "ouros_2"),
		TrumpSuit: domain.SuitCoins,
		Phase:     domain.PhaseInProgress,
	}
	g.Sides[domain.SideA] = human
	g.Sides[domain.SideB] = domain.Bot()
	g.Hands[domain.SideA] = []domain.Card{card(t, "espadas_3")}
	g.CurrentSide, g.TrickLeader = domain.SideA, domain.SideA
	seedGame(t, s, g)

	g2, _, err := s.MakeMove(ctx, g.ID, human, Move{Action: MovePlayCard, CardID: "espadas_3"})
	if err != nil {
		t.Fatalf("play last card: %v", err)
	}
	// The responder has nothing to answer with: the single card stands
	// as a completed trick.
	if g2.Phase != domain.PhaseTrickComplete {
		t.Fatalf("phase = %s, want trick_complete", g2.Phase)
	}

	final, _, err := s.MakeMove(ctx, g.ID, human, Move{Action: MoveResolveTrick})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !final.Phase.Terminal() {
		t.Fatalf("phase = %s, want terminal", final.Phase)
	}
	if len(final.TrickPiles[domain.SideA]) != 1 {
		t.Fatal("degenerate trick not captured by its player")
	}
}

func TestGameEndsWhenOneHandEmpties(t *testing.T) {
	ctx := context.Background()
	s := newTestService(7, nil)
	human := domain.Human("u1")

	// Pile empty; the bot plays its last card while the human still has
	// two. Once the trick resolves the bot's hand is empty, which ends
	// the game even though the human holds a card.
	g := &domain.Game{
		ID:        "crafted-empty-hand",
		Type:      domain.HandSize3,
		TrumpCard: card(t, "copas_2"),
		TrumpSuit: domain.SuitCups,
		Phase:     domain.PhaseInProgress,
	}
	g.Sides[domain.SideA] = human
	g.Sides[domain.SideB] = domain.Bot()
	g.Hands[domain.SideA] = []domain.Card{card(t, "espadas_3"), card(t, "espadas_4")}
	g.Hands[domain.SideB] = []domain.Card{card(t, "copas_7")}
	g.CurrentSide, g.TrickLeader = domain.SideB, domain.SideB
	seedGame(t, s, g)

	_, _, err := s.MakeMove(ctx, g.ID, human, Move{Action: MoveRequestBotMove})
	if err != nil {
		t.Fatalf("bot lead: %v", err)
	}
	_, _, err = s.MakeMove(ctx, g.ID, human, Move{Action: MovePlayCard, CardID: "espadas_3"})
	if err != nil {
		t.Fatalf("human follow: %v", err)
	}

	final, _, err := s.MakeMove(ctx, g.ID, human, Move{Action: MoveResolveTrick})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !final.Phase.Terminal() {
		t.Fatalf("phase = %s, want terminal once a hand is empty", final.Phase)
	}
	// The human's unplayed card stays in hand and scores for no one.
	if len(final.Hands[domain.SideA]) != 1 {
		t.Fatal("unplayed card vanished from the hand")
	}
	if final.Points[domain.SideB] != 10 {
		t.Fatalf("bot points = %d, want 10 from the trump seven trick", final.Points[domain.SideB])
	}
}

func TestResignDiscardsInFlightTrick(t *testing.T) {
	ctx := context.Background()
	economy := newFakeEconomy()
	economy.balances["u1"] = 1000
	economy.balances["u2"] = 1000
	s := newTestService(8, economy)
	alice, bob := domain.Human("u1"), domain.Human("u2")

	opp := domain.PlayerRef{}
	g, _, err := s.CreateGame(ctx, CreateGameParams{Type: domain.HandSize3, Creator: alice, Opponent: &opp, Stake: 100})
	if err != nil {
		t.Fatalf("CreateGame: %v", err)
	}
	if g, _, err = s.JoinGame(ctx, g.ID, bob); err != nil {
		t.Fatalf("JoinGame: %v", err)
	}

	leader := g.Sides[g.CurrentSide]
	g, _, err = s.MakeMove(ctx, g.ID, leader, Move{Action: MovePlayCard, CardID: g.Hands[g.CurrentSide][0].ID})
	if err != nil {
		t.Fatalf("lead: %v", err)
	}

	// The other player resigns mid-trick; the table card scores for no one.
	resigner := g.Sides[g.CurrentSide]
	final, events, err := s.MakeMove(ctx, g.ID, resigner, Move{Action: MoveResign})
	if err != nil {
		t.Fatalf("resign: %v", err)
	}
	if final.Phase != domain.PhaseResigned {
		t.Fatalf("phase = %s, want resigned", final.Phase)
	}
	if final.WinnerSide == nil || final.Sides[*final.WinnerSide].Equal(resigner) {
		t.Fatal("resigner cannot win")
	}
	if final.Points[domain.SideA] != 0 || final.Points[domain.SideB] != 0 {
		t.Fatal("in-flight trick leaked into the score")
	}

	var sawResigned, sawEnded bool
	for _, ev := range events {
		switch ev.Kind {
		case EventGameResigned:
			sawResigned = true
		case EventGameEnded:
			sawEnded = true
		}
	}
	if !sawResigned || !sawEnded {
		t.Fatalf("events = %v, want game_resigned and game_ended", events)
	}

	// The winner collects both stakes, once.
	winner := final.Sides[*final.WinnerSide]
	credits := economy.creditsFor(winner.ID)
	if len(credits) != 1 || credits[0].amount != 200 {
		t.Fatalf("winner credits = %v, want single 200", credits)
	}
	if len(economy.creditsFor(resigner.ID)) != 0 {
		t.Fatal("resigner received a payout")
	}
}

func TestDrawRefundsBothStakesOnce(t *testing.T) {
	ctx := context.Background()
	economy := newFakeEconomy()
	s := newTestService(9, economy)
	alice, bob := domain.Human("u1"), domain.Human("u2")

	// Wagered endgame one trick away from a 60-60 draw. Side A has 55
	// points banked, side B has 60; the final trick is worth 5 and side
	// A takes it with the higher espadas card.
	g := &domain.Game{
		ID:        "crafted-draw",
		Type:      domain.HandSize3,
		Stake:     100,
		TrumpCard: card(t, "paus_2"),
		TrumpSuit: domain.SuitClubs,
		Phase:     domain.PhaseInProgress,
	}
	g.Sides[domain.SideA] = alice
	g.Sides[domain.SideB] = bob
	g.TrickPiles[domain.SideA] = []domain.Card{
		card(t, "copas_1"), card(t, "espadas_1"), card(t, "copas_7"), card(t, "espadas_7"),
		card(t, "copas_13"), card(t, "espadas_13"), card(t, "copas_12"), card(t, "copas_11"),
	}
	g.TrickPiles[domain.SideB] = []domain.Card{
		card(t, "ouros_1"), card(t, "paus_1"), card(t, "ouros_7"), card(t, "paus_7"),
		card(t, "ouros_13"), card(t, "paus_13"), card(t, "ouros_12"), card(t, "paus_12"),
		card(t, "ouros_11"), card(t, "paus_11"),
	}
	g.Points[domain.SideA] = 55
	g.Points[domain.SideB] = 60
	g.Hands[domain.SideA] = []domain.Card{card(t, "espadas_12")}
	g.Hands[domain.SideB] = []domain.Card{card(t, "espadas_11")}
	g.CurrentSide, g.TrickLeader = domain.SideA, domain.SideA
	seedGame(t, s, g)

	g2, _, err := s.MakeMove(ctx, g.ID, alice, Move{Action: MovePlayCard, CardID: "espadas_12"})
	if err != nil {
		t.Fatalf("alice leads: %v", err)
	}
	g2, _, err = s.MakeMove(ctx, g.ID, bob, Move{Action: MovePlayCard, CardID: "espadas_11"})
	if err != nil {
		t.Fatalf("bob follows: %v", err)
	}
	if g2.Phase != domain.PhaseTrickComplete {
		t.Fatalf("phase = %s, want trick_complete", g2.Phase)
	}

	final, _, err := s.MakeMove(ctx, g.ID, alice, Move{Action: MoveResolveTrick})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !final.IsDraw {
		t.Fatalf("points = %v, want a 60-60 draw", final.Points)
	}
	if final.Phase != domain.PhaseFinished {
		t.Fatalf("phase = %s, want finished", final.Phase)
	}

	// Each side gets exactly one refund of its own stake.
	for _, id := range []string{"u1", "u2"} {
		credits := economy.creditsFor(id)
		if len(credits) != 1 || credits[0].amount != 100 {
			t.Fatalf("refunds for %s = %v, want single 100", id, credits)
		}
	}

	// A second resolve on the finished game is rejected and does not
	// refund again.
	if _, _, err := s.MakeMove(ctx, g.ID, alice, Move{Action: MoveResolveTrick}); !errors.Is(err, ErrGameNotActive) {
		t.Fatalf("resolve after end = %v, want ErrGameNotActive", err)
	}
	if len(economy.credits) != 2 {
		t.Fatalf("credits = %d, want exactly 2", len(economy.credits))
	}
}

func TestWageredJoinFlow(t *testing.T) {
	ctx := context.Background()
	economy := newFakeEconomy()
	economy.balances["u1"] = 500
	economy.balances["u2"] = 500
	economy.balances["poor"] = 10
	s := newTestService(10, economy)
	alice, bob := domain.Human("u1"), domain.Human("u2")

	open := domain.PlayerRef{}
	g, _, err := s.CreateGame(ctx, CreateGameParams{Type: domain.HandSize3, Creator: alice, Opponent: &open, Stake: 100})
	if err != nil {
		t.Fatalf("CreateGame: %v", err)
	}
	if g.Phase != domain.PhasePending {
		t.Fatalf("phase = %s, want pending", g.Phase)
	}
	if len(g.Hands[domain.SideB]) != 0 {
		t.Fatal("joiner hand dealt before join")
	}
	if bal, _ := economy.GetBalance(ctx, "u1"); bal != 400 {
		t.Fatalf("creator balance = %d, want 400 after fee", bal)
	}

	// The creator cannot join their own game, nor can a broke player.
	if _, _, err := s.JoinGame(ctx, g.ID, alice); !errors.Is(err, ErrOwnGame) {
		t.Fatalf("self join = %v, want ErrOwnGame", err)
	}
	if _, _, err := s.JoinGame(ctx, g.ID, domain.Human("poor")); !errors.Is(err, ErrInsufficientCoin) {
		t.Fatalf("broke join = %v, want ErrInsufficientCoin", err)
	}

	g, _, err = s.JoinGame(ctx, g.ID, bob)
	if err != nil {
		t.Fatalf("JoinGame: %v", err)
	}
	if g.Phase != domain.PhaseInProgress {
		t.Fatalf("phase = %s, want in_progress", g.Phase)
	}
	if len(g.Hands[domain.SideA]) != 3 || len(g.Hands[domain.SideB]) != 3 {
		t.Fatal("hands not dealt after join")
	}
	if countCards(g) != domain.DeckSize {
		t.Fatalf("card count = %d, want %d", countCards(g), domain.DeckSize)
	}
	if bal, _ := economy.GetBalance(ctx, "u2"); bal != 400 {
		t.Fatalf("joiner balance = %d, want 400 after fee", bal)
	}

	// Joining twice is closed off.
	if _, _, err := s.JoinGame(ctx, g.ID, domain.Human("u3")); !errors.Is(err, ErrJoinClosed) {
		t.Fatalf("late join = %v, want ErrJoinClosed", err)
	}
}

func TestFreeGameReward(t *testing.T) {
	ctx := context.Background()
	economy := newFakeEconomy()
	s := newTestService(12, economy)
	human := domain.Human("u1")

	// Endgame where the human sweeps the last trick and ends above 91
	// points, earning the middle reward bracket.
	g := &domain.Game{
		ID:        "crafted-reward",
		Type:      domain.HandSize3,
		TrumpCard: card(t, "paus_2"),
		TrumpSuit: domain.SuitClubs,
		Phase:     domain.PhaseInProgress,
	}
	g.Sides[domain.SideA] = human
	g.Sides[domain.SideB] = domain.Bot()
	g.TrickPiles[domain.SideA] = []domain.Card{
		card(t, "copas_1"), card(t, "espadas_1"), card(t, "ouros_1"), card(t, "paus_1"),
		card(t, "copas_7"), card(t, "espadas_7"), card(t, "ouros_7"), card(t, "paus_7"),
		card(t, "copas_13"), card(t, "espadas_13"),
	}
	g.TrickPiles[domain.SideB] = []domain.Card{
		card(t, "ouros_13"), card(t, "paus_13"), card(t, "copas_12"), card(t, "espadas_12"),
		card(t, "ouros_12"), card(t, "paus_12"), card(t, "copas_11"), card(t, "espadas_11"),
	}
	g.Hands[domain.SideA] = []domain.Card{card(t, "ouros_11")}
	g.Hands[domain.SideB] = []domain.Card{card(t, "ouros_6")}
	g.CurrentSide, g.TrickLeader = domain.SideA, domain.SideA
	seedGame(t, s, g)

	g2, _, err := s.MakeMove(ctx, g.ID, human, Move{Action: MovePlayCard, CardID: "ouros_11"})
	if err != nil {
		t.Fatalf("lead: %v", err)
	}
	if g2.Phase != domain.PhaseTrickComplete {
		t.Fatalf("phase = %s, want trick_complete after bot follow", g2.Phase)
	}

	final, _, err := s.MakeMove(ctx, g.ID, human, Move{Action: MoveResolveTrick})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !final.Phase.Terminal() {
		t.Fatalf("phase = %s, want terminal", final.Phase)
	}
	if final.WinnerSide == nil || *final.WinnerSide != domain.SideA {
		t.Fatalf("winner = %v, want side A", final.WinnerSide)
	}
	if final.Points[domain.SideA] < 91 {
		t.Fatalf("points = %d, want at least 91", final.Points[domain.SideA])
	}

	credits := economy.creditsFor("u1")
	if len(credits) != 1 || credits[0].amount != 2 {
		t.Fatalf("reward credits = %v, want single 2-coin reward", credits)
	}
}

func TestGetStateAuthorization(t *testing.T) {
	ctx := context.Background()
	s := newTestService(13, nil)
	human := domain.Human("u1")

	g, _, err := s.CreateGame(ctx, CreateGameParams{Type: domain.HandSize3, Creator: human})
	if err != nil {
		t.Fatalf("CreateGame: %v", err)
	}

	if _, err := s.GetState(ctx, g.ID, human); err != nil {
		t.Fatalf("participant read: %v", err)
	}
	if _, err := s.GetState(ctx, g.ID, domain.Human("stranger")); !errors.Is(err, ErrNotParticipant) {
		t.Fatalf("stranger read = %v, want ErrNotParticipant", err)
	}
	if _, err := s.GetState(ctx, "missing", human); err == nil {
		t.Fatal("missing game read did not fail")
	}

	// Games with an anonymous seat are readable by anyone.
	guest, _, err := s.CreateGame(ctx, CreateGameParams{Type: domain.HandSize3, Creator: domain.Anonymous("guest_1")})
	if err != nil {
		t.Fatalf("guest CreateGame: %v", err)
	}
	if _, err := s.GetState(ctx, guest.ID, domain.Human("stranger")); err != nil {
		t.Fatalf("anonymous game read: %v", err)
	}
}

type failingCreateStore struct {
	*store.MemoryGameStore
}

func (f failingCreateStore) Create(ctx context.Context, g *domain.Game) error {
	return errors.New("storage unavailable")
}

func TestCreateGameRefundsFeeWhenStoreFails(t *testing.T) {
	ctx := context.Background()
	economy := newFakeEconomy()
	economy.balances["u1"] = 500
	s := NewService(Deps{
		Durable:  failingCreateStore{store.NewMemoryGameStore(0)},
		Volatile: store.NewMemoryGameStore(0),
		Economy:  economy,
	}, rand.New(rand.NewSource(30)))

	open := domain.PlayerRef{}
	_, _, err := s.CreateGame(ctx, CreateGameParams{Type: domain.HandSize3, Creator: domain.Human("u1"), Opponent: &open, Stake: 100})
	if err == nil {
		t.Fatal("CreateGame succeeded against a failing store")
	}
	if bal, _ := economy.GetBalance(ctx, "u1"); bal != 500 {
		t.Fatalf("balance = %d, want 500 after refund", bal)
	}
	credits := economy.creditsFor("u1")
	if len(credits) != 1 || credits[0].amount != 100 || credits[0].reason != "Fee refund" {
		t.Fatalf("credits = %v, want single 100 fee refund", credits)
	}
}

// rerunStore runs every WithLock mutation twice, discarding the first
// attempt, the way an optimistic-concurrency conflict forces a rerun on
// fresh state.
type rerunStore struct {
	inner  *store.MemoryGameStore
	reruns int
}

func (r *rerunStore) Create(ctx context.Context, g *domain.Game) error {
	return r.inner.Create(ctx, g)
}

func (r *rerunStore) Get(ctx context.Context, id string) (*domain.Game, error) {
	return r.inner.Get(ctx, id)
}

func (r *rerunStore) WithLock(ctx context.Context, id string, fn func(*domain.Game) error) (*domain.Game, error) {
	if g, err := r.inner.Get(ctx, id); err == nil {
		if err := fn(g); err != nil {
			return nil, err
		}
		r.reruns++
	}
	return r.inner.WithLock(ctx, id, fn)
}

func TestLedgerEffectsRunOnceOnLockRerun(t *testing.T) {
	ctx := context.Background()
	economy := newFakeEconomy()
	economy.balances["u1"] = 100
	economy.balances["u2"] = 100
	durable := &rerunStore{inner: store.NewMemoryGameStore(0)}
	s := NewService(Deps{
		Durable:  durable,
		Volatile: store.NewMemoryGameStore(0),
		Economy:  economy,
	}, rand.New(rand.NewSource(31)))
	alice, bob := domain.Human("u1"), domain.Human("u2")

	open := domain.PlayerRef{}
	g, _, err := s.CreateGame(ctx, CreateGameParams{Type: domain.HandSize3, Creator: alice, Opponent: &open, Stake: 100})
	if err != nil {
		t.Fatalf("CreateGame: %v", err)
	}

	if _, _, err := s.JoinGame(ctx, g.ID, bob); err != nil {
		t.Fatalf("JoinGame: %v", err)
	}
	if durable.reruns == 0 {
		t.Fatal("join mutation was not rerun")
	}
	if got := economy.debitsFor("u2"); len(got) != 1 {
		t.Fatalf("joiner debits = %v, want exactly one despite the rerun", got)
	}
	if bal, _ := economy.GetBalance(ctx, "u2"); bal != 0 {
		t.Fatalf("joiner balance = %d, want 0", bal)
	}

	// The resignation payout must survive a rerun unrepeated too.
	if _, _, err := s.MakeMove(ctx, g.ID, bob, Move{Action: MoveResign}); err != nil {
		t.Fatalf("resign: %v", err)
	}
	credits := economy.creditsFor("u1")
	if len(credits) != 1 || credits[0].amount != 200 {
		t.Fatalf("winner credits = %v, want single 200 payout", credits)
	}
}
