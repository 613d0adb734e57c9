package app

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"bisca/internal/bot"
	"bisca/internal/config"
	"bisca/internal/domain"
	"bisca/internal/ports"

	"github.com/google/uuid"
)

// MoveAction is one of the move intents a caller can submit.
type MoveAction string

const (
	MovePlayCard       MoveAction = "play_card"
	MoveResolveTrick   MoveAction = "resolve_trick"
	MoveResign         MoveAction = "resign"
	MoveRequestBotMove MoveAction = "bot_move"
)

// Move is a single move intent against a game.
type Move struct {
	Action MoveAction `json:"action"`
	CardID string     `json:"card_id,omitempty"`
}

// ledgerFn is a deferred wallet effect. Mutations collect these while the
// game lock is held and the caller executes them once after the state has
// committed, so an optimistic-concurrency rerun of the mutation can never
// repeat a ledger side effect.
type ledgerFn func(ctx context.Context) error

func runLedger(ctx context.Context, ledger []ledgerFn) error {
	for _, fn := range ledger {
		if err := fn(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Deps are the collaborators the engine service needs. Durable receives
// wagered games, Volatile receives free single-player and anonymous games.
type Deps struct {
	Durable  ports.SessionStore
	Volatile ports.SessionStore
	Economy  ports.EconomyPort
	Series   ports.SeriesPort
}

// Service owns all game use-cases: it is the only writer of game state.
// Every mutation runs under the owning store's per-game lock, so moves
// against one game are totally ordered and bot responses commit atomically
// with the human move that triggered them.
type Service struct {
	rng      *rand.Rand
	durable  ports.SessionStore
	volatile ports.SessionStore
	economy  ports.EconomyPort
	series   ports.SeriesPort
	brain    bot.Brain
}

// NewService constructs a Service with the provided rng or a time-seeded
// default.
func NewService(deps Deps, rng *rand.Rand) *Service {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Service{
		rng:      rng,
		durable:  deps.Durable,
		volatile: deps.Volatile,
		economy:  deps.Economy,
		series:   deps.Series,
		brain:    bot.New(),
	}
}

// SetSeriesPort wires the series collaborator after construction. The
// series service itself creates games through this Service, so the two
// are linked once both exist.
func (s *Service) SetSeriesPort(p ports.SeriesPort) {
	s.series = p
}

// CreateGameParams describes a new game. A nil Opponent requests a bot
// game; a non-nil zero ref leaves the seat open for any joiner; a human
// ref designates a challenge opponent. SeriesID is set only by the series
// collaborator, which manages stakes itself.
type CreateGameParams struct {
	Type     int
	Creator  domain.PlayerRef
	Opponent *domain.PlayerRef
	Stake    int64
	SeriesID string
}

// CreateGame deals and stores a new game. Wagered games debit the
// creator's fee up front and await a joiner; bot games are free, fully
// dealt and start immediately with an unbiased coin flip for first player.
func (s *Service) CreateGame(ctx context.Context, p CreateGameParams) (*domain.Game, []Event, error) {
	if !domain.ValidHandSize(p.Type) {
		return nil, nil, ErrInvalidHandSize
	}
	if p.Creator.IsZero() || p.Creator.IsBot() {
		return nil, nil, ErrNotParticipant
	}

	now := time.Now().UTC()
	deck := domain.ShuffleDeck(domain.NewDeck(), s.rng)

	g := &domain.Game{
		ID:         uuid.NewString(),
		Type:       p.Type,
		Stake:      p.Stake,
		SeriesID:   p.SeriesID,
		StartedAt:  now,
		LastMoveAt: now,
	}
	g.Sides[domain.SideA] = p.Creator

	var store ports.SessionStore
	feeCharged := false
	switch {
	case p.Opponent == nil:
		// Free bot game, fully dealt, kept in the volatile store.
		g.Sides[domain.SideB] = domain.Bot()
		g.Stake = 0
		g.Hands[domain.SideA], g.Hands[domain.SideB], g.TrumpCard, g.DrawPile = domain.Deal(deck, p.Type)
		g.TrumpSuit = g.TrumpCard.Suit
		first := domain.Side(s.rng.Intn(2))
		g.CurrentSide, g.TrickLeader = first, first
		g.Phase = domain.PhaseInProgress
		store = s.volatile

	case p.SeriesID != "":
		// Series game: both sides known, fixed first player, stakes
		// already pooled at series level.
		g.Sides[domain.SideB] = *p.Opponent
		g.Hands[domain.SideA], g.Hands[domain.SideB], g.TrumpCard, g.DrawPile = domain.Deal(deck, p.Type)
		g.TrumpSuit = g.TrumpCard.Suit
		g.CurrentSide, g.TrickLeader = domain.SideA, domain.SideA
		g.Phase = domain.PhaseInProgress
		store = s.durable

	default:
		// Wagered game awaiting its opponent. The second hand is dealt
		// when the joiner arrives.
		g.Sides[domain.SideB] = *p.Opponent // zero ref keeps the seat open
		g.Hands[domain.SideA], g.TrumpCard, g.DrawPile = domain.DealOne(deck, p.Type)
		g.TrumpSuit = g.TrumpCard.Suit
		g.Phase = domain.PhasePending
		store = s.durable

		if g.Stake > 0 && p.Creator.IsHuman() {
			if err := s.chargeFee(ctx, p.Creator.ID, g.Stake, g.ID); err != nil {
				return nil, nil, err
			}
			feeCharged = s.economy != nil
		}
	}

	if err := store.Create(ctx, g); err != nil {
		if feeCharged {
			// The fee was taken for a game that never came to exist.
			if refundErr := s.economy.CreditPayout(ctx, p.Creator.ID, g.Stake, g.ID, "Fee refund"); refundErr != nil {
				return nil, nil, fmt.Errorf("fee refund after failed create: %v: %w", refundErr, err)
			}
		}
		return nil, nil, err
	}

	events := []Event{{
		Kind: EventGameCreated,
		Payload: GameCreatedPayload{
			GameID:    g.ID,
			Type:      g.Type,
			TrumpCard: g.TrumpCard,
			FirstSide: g.CurrentSide,
		},
	}}
	return g, events, nil
}

// JoinGame seats the joiner as side B of a pending wagered game, debits
// their fee, deals the deferred hand and flips for first player.
func (s *Service) JoinGame(ctx context.Context, gameID string, joiner domain.PlayerRef) (*domain.Game, []Event, error) {
	if joiner.IsZero() || joiner.IsBot() {
		return nil, nil, ErrNotParticipant
	}

	var events []Event
	var ledger []ledgerFn
	g, err := s.durable.WithLock(ctx, gameID, func(g *domain.Game) error {
		events = events[:0]
		ledger = ledger[:0]

		if g.Phase != domain.PhasePending {
			return ErrJoinClosed
		}
		if g.Sides[domain.SideA].Equal(joiner) {
			return ErrOwnGame
		}
		if !g.Sides[domain.SideB].IsZero() && !g.Sides[domain.SideB].Equal(joiner) {
			return ErrNotParticipant
		}

		if g.Stake > 0 && joiner.IsHuman() {
			if err := s.checkBalance(ctx, joiner.ID, g.Stake); err != nil {
				return err
			}
			stake, gid := g.Stake, g.ID
			ledger = append(ledger, func(ctx context.Context) error {
				return s.debitFee(ctx, joiner.ID, stake, gid)
			})
		}

		g.Sides[domain.SideB] = joiner
		g.Hands[domain.SideB], g.DrawPile = domain.DealDeferred(g.DrawPile, g.Type)

		// Unbiased coin flip for first player; the creator has no edge.
		first := domain.Side(s.rng.Intn(2))
		g.CurrentSide, g.TrickLeader = first, first
		g.Phase = domain.PhaseInProgress
		now := time.Now().UTC()
		g.StartedAt = now
		g.LastMoveAt = now

		events = append(events, Event{
			Kind: EventPlayerJoined,
			Payload: PlayerJoinedPayload{
				GameID:    g.ID,
				Joiner:    joiner,
				FirstSide: first,
			},
			// The joiner already sees the state in the response.
			Recipients: []domain.PlayerRef{g.Sides[domain.SideA]},
		})
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	if err := runLedger(ctx, ledger); err != nil {
		return nil, nil, err
	}
	return g, events, nil
}

// MakeMove applies one validated move intent under the game's lock and
// returns the resulting state plus the events the transition emitted.
func (s *Service) MakeMove(ctx context.Context, gameID string, actor domain.PlayerRef, mv Move) (*domain.Game, []Event, error) {
	store, err := s.storeFor(ctx, gameID)
	if err != nil {
		return nil, nil, err
	}

	var events []Event
	var ledger []ledgerFn
	g, err := store.WithLock(ctx, gameID, func(g *domain.Game) error {
		events = events[:0]
		ledger = ledger[:0]

		switch mv.Action {
		case MovePlayCard:
			side, ok := g.SideOf(actor)
			if !ok {
				return ErrNotParticipant
			}
			return s.playCard(g, side, mv.CardID, &events)

		case MoveResolveTrick:
			if _, ok := g.SideOf(actor); !ok {
				return ErrNotParticipant
			}
			return s.resolveTrick(g, &events, &ledger)

		case MoveResign:
			side, ok := g.SideOf(actor)
			if !ok {
				return ErrNotParticipant
			}
			return s.resign(g, side, &events, &ledger)

		case MoveRequestBotMove:
			if _, ok := g.SideOf(actor); !ok {
				return ErrNotParticipant
			}
			return s.botMove(g, &events)

		default:
			return ErrInvalidMove
		}
	})
	if err != nil {
		return nil, nil, err
	}
	if err := runLedger(ctx, ledger); err != nil {
		return nil, nil, err
	}
	return g, events, nil
}

// GetState returns the current game state. The requester must be a
// participant unless the game has an anonymous seat, which makes it
// public.
func (s *Service) GetState(ctx context.Context, gameID string, requester domain.PlayerRef) (*domain.Game, error) {
	store, err := s.storeFor(ctx, gameID)
	if err != nil {
		return nil, err
	}
	g, err := store.Get(ctx, gameID)
	if err != nil {
		return nil, err
	}

	if _, ok := g.SideOf(requester); ok {
		return g, nil
	}
	for _, side := range g.Sides {
		if side.Kind == domain.PlayerAnonymous {
			return g, nil
		}
	}
	return nil, ErrNotParticipant
}

// playCard moves a card from the side's hand into the current trick. When
// the opposing side is the bot it responds immediately within the same
// mutation, so both plays persist atomically.
func (s *Service) playCard(g *domain.Game, side domain.Side, cardID string, events *[]Event) error {
	if g.Phase == domain.PhaseTrickComplete {
		return ErrTrickFull
	}
	if g.Phase != domain.PhaseInProgress {
		return ErrGameNotActive
	}
	if side != g.CurrentSide {
		return ErrNotYourTurn
	}
	if len(g.CurrentTrick) >= 2 {
		return ErrTrickFull
	}

	card, updated, ok := domain.RemoveCard(g.Hands[side], cardID)
	if !ok {
		return ErrCardNotHeld
	}
	g.Hands[side] = updated

	now := time.Now().UTC()
	g.CurrentTrick = append(g.CurrentTrick, domain.PlayedCard{Card: card, Side: side, PlayedAt: now})
	g.LastMoveAt = now

	complete := len(g.CurrentTrick) == 2
	other := side.Other()

	if complete {
		g.Phase = domain.PhaseTrickComplete
	} else {
		g.CurrentSide = other
		// The responder may be out of cards in the endgame; the single
		// card then stands as a degenerate completed trick.
		if len(g.DrawPile) == 0 && len(g.Hands[other]) == 0 {
			g.Phase = domain.PhaseTrickComplete
			complete = true
		}
	}

	*events = append(*events, Event{
		Kind: EventCardPlayed,
		Payload: CardPlayedPayload{
			GameID:        g.ID,
			Side:          side,
			Card:          card,
			TrickComplete: complete,
			NextSide:      g.CurrentSide,
		},
	})

	// A bot never leaves its response pending mid-trick.
	if !complete && g.Sides[other].IsBot() {
		chosen, err := s.brain.ChooseCard(g.Hands[other], g.CurrentTrick, g.TrumpSuit)
		if err != nil {
			return err
		}
		return s.playCard(g, other, chosen.ID, events)
	}
	return nil
}

// botMove plays the bot's card when the bot is to act, typically leading a
// fresh trick after winning the previous one. The caller controls the
// timing, mirroring the explicit resolve step.
func (s *Service) botMove(g *domain.Game, events *[]Event) error {
	if g.Phase != domain.PhaseInProgress {
		return ErrGameNotActive
	}
	if !g.Sides[g.CurrentSide].IsBot() {
		return ErrNotBotTurn
	}
	chosen, err := s.brain.ChooseCard(g.Hands[g.CurrentSide], g.CurrentTrick, g.TrumpSuit)
	if err != nil {
		return err
	}
	return s.playCard(g, g.CurrentSide, chosen.ID, events)
}

// resolveTrick scores the completed trick, draws replacements and checks
// for the end of the game. Resolving an already-empty trick is a no-op by
// contract: callers drive resolution timing and may retry.
func (s *Service) resolveTrick(g *domain.Game, events *[]Event, ledger *[]ledgerFn) error {
	if g.Phase.Terminal() || g.Phase == domain.PhasePending {
		return ErrGameNotActive
	}
	if len(g.CurrentTrick) == 0 {
		return nil
	}
	if len(g.CurrentTrick) == 1 {
		responder := g.CurrentTrick[0].Side.Other()
		if len(g.DrawPile) != 0 || len(g.Hands[responder]) != 0 {
			return ErrTrickIncomplete
		}
	}

	winner := domain.TrickWinner(g.CurrentTrick, g.TrumpSuit)
	for _, pc := range g.CurrentTrick {
		g.TrickPiles[winner] = append(g.TrickPiles[winner], pc.Card)
	}
	g.CurrentTrick = nil

	// Recompute from the piles instead of accumulating, so scores can
	// never drift from the cards actually captured.
	g.Points[domain.SideA] = domain.PilePoints(g.TrickPiles[domain.SideA])
	g.Points[domain.SideB] = domain.PilePoints(g.TrickPiles[domain.SideB])

	g.CurrentSide, g.TrickLeader = winner, winner

	var drawn [2]int
	if len(g.DrawPile) > 0 {
		for _, side := range []domain.Side{winner, winner.Other()} {
			if len(g.DrawPile) == 0 {
				break
			}
			g.Hands[side] = append(g.Hands[side], g.DrawPile[0])
			g.DrawPile = g.DrawPile[1:]
			drawn[side]++
		}
	}

	// Stuck-player correction: if the winner cannot lead because it has
	// no cards, the turn passes to the opponent without a trick.
	if len(g.DrawPile) == 0 && len(g.Hands[g.CurrentSide]) == 0 && len(g.Hands[g.CurrentSide.Other()]) > 0 {
		g.CurrentSide = g.CurrentSide.Other()
		g.TrickLeader = g.CurrentSide
	}

	g.Phase = domain.PhaseInProgress
	g.LastMoveAt = time.Now().UTC()

	*events = append(*events, Event{
		Kind: EventTrickResolved,
		Payload: TrickResolvedPayload{
			GameID:     g.ID,
			WinnerSide: winner,
			Points:     g.Points,
			DrawnCards: drawn,
		},
	})

	if domain.IsTerminal(g.Hands[domain.SideA], g.Hands[domain.SideB], g.DrawPile) {
		return s.finish(g, events, ledger)
	}
	return nil
}

// finish moves the game to its terminal phase, decides the outcome and
// queues the settlement. It runs exactly once per game: every path here
// is a transition edge out of an active phase, and terminal games reject
// all further intents.
func (s *Service) finish(g *domain.Game, events *[]Event, ledger *[]ledgerFn) error {
	now := time.Now().UTC()
	g.Phase = domain.PhaseFinished
	g.EndedAt = &now

	a, b := g.Points[domain.SideA], g.Points[domain.SideB]
	switch {
	case a > b:
		side := domain.SideA
		g.WinnerSide = &side
	case b > a:
		side := domain.SideB
		g.WinnerSide = &side
	default:
		g.IsDraw = true
	}

	*events = append(*events, Event{
		Kind: EventGameEnded,
		Payload: GameEndedPayload{
			GameID:     g.ID,
			WinnerSide: g.WinnerSide,
			IsDraw:     g.IsDraw,
			Points:     g.Points,
		},
	})

	s.settle(g, false, ledger)
	return nil
}

// resign ends the game immediately with the other side as winner. Cards
// in the in-flight trick are discarded from scoring.
func (s *Service) resign(g *domain.Game, side domain.Side, events *[]Event, ledger *[]ledgerFn) error {
	if g.Phase.Terminal() || g.Phase == domain.PhasePending {
		return ErrGameNotActive
	}

	now := time.Now().UTC()
	winner := side.Other()
	g.Phase = domain.PhaseResigned
	g.ResignedBy = &side
	g.WinnerSide = &winner
	g.IsDraw = false
	g.EndedAt = &now

	*events = append(*events, Event{
		Kind:    EventGameResigned,
		Payload: GameResignedPayload{GameID: g.ID, ResignedBy: side},
	})
	*events = append(*events, Event{
		Kind: EventGameEnded,
		Payload: GameEndedPayload{
			GameID:     g.ID,
			WinnerSide: g.WinnerSide,
			IsDraw:     false,
			Points:     g.Points,
			Resigned:   true,
		},
	})

	s.settle(g, true, ledger)
	return nil
}

// settle queues the ledger effects of the terminal outcome, or the report
// to the series collaborator which settles at series level. The queued
// effects run after the terminal state has committed, so reruns of the
// mutation never repeat them.
func (s *Service) settle(g *domain.Game, resigned bool, ledger *[]ledgerFn) {
	if g.SeriesID != "" {
		if s.series == nil {
			return
		}
		result := ports.GameResult{
			GameID:     g.ID,
			Winner:     g.Winner(),
			IsDraw:     g.IsDraw,
			Resigned:   resigned,
			SideAScore: g.Points[domain.SideA],
			SideBScore: g.Points[domain.SideB],
		}
		*ledger = append(*ledger, func(ctx context.Context) error {
			return s.series.OnGameFinished(ctx, g, result)
		})
		return
	}

	if g.Stake > 0 {
		s.settleWager(g, resigned, ledger)
		return
	}
	s.settleFreeGame(g, ledger)
}

func (s *Service) settleWager(g *domain.Game, resigned bool, ledger *[]ledgerFn) {
	if s.economy == nil {
		return
	}
	stake, gid := g.Stake, g.ID

	if g.IsDraw {
		// Each side gets its own stake back, exactly once.
		for _, side := range g.Sides {
			if !side.IsHuman() {
				continue
			}
			userID := side.ID
			*ledger = append(*ledger, func(ctx context.Context) error {
				if err := s.economy.CreditPayout(ctx, userID, stake, gid, "Draw refund"); err != nil {
					return fmt.Errorf("draw refund: %w", err)
				}
				return nil
			})
		}
		return
	}

	winner := g.Winner()
	if !winner.IsHuman() {
		return
	}
	reason := fmt.Sprintf("Multiplayer win (%d points)", g.Points[*g.WinnerSide])
	if resigned {
		reason = "Multiplayer resignation win"
	}
	winnerID := winner.ID
	*ledger = append(*ledger, func(ctx context.Context) error {
		if err := s.economy.CreditPayout(ctx, winnerID, stake*2, gid, reason); err != nil {
			return fmt.Errorf("win payout: %w", err)
		}
		return nil
	})
}

// settleFreeGame queues the small free-play reward when a registered user
// beats the bot. Anonymous players and losses never touch the ledger.
func (s *Service) settleFreeGame(g *domain.Game, ledger *[]ledgerFn) {
	if s.economy == nil || g.IsDraw || g.WinnerSide == nil {
		return
	}
	winner := g.Winner()
	if !winner.IsHuman() || !g.Sides[g.WinnerSide.Other()].IsBot() {
		return
	}

	score := g.Points[*g.WinnerSide]
	reward := config.SinglePlayerReward(score)
	if reward == 0 {
		return
	}
	reason := fmt.Sprintf("Singleplayer win vs bot (%d points)", score)
	winnerID, gid := winner.ID, g.ID
	*ledger = append(*ledger, func(ctx context.Context) error {
		if err := s.economy.CreditPayout(ctx, winnerID, reward, gid, reason); err != nil {
			return fmt.Errorf("free play reward: %w", err)
		}
		return nil
	})
}

// chargeFee verifies the balance and debits the stake immediately. Used
// where no lock is held; locked mutations check the balance up front and
// defer the debit to the post-commit ledger instead.
func (s *Service) chargeFee(ctx context.Context, userID string, stake int64, gameID string) error {
	if err := s.checkBalance(ctx, userID, stake); err != nil {
		return err
	}
	return s.debitFee(ctx, userID, stake, gameID)
}

func (s *Service) checkBalance(ctx context.Context, userID string, stake int64) error {
	if s.economy == nil {
		return nil
	}
	balance, err := s.economy.GetBalance(ctx, userID)
	if err != nil {
		return fmt.Errorf("balance check: %w", err)
	}
	if balance < stake {
		return ErrInsufficientCoin
	}
	return nil
}

func (s *Service) debitFee(ctx context.Context, userID string, stake int64, gameID string) error {
	if s.economy == nil {
		return nil
	}
	if err := s.economy.DebitFee(ctx, userID, stake, gameID); err != nil {
		return fmt.Errorf("fee debit: %w", err)
	}
	return nil
}

// storeFor locates the store that owns the given game id.
func (s *Service) storeFor(ctx context.Context, gameID string) (ports.SessionStore, error) {
	if s.volatile != nil {
		if _, err := s.volatile.Get(ctx, gameID); err == nil {
			return s.volatile, nil
		} else if !errors.Is(err, ports.ErrGameNotFound) {
			return nil, err
		}
	}
	if s.durable != nil {
		if _, err := s.durable.Get(ctx, gameID); err == nil {
			return s.durable, nil
		} else if !errors.Is(err, ports.ErrGameNotFound) {
			return nil, err
		}
	}
	return nil, ports.ErrGameNotFound
}
