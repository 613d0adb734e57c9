package app

import (
	"context"
	"fmt"
	"time"

	"bisca/internal/config"
	"bisca/internal/domain"
	"bisca/internal/ports"

	"github.com/google/uuid"
)

// SeriesService owns the best-of series use-cases. It pools both stakes
// when the series fills, starts each consecutive game through the game
// service and settles the pool when one side reaches the mark target.
type SeriesService struct {
	store   ports.SeriesStore
	economy ports.EconomyPort
	games   *Service
}

// NewSeriesService constructs a SeriesService and wires itself into the
// game service as its series collaborator.
func NewSeriesService(store ports.SeriesStore, economy ports.EconomyPort, games *Service) *SeriesService {
	s := &SeriesService{store: store, economy: economy, games: games}
	games.SetSeriesPort(s)
	return s
}

// CreateSeries opens a best-of series, debiting the creator's stake. The
// first game starts when an opponent joins.
func (s *SeriesService) CreateSeries(ctx context.Context, creator domain.PlayerRef, handSize int, stake int64) (*domain.Series, error) {
	if !domain.ValidHandSize(handSize) {
		return nil, ErrInvalidHandSize
	}
	if !creator.IsHuman() {
		return nil, ErrNotParticipant
	}

	sr := &domain.Series{
		ID:        uuid.NewString(),
		Type:      handSize,
		Stake:     stake,
		Status:    domain.SeriesPending,
		StartedAt: time.Now().UTC(),
	}
	sr.Sides[domain.SideA] = creator

	staked := false
	if stake > 0 {
		if err := s.chargeStake(ctx, creator.ID, stake, sr.ID); err != nil {
			return nil, err
		}
		staked = s.economy != nil
	}
	if err := s.store.Create(ctx, sr); err != nil {
		if staked {
			// The stake was taken for a series that never came to exist.
			if refundErr := s.economy.CreditPayout(ctx, creator.ID, stake, sr.ID, "Stake refund"); refundErr != nil {
				return nil, fmt.Errorf("stake refund after failed create: %v: %w", refundErr, err)
			}
		}
		return nil, err
	}
	return sr, nil
}

// JoinSeries seats the joiner, debits their stake and deals the first
// game. The creator always leads the first trick of every series game.
func (s *SeriesService) JoinSeries(ctx context.Context, seriesID string, joiner domain.PlayerRef) (*domain.Series, *domain.Game, error) {
	if !joiner.IsHuman() {
		return nil, nil, ErrNotParticipant
	}

	var game *domain.Game
	var ledger []ledgerFn
	sr, err := s.store.WithLock(ctx, seriesID, func(sr *domain.Series) error {
		game = nil
		ledger = ledger[:0]

		if sr.Status != domain.SeriesPending {
			return ErrSeriesNotOpen
		}
		if sr.Sides[domain.SideA].Equal(joiner) {
			return ErrOwnGame
		}

		if sr.Stake > 0 {
			if err := s.checkStake(ctx, joiner.ID, sr.Stake); err != nil {
				return err
			}
			stake, sid := sr.Stake, sr.ID
			ledger = append(ledger, func(ctx context.Context) error {
				return s.debitStake(ctx, joiner.ID, stake, sid)
			})
		}

		sr.Sides[domain.SideB] = joiner
		sr.Status = domain.SeriesPlaying

		g, err := s.startGame(ctx, sr)
		if err != nil {
			return err
		}
		game = g
		sr.CurrentGameID = g.ID
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	if err := runLedger(ctx, ledger); err != nil {
		return nil, nil, err
	}
	return sr, game, nil
}

// GetSeries returns the series state for a participant.
func (s *SeriesService) GetSeries(ctx context.Context, seriesID string, requester domain.PlayerRef) (*domain.Series, error) {
	sr, err := s.store.Get(ctx, seriesID)
	if err != nil {
		return nil, err
	}
	if _, ok := sr.SideOf(requester); !ok {
		return nil, ErrNotParticipant
	}
	return sr, nil
}

// OnGameFinished records one finished series game. A decisive game awards
// its winner a mark; a draw awards none. When a side reaches the mark
// target the series ends and the pooled stakes go to the winner,
// otherwise the next game is dealt immediately.
func (s *SeriesService) OnGameFinished(ctx context.Context, game *domain.Game, result ports.GameResult) error {
	var ledger []ledgerFn
	_, err := s.store.WithLock(ctx, game.SeriesID, func(sr *domain.Series) error {
		ledger = ledger[:0]

		if sr.Status != domain.SeriesPlaying {
			return ErrSeriesEnded
		}
		if sr.CurrentGameID != game.ID {
			// A stale game report: the series has already moved on.
			return nil
		}

		sr.GamesPlayed++
		sr.Points[domain.SideA] += result.SideAScore
		sr.Points[domain.SideB] += result.SideBScore

		if !result.IsDraw && game.WinnerSide != nil {
			// Game sides map 1:1 onto series sides: every series game
			// seats the creator as side A.
			winner := *game.WinnerSide
			sr.Marks[winner]++

			if sr.Marks[winner] >= config.MarksToWin() {
				s.endSeries(sr, winner, &ledger)
				return nil
			}
		}

		g, err := s.startGame(ctx, sr)
		if err != nil {
			return err
		}
		sr.CurrentGameID = g.ID
		return nil
	})
	if err != nil {
		return err
	}
	return runLedger(ctx, ledger)
}

// startGame deals the next game of the series through the game service.
// Series games carry the series stake for the record but never touch the
// ledger themselves.
func (s *SeriesService) startGame(ctx context.Context, sr *domain.Series) (*domain.Game, error) {
	opponent := sr.Sides[domain.SideB]
	g, _, err := s.games.CreateGame(ctx, CreateGameParams{
		Type:     sr.Type,
		Creator:  sr.Sides[domain.SideA],
		Opponent: &opponent,
		Stake:    sr.Stake,
		SeriesID: sr.ID,
	})
	if err != nil {
		return nil, fmt.Errorf("start series game: %w", err)
	}
	return g, nil
}

// endSeries closes the series and queues the pooled-stake payout for
// execution after the state has committed.
func (s *SeriesService) endSeries(sr *domain.Series, winner domain.Side, ledger *[]ledgerFn) {
	now := time.Now().UTC()
	sr.Status = domain.SeriesEnded
	sr.WinnerSide = &winner
	sr.EndedAt = &now
	sr.CurrentGameID = ""

	if s.economy == nil || sr.Stake == 0 || !sr.Sides[winner].IsHuman() {
		return
	}
	winnerID := sr.Sides[winner].ID
	amount := sr.Stake * 2
	seriesID := sr.ID
	reason := fmt.Sprintf("Series win (%d marks)", sr.Marks[winner])
	*ledger = append(*ledger, func(ctx context.Context) error {
		if err := s.economy.CreditPayout(ctx, winnerID, amount, seriesID, reason); err != nil {
			return fmt.Errorf("series payout: %w", err)
		}
		return nil
	})
}

func (s *SeriesService) chargeStake(ctx context.Context, userID string, stake int64, seriesID string) error {
	if err := s.checkStake(ctx, userID, stake); err != nil {
		return err
	}
	return s.debitStake(ctx, userID, stake, seriesID)
}

func (s *SeriesService) checkStake(ctx context.Context, userID string, stake int64) error {
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

func (s *SeriesService) debitStake(ctx context.Context, userID string, stake int64, seriesID string) error {
	if s.economy == nil {
		return nil
	}
	if err := s.economy.DebitFee(ctx, userID, stake, seriesID); err != nil {
		return fmt.Errorf("stake debit: %w", err)
	}
	return nil
}
