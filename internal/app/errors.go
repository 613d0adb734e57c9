package app

import "errors"

// Rule violations. These are values, not panics: an illegal intent leaves
// the game unchanged and the caller receives the specific reason.
var (
	ErrGameNotActive    = errors.New("game is not active")
	ErrNotYourTurn      = errors.New("not your turn")
	ErrCardNotHeld      = errors.New("card not in hand")
	ErrTrickFull        = errors.New("previous trick must be resolved first")
	ErrTrickIncomplete  = errors.New("trick is not complete")
	ErrNotBotTurn       = errors.New("not bot turn")
	ErrNotParticipant   = errors.New("requester is not a participant")
	ErrJoinClosed       = errors.New("game is not awaiting an opponent")
	ErrOwnGame          = errors.New("cannot join your own game")
	ErrInvalidHandSize  = errors.New("game type must be 3 or 9")
	ErrInvalidMove      = errors.New("unknown move action")
	ErrInsufficientCoin = errors.New("insufficient coins")
	ErrSeriesNotOpen    = errors.New("series is not awaiting an opponent")
	ErrSeriesEnded      = errors.New("series has ended")
)
