package ports

import "context"

// EconomyPort is the interface to the external coin ledger. The engine
// never touches balances directly; it reports fees and payouts and the
// ledger collaborator records them.
type EconomyPort interface {
	// GetBalance retrieves the current coin balance for a user.
	GetBalance(ctx context.Context, userID string) (int64, error)

	// DebitFee deducts a game fee or series stake from a user.
	DebitFee(ctx context.Context, userID string, amount int64, gameID string) error

	// CreditPayout awards coins to a user for a finished game. The
	// reason string ends up on the ledger entry.
	CreditPayout(ctx context.Context, userID string, amount int64, gameID string, reason string) error
}
