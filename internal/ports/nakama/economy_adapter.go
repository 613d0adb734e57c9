package nakama

import (
	"context"
	"encoding/json"
	"fmt"

	"bisca/internal/ports"

	"github.com/heroiclabs/nakama-common/api"
)

// walletAPI is the slice of runtime.NakamaModule the economy adapter
// needs, narrowed so tests can substitute a fake wallet.
type walletAPI interface {
	AccountGetId(ctx context.Context, userID string) (*api.Account, error)
	WalletUpdate(ctx context.Context, userID string, changeset map[string]int64, metadata map[string]interface{}, updateLedger bool) (map[string]int64, map[string]int64, error)
}

// NakamaEconomyAdapter implements ports.EconomyPort using Nakama's wallet
// system. Every update goes through the wallet ledger with the game or
// series id in its metadata.
type NakamaEconomyAdapter struct {
	nk walletAPI
}

// NewNakamaEconomyAdapter creates a new economy adapter.
func NewNakamaEconomyAdapter(nk walletAPI) *NakamaEconomyAdapter {
	return &NakamaEconomyAdapter{nk: nk}
}

// GetBalance retrieves the current coin balance for a user.
func (a *NakamaEconomyAdapter) GetBalance(ctx context.Context, userID string) (int64, error) {
	account, err := a.nk.AccountGetId(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to get account: %w", err)
	}

	var wallet map[string]int64
	if err := json.Unmarshal([]byte(account.Wallet), &wallet); err != nil {
		return 0, fmt.Errorf("failed to unmarshal wallet: %w", err)
	}

	return wallet[walletKeyCoins], nil
}

// DebitFee deducts a game fee or series stake from a user.
func (a *NakamaEconomyAdapter) DebitFee(ctx context.Context, userID string, amount int64, gameID string) error {
	if amount <= 0 {
		return nil
	}

	changes := map[string]int64{walletKeyCoins: -amount}
	metadata := map[string]interface{}{
		"game_id": gameID,
		"reason":  "game_fee",
	}

	if _, _, err := a.nk.WalletUpdate(ctx, userID, changes, metadata, true); err != nil {
		return fmt.Errorf("failed to debit fee for user %s: %w", userID, err)
	}
	return nil
}

// CreditPayout awards coins to a user for a finished game or series.
func (a *NakamaEconomyAdapter) CreditPayout(ctx context.Context, userID string, amount int64, gameID string, reason string) error {
	if amount <= 0 {
		return nil
	}

	changes := map[string]int64{walletKeyCoins: amount}
	metadata := map[string]interface{}{
		"game_id": gameID,
		"reason":  reason,
	}

	if _, _, err := a.nk.WalletUpdate(ctx, userID, changes, metadata, true); err != nil {
		return fmt.Errorf("failed to credit payout for user %s: %w", userID, err)
	}
	return nil
}

var _ ports.EconomyPort = (*NakamaEconomyAdapter)(nil)
