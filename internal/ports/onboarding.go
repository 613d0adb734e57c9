package ports

import "context"

// WelcomeBonusPort grants the one-time starting coins a new account needs
// before it can enter wagered games.
type WelcomeBonusPort interface {
	// GrantWelcomeBonusOnce credits the bonus and records a marker
	// atomically. It returns false without error when the bonus was
	// already granted.
	GrantWelcomeBonusOnce(ctx context.Context, userID string, amount int64, metadata map[string]interface{}) (bool, error)
}
