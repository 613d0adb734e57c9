package config

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

type StakeTier struct {
	ID    string `json:"id"`
	Stake int64  `json:"stake"`
}

// RewardBracket awards Coins when a single-player winner scores at least
// MinScore points. Brackets are evaluated top-down, highest first.
type RewardBracket struct {
	MinScore int   `json:"min_score"`
	Coins    int64 `json:"coins"`
}

type GameConfig struct {
	DefaultTier string      `json:"default_tier"`
	Tiers       []StakeTier `json:"tiers"`

	SeriesMarksToWin int `json:"series_marks_to_win"`
	// RetentionMinutes is how long finished free games stay readable in
	// the volatile store before they are swept.
	RetentionMinutes int `json:"retention_minutes"`

	SinglePlayerRewards []RewardBracket `json:"single_player_rewards"`

	// WelcomeBonusCoins is credited once to every new account.
	WelcomeBonusCoins int64 `json:"welcome_bonus_coins"`

	GuestTokenKey        string `json:"guest_token_key"`
	GuestTokenTTLSeconds int    `json:"guest_token_ttl_seconds"`
}

var (
	cfg      *GameConfig
	loadOnce sync.Once
	loadErr  error
)

// LoadGameConfig loads the game configuration from the given path.
func LoadGameConfig(path string) error {
	loadOnce.Do(func() {
		data, err := os.ReadFile(path)
		if err != nil {
			loadErr = fmt.Errorf("failed to read game config: %w", err)
			return
		}

		var c GameConfig
		if err := json.Unmarshal(data, &c); err != nil {
			loadErr = fmt.Errorf("failed to unmarshal game config: %w", err)
			return
		}
		cfg = &c
	})
	return loadErr
}

// GetGameConfig returns the global game configuration.
func GetGameConfig() *GameConfig {
	return cfg
}

// GetStake returns the stake for a given tier ID, or the default if not found.
func GetStake(tierID string) int64 {
	if cfg == nil {
		return 100 // Safe default
	}

	target := tierID
	if target == "" {
		target = cfg.DefaultTier
	}

	for _, tier := range cfg.Tiers {
		if tier.ID == target {
			return tier.Stake
		}
	}

	// Fallback to default tier if specific ID not found
	for _, tier := range cfg.Tiers {
		if tier.ID == cfg.DefaultTier {
			return tier.Stake
		}
	}

	return 100
}

// WelcomeBonus returns the starting coins granted to new accounts.
func WelcomeBonus() int64 {
	if cfg == nil || cfg.WelcomeBonusCoins <= 0 {
		return 500
	}
	return cfg.WelcomeBonusCoins
}

// MarksToWin returns how many game wins take a best-of series.
func MarksToWin() int {
	if cfg == nil || cfg.SeriesMarksToWin <= 0 {
		return 4
	}
	return cfg.SeriesMarksToWin
}

// SinglePlayerReward returns the coin reward for beating the bot with the
// given score. A perfect 120 earns the top bracket.
func SinglePlayerReward(score int) int64 {
	brackets := defaultRewards
	if cfg != nil && len(cfg.SinglePlayerRewards) > 0 {
		brackets = cfg.SinglePlayerRewards
	}

	best := int64(0)
	bestMin := -1
	for _, b := range brackets {
		if score >= b.MinScore && b.MinScore > bestMin {
			best = b.Coins
			bestMin = b.MinScore
		}
	}
	return best
}

var defaultRewards = []RewardBracket{
	{MinScore: 120, Coins: 3},
	{MinScore: 91, Coins: 2},
	{MinScore: 61, Coins: 1},
}
