package nakama

import (
	"context"
	"database/sql"
	"time"

	"bisca/internal/app"
	"bisca/internal/config"
	"bisca/internal/store"

	"github.com/heroiclabs/nakama-common/runtime"
)

// InitModule wires RPCs and hooks for the Nakama runtime.
func InitModule(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, initializer runtime.Initializer) error {
	env, _ := ctx.Value(runtime.RUNTIME_CTX_ENV).(map[string]string)

	if path := env["bisca_config_path"]; path != "" {
		if err := config.LoadGameConfig(path); err != nil {
			return err
		}
	}

	retention := store.DefaultRetention
	secret := env["guest_token_secret"]
	ttl := time.Duration(0)
	if c := config.GetGameConfig(); c != nil {
		if c.RetentionMinutes > 0 {
			retention = time.Duration(c.RetentionMinutes) * time.Minute
		}
		if secret == "" {
			secret = c.GuestTokenKey
		}
		if c.GuestTokenTTLSeconds > 0 {
			ttl = time.Duration(c.GuestTokenTTLSeconds) * time.Second
		}
	}

	gameStore := NewNakamaGameStore(nk)
	economy := NewNakamaEconomyAdapter(nk)

	games := app.NewService(app.Deps{
		Durable:  gameStore,
		Volatile: store.NewMemoryGameStore(retention),
		Economy:  economy,
	}, nil)
	series := app.NewSeriesService(NewNakamaSeriesStore(nk), economy, games)
	guests := app.NewGuestTokenService(secret, "bisca", ttl)

	if err := RegisterRPCs(initializer, NewRpcHandlers(games, series, guests, gameStore, nk)); err != nil {
		return err
	}
	if err := initializer.RegisterAfterAuthenticateDevice(AfterAuthenticateDevice); err != nil {
		return err
	}

	logger.Info("Bisca Go module loaded.")
	return nil
}
