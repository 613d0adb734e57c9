package nakama

import (
	"context"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"bisca/internal/config"

	"github.com/heroiclabs/nakama-common/api"
	"github.com/heroiclabs/nakama-common/runtime"
)

// AfterAuthenticateDevice is triggered after an account is authenticated.
// New accounts receive their starting coins so they can enter wagered
// games right away.
func AfterAuthenticateDevice(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, out *api.Session, in *api.AuthenticateDeviceRequest) error {
	if !out.Created {
		return nil
	}

	userID := ""
	if ctxUserID, ok := ctx.Value(runtime.RUNTIME_CTX_USER_ID).(string); ok {
		userID = ctxUserID
	}
	if userID == "" {
		// Resolve the user ID from the session token by parsing the JWT payload manually.
		resolvedID, err := extractUserIDFromToken(out.Token)
		if err != nil {
			logger.Error("AfterAuthenticateDevice: Failed to extract user ID from token: %v", err)
			return err
		}
		userID = resolvedID
	}

	amount := config.WelcomeBonus()
	metadata := map[string]interface{}{"reason": "welcome_bonus"}

	granted, err := NewNakamaWelcomeBonusAdapter(nk).GrantWelcomeBonusOnce(ctx, userID, amount, metadata)
	if err != nil {
		logger.Error("AfterAuthenticateDevice: Failed to grant starting coins for user %s: %v", userID, err)
		return err
	}
	if !granted {
		logger.Info("AfterAuthenticateDevice: Starting coins already granted for user %s", userID)
	}
	return nil
}

func extractUserIDFromToken(token string) (string, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return "", fmt.Errorf("invalid token format")
	}

	payload := parts[1]
	// JWT base64 is RawUrlEncoding (no padding)
	data, err := base64.RawURLEncoding.DecodeString(payload)
	if err != nil {
		return "", fmt.Errorf("failed to decode token payload: %w", err)
	}

	var claims map[string]interface{}
	if err := json.Unmarshal(data, &claims); err != nil {
		return "", fmt.Errorf("failed to unmarshal token claims: %w", err)
	}

	uid, ok := claims["uid"].(string)
	if !ok {
		return "", fmt.Errorf("token claims missing uid")
	}

	return uid, nil
}
