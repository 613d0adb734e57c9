package app

import (
	"fmt"
	"time"

	"github.com/form3tech-oss/jwt-go"
	"github.com/google/uuid"

	"bisca/internal/domain"
)

// GuestTokenService issues and verifies signed guest tokens so anonymous
// visitors can play free bot games without an account. A token binds one
// guest identity to one game.
type GuestTokenService struct {
	secret string
	issuer string
	ttl    time.Duration
}

func NewGuestTokenService(secret, issuer string, ttl time.Duration) *GuestTokenService {
	if ttl == 0 {
		ttl = 2 * time.Hour
	}
	return &GuestTokenService{secret: secret, issuer: issuer, ttl: ttl}
}

// NewGuestID mints an ephemeral guest identity.
func NewGuestID() string {
	return "guest_" + uuid.NewString()
}

// Issue signs a token binding the guest identity to the given game.
func (s *GuestTokenService) Issue(guestID, gameID string) (string, error) {
	if s == nil || s.secret == "" {
		return "", fmt.Errorf("guest token config is incomplete")
	}
	if guestID == "" || gameID == "" {
		return "", fmt.Errorf("guest id and game id are required")
	}

	claims := jwt.MapClaims{
		"iss":  s.issuer,
		"sub":  guestID,
		"game": gameID,
		"exp":  time.Now().Add(s.ttl).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.secret))
}

// Verify checks a guest token's signature and expiry and returns the
// guest's player ref and the game the token is scoped to.
func (s *GuestTokenService) Verify(tokenString string) (domain.PlayerRef, string, error) {
	if s == nil || s.secret == "" {
		return domain.PlayerRef{}, "", fmt.Errorf("guest token config is incomplete")
	}

	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(s.secret), nil
	})
	if err != nil {
		return domain.PlayerRef{}, "", fmt.Errorf("invalid guest token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return domain.PlayerRef{}, "", fmt.Errorf("invalid guest token claims")
	}

	guestID, _ := claims["sub"].(string)
	gameID, _ := claims["game"].(string)
	if guestID == "" || gameID == "" {
		return domain.PlayerRef{}, "", fmt.Errorf("guest token missing subject or game")
	}
	return domain.Anonymous(guestID), gameID, nil
}
