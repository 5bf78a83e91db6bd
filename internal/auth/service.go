package auth

import (
	"context"
	"errors"
	"time"

	"github.com/congo-pay/settlement/internal/identity"
)

const (
	tokenAccess  = "access"
	tokenRefresh = "refresh"
)

var (
	// ErrInvalidToken covers malformed, forged, expired or revoked tokens.
	ErrInvalidToken = errors.New("invalid token")
)

// Settings configures token issuance.
type Settings struct {
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
}

// Service issues and verifies bearer tokens.
type Service struct {
	settings Settings
	idRepo   identity.Repository
	now      func() time.Time
}

// NewService builds a token service.
func NewService(settings Settings, idRepo identity.Repository) *Service {
	return &Service{settings: settings, idRepo: idRepo, now: time.Now}
}

// TokenPair is returned on login.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// Claims are the verified contents of an access token.
type Claims struct {
	UserID       string
	Role         string
	TokenVersion int
	ExpiresAt    time.Time
}

// Login issues tokens for an already authenticated user.
func (s *Service) Login(user identity.User) (TokenPair, error) {
	access, err := s.sign(user, tokenAccess, s.settings.AccessSecret, s.settings.AccessTTL)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := s.sign(user, tokenRefresh, s.settings.RefreshSecret, s.settings.RefreshTTL)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh, ExpiresIn: int64(s.settings.AccessTTL.Seconds())}, nil
}

func (s *Service) sign(user identity.User, typ, secret string, ttl time.Duration) (string, error) {
	now := s.now()
	claims := map[string]any{
		"sub":  user.ID,
		"role": user.Role,
		"ver":  user.TokenVersion,
		"typ":  typ,
		"iat":  now.Unix(),
		"exp":  now.Add(ttl).Unix(),
	}
	return SignHS256(claims, []byte(secret))
}

// Verify checks an access token and that it has not been revoked by logout.
// The role is read from the user record, not the token, so role changes
// apply immediately.
func (s *Service) Verify(ctx context.Context, token string) (identity.User, error) {
	claims, err := s.parse(token, tokenAccess, s.settings.AccessSecret)
	if err != nil {
		return identity.User{}, err
	}
	user, err := s.idRepo.FindByID(ctx, claims.UserID)
	if err != nil || user.TokenVersion != claims.TokenVersion {
		return identity.User{}, ErrInvalidToken
	}
	return user, nil
}

// Refresh verifies the refresh token and returns a new access token.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (string, int64, error) {
	claims, err := s.parse(refreshToken, tokenRefresh, s.settings.RefreshSecret)
	if err != nil {
		return "", 0, err
	}
	user, err := s.idRepo.FindByID(ctx, claims.UserID)
	if err != nil || user.TokenVersion != claims.TokenVersion {
		return "", 0, ErrInvalidToken
	}
	signed, err := s.sign(user, tokenAccess, s.settings.AccessSecret, s.settings.AccessTTL)
	if err != nil {
		return "", 0, err
	}
	return signed, int64(s.settings.AccessTTL.Seconds()), nil
}

// Logout increments the token version so older tokens become invalid.
func (s *Service) Logout(ctx context.Context, userID string) error {
	user, err := s.idRepo.FindByID(ctx, userID)
	if err != nil {
		return err
	}
	return s.idRepo.UpdateTokenVersion(ctx, user.ID, user.TokenVersion+1)
}

func (s *Service) parse(token, typ, secret string) (Claims, error) {
	raw, err := ParseAndVerifyHS256(token, []byte(secret))
	if err != nil {
		return Claims{}, ErrInvalidToken
	}
	if t, _ := raw["typ"].(string); t != typ {
		return Claims{}, ErrInvalidToken
	}
	sub, _ := raw["sub"].(string)
	role, _ := raw["role"].(string)
	ver, _ := raw["ver"].(float64)
	exp, _ := raw["exp"].(float64)
	expiresAt := time.Unix(int64(exp), 0)
	if sub == "" || !s.now().Before(expiresAt) {
		return Claims{}, ErrInvalidToken
	}
	return Claims{UserID: sub, Role: role, TokenVersion: int(ver), ExpiresAt: expiresAt}, nil
}
