package identity

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/congo-pay/settlement/internal/apperr"
)

const (
	tierZero = "tier0"
	tierOne  = "tier1"
)

var (
	// ErrUserNotFound is returned when no user matches the lookup.
	ErrUserNotFound = apperr.New(apperr.KindNotFound, "user_not_found", "user not found")
	// ErrUserExists is returned when the phone is already registered.
	ErrUserExists = apperr.New(apperr.KindState, "user_exists", "user exists")
	// ErrWeakPIN rejects PINs shorter than four digits.
	ErrWeakPIN = apperr.New(apperr.KindValidation, "weak_pin", "PIN must be at least 4 digits")
	// ErrInvalidPhone rejects empty or malformed phone numbers.
	ErrInvalidPhone = apperr.New(apperr.KindValidation, "invalid_phone", "invalid phone number")
	// ErrInvalidCredentials covers PIN and device binding failures.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUnknownRole rejects role changes to unsupported roles.
	ErrUnknownRole = apperr.New(apperr.KindValidation, "unknown_role", "unknown role")
)

// Service manages identity lifecycle and acts as the phone directory used to
// address transfers.
type Service struct {
	repo Repository
}

// NewService creates a new identity service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// NormalizePhone strips separators so that "+237 650-00-00-00" and
// "+237650000000" resolve to the same user.
func NormalizePhone(phone string) string {
	var b strings.Builder
	for i, r := range strings.TrimSpace(phone) {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && i == 0:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Register creates a new Tier0 user and stores a hashed PIN.
func (s *Service) Register(ctx context.Context, creds Credentials) (User, error) {
	phone := NormalizePhone(creds.Phone)
	if len(strings.TrimPrefix(phone, "+")) < 6 {
		return User{}, ErrInvalidPhone
	}
	if len(creds.PIN) < 4 {
		return User{}, ErrWeakPIN
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(creds.PIN), bcrypt.DefaultCost)
	if err != nil {
		return User{}, err
	}

	user := User{
		ID:        uuid.New().String(),
		Phone:     phone,
		Tier:      tierZero,
		Role:      RoleUser,
		PINHash:   hash,
		DeviceID:  creds.DeviceID,
		CreatedAt: time.Now().UTC(),
	}

	if err := s.repo.Create(ctx, user); err != nil {
		return User{}, err
	}

	return user, nil
}

// Authenticate verifies credentials and device binding.
func (s *Service) Authenticate(ctx context.Context, creds Credentials) (User, error) {
	user, err := s.repo.FindByPhone(ctx, NormalizePhone(creds.Phone))
	if err != nil {
		return User{}, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword(user.PINHash, []byte(creds.PIN)); err != nil {
		return User{}, ErrInvalidCredentials
	}

	if user.DeviceID == "" {
		if creds.DeviceID == "" {
			return User{}, errors.New("device binding required")
		}
		if err := s.repo.UpdateDevice(ctx, user.ID, creds.DeviceID); err != nil {
			return User{}, err
		}
		user.DeviceID = creds.DeviceID
	} else if creds.DeviceID != "" && user.DeviceID != creds.DeviceID {
		return User{}, errors.New("device mismatch")
	}

	if user.Tier == tierZero {
		user.Tier = tierOne
	}

	now := time.Now().UTC()
	if err := s.repo.TouchLogin(ctx, user.ID, now); err == nil {
		user.LastLogin = &now
	}

	return user, nil
}

// Get returns the user with the given identifier.
func (s *Service) Get(ctx context.Context, id string) (User, error) {
	return s.repo.FindByID(ctx, id)
}

// ResolvePhone looks up the user registered under phone.
func (s *Service) ResolvePhone(ctx context.Context, phone string) (User, error) {
	normalized := NormalizePhone(phone)
	if normalized == "" {
		return User{}, ErrUserNotFound
	}
	return s.repo.FindByPhone(ctx, normalized)
}

// Principal returns the verified identity of the user for privileged calls.
func (s *Service) Principal(ctx context.Context, id string) (Principal, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return Principal{}, err
	}
	return user.Principal(), nil
}

// SetRole changes the role of the user registered under phone.
func (s *Service) SetRole(ctx context.Context, phone, role string) (User, error) {
	if role != RoleUser && role != RoleAdmin {
		return User{}, ErrUnknownRole
	}
	user, err := s.ResolvePhone(ctx, phone)
	if err != nil {
		return User{}, err
	}
	if err := s.repo.UpdateRole(ctx, user.ID, role); err != nil {
		return User{}, err
	}
	user.Role = role
	return user, nil
}
