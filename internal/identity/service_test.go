package identity

import (
	"context"
	"errors"
	"testing"
)

func TestRegisterAndAuthenticate(t *testing.T) {
	repo := NewMemoryRepository()
	svc := NewService(repo)

	ctx := context.Background()
	user, err := svc.Register(ctx, Credentials{Phone: "+237650000000", PIN: "1234", DeviceID: "device-1"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	if user.Tier != tierZero {
		t.Fatalf("expected tier0, got %s", user.Tier)
	}
	if user.Role != RoleUser {
		t.Fatalf("expected user role, got %s", user.Role)
	}

	authed, err := svc.Authenticate(ctx, Credentials{Phone: user.Phone, PIN: "1234", DeviceID: "device-1"})
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if authed.Tier != tierOne {
		t.Fatalf("expected promotion to tier1, got %s", authed.Tier)
	}
	if authed.LastLogin == nil {
		t.Fatalf("expected last login to be recorded")
	}
}

func TestAuthenticateDeviceMismatch(t *testing.T) {
	repo := NewMemoryRepository()
	svc := NewService(repo)
	ctx := context.Background()

	_, err := svc.Register(ctx, Credentials{Phone: "+237650000001", PIN: "1234", DeviceID: "device-1"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	if _, err := svc.Authenticate(ctx, Credentials{Phone: "+237650000001", PIN: "1234", DeviceID: "device-2"}); err == nil {
		t.Fatalf("expected device mismatch error")
	}
	if _, err := svc.Authenticate(ctx, Credentials{Phone: "+237650000001", PIN: "9999", DeviceID: "device-1"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
}

func TestResolvePhoneNormalizes(t *testing.T) {
	svc := NewService(NewMemoryRepository())
	ctx := context.Background()

	user, err := svc.Register(ctx, Credentials{Phone: "+237 650-00-00-02", PIN: "1234"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	found, err := svc.ResolvePhone(ctx, "+237650000002")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if found.ID != user.ID {
		t.Fatalf("expected %s, got %s", user.ID, found.ID)
	}
	if _, err := svc.ResolvePhone(ctx, "+237699999999"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected user not found, got %v", err)
	}
	if _, err := svc.Register(ctx, Credentials{Phone: "+237650000002", PIN: "1234"}); !errors.Is(err, ErrUserExists) {
		t.Fatalf("expected duplicate registration to fail, got %v", err)
	}
}

func TestSetRoleGrantsAdmin(t *testing.T) {
	svc := NewService(NewMemoryRepository())
	ctx := context.Background()

	user, err := svc.Register(ctx, Credentials{Phone: "+237650000003", PIN: "1234"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := svc.SetRole(ctx, user.Phone, "root"); !errors.Is(err, ErrUnknownRole) {
		t.Fatalf("expected unknown role, got %v", err)
	}
	if _, err := svc.SetRole(ctx, user.Phone, RoleAdmin); err != nil {
		t.Fatalf("set role: %v", err)
	}
	p, err := svc.Principal(ctx, user.ID)
	if err != nil {
		t.Fatalf("principal: %v", err)
	}
	if !p.IsAdmin() {
		t.Fatalf("expected admin principal, got %+v", p)
	}
}
