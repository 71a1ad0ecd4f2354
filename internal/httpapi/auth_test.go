package httpapi

import (
	"context"
	"errors"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"inventorypro/backend/internal/domain"
	"inventorypro/backend/internal/service"
)

type authenticatorStub struct {
	user domain.User
	err  error
}

func (s authenticatorStub) Authenticate(_ context.Context, _ string, _ string) (domain.User, error) {
	return s.user, s.err
}

func TestLoginIssuesTokenCarryingActor(t *testing.T) {
	auth := NewAuthManager(testSecret, time.Hour, authenticatorStub{user: domain.User{
		ID: 7, Username: "maria", Role: domain.RoleManager, Status: domain.UserStatusActive,
	}})

	resp, user, err := auth.Login(context.Background(), domain.LoginRequest{Username: "maria", Password: "pw"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if user.ID != 7 || resp.User.Username != "maria" {
		t.Fatalf("unexpected login result: %+v %+v", resp, user)
	}

	actor, err := auth.ParseToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if actor.UserID != 7 || actor.Username != "maria" || actor.Role != domain.RoleManager {
		t.Fatalf("unexpected actor: %+v", actor)
	}
}

func TestLoginPropagatesAuthenticatorError(t *testing.T) {
	auth := NewAuthManager(testSecret, time.Hour, authenticatorStub{err: service.ErrInvalidCredentials})

	if _, _, err := auth.Login(context.Background(), domain.LoginRequest{Username: "x", Password: "y"}); !errors.Is(err, service.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestParseTokenRejectsForeignAndExpiredTokens(t *testing.T) {
	auth := NewAuthManager(testSecret, time.Hour, authenticatorStub{})
	other := NewAuthManager("another-secret-key-with-32-chars!!", time.Hour, authenticatorStub{})
	actor := domain.Actor{UserID: 1, Username: "admin", Role: domain.RoleAdministrator}

	foreign, err := other.Sign(actor, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := auth.ParseToken(foreign); err == nil {
		t.Fatalf("expected token signed with another secret to be rejected")
	}

	expired, err := auth.Sign(actor, time.Now().Add(-time.Minute))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := auth.ParseToken(expired); err == nil {
		t.Fatalf("expected expired token to be rejected")
	}

	unsigned := jwtlib.NewWithClaims(jwtlib.SigningMethodNone, jwtlib.MapClaims{"sub": "admin", "role": domain.RoleAdministrator, "iss": tokenIssuer})
	raw, err := unsigned.SignedString(jwtlib.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none: %v", err)
	}
	if _, err := auth.ParseToken(raw); err == nil {
		t.Fatalf("expected alg=none token to be rejected")
	}
}

func TestParseTokenRejectsUnknownRole(t *testing.T) {
	auth := NewAuthManager(testSecret, time.Hour, authenticatorStub{})
	token, err := auth.Sign(domain.Actor{UserID: 1, Username: "ghost", Role: "Owner"}, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := auth.ParseToken(token); err == nil {
		t.Fatalf("expected unknown role to be rejected")
	}
}
