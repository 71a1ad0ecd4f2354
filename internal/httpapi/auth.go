package httpapi

import (
	"context"
	"errors"
	"strconv"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"inventorypro/backend/internal/domain"
)

const tokenIssuer = "inventorypro"

// Authenticator verifies credentials against the user records.
type Authenticator interface {
	Authenticate(ctx context.Context, username string, password string) (domain.User, error)
}

type AuthManager struct {
	secret        []byte
	tokenTTL      time.Duration
	authenticator Authenticator
	now           func() time.Time
}

type inventoryClaims struct {
	jwtlib.RegisteredClaims
	Role   string `json:"role"`
	UserID int    `json:"uid"`
}

func NewAuthManager(secret string, tokenTTL time.Duration, authenticator Authenticator) *AuthManager {
	if tokenTTL <= 0 {
		tokenTTL = 8 * time.Hour
	}
	return &AuthManager{
		secret:        []byte(secret),
		tokenTTL:      tokenTTL,
		authenticator: authenticator,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

func (a *AuthManager) Login(ctx context.Context, req domain.LoginRequest) (domain.LoginResponse, domain.User, error) {
	user, err := a.authenticator.Authenticate(ctx, req.Username, req.Password)
	if err != nil {
		return domain.LoginResponse{}, domain.User{}, err
	}

	expiresAt := a.now().Add(a.tokenTTL)
	token, err := a.Sign(domain.Actor{UserID: user.ID, Username: user.Username, Role: user.Role}, expiresAt)
	if err != nil {
		return domain.LoginResponse{}, domain.User{}, err
	}

	return domain.LoginResponse{
		AccessToken: token,
		ExpiresAt:   expiresAt.Format(time.RFC3339),
		User:        user.View(),
	}, user, nil
}

func (a *AuthManager) Sign(actor domain.Actor, expiresAt time.Time) (string, error) {
	claims := inventoryClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   actor.Username,
			ID:        strconv.Itoa(actor.UserID),
			IssuedAt:  jwtlib.NewNumericDate(a.now()),
			ExpiresAt: jwtlib.NewNumericDate(expiresAt),
			Issuer:    tokenIssuer,
		},
		Role:   actor.Role,
		UserID: actor.UserID,
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

func (a *AuthManager) ParseToken(tokenStr string) (domain.Actor, error) {
	claims := &inventoryClaims{}
	token, err := jwtlib.ParseWithClaims(tokenStr, claims, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, jwtlib.WithValidMethods([]string{"HS256"}), jwtlib.WithIssuer(tokenIssuer))
	if err != nil || !token.Valid {
		return domain.Actor{}, errors.New("invalid or expired token")
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return domain.Actor{}, errors.New("invalid token subject")
	}
	if !domain.IsValidRole(claims.Role) {
		return domain.Actor{}, errors.New("invalid token role")
	}
	return domain.Actor{UserID: claims.UserID, Username: sub, Role: claims.Role}, nil
}
