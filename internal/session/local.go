package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	ProviderLocal = "local"
	localIssuer   = "habit-tracker"
)

// LocalVerifier issues and validates HS256 tokens signed with a shared secret. It stands
// in for a hosted identity provider in development and tests.
type LocalVerifier struct {
	secret []byte
}

func NewLocalVerifier(secret string) (*LocalVerifier, error) {
	if len(secret) < 16 {
		return nil, errors.New("local auth secret must be at least 16 characters")
	}
	return &LocalVerifier{secret: []byte(secret)}, nil
}

// Issue signs a token for userID valid for ttl.
func (v *LocalVerifier) Issue(userID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		Issuer:    localIssuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

func (v *LocalVerifier) Verify(_ context.Context, token string) (Session, error) {
	if token == "" {
		return Anonymous(), ErrNoToken
	}

	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(
		token,
		claims,
		func(*jwt.Token) (any, error) { return v.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(localIssuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return Anonymous(), fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return Anonymous(), fmt.Errorf("%w: token has no subject", ErrInvalidToken)
	}

	return Authenticated(claims.Subject, ProviderLocal), nil
}
