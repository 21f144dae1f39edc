package session

import (
	"context"
	"fmt"

	clerk "github.com/clerk/clerk-sdk-go/v2"
	"github.com/clerk/clerk-sdk-go/v2/jwt"
)

const ProviderClerk = "clerk"

// ClerkVerifier validates Clerk session JWTs.
type ClerkVerifier struct{}

// NewClerkVerifier sets the Clerk secret key used by the SDK for JWKS lookups.
func NewClerkVerifier(secretKey string) (*ClerkVerifier, error) {
	if secretKey == "" {
		return nil, fmt.Errorf("clerk secret key is not set")
	}
	clerk.SetKey(secretKey)
	return &ClerkVerifier{}, nil
}

func (v *ClerkVerifier) Verify(ctx context.Context, token string) (Session, error) {
	if token == "" {
		return Anonymous(), ErrNoToken
	}

	claims, err := jwt.Verify(ctx, &jwt.VerifyParams{
		Token: token,
	})
	if err != nil {
		return Anonymous(), fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	return Authenticated(claims.Subject, ProviderClerk), nil
}
