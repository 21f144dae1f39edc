package session

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
)

const ProviderFirebase = "firebase"

// FirebaseVerifier validates Firebase Auth ID tokens.
type FirebaseVerifier struct {
	client *auth.Client
}

func NewFirebaseVerifier(ctx context.Context, app *firebase.App) (*FirebaseVerifier, error) {
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting auth client: %w", err)
	}
	return &FirebaseVerifier{client: client}, nil
}

func (v *FirebaseVerifier) Verify(ctx context.Context, token string) (Session, error) {
	if token == "" {
		return Anonymous(), ErrNoToken
	}

	t, err := v.client.VerifyIDToken(ctx, token)
	if err != nil {
		return Anonymous(), fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	return Authenticated(t.UID, ProviderFirebase), nil
}
