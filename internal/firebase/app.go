package firebase

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

type Credentials struct {
	// Base64 encoded service account JSON. Takes precedence over File.
	EncodedJSON string
	File        string
	ProjectID   string
}

// NewApp initializes the Firebase app. It first attempts to use the base64 encoded
// service account, then falls back to a local service account key file.
func NewApp(ctx context.Context, creds Credentials, logger *zap.Logger) (*firebase.App, error) {
	opt, err := clientOption(creds)
	if err != nil {
		return nil, err
	}

	if creds.EncodedJSON != "" {
		logger.Info("Firebase: initializing from encoded service account")
	} else {
		logger.Info("Firebase: initializing from local file", zap.String("path", creds.File))
	}

	var conf *firebase.Config
	if creds.ProjectID != "" {
		conf = &firebase.Config{ProjectID: creds.ProjectID}
	}

	app, err := firebase.NewApp(ctx, conf, opt)
	if err != nil {
		return nil, fmt.Errorf("error initializing firebase app: %w", err)
	}
	return app, nil
}

// NewFirestore returns a Firestore client bound to the app's project.
func NewFirestore(ctx context.Context, app *firebase.App) (*firestore.Client, error) {
	client, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting firestore client: %w", err)
	}
	return client, nil
}

func clientOption(creds Credentials) (option.ClientOption, error) {
	if creds.EncodedJSON != "" {
		decoded, err := base64.StdEncoding.DecodeString(creds.EncodedJSON)
		if err != nil {
			return nil, fmt.Errorf("failed to decode base64 firebase credentials: %w", err)
		}
		return option.WithCredentialsJSON(decoded), nil
	}

	if _, err := os.Stat(creds.File); os.IsNotExist(err) {
		return nil, fmt.Errorf("local firebase file not found: %s, and no encoded credentials are set", creds.File)
	}
	return option.WithCredentialsFile(creds.File), nil
}
