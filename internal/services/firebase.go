package services

import (
	"context"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"

	"whop_checkout_echo/internal/config"
)

// InitFirebase initializes the Firebase Admin SDK and returns the auth client
// used to protect the admin panel
func InitFirebase(ctx context.Context, cfg config.FirebaseConfig) (*auth.Client, error) {
	opts := []option.ClientOption{option.WithCredentialsFile(cfg.CredentialsPath)}

	var fbConfig *firebase.Config
	if cfg.ProjectID != "" {
		fbConfig = &firebase.Config{ProjectID: cfg.ProjectID}
	}

	app, err := firebase.NewApp(ctx, fbConfig, opts...)
	if err != nil {
		return nil, err
	}
	return app.Auth(ctx)
}
