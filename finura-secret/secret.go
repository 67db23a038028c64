// Package finurasecret provides AWS Secrets Manager integration for loading
// configuration secrets into Go structs.
package finurasecret

import (
	"fmt"

	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/secretsmanager"
	"github.com/savaki/secrets"
)

// Database is the shape of the database credentials secret.
type Database struct {
	DSN string `json:"dsn"`
}

func LoadSecret(s *session.Session, secretName string, data interface{}) error {
	api := secrets.WithSecretsManager(secretsmanager.New(s))
	manager, err := secrets.NewManager(api)
	if err != nil {
		return fmt.Errorf("failed to initialize secrets: %w", err)
	}

	if err := manager.Decode(secretName, data); err != nil {
		return fmt.Errorf("failed to load secret %v: %w", secretName, err)
	}
	return nil
}

// LoadDatabaseDSN reads the database DSN stored under secretName.
func LoadDatabaseDSN(s *session.Session, secretName string) (string, error) {
	var db Database
	if err := LoadSecret(s, secretName, &db); err != nil {
		return "", err
	}
	if db.DSN == "" {
		return "", fmt.Errorf("secret %v has no dsn", secretName)
	}
	return db.DSN, nil
}
