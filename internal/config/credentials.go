package config

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/zalando/go-keyring"
)

// KeyringService is the service name secrets are stored under in the OS keyring.
const KeyringService = "assetsync"

// ResolveSecret fills Store.SecretKey from the OS keyring when it was not
// provided through the config file, env or flags. A missing keyring entry is
// not an error, Validate reports the missing secret instead.
func (c *Config) ResolveSecret() error {
	if c.Store.SecretKey != "" || c.Store.AccessKey == "" {
		return nil
	}

	secret, err := keyring.Get(KeyringService, c.Store.AccessKey)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil
	} else if errors.Is(err, keyring.ErrUnsupportedPlatform) {
		slog.Debug("keyring unavailable", "error", err)
		return nil
	} else if err != nil {
		return fmt.Errorf("keyring lookup: %w", err)
	}

	c.Store.SecretKey = secret
	return nil
}

// SaveSecret stores the secret key for accessKey in the OS keyring.
func SaveSecret(accessKey, secretKey string) error {
	if accessKey == "" || secretKey == "" {
		return fmt.Errorf("%w: access key and secret key required", ErrIncompleteStore)
	}
	if err := keyring.Set(KeyringService, accessKey, secretKey); err != nil {
		return fmt.Errorf("keyring save: %w", err)
	}
	return nil
}

// DeleteSecret removes a stored secret. Deleting a missing entry is a no-op.
func DeleteSecret(accessKey string) error {
	if err := keyring.Delete(KeyringService, accessKey); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("keyring delete: %w", err)
	}
	return nil
}
