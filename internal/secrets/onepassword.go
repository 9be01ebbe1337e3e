package secrets

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/1Password/connect-sdk-go/connect"
	"github.com/1Password/connect-sdk-go/onepassword"
)

// OnePasswordSource reads secrets from a 1Password vault via the Connect
// API. Each secret is an item whose title is the secret name; the value is
// taken from the item's password field.
//
// Configuration is via environment variables:
//   - OP_CONNECT_HOST: URL of the 1Password Connect server
//   - OP_CONNECT_TOKEN: Access token for the Connect server
//   - OP_VAULT_ID: UUID of the vault holding the secrets
type OnePasswordSource struct {
	client  connect.Client
	vaultID string
	logger  *slog.Logger

	// Cache to avoid repeated API calls
	mu    sync.RWMutex
	cache map[string]string
}

// OnePasswordConfig holds configuration for 1Password Connect.
type OnePasswordConfig struct {
	Host    string // OP_CONNECT_HOST
	Token   string // OP_CONNECT_TOKEN
	VaultID string // OP_VAULT_ID
}

// NewOnePasswordSource creates a new 1Password-backed secret source.
func NewOnePasswordSource(cfg OnePasswordConfig, logger *slog.Logger) (*OnePasswordSource, error) {
	if cfg.Host == "" || cfg.Token == "" || cfg.VaultID == "" {
		return nil, fmt.Errorf("1Password configuration incomplete: host, token, and vault_id are required")
	}

	client := connect.NewClientWithUserAgent(cfg.Host, cfg.Token, "plantops-sensor-pipeline")

	return &OnePasswordSource{
		client:  client,
		vaultID: cfg.VaultID,
		logger:  logger,
		cache:   make(map[string]string),
	}, nil
}

// Get returns the named secret from the vault.
func (s *OnePasswordSource) Get(ctx context.Context, name string) (string, error) {
	s.mu.RLock()
	if cached, ok := s.cache[name]; ok {
		s.mu.RUnlock()
		return cached, nil
	}
	s.mu.RUnlock()

	items, err := s.client.GetItemsByTitle(name, s.vaultID)
	if err != nil {
		if isNotFoundError(err) {
			return "", fmt.Errorf("%s: %w", name, ErrNotFound)
		}
		return "", fmt.Errorf("listing items: %w", err)
	}
	if len(items) == 0 {
		return "", fmt.Errorf("%s: %w", name, ErrNotFound)
	}

	item, err := s.client.GetItem(items[0].ID, s.vaultID)
	if err != nil {
		return "", fmt.Errorf("getting item: %w", err)
	}

	value := secretValue(item)
	if value == "" {
		return "", fmt.Errorf("item %s has no password field: %w", name, ErrNotFound)
	}

	s.mu.Lock()
	s.cache[name] = value
	s.mu.Unlock()

	return value, nil
}

// Close clears the in-memory cache.
func (s *OnePasswordSource) Close() error {
	s.mu.Lock()
	s.cache = make(map[string]string)
	s.mu.Unlock()
	return nil
}

// secretValue extracts the credential from an item, preferring the field
// marked as the password, then any concealed field.
func secretValue(item *onepassword.Item) string {
	for _, field := range item.Fields {
		if field.Purpose == "PASSWORD" {
			return field.Value
		}
	}
	for _, field := range item.Fields {
		if field.ID == "credential" || field.Label == "credential" {
			return field.Value
		}
	}
	for _, field := range item.Fields {
		if field.Type == "CONCEALED" {
			return field.Value
		}
	}
	return ""
}

// isNotFoundError checks if an error is a "not found" error from 1Password.
func isNotFoundError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "not found") || strings.Contains(msg, "404") || strings.Contains(msg, "no items")
}
