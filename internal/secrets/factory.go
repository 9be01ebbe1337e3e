package secrets

import (
	"fmt"
	"log/slog"
	"os"
)

// Config holds configuration for the secrets backend.
type Config struct {
	// Backend specifies which backend to use: "1password", "env", or "auto"
	// "auto" (default) uses 1Password if configured, otherwise the environment
	Backend string

	// 1Password Connect configuration
	// Set via environment: OP_CONNECT_HOST, OP_CONNECT_TOKEN, OP_VAULT_ID
	ConnectHost  string
	ConnectToken string
	VaultID      string
}

// ConfigFromEnv creates a Config from environment variables.
func ConfigFromEnv() Config {
	return Config{
		Backend:      getEnv("SECRETS_BACKEND", "auto"),
		ConnectHost:  os.Getenv("OP_CONNECT_HOST"),
		ConnectToken: os.Getenv("OP_CONNECT_TOKEN"),
		VaultID:      os.Getenv("OP_VAULT_ID"),
	}
}

// NewSource creates a Source based on configuration.
func NewSource(cfg Config, logger *slog.Logger) (Source, error) {
	backend := cfg.Backend
	if backend == "" {
		backend = "auto"
	}

	switch backend {
	case "1password":
		if cfg.ConnectHost == "" || cfg.ConnectToken == "" || cfg.VaultID == "" {
			return nil, fmt.Errorf("1Password backend requested but OP_CONNECT_HOST, OP_CONNECT_TOKEN, or OP_VAULT_ID not set")
		}
		return NewOnePasswordSource(OnePasswordConfig{
			Host:    cfg.ConnectHost,
			Token:   cfg.ConnectToken,
			VaultID: cfg.VaultID,
		}, logger)

	case "env":
		return NewEnvSource(logger), nil

	case "auto":
		// Try 1Password first, fall back to the environment
		if cfg.ConnectHost != "" && cfg.ConnectToken != "" && cfg.VaultID != "" {
			src, err := NewOnePasswordSource(OnePasswordConfig{
				Host:    cfg.ConnectHost,
				Token:   cfg.ConnectToken,
				VaultID: cfg.VaultID,
			}, logger)
			if err != nil {
				logger.Warn("failed to initialize 1Password, falling back to environment secrets",
					"error", err)
				return NewEnvSource(logger), nil
			}
			return src, nil
		}
		logger.Info("1Password Connect not configured, using environment secrets")
		return NewEnvSource(logger), nil

	default:
		return nil, fmt.Errorf("unknown secrets backend: %s", backend)
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
