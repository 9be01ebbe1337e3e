package secrets

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// EnvSource reads secrets from environment variables. The secret name maps
// to an environment variable by uppercasing and replacing separators, so
// "hot-store.password" resolves from HOT_STORE_PASSWORD.
type EnvSource struct {
	logger *slog.Logger
}

// NewEnvSource creates an environment-backed secret source.
func NewEnvSource(logger *slog.Logger) *EnvSource {
	return &EnvSource{logger: logger}
}

// Get returns the named secret from the environment.
func (s *EnvSource) Get(ctx context.Context, name string) (string, error) {
	val, ok := os.LookupEnv(envName(name))
	if !ok || val == "" {
		return "", fmt.Errorf("%s: %w", name, ErrNotFound)
	}
	return val, nil
}

// Close is a no-op for the environment backend.
func (s *EnvSource) Close() error { return nil }

func envName(name string) string {
	name = strings.ToUpper(name)
	name = strings.ReplaceAll(name, "-", "_")
	name = strings.ReplaceAll(name, ".", "_")
	return name
}
