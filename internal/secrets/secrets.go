// Package secrets resolves credentials for external services.
//
// Two backends are supported: a 1Password Connect vault for production and
// plain environment variables for development. The "auto" backend picks
// 1Password when its configuration is present and falls back to the
// environment otherwise.
package secrets

import (
	"context"
	"errors"
)

// ErrNotFound is returned when the backend holds no secret by that name.
var ErrNotFound = errors.New("secret not found")

// Source resolves named secrets such as database passwords and object
// store keys.
type Source interface {
	// Get returns the named secret, or ErrNotFound.
	Get(ctx context.Context, name string) (string, error)

	// Close releases any backend resources.
	Close() error
}
