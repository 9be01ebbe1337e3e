package secrets

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestEnvSource_Get(t *testing.T) {
	t.Setenv("HOT_STORE_PASSWORD", "hunter2")

	src := NewEnvSource(testLogger())
	defer src.Close()

	tests := []struct {
		name   string
		secret string
		want   string
	}{
		{"exact", "HOT_STORE_PASSWORD", "hunter2"},
		{"lowercase", "hot_store_password", "hunter2"},
		{"dashed", "hot-store-password", "hunter2"},
		{"dotted", "hot.store.password", "hunter2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := src.Get(context.Background(), tt.secret)
			if err != nil {
				t.Fatalf("Get(%q): %v", tt.secret, err)
			}
			if got != tt.want {
				t.Errorf("Get(%q) = %q, want %q", tt.secret, got, tt.want)
			}
		})
	}
}

func TestEnvSource_NotFound(t *testing.T) {
	src := NewEnvSource(testLogger())
	_, err := src.Get(context.Background(), "definitely_not_set_anywhere")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestNewSource_Backends(t *testing.T) {
	logger := testLogger()

	t.Run("env explicit", func(t *testing.T) {
		src, err := NewSource(Config{Backend: "env"}, logger)
		if err != nil {
			t.Fatal(err)
		}
		if _, ok := src.(*EnvSource); !ok {
			t.Errorf("expected EnvSource, got %T", src)
		}
	})

	t.Run("auto without 1password falls back to env", func(t *testing.T) {
		src, err := NewSource(Config{Backend: "auto"}, logger)
		if err != nil {
			t.Fatal(err)
		}
		if _, ok := src.(*EnvSource); !ok {
			t.Errorf("expected EnvSource, got %T", src)
		}
	})

	t.Run("1password incomplete config", func(t *testing.T) {
		_, err := NewSource(Config{Backend: "1password", ConnectHost: "https://op.internal"}, logger)
		if err == nil {
			t.Error("expected error for incomplete 1Password config")
		}
	})

	t.Run("unknown backend", func(t *testing.T) {
		if _, err := NewSource(Config{Backend: "vault"}, logger); err == nil {
			t.Error("expected error for unknown backend")
		}
	})
}
