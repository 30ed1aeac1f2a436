package config

import (
	"errors"
	"strings"
	"testing"
)

// setRequired sets the minimum environment for Load to succeed.
func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("GOOGLE_CLIENT_ID", "client-id")
	t.Setenv("GOOGLE_CLIENT_SECRET", "client-secret")
	t.Setenv("ENCRYPTION_KEY", strings.Repeat("ab", 32))
	t.Setenv("SYNC_SECRET", strings.Repeat("s", 32))
}

func TestLoad(t *testing.T) {
	t.Run("applies defaults", func(t *testing.T) {
		setRequired(t)

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}

		if cfg.Server.Port != 8080 {
			t.Errorf("port = %d, want 8080", cfg.Server.Port)
		}
		if !cfg.IsProduction() {
			t.Error("default environment should be production")
		}
		if cfg.Database.Path != "./data/caseflow.db" {
			t.Errorf("database path = %q", cfg.Database.Path)
		}
		if cfg.Sync.AccountID != "default" {
			t.Errorf("account = %q", cfg.Sync.AccountID)
		}
		if cfg.Sync.WindowDays != 90 || cfg.Sync.PushBatch != 50 {
			t.Errorf("sync tuning = %d/%d", cfg.Sync.WindowDays, cfg.Sync.PushBatch)
		}
		if cfg.Sync.IntervalSecs != 0 {
			t.Errorf("interval = %d, want 0 (external trigger only)", cfg.Sync.IntervalSecs)
		}
		if cfg.RateLimiting.RPS != 10.0 || cfg.RateLimiting.Burst != 20 {
			t.Errorf("rate limiting = %v/%d", cfg.RateLimiting.RPS, cfg.RateLimiting.Burst)
		}
		if len(cfg.Security.EncryptionKey) != 32 {
			t.Errorf("key length = %d, want 32", len(cfg.Security.EncryptionKey))
		}
	})

	t.Run("reads overrides from the environment", func(t *testing.T) {
		setRequired(t)
		t.Setenv("PORT", "9090")
		t.Setenv("ENVIRONMENT", "development")
		t.Setenv("SYNC_ACCOUNT_ID", "firm-42")
		t.Setenv("SYNC_WINDOW_DAYS", "30")
		t.Setenv("SYNC_PUSH_BATCH", "10")
		t.Setenv("SYNC_INTERVAL_SECONDS", "300")

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}

		if cfg.Server.Port != 9090 {
			t.Errorf("port = %d", cfg.Server.Port)
		}
		if !cfg.IsDevelopment() {
			t.Error("expected development environment")
		}
		if cfg.Sync.AccountID != "firm-42" {
			t.Errorf("account = %q", cfg.Sync.AccountID)
		}
		if cfg.Sync.WindowDays != 30 || cfg.Sync.PushBatch != 10 || cfg.Sync.IntervalSecs != 300 {
			t.Errorf("sync tuning = %+v", cfg.Sync)
		}
	})

	t.Run("lists all missing required values", func(t *testing.T) {
		t.Setenv("GOOGLE_CLIENT_ID", "")
		t.Setenv("GOOGLE_CLIENT_SECRET", "")
		t.Setenv("ENCRYPTION_KEY", "")
		t.Setenv("SYNC_SECRET", "")

		_, err := Load()
		if !errors.Is(err, ErrMissingConfig) {
			t.Fatalf("expected ErrMissingConfig, got %v", err)
		}
		for _, name := range []string{"GOOGLE_CLIENT_ID", "GOOGLE_CLIENT_SECRET", "ENCRYPTION_KEY", "SYNC_SECRET"} {
			if !strings.Contains(err.Error(), name) {
				t.Errorf("error should name %s: %v", name, err)
			}
		}
	})

	t.Run("rejects wrong encryption key size", func(t *testing.T) {
		setRequired(t)
		t.Setenv("ENCRYPTION_KEY", strings.Repeat("ab", 16))

		_, err := Load()
		if !errors.Is(err, ErrEncryptionKeySize) {
			t.Errorf("expected ErrEncryptionKeySize, got %v", err)
		}
	})

	t.Run("rejects non-hex encryption key", func(t *testing.T) {
		setRequired(t)
		t.Setenv("ENCRYPTION_KEY", strings.Repeat("zz", 32))

		_, err := Load()
		if !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("expected ErrInvalidConfig, got %v", err)
		}
	})

	t.Run("rejects short sync secret", func(t *testing.T) {
		setRequired(t)
		t.Setenv("SYNC_SECRET", "too-short")

		_, err := Load()
		if !errors.Is(err, ErrSyncSecretSize) {
			t.Errorf("expected ErrSyncSecretSize, got %v", err)
		}
	})

	t.Run("rejects non-numeric port", func(t *testing.T) {
		setRequired(t)
		t.Setenv("PORT", "not-a-port")

		_, err := Load()
		if !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("expected ErrInvalidConfig, got %v", err)
		}
	})
}
