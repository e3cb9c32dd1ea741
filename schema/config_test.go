package schema

import (
	"errors"
	"testing"
	"time"
)

func TestNormalizeSessionConfigDefaults(t *testing.T) {
	cfg, err := NormalizeSessionConfig(SessionConfig{
		BaseURL:  "https://host/api/",
		StateDir: t.TempDir(),
	})
	if err != nil {
		t.Fatalf("NormalizeSessionConfig failed: %v", err)
	}
	if cfg.BaseURL != "https://host/api" {
		t.Fatalf("base url not trimmed: %q", cfg.BaseURL)
	}
	if cfg.StaticPrefix != DefaultStaticPrefix {
		t.Fatalf("static prefix = %q", cfg.StaticPrefix)
	}
	if cfg.HistoryPageSize != DefaultHistoryPageSize {
		t.Fatalf("history page size = %d", cfg.HistoryPageSize)
	}
	if cfg.PollInterval != 3*time.Second || cfg.PollMaxAttempts != 40 {
		t.Fatalf("poll defaults = %v / %d", cfg.PollInterval, cfg.PollMaxAttempts)
	}
	if cfg.MessageMax != DefaultMessageMax {
		t.Fatalf("message max = %d", cfg.MessageMax)
	}
}

func TestNormalizeSessionConfigRequiresBaseURL(t *testing.T) {
	if _, err := NormalizeSessionConfig(SessionConfig{StateDir: t.TempDir()}); err == nil {
		t.Fatalf("expected error for missing base url")
	}
}

func TestValidateAppID(t *testing.T) {
	for _, id := range []AppID{"42", "app-1", "App_2.beta"} {
		if err := ValidateAppID(id); err != nil {
			t.Fatalf("ValidateAppID(%q) = %v", id, err)
		}
	}
	for _, id := range []AppID{"", " 42", "42 ", "a b", "a/b", "a?b"} {
		if err := ValidateAppID(id); !errors.Is(err, ErrInvalidApp) {
			t.Fatalf("ValidateAppID(%q) = %v, want ErrInvalidApp", id, err)
		}
	}
}
