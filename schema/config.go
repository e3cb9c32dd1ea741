package schema

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// SessionConfig defines defaults and limits for a generation session.
type SessionConfig struct {
	// BaseURL is the backend API base, e.g. "https://host/api".
	BaseURL string
	// StaticPrefix is the preview path prefix, e.g. "/api/static".
	StaticPrefix string
	// StateDir holds the credential file and transcript archive.
	StateDir string
	// HistoryPageSize is the chat history page size.
	HistoryPageSize int
	// PollInterval is the cadence of the build-status poll.
	PollInterval time.Duration
	// PollMaxAttempts bounds the build-status poll.
	PollMaxAttempts int
	// MessageMax caps the length of one user message in runes.
	MessageMax int
}

// Session config defaults.
const (
	DefaultStaticPrefix    = "/api/static"
	DefaultHistoryPageSize = 10
	DefaultPollInterval    = 3 * time.Second
	DefaultPollMaxAttempts = 40
	DefaultMessageMax      = 1000
)

// NormalizeSessionConfig applies defaults and validates the config.
func NormalizeSessionConfig(cfg SessionConfig) (SessionConfig, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return SessionConfig{}, errors.New("base url is required")
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.StaticPrefix == "" {
		cfg.StaticPrefix = DefaultStaticPrefix
	}
	cfg.StaticPrefix = strings.TrimRight(cfg.StaticPrefix, "/")
	if cfg.StateDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return SessionConfig{}, err
		}
		cfg.StateDir = filepath.Join(home, ".codemother")
	}
	if cfg.HistoryPageSize <= 0 {
		cfg.HistoryPageSize = DefaultHistoryPageSize
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.PollMaxAttempts <= 0 {
		cfg.PollMaxAttempts = DefaultPollMaxAttempts
	}
	if cfg.MessageMax <= 0 {
		cfg.MessageMax = DefaultMessageMax
	}
	return cfg, nil
}

// ValidateAppID ensures an app id is a non-empty token without whitespace.
func ValidateAppID(id AppID) error {
	raw := string(id)
	if raw == "" || strings.TrimSpace(raw) != raw {
		return ErrInvalidApp
	}
	for _, r := range raw {
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' {
			continue
		}
		if r == '.' || r == '_' || r == '-' {
			continue
		}
		return ErrInvalidApp
	}
	return nil
}
