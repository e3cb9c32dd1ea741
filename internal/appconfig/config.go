package appconfig

import (
	"os"
	"path/filepath"
	"time"

	"codemother/schema"
)

// Config is the top-level application configuration.
type Config struct {
	ConfigVersion int           `mapstructure:"config_version" yaml:"config_version"`
	StateDir      string        `mapstructure:"state_dir" yaml:"state_dir"`
	Backend       BackendConfig `mapstructure:"backend" yaml:"backend"`
	Session       SessionConfig `mapstructure:"session" yaml:"session"`
	Preview       PreviewConfig `mapstructure:"preview" yaml:"preview"`
}

// CurrentConfigVersion marks the supported config version.
const CurrentConfigVersion = 1

// BackendConfig points at the code-generation backend.
type BackendConfig struct {
	BaseURL      string `mapstructure:"base_url" yaml:"base_url"`
	StaticPrefix string `mapstructure:"static_prefix" yaml:"static_prefix"`
	CredsFile    string `mapstructure:"creds_file" yaml:"creds_file"`
}

// SessionConfig tunes the generation session.
type SessionConfig struct {
	HistoryPageSize     int `mapstructure:"history_page_size" yaml:"history_page_size"`
	PollIntervalSeconds int `mapstructure:"poll_interval_seconds" yaml:"poll_interval_seconds"`
	PollMaxAttempts     int `mapstructure:"poll_max_attempts" yaml:"poll_max_attempts"`
	MessageMax          int `mapstructure:"message_max" yaml:"message_max"`
}

// PreviewConfig controls the headless preview browser.
type PreviewConfig struct {
	Headless bool `mapstructure:"headless" yaml:"headless"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() (Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, err
	}
	stateDir := filepath.Join(home, ".codemother")
	return Config{
		ConfigVersion: CurrentConfigVersion,
		StateDir:      stateDir,
		Backend: BackendConfig{
			BaseURL:      "http://localhost:8123/api",
			StaticPrefix: schema.DefaultStaticPrefix,
			CredsFile:    filepath.Join(stateDir, "creds.json"),
		},
		Session: SessionConfig{
			HistoryPageSize:     schema.DefaultHistoryPageSize,
			PollIntervalSeconds: int(schema.DefaultPollInterval / time.Second),
			PollMaxAttempts:     schema.DefaultPollMaxAttempts,
			MessageMax:          schema.DefaultMessageMax,
		},
		Preview: PreviewConfig{
			Headless: true,
		},
	}, nil
}

// SessionConfig converts the file configuration into the session's
// normalized config type.
func (c Config) SessionConfig() schema.SessionConfig {
	return schema.SessionConfig{
		BaseURL:         c.Backend.BaseURL,
		StaticPrefix:    c.Backend.StaticPrefix,
		StateDir:        c.StateDir,
		HistoryPageSize: c.Session.HistoryPageSize,
		PollInterval:    time.Duration(c.Session.PollIntervalSeconds) * time.Second,
		PollMaxAttempts: c.Session.PollMaxAttempts,
		MessageMax:      c.Session.MessageMax,
	}
}

// DefaultConfigPath returns the standard config path.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".codemother", "config.yaml"), nil
}
