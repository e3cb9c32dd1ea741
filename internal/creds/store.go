// Package creds persists the backend-issued authentication token and
// user-info blob, and hands the token to every component that attaches the
// access-token header.
package creds

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"codemother/schema"
	"pkt.systems/pslog"
)

// Credentials is the persisted client state. UserInfo is an opaque blob
// owned by the backend's user surface.
type Credentials struct {
	Token    string          `json:"auth_token"`
	UserInfo json.RawMessage `json:"user_info,omitempty"`
}

// Store manages credentials stored on disk. A missing file reads as empty
// credentials; external writes are picked up via stat-based refresh.
type Store struct {
	path      string
	mu        sync.RWMutex
	creds     Credentials
	fileState fileState
	log       pslog.Logger
}

// NewStore loads or initializes the credential store.
func NewStore(path string) (*Store, error) {
	return NewStoreWithLogger(path, nil)
}

// NewStoreWithLogger loads or initializes the credential store with logging.
func NewStoreWithLogger(path string, logger pslog.Logger) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("credential file path is required")
	}
	if logger != nil {
		logger = logger.With("creds_file", path)
	}
	store := &Store{path: path, log: logger}
	if err := store.loadFromDisk(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	return store, nil
}

// Token returns the stored token. Implements the TokenSource consumed by
// the stream client, the REST client, and the build poll.
func (s *Store) Token() (string, error) {
	s.refreshIfNeeded()
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.creds.Token == "" {
		return "", schema.ErrNoToken
	}
	return s.creds.Token, nil
}

// UserInfo returns the stored user-info blob, which may be empty.
func (s *Store) UserInfo() json.RawMessage {
	s.refreshIfNeeded()
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append(json.RawMessage(nil), s.creds.UserInfo...)
}

// SetToken stores a new token and persists.
func (s *Store) SetToken(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds.Token = strings.TrimSpace(token)
	return s.saveLocked()
}

// SetUserInfo stores a new user-info blob and persists.
func (s *Store) SetUserInfo(info json.RawMessage) error {
	if len(info) > 0 && !json.Valid(info) {
		return errors.New("user info must be valid JSON")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds.UserInfo = append(json.RawMessage(nil), info...)
	return s.saveLocked()
}

// Clear drops all stored credentials and persists the empty state.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds = Credentials{}
	return s.saveLocked()
}

func (s *Store) saveLocked() error {
	data, err := json.MarshalIndent(s.creds, "", "  ")
	if err != nil {
		s.warn("creds save failed", err)
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		s.warn("creds save failed", err)
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), "creds-*.json")
	if err != nil {
		s.warn("creds save failed", err)
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		s.warn("creds save failed", err)
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		s.warn("creds save failed", err)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		s.warn("creds save failed", err)
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		_ = os.Remove(tmp.Name())
		s.warn("creds save failed", err)
		return err
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		s.warn("creds save failed", err)
		return err
	}
	if info, err := os.Stat(s.path); err == nil {
		s.fileState = fileStateFromInfo(info)
	}
	if s.log != nil {
		s.log.Debug("creds save ok", "has_token", s.creds.Token != "")
	}
	return nil
}

func (s *Store) refreshIfNeeded() {
	info, err := os.Stat(s.path)
	if err != nil {
		return
	}
	latest := fileStateFromInfo(info)
	s.mu.RLock()
	current := s.fileState
	s.mu.RUnlock()
	if current.equal(latest) {
		return
	}
	if err := s.loadFromDisk(); err != nil && s.log != nil {
		s.log.Warn("creds refresh failed", "err", err)
	}
}

func (s *Store) loadFromDisk() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}
	var creds Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		s.warn("creds load failed", err)
		return err
	}
	info, err := os.Stat(s.path)
	if err != nil {
		s.warn("creds load failed", err)
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds = creds
	s.fileState = fileStateFromInfo(info)
	if s.log != nil {
		s.log.Debug("creds load ok", "has_token", creds.Token != "")
	}
	return nil
}

func (s *Store) warn(msg string, err error) {
	if s.log != nil {
		s.log.Warn(msg, "err", err)
	}
}

type fileState struct {
	modTime time.Time
	size    int64
	inode   uint64
	dev     uint64
}

func fileStateFromInfo(info os.FileInfo) fileState {
	state := fileState{
		modTime: info.ModTime(),
		size:    info.Size(),
	}
	if stat, ok := info.Sys().(*syscall.Stat_t); ok {
		state.inode = stat.Ino
		state.dev = stat.Dev
	}
	return state
}

func (s fileState) equal(other fileState) bool {
	return s.size == other.size &&
		s.modTime.Equal(other.modTime) &&
		s.inode == other.inode &&
		s.dev == other.dev
}
