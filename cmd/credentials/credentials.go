// Package credentials supplies the database login, from configuration or from
// a JSON file that is filled in by prompting the first time it is needed.
package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

var (
	ErrNoPrompter    = errors.New("no stored credentials and no terminal to prompt on")
	ErrEmptyLogin    = errors.New("username and password must not be empty")
	ErrMalformedFile = errors.New("credentials file is not valid JSON")
)

// Credentials is the stored login.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// normalize trims both fields and lower-cases the username.
func (c Credentials) normalize() Credentials {
	return Credentials{
		Username: strings.ToLower(strings.TrimSpace(c.Username)),
		Password: strings.TrimSpace(c.Password),
	}
}

// Prompter asks the user for a login.
type Prompter interface {
	PromptCredentials(ctx context.Context) (user, password string, err error)
}

// Static returns a fixed login, typically from db.user and db.password.
type Static struct {
	Username string
	Password string
}

// Credentials implements gateway.CredentialSource.
func (s Static) Credentials(context.Context) (string, string, error) {
	if s.Username == "" || s.Password == "" {
		return "", "", ErrEmptyLogin
	}
	return s.Username, s.Password, nil
}

// FileStore persists the login as JSON and prompts when the file is missing.
type FileStore struct {
	path     string
	prompter Prompter
	logger   *slog.Logger
}

// NewFileStore creates a store backed by path. prompter may be nil, in which
// case a missing file is an error.
func NewFileStore(path string, prompter Prompter, logger *slog.Logger) *FileStore {
	return &FileStore{path: path, prompter: prompter, logger: logger}
}

// Credentials implements gateway.CredentialSource.
func (s *FileStore) Credentials(ctx context.Context) (string, string, error) {
	c, ok, err := s.Load()
	if err != nil {
		return "", "", err
	}
	if ok {
		return c.Username, c.Password, nil
	}

	if s.prompter == nil {
		return "", "", fmt.Errorf("%w: %s", ErrNoPrompter, s.path)
	}
	user, password, err := s.prompter.PromptCredentials(ctx)
	if err != nil {
		return "", "", err
	}
	c = Credentials{Username: user, Password: password}.normalize()
	if c.Username == "" || c.Password == "" {
		return "", "", ErrEmptyLogin
	}
	if err := s.Save(c); err != nil {
		return "", "", err
	}
	s.logger.Info(fmt.Sprintf("🔑 Saved credentials to %s", s.path))
	return c.Username, c.Password, nil
}

// Load reads the stored login. ok is false when the file does not exist.
func (s *FileStore) Load() (c Credentials, ok bool, err error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return Credentials{}, false, nil
	}
	if err != nil {
		return Credentials{}, false, fmt.Errorf("failed to read credentials: %w", err)
	}
	if err := json.Unmarshal(data, &c); err != nil {
		return Credentials{}, false, fmt.Errorf("%w: %s: %w", ErrMalformedFile, s.path, err)
	}
	return c.normalize(), true, nil
}

// Save writes the login with owner-only permissions.
func (s *FileStore) Save(c Credentials) error {
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("failed to create credentials directory: %w", err)
		}
	}
	data, err := json.Marshal(c.normalize())
	if err != nil {
		return err
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write credentials: %w", err)
	}
	// WriteFile keeps the mode of an existing file
	return os.Chmod(s.path, 0o600)
}

// Reset deletes the stored login. removed is false when there was none.
func (s *FileStore) Reset() (removed bool, err error) {
	err = os.Remove(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to remove credentials: %w", err)
	}
	return true, nil
}
