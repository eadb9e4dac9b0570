package google

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/oauth2"
)

// TokenStore persists a single credential set as JSON at a fixed path.
//
// Writes go to a temporary file in the same directory and are renamed into
// place, so a reader sees either the previous or the new content. Concurrent
// writers within the process are serialized; the last one wins.
type TokenStore struct {
	path string
	mu   sync.RWMutex
}

// NewTokenStore returns a store backed by the file at path.
func NewTokenStore(path string) *TokenStore {
	return &TokenStore{path: path}
}

// Path returns the credential file location.
func (s *TokenStore) Path() string {
	return s.path
}

// Exists reports whether a credential file is present.
func (s *TokenStore) Exists() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, err := os.Stat(s.path)
	return err == nil
}

// Load reads the persisted token. It returns ErrTokenNotFound when the file
// does not exist; other read and parse failures are returned as-is.
func (s *TokenStore) Load() (*oauth2.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrTokenNotFound
		}
		return nil, fmt.Errorf("failed to read credential file: %w", err)
	}

	var cs CredentialSet
	if err := json.Unmarshal(data, &cs); err != nil {
		return nil, fmt.Errorf("failed to parse credential file %s: %w", s.path, err)
	}
	if cs.AccessToken == "" && cs.RefreshToken == "" {
		return nil, fmt.Errorf("credential file %s holds no token", s.path)
	}

	return cs.Token(), nil
}

// Save overwrites the credential file with tok, creating parent directories.
func (s *TokenStore) Save(tok *oauth2.Token) error {
	if tok == nil {
		return errors.New("cannot save nil token")
	}

	data, err := json.MarshalIndent(NewCredentialSet(tok), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode credentials: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create credential directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".tokens-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temporary credential file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op once renamed

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write credential file: %w", err)
	}
	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to set credential file permissions: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync credential file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close credential file: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("failed to replace credential file: %w", err)
	}
	return nil
}
