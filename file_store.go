package ddns

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// FileStore persists the Config as a JSON document.
//
// Writes go to a temporary file that is renamed over the document,
// and every access holds an advisory lock on a sibling ".lock" file so a CLI invocation and a running daemon don't interleave.
type FileStore struct {
	path string
	lock *flock.Flock
}

// NewFileStore returns a store backed by the file at path. The file is created on first Load.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path, lock: flock.New(path + ".lock")}
}

// DefaultConfigPath returns the settings file location under the user's config directory.
func DefaultConfigPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("unable to find user config directory: %w", err)
	}
	return filepath.Join(dir, "ddns6", "settings.json"), nil
}

func (s *FileStore) Path() string { return s.path }

// Load reads the config. A missing file is created with DefaultConfig.
// Fields missing from an older file keep their default values.
func (s *FileStore) Load() (Config, error) {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return Config{}, fmt.Errorf("error creating config directory: %w", err)
	}
	if err := s.lock.Lock(); err != nil {
		return Config{}, fmt.Errorf("error locking %s: %w", s.path, err)
	}
	defer s.lock.Unlock()

	b, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		cfg := DefaultConfig()
		if err := s.write(cfg); err != nil {
			return Config{}, err
		}
		return cfg, nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("error reading %s: %w", s.path, err)
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("error parsing %s: %w", s.path, err)
	}
	return cfg, nil
}

// Save replaces the stored config.
func (s *FileStore) Save(cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}
	if err := s.lock.Lock(); err != nil {
		return fmt.Errorf("error locking %s: %w", s.path, err)
	}
	defer s.lock.Unlock()
	return s.write(cfg)
}

func (s *FileStore) write(cfg Config) error {
	b, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("error encoding config: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("error creating temporary file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(append(b, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("error writing %s: %w", tmp.Name(), err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("error setting permissions on %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("error closing %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("error replacing %s: %w", s.path, err)
	}
	return nil
}
