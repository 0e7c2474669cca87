package browser

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gorilla/securecookie"
)

const stateName = "slotclaim_storage_state"

// StateStore persists the browser's cookies and local storage between
// restarts, sealed with securecookie so the file is neither readable nor
// forgeable without the keys.
type StateStore struct {
	Path string
	sc   *securecookie.SecureCookie
}

func NewStateStore(path string, hashKey, blockKey []byte) *StateStore {
	sc := securecookie.New(hashKey, blockKey)
	// storage state easily exceeds the 4096 byte cookie limit
	sc.MaxLength(0)
	sc.MaxAge(0)
	sc.SetSerializer(securecookie.NopEncoder{})
	return &StateStore{Path: path, sc: sc}
}

// Save seals raw, the JSON storage state, into Path.
func (s *StateStore) Save(raw []byte) error {
	if !json.Valid(raw) {
		return errors.New("storage state is not JSON")
	}
	// Encode encrypts the serialized bytes in place, and NopEncoder hands
	// over raw itself.
	encoded, err := s.sc.Encode(stateName, bytes.Clone(raw))
	if err != nil {
		return fmt.Errorf("seal storage state: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.Path), 0o700); err != nil {
		return err
	}
	tmp := s.Path + ".tmp"
	if err := os.WriteFile(tmp, []byte(encoded), 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.Path)
}

// Load returns the stored JSON storage state. A missing file is not an
// error; it returns nil, nil.
func (s *StateStore) Load() ([]byte, error) {
	encoded, err := os.ReadFile(s.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var raw []byte
	if err := s.sc.Decode(stateName, string(encoded), &raw); err != nil {
		return nil, fmt.Errorf("open storage state: %w", err)
	}
	return raw, nil
}

// Unsealed writes the stored state to a private temporary file Playwright
// can read, returning its path and a cleanup func. The path is "" when
// nothing is stored yet.
func (s *StateStore) Unsealed() (string, func(), error) {
	raw, err := s.Load()
	if err != nil || raw == nil {
		return "", func() {}, err
	}
	f, err := os.CreateTemp("", "slotclaim-state-*.json")
	if err != nil {
		return "", func() {}, err
	}
	cleanup := func() { _ = os.Remove(f.Name()) }
	if _, err := f.Write(raw); err != nil {
		f.Close()
		cleanup()
		return "", func() {}, err
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", func() {}, err
	}
	return f.Name(), cleanup, nil
}
