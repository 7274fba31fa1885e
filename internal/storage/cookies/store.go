// Package cookies persists the session cookies of every account in one JSON
// file so restarts do not require a new interactive login.
package cookies

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"

	"github.com/vadiminshakov/autotrade/internal/domain"
)

const DefaultPath = "cookies.json"

// Session is the cookie state of one account.
type Session interface {
	Export() []domain.Cookie
	Import(cookies []domain.Cookie)
}

// Store maps usernames to their cookies in a file.
type Store struct {
	path        string
	saveEnabled bool

	mu       sync.Mutex
	sessions map[string]Session
}

// NewStore creates a store over path. With saveEnabled false the file is
// only ever read.
func NewStore(path string, saveEnabled bool) *Store {
	if path == "" {
		path = DefaultPath
	}
	return &Store{
		path:        path,
		saveEnabled: saveEnabled,
		sessions:    make(map[string]Session),
	}
}

// Register binds the session of username to the store.
func (s *Store) Register(username string, session Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[username] = session
}

// Load imports persisted cookies into the registered sessions. A missing
// file is not an error.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	persisted, err := s.read()
	if err != nil {
		return err
	}
	for username, cookies := range persisted {
		if session, ok := s.sessions[username]; ok {
			session.Import(cookies)
		}
	}
	return nil
}

// Save writes the cookies of all registered sessions. Entries of accounts
// that are not registered are kept as they are.
func (s *Store) Save() error {
	if !s.saveEnabled {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.read()
	if err != nil {
		return err
	}
	if state == nil {
		state = make(map[string][]domain.Cookie, len(s.sessions))
	}
	for username, session := range s.sessions {
		state[username] = session.Export()
	}

	payload, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode cookies")
	}
	payload = append(payload, '\n')

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return errors.Wrap(err, "create cookies dir")
		}
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o600); err != nil {
		return errors.Wrap(err, "write cookies temp file")
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return errors.Wrap(err, "persist cookies")
	}
	return nil
}

func (s *Store) read() (map[string][]domain.Cookie, error) {
	payload, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "read cookies")
	}
	if len(payload) == 0 {
		return nil, nil
	}

	var state map[string][]domain.Cookie
	if err := json.Unmarshal(payload, &state); err != nil {
		return nil, errors.Wrapf(err, "decode cookies file %s", s.path)
	}
	return state, nil
}
