// Package session persists named sets of open files so a workspace can be
// restored after a restart. Sessions are stored in a TOML file.
package session

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/sirupsen/logrus"
)

const (
	// AutoName is the reserved session saved on exit and restored on demand.
	AutoName = "__auto__"

	defaultPath = "~/.config/kitsune/sessions.toml"
)

var (
	// ErrNotFound is returned for an unknown session name.
	ErrNotFound = errors.New("session: not found")
	// ErrNoFiles is returned when none of the given files exist.
	ErrNoFiles = errors.New("session: no existing files")
	// ErrReservedName is returned when a user session would shadow AutoName.
	ErrReservedName = errors.New("session: reserved name")
)

// Session is a named list of files.
type Session struct {
	Name         string    `toml:"name"`
	CreatedAt    time.Time `toml:"created_at"`
	LastOpenedAt time.Time `toml:"last_opened_at"`
	FilePaths    []string  `toml:"file_paths"`
}

// data is the on-disk structure.
type data struct {
	LastSessionName string    `toml:"last_session_name,omitempty"`
	Sessions        []Session `toml:"sessions"`
}

// Store loads and saves sessions. It is safe for concurrent use.
type Store struct {
	mu   sync.RWMutex
	path string
	data data
	log  logrus.FieldLogger
	now  func() time.Time
}

// DefaultPath returns the default session file path.
func DefaultPath() string {
	return defaultPath
}

// Open loads the store at path ("" means DefaultPath). A missing or
// unreadable file yields an empty store.
func Open(path string, log logrus.FieldLogger) (*Store, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if strings.TrimSpace(path) == "" {
		path = defaultPath
	}
	resolved, err := expandPath(path)
	if err != nil {
		return nil, fmt.Errorf("resolve session path: %w", err)
	}

	s := &Store{
		path: resolved,
		log:  log.WithField("component", "session"),
		now:  time.Now,
	}

	raw, err := os.ReadFile(resolved)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		s.log.WithError(err).Warn("failed to read sessions, starting empty")
	default:
		if err := toml.Unmarshal(raw, &s.data); err != nil {
			s.log.WithError(err).Warn("failed to parse sessions, starting empty")
			s.data = data{}
		} else {
			s.log.WithField("count", len(s.data.Sessions)).Debug("loaded sessions")
		}
	}
	return s, nil
}

// Path returns the resolved session file path.
func (s *Store) Path() string { return s.path }

// Save stores the existing files among paths under name, replacing any
// session with that name, and marks it as the last session.
func (s *Store) Save(name string, paths []string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("session: empty name")
	}
	if name == AutoName {
		return ErrReservedName
	}
	return s.save(name, paths)
}

// SaveAuto stores paths as the auto session.
func (s *Store) SaveAuto(paths []string) error {
	return s.save(AutoName, paths)
}

func (s *Store) save(name string, paths []string) error {
	files := existing(paths)
	if len(files) == 0 {
		return ErrNoFiles
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if i := s.indexLocked(name); i >= 0 {
		s.data.Sessions[i].FilePaths = files
		s.data.Sessions[i].LastOpenedAt = now
	} else {
		s.data.Sessions = append(s.data.Sessions, Session{
			Name:         name,
			CreatedAt:    now,
			LastOpenedAt: now,
			FilePaths:    files,
		})
	}
	s.data.LastSessionName = name

	if err := s.persistLocked(); err != nil {
		return err
	}
	s.log.WithFields(logrus.Fields{"name": name, "files": len(files)}).Info("saved session")
	return nil
}

// Get returns the session called name.
func (s *Store) Get(name string) (Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := s.indexLocked(name)
	if i < 0 {
		return Session{}, false
	}
	return clone(s.data.Sessions[i]), true
}

// Load returns the existing files of the named session and marks it opened.
func (s *Store) Load(name string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexLocked(name)
	if i < 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	s.data.Sessions[i].LastOpenedAt = s.now()
	s.data.LastSessionName = name
	if err := s.persistLocked(); err != nil {
		return nil, err
	}
	return existing(s.data.Sessions[i].FilePaths), nil
}

// Delete removes the named session.
func (s *Store) Delete(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexLocked(name)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	s.data.Sessions = slices.Delete(s.data.Sessions, i, i+1)
	if s.data.LastSessionName == name {
		s.data.LastSessionName = ""
	}

	if err := s.persistLocked(); err != nil {
		return err
	}
	s.log.WithField("name", name).Info("deleted session")
	return nil
}

// UserSessions returns every session except the auto session, most
// recently opened first.
func (s *Store) UserSessions() []Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Session
	for _, sess := range s.data.Sessions {
		if sess.Name != AutoName {
			out = append(out, clone(sess))
		}
	}
	slices.SortStableFunc(out, func(a, b Session) int {
		return b.LastOpenedAt.Compare(a.LastOpenedAt)
	})
	return out
}

// LastSessionName returns the most recently saved or loaded session name.
func (s *Store) LastSessionName() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.LastSessionName
}

// LastSessionFiles returns the files of the auto session that still exist.
func (s *Store) LastSessionFiles() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := s.indexLocked(AutoName)
	if i < 0 {
		return nil
	}
	return existing(s.data.Sessions[i].FilePaths)
}

func (s *Store) indexLocked(name string) int {
	return slices.IndexFunc(s.data.Sessions, func(sess Session) bool {
		return sess.Name == name
	})
}

// persistLocked writes the store to disk atomically.
func (s *Store) persistLocked() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}

	raw, err := toml.Marshal(s.data)
	if err != nil {
		return fmt.Errorf("marshal sessions: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("write sessions: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace sessions: %w", err)
	}
	return nil
}

// existing keeps the non-empty paths that name a regular file.
func existing(paths []string) []string {
	var out []string
	for _, p := range paths {
		if p == "" {
			continue
		}
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			out = append(out, p)
		}
	}
	return out
}

func clone(s Session) Session {
	s.FilePaths = slices.Clone(s.FilePaths)
	return s
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if strings.HasPrefix(trimmed, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		trimmed = filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
	}
	return filepath.Abs(trimmed)
}
